// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Answer(t *testing.T) {
	var got answerRequest
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"text": "There were 4 incidents.",
			"usage_log": {
				"model_usages": [{"model": "openai/gpt-4o", "prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15, "cost": 0.01, "response_time_ms": 300}],
				"total_tokens": 15, "total_cost": 0.01, "total_response_time_ms": 300,
				"log_type": "info", "status": "success"
			}
		}`))
	}))
	defer server.Close()

	c := NewClient("database", server.URL).WithToken("secret")
	text, usage, err := c.Answer(context.Background(), "how many incidents", 42)

	require.NoError(t, err)
	assert.Equal(t, "There were 4 incidents.", text)
	assert.Equal(t, answerRequest{Question: "how many incidents", AccountID: 42}, got)
	assert.Equal(t, "Bearer secret", auth)
	require.NotNil(t, usage)
	require.Len(t, usage.ModelUsages, 1)
	assert.Equal(t, 15, usage.TotalTokens)
}

func TestClient_MissingUsageLog(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":"ok"}`))
	}))
	defer server.Close()

	text, usage, err := NewClient("document", server.URL).Answer(context.Background(), "q", 1)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	require.NotNil(t, usage)
	assert.Empty(t, usage.ModelUsages)
	assert.False(t, usage.IsError())
}

func TestClient_StatusErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMsg     string
		unavailable bool
	}{
		{"detail", http.StatusBadRequest, `{"detail":"bad account"}`, "bad account", false},
		{"error field", http.StatusInternalServerError, `{"error":"boom"}`, "boom", false},
		{"plain text", http.StatusNotFound, "not here", "not here", false},
		{"unavailable", http.StatusServiceUnavailable, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, _, err := NewClient("database", server.URL).Answer(context.Background(), "q", 1)
			require.Error(t, err)

			var se *StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.status, se.StatusCode)
			assert.Equal(t, "database", se.Backend)
			assert.Equal(t, tt.wantMsg, se.Message)
			assert.Equal(t, tt.unavailable, errors.Is(err, ErrBackendUnavailable))
		})
	}
}

func TestClient_StatusErrorKeepsRunesWhole(t *testing.T) {
	body := strings.Repeat("é", 300)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	_, _, err := NewClient("document", server.URL).Answer(context.Background(), "q", 1)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.True(t, utf8.ValidString(se.Message), "message split a rune: %q", se.Message)
	assert.Equal(t, maxErrorMessageRunes, utf8.RuneCountInString(se.Message))
	assert.True(t, strings.HasSuffix(se.Message, "..."))
}

func TestClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, _, err := NewClient("document", url).Answer(context.Background(), "q", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestClient_NotConfigured(t *testing.T) {
	_, _, err := NewClient("document", "  ").Answer(context.Background(), "q", 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestClient_ContextCanceled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := NewClient("database", server.URL).Answer(ctx, "q", 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":`))
	}))
	defer server.Close()

	_, _, err := NewClient("database", server.URL).Answer(context.Background(), "q", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse response")
}
