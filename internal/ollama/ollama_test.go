// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jeranaias/rigrun-answer/internal/llm"
)

// =============================================================================
// CONFIG TESTS
// =============================================================================

func TestNewClientWithConfig_FillsDefaults(t *testing.T) {
	client := NewClientWithConfig(&ClientConfig{BaseURL: "http://example:11434/"})
	cfg := client.GetConfig()

	if cfg.BaseURL != "http://example:11434" {
		t.Errorf("BaseURL = %q, trailing slash should be trimmed", cfg.BaseURL)
	}
	if cfg.Timeout != 120*time.Second {
		t.Errorf("Timeout = %v, want 120s", cfg.Timeout)
	}
	if cfg.DefaultModel == "" {
		t.Error("DefaultModel should be filled")
	}

	if NewClientWithConfig(nil).GetConfig().BaseURL != DefaultBaseURL {
		t.Error("nil config should use defaults")
	}
}

// =============================================================================
// COMPLETE TESTS
// =============================================================================

func TestComplete_Success(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(chatResponse{
			Model:           "llama3.1:8b",
			Message:         chatMessage{Role: "assistant", Content: `{"sources":["casual"]}`},
			Done:            true,
			PromptEvalCount: 12,
			EvalCount:       8,
		})
	}))
	defer server.Close()

	client := NewClientWithConfig(&ClientConfig{BaseURL: server.URL, KeepAlive: "10m"})
	resp, err := client.Complete(context.Background(), llm.Request{
		System:      "sys",
		Prompt:      "route this",
		Model:       "llama3.1:8b",
		Temperature: 0.1,
		Format:      llm.JSONSchemaFormat("route", map[string]any{"type": "object"}),
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Content != `{"sources":["casual"]}` {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.Model != "ollama/llama3.1:8b" {
		t.Errorf("Usage.Model = %q", resp.Usage.Model)
	}
	if resp.Usage.TotalTokens != 20 {
		t.Errorf("Usage.TotalTokens = %d, want 20", resp.Usage.TotalTokens)
	}
	if resp.Usage.Cost != 0 {
		t.Errorf("local calls should be free, got %v", resp.Usage.Cost)
	}

	if got.Stream {
		t.Error("request should not stream")
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Errorf("Messages = %+v", got.Messages)
	}
	schema, ok := got.Format.(map[string]any)
	if !ok || schema["type"] != "object" {
		t.Errorf("Format = %#v, want schema object", got.Format)
	}
	if got.Options == nil || got.Options.Temperature != 0.1 {
		t.Errorf("Options = %+v", got.Options)
	}
	if got.KeepAlive != "10m" {
		t.Errorf("KeepAlive = %q, want 10m", got.KeepAlive)
	}
}

func TestComplete_DefaultModel(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(chatResponse{Message: chatMessage{Content: "ok"}, Done: true})
	}))
	defer server.Close()

	client := NewClientWithConfig(&ClientConfig{BaseURL: server.URL, DefaultModel: "qwen2.5:7b"})
	if _, err := client.Complete(context.Background(), llm.Request{Prompt: "hi"}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got.Model != "qwen2.5:7b" {
		t.Errorf("Model = %q, want default", got.Model)
	}
	if got.Format != nil {
		t.Errorf("Format = %#v, want none", got.Format)
	}
	if got.KeepAlive != "" {
		t.Errorf("KeepAlive = %q, want server default", got.KeepAlive)
	}
}

func TestComplete_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"model not found", http.StatusNotFound, `{"error":"model 'x' not found"}`, IsModelNotFound},
		{"server error", http.StatusInternalServerError, `{"error":"out of memory"}`, func(err error) bool {
			return err != nil && err.Error() == "out of memory"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClientWithConfig(&ClientConfig{BaseURL: server.URL}).
				Complete(context.Background(), llm.Request{Prompt: "hi"})
			if !tt.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestComplete_NotRunning(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewClientWithConfig(&ClientConfig{BaseURL: url}).
		Complete(context.Background(), llm.Request{Prompt: "hi"})
	if !IsNotRunning(err) {
		t.Errorf("expected not-running error, got %v", err)
	}
}

func TestCheckRunning(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/version" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"version":"0.5.7"}`))
	}))
	defer server.Close()

	client := NewClientWithConfig(&ClientConfig{BaseURL: server.URL})
	if err := client.CheckRunning(context.Background()); err != nil {
		t.Errorf("CheckRunning = %v", err)
	}
	version, err := client.Version(context.Background())
	if err != nil || version != "0.5.7" {
		t.Errorf("Version = %q, %v", version, err)
	}
}

func TestComplete_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewClientWithConfig(&ClientConfig{BaseURL: server.URL}).Complete(ctx, llm.Request{Prompt: "hi"})
	if !IsTimeout(err) {
		t.Errorf("expected timeout, got %v", err)
	}
}

func TestComplete_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient().Complete(ctx, llm.Request{Prompt: "hi"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// =============================================================================
// ERROR TYPE TESTS
// =============================================================================

func TestClientError(t *testing.T) {
	err := &ClientError{Type: ErrTypeNotRunning, Message: "dial", Cause: context.Canceled}
	if err.Error() != "dial: context canceled" {
		t.Errorf("Error() = %q", err.Error())
	}
	if err.Unwrap() != context.Canceled {
		t.Error("Unwrap should return cause")
	}

	if !IsTimeout(ErrTimeout) || IsTimeout(ErrNotRunning) {
		t.Error("IsTimeout classification wrong")
	}
}

func TestClientError_Is(t *testing.T) {
	err := fmt.Errorf("routing: %w", &ClientError{Type: ErrTypeNotRunning, Message: "dial", Cause: errors.New("refused")})
	if !errors.Is(err, ErrNotRunning) || !IsNotRunning(err) {
		t.Error("wrapped not-running error should match ErrNotRunning")
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("not-running error should not match ErrTimeout")
	}
}

func TestEvalRate(t *testing.T) {
	r := &chatResponse{EvalCount: 100, EvalDuration: int64(2 * time.Second)}
	if r.evalRate() != 50 {
		t.Errorf("evalRate = %v, want 50", r.evalRate())
	}
	if (&chatResponse{}).evalRate() != 0 {
		t.Error("zero duration should give 0")
	}
}
