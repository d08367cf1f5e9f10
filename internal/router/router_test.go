// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-answer/internal/llm"
	"github.com/jeranaias/rigrun-answer/internal/model"
	"github.com/jeranaias/rigrun-answer/internal/telemetry"
)

func fixedCompleter(content string, captured *llm.Request) llm.Completer {
	return llm.CompleterFunc(func(_ context.Context, req llm.Request) (*llm.Response, error) {
		if captured != nil {
			*captured = req
		}
		return &llm.Response{
			Content: content,
			Usage: telemetry.ModelUsage{
				Model:            "groq/" + req.Model,
				PromptTokens:     120,
				CompletionTokens: 30,
				Cost:             0.0002,
				ResponseTimeMs:   250,
			},
		}, nil
	})
}

func failingCompleter(err error) llm.Completer {
	return llm.CompleterFunc(func(context.Context, llm.Request) (*llm.Response, error) {
		return nil, err
	})
}

func TestRoute_Structured(t *testing.T) {
	var req llm.Request
	r := New(fixedCompleter(`{"sources":["database"],"improved_question":"How many incident reports were filed?"}`, &req), DefaultConfig(), nil)

	res := r.Route(context.Background(), Query{
		Question: "How many incident reprots were filed?",
		History: []model.ConversationTurn{
			model.NewTurn(model.RoleUser, "hi"),
			model.NewTurn(model.RoleAssistant, "hello"),
		},
		Mode: model.ModeStandard,
	})

	assert.Equal(t, OutcomeStructured, res.Outcome)
	assert.Equal(t, []model.SourceTag{model.SourceDatabase}, res.Decision.Sources)
	assert.Equal(t, "How many incident reports were filed?", res.Decision.Question)
	_, ok := res.Decision.ImmediateAnswer()
	assert.False(t, ok)

	require.NotNil(t, res.Usage)
	assert.False(t, res.Usage.IsError())
	require.Len(t, res.Usage.ModelUsages, 1)
	assert.Equal(t, 150, res.Usage.TotalTokens)

	assert.Equal(t, DefaultModel, req.Model)
	assert.InDelta(t, DefaultTemperature, req.Temperature, 1e-9)
	require.NotNil(t, req.Format)
	assert.Equal(t, SchemaName, req.Format.JSONSchema.Name)
	assert.Contains(t, req.Prompt, "user: hi\nassistant: hello")
}

func TestRoute_CasualDroppedWhenHeavyPresent(t *testing.T) {
	r := New(fixedCompleter(`{"sources":["casual","document"],"improved_question":"what is the leave policy"}`, nil), DefaultConfig(), nil)

	res := r.Route(context.Background(), Query{Question: "what is the leave policy", Mode: model.ModeStandard})

	assert.Equal(t, OutcomeStructured, res.Outcome)
	assert.Equal(t, []model.SourceTag{model.SourceDocument}, res.Decision.Sources)
}

func TestRoute_CasualReply(t *testing.T) {
	r := New(fixedCompleter(`{"sources":["casual"],"improved_question":"helo there","casual_response":"  Hi! How can I help?  "}`, nil), DefaultConfig(), nil)

	res := r.Route(context.Background(), Query{Question: "helo", Mode: model.ModeStandard})

	assert.Equal(t, OutcomeCasual, res.Outcome)
	assert.Equal(t, []model.SourceTag{model.SourceCasual}, res.Decision.Sources)
	assert.Equal(t, "helo", res.Decision.Question, "casual keeps the original question")
	answer, ok := res.Decision.ImmediateAnswer()
	require.True(t, ok)
	assert.Equal(t, "Hi! How can I help?", answer)
}

func TestRoute_CasualWithoutReplyUsesApology(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Apology = "Sorry about that."
	r := New(fixedCompleter(`{"sources":["casual"],"improved_question":"hey"}`, nil), cfg, nil)

	res := r.Route(context.Background(), Query{Question: "hey"})

	answer, ok := res.Decision.ImmediateAnswer()
	require.True(t, ok)
	assert.Equal(t, "Sorry about that.", answer)
}

func TestRoute_SupportCollapsesToCasual(t *testing.T) {
	r := New(fixedCompleter(`{"sources":["casual","document"],"improved_question":"reset password","casual_response":"Use the reset link."}`, nil), DefaultConfig(), nil)

	res := r.Route(context.Background(), Query{Question: "reset pasword", Mode: model.ModeSupport})

	assert.Equal(t, OutcomeCasual, res.Outcome)
	assert.Equal(t, []model.SourceTag{model.SourceCasual}, res.Decision.Sources)
	answer, ok := res.Decision.ImmediateAnswer()
	require.True(t, ok)
	assert.Equal(t, "Use the reset link.", answer)
}

func TestRoute_SupportKeepsHeavyWithoutCasual(t *testing.T) {
	r := New(fixedCompleter(`{"sources":["database"],"improved_question":"open incidents"}`, nil), DefaultConfig(), nil)

	res := r.Route(context.Background(), Query{Question: "open incidents", Mode: model.ModeSupport})

	assert.Equal(t, OutcomeStructured, res.Outcome)
	assert.Equal(t, []model.SourceTag{model.SourceDatabase}, res.Decision.Sources)
}

func TestRoute_Unparseable(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "database please"},
		{"empty", ""},
		{"unknown source", `{"sources":["web"],"improved_question":"q"}`},
		{"too many sources", `{"sources":["database","document","casual","database"],"improved_question":"q"}`},
		{"no sources", `{"sources":[],"improved_question":"q"}`},
		{"missing question", `{"sources":["database"]}`},
		{"wrong type", `{"sources":"database","improved_question":"q"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(fixedCompleter(tt.content, nil), DefaultConfig(), nil)
			res := r.Route(context.Background(), Query{Question: "original"})

			assert.Equal(t, OutcomeUnparseable, res.Outcome)
			assert.NotEmpty(t, res.Reason)
			assert.Equal(t, []model.SourceTag{model.SourceCasual}, res.Decision.Sources)
			assert.Equal(t, "original", res.Decision.Question)
			answer, ok := res.Decision.ImmediateAnswer()
			require.True(t, ok)
			assert.Equal(t, DefaultApology, answer)
			require.NotNil(t, res.Usage)
			assert.False(t, res.Usage.IsError())
		})
	}
}

func TestRoute_CallFailed(t *testing.T) {
	r := New(failingCompleter(errors.New("connection refused")), DefaultConfig(), nil)

	res := r.Route(context.Background(), Query{Question: "policy on travel"})

	assert.Equal(t, OutcomeCallFailed, res.Outcome)
	assert.Equal(t, []model.SourceTag{model.SourceDocument}, res.Decision.Sources)
	assert.Equal(t, "policy on travel", res.Decision.Question)
	_, ok := res.Decision.ImmediateAnswer()
	assert.False(t, ok)
	require.NotNil(t, res.Usage)
	assert.True(t, res.Usage.IsError())
	assert.Contains(t, res.Usage.Message, "connection refused")
	assert.Empty(t, res.Usage.ModelUsages)
}

func TestRoute_NilResponseIsCallFailure(t *testing.T) {
	r := New(llm.CompleterFunc(func(context.Context, llm.Request) (*llm.Response, error) {
		return nil, nil
	}), DefaultConfig(), nil)

	res := r.Route(context.Background(), Query{Question: "q"})
	assert.Equal(t, OutcomeCallFailed, res.Outcome)
}

func TestRoute_HistoryTruncated(t *testing.T) {
	var req llm.Request
	cfg := DefaultConfig()
	cfg.HistoryTurns = 2
	r := New(fixedCompleter(`{"sources":["casual"],"improved_question":"q"}`, &req), cfg, nil)

	history := []model.ConversationTurn{
		model.NewTurn(model.RoleUser, "first"),
		model.NewTurn(model.RoleAssistant, "second"),
		model.NewTurn(model.RoleUser, "third"),
	}
	r.Route(context.Background(), Query{Question: "q", History: history})

	assert.NotContains(t, req.Prompt, "first")
	assert.Contains(t, req.Prompt, "assistant: second\nuser: third")
}

func TestNew_Defaults(t *testing.T) {
	r := New(failingCompleter(errors.New("x")), Config{}, nil)
	cfg := r.Config()
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, DefaultHistoryTurns, cfg.HistoryTurns)
	assert.Equal(t, DefaultApology, cfg.Apology)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "structured", OutcomeStructured.String())
	assert.Equal(t, "casual", OutcomeCasual.String())
	assert.Equal(t, "unparseable", OutcomeUnparseable.String())
	assert.Equal(t, "call_failed", OutcomeCallFailed.String())
	assert.True(t, strings.HasPrefix(Outcome(42).String(), "Outcome("))
}
