// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sources

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jeranaias/rigrun-answer/internal/backend"
	"github.com/jeranaias/rigrun-answer/internal/llm"
	"github.com/jeranaias/rigrun-answer/internal/model"
	"github.com/jeranaias/rigrun-answer/internal/telemetry"
	"github.com/jeranaias/rigrun-answer/internal/templates"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func usageLog(name string, tokens int, cost float64) *telemetry.UsageLog {
	l := telemetry.NewUsageLog()
	l.Add(telemetry.ModelUsage{Model: name, TotalTokens: tokens, Cost: cost, ResponseTimeMs: 100})
	return l
}

func staticBackend(text string, calls *atomic.Int32) backend.Answerer {
	return backend.AnswerFunc(func(ctx context.Context, question string, accountID int64) (string, *telemetry.UsageLog, error) {
		if calls != nil {
			calls.Add(1)
		}
		return text, usageLog("backend/"+text, 10, 0.001), nil
	})
}

type synthFake struct {
	content string
	err     error
	last    llm.Request
	calls   int
}

func (s *synthFake) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	s.calls++
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{
		Content: s.content,
		Usage:   telemetry.ModelUsage{Model: "groq/" + req.Model, TotalTokens: 40, Cost: 0.002},
	}, nil
}

func TestExecute_SingleDatabaseSource(t *testing.T) {
	synth := &synthFake{content: "  There are four open incidents.  "}
	exec := NewExecutor(synth, DefaultConfig(), nil).
		WithBackend(model.SourceDatabase, staticBackend("4 rows", nil))

	res, err := exec.Execute(context.Background(), Request{
		Sources:   []model.SourceTag{model.SourceDatabase},
		Question:  "open incidents?",
		AccountID: 7,
	})
	require.NoError(t, err)

	assert.Equal(t, "There are four open incidents.", res.Answer)
	assert.Equal(t, "4 rows", res.RawText)
	assert.Equal(t, []model.SourceTag{model.SourceDatabase}, res.Sources)
	assert.True(t, res.Extras.IsEmpty())

	require.Len(t, res.Usage.ModelUsages, 2)
	assert.Equal(t, "backend/4 rows", res.Usage.ModelUsages[0].Model)
	assert.Equal(t, 50, res.Usage.TotalTokens)

	assert.Equal(t, DefaultSynthesisModel, synth.last.Model)
	assert.InDelta(t, DefaultSynthesisTemperature, synth.last.Temperature, 1e-9)
	assert.Nil(t, synth.last.Format)
	assert.Contains(t, synth.last.Prompt, "Raw Result: 4 rows")
	assert.Contains(t, synth.last.Prompt, "Source Types: database")
}

func TestExecute_HeavyCap(t *testing.T) {
	var dbCalls, docCalls atomic.Int32
	exec := NewExecutor(&synthFake{content: "ok"}, DefaultConfig(), nil).
		WithBackend(model.SourceDatabase, staticBackend("db", &dbCalls)).
		WithBackend(model.SourceDocument, staticBackend("doc", &docCalls))

	res, err := exec.Execute(context.Background(), Request{
		Sources:   []model.SourceTag{model.SourceDatabase, model.SourceDocument},
		Question:  "q",
		AccountID: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, int32(1), dbCalls.Load())
	assert.Equal(t, int32(0), docCalls.Load())
	assert.Equal(t, []model.SourceTag{model.SourceDatabase}, res.Sources)
}

func TestExecute_MissingAccount(t *testing.T) {
	var calls atomic.Int32
	synth := &synthFake{content: "ok"}
	exec := NewExecutor(synth, DefaultConfig(), nil).
		WithBackend(model.SourceDocument, staticBackend("doc", &calls))

	for _, account := range []int64{0, -3} {
		_, err := exec.Execute(context.Background(), Request{
			Sources:   []model.SourceTag{model.SourceDocument},
			Question:  "q",
			AccountID: account,
		})
		assert.ErrorIs(t, err, ErrMissingAccount)
	}
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, 0, synth.calls)
}

func TestExecute_CasualOnly(t *testing.T) {
	synth := &synthFake{content: "Hello!"}
	exec := NewExecutor(synth, DefaultConfig(), nil)

	res, err := exec.Execute(context.Background(), Request{
		Sources:  []model.SourceTag{model.SourceCasual},
		Question: "hi",
		History:  []model.ConversationTurn{model.NewTurn(model.RoleUser, "earlier")},
	})
	require.NoError(t, err, "casual needs no account")

	assert.Equal(t, "Hello!", res.Answer)
	assert.Empty(t, res.RawText)
	assert.Equal(t, []model.SourceTag{model.SourceCasual}, res.Sources)
	assert.Contains(t, synth.last.Prompt, "user: earlier")
	assert.Equal(t, 1, synth.calls)
}

func TestExecute_SynthesisFailureKeepsRawText(t *testing.T) {
	exec := NewExecutor(&synthFake{err: errors.New("upstream 502")}, DefaultConfig(), nil).
		WithBackend(model.SourceDocument, staticBackend("policy text", nil))

	res, err := exec.Execute(context.Background(), Request{
		Sources:   []model.SourceTag{model.SourceDocument},
		Question:  "q",
		AccountID: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, res.RawText, res.Answer)
	assert.Equal(t, "policy text", res.Answer)
	assert.False(t, res.Usage.IsError())
	require.Len(t, res.Usage.Errors, 1)
	assert.Contains(t, res.Usage.Errors[0], "upstream 502")
	assert.Len(t, res.Usage.ModelUsages, 1, "backend usage kept")
}

func TestExecute_BackendFailureAborts(t *testing.T) {
	synth := &synthFake{content: "ok"}
	exec := NewExecutor(synth, DefaultConfig(), nil).
		WithBackend(model.SourceDatabase, backend.AnswerFunc(func(context.Context, string, int64) (string, *telemetry.UsageLog, error) {
			return "", nil, backend.ErrBackendUnavailable
		}))

	_, err := exec.Execute(context.Background(), Request{
		Sources:   []model.SourceTag{model.SourceDatabase},
		Question:  "q",
		AccountID: 1,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, backend.ErrBackendUnavailable)
	assert.Contains(t, err.Error(), "database source")
	assert.Equal(t, 0, synth.calls)
}

func TestExecute_NoBackendRegistered(t *testing.T) {
	exec := NewExecutor(&synthFake{content: "ok"}, DefaultConfig(), nil)

	_, err := exec.Execute(context.Background(), Request{
		Sources:   []model.SourceTag{model.SourceDocument},
		Question:  "q",
		AccountID: 1,
	})
	assert.ErrorIs(t, err, ErrNoBackend)
}

func TestExecute_TemplatesWithDatabase(t *testing.T) {
	list := templates.Static{
		{Input: "open incidents", Query: "SELECT 1", Description: "Open"},
		{Input: "closed incidents", Query: "SELECT 2"},
	}
	synth := &synthFake{content: "done"}
	exec := NewExecutor(synth, DefaultConfig(), nil).
		WithBackend(model.SourceDatabase, staticBackend("rows", nil)).
		WithTemplates(list)

	res, err := exec.Execute(context.Background(), Request{
		Sources:   []model.SourceTag{model.SourceDatabase},
		Question:  "q",
		AccountID: 1,
	})
	require.NoError(t, err)

	want := "rows\n\nAvailable templates:\n" +
		"Input: open incidents\nQuery: SELECT 1\nDescription: Open\n\n" +
		"Input: closed incidents\nQuery: SELECT 2\nDescription: —"
	assert.Equal(t, want, res.RawText)
	assert.Equal(t, []model.QueryTemplate(list), res.Extras.QueryTemplates)
	assert.Contains(t, synth.last.Prompt, "Available templates:")
}

func TestExecute_NoTemplatesForDocument(t *testing.T) {
	exec := NewExecutor(&synthFake{content: "done"}, DefaultConfig(), nil).
		WithBackend(model.SourceDocument, staticBackend("doc", nil)).
		WithTemplates(templates.Static{{Input: "a", Query: "b"}})

	res, err := exec.Execute(context.Background(), Request{
		Sources:   []model.SourceTag{model.SourceDocument},
		Question:  "q",
		AccountID: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "doc", res.RawText)
	assert.True(t, res.Extras.IsEmpty())
}

type failingProvider struct{}

func (failingProvider) Templates(context.Context) ([]model.QueryTemplate, error) {
	return nil, errors.New("db locked")
}

func TestExecute_TemplateProviderFailureIgnored(t *testing.T) {
	exec := NewExecutor(&synthFake{content: "done"}, DefaultConfig(), nil).
		WithBackend(model.SourceDatabase, staticBackend("rows", nil)).
		WithTemplates(failingProvider{})

	res, err := exec.Execute(context.Background(), Request{
		Sources:   []model.SourceTag{model.SourceDatabase},
		Question:  "q",
		AccountID: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "rows", res.RawText)
}

func TestFanOut_OrderAndCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)

	exec := NewExecutor(nil, DefaultConfig(), nil)
	var canceled atomic.Bool

	// The database call finishes last; its section must still come first.
	exec.WithBackend(model.SourceDatabase, backend.AnswerFunc(func(ctx context.Context, _ string, _ int64) (string, *telemetry.UsageLog, error) {
		time.Sleep(30 * time.Millisecond)
		return "db", usageLog("db", 1, 0), nil
	}))
	exec.WithBackend(model.SourceDocument, staticBackend("doc", nil))

	sections, usages, err := exec.fanOut(context.Background(),
		[]model.SourceTag{model.SourceDatabase, model.SourceDocument}, "q", 1)
	require.NoError(t, err)
	require.Len(t, sections, 2)
	assert.Equal(t, model.SourceDatabase, sections[0].Source)
	assert.Equal(t, model.SourceDocument, sections[1].Source)
	assert.Len(t, usages, 2)

	// A failure cancels the sibling, which must return before fanOut does.
	exec.WithBackend(model.SourceDatabase, backend.AnswerFunc(func(ctx context.Context, _ string, _ int64) (string, *telemetry.UsageLog, error) {
		select {
		case <-ctx.Done():
			canceled.Store(true)
			return "", nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return "late", nil, nil
		}
	}))
	exec.WithBackend(model.SourceDocument, backend.AnswerFunc(func(context.Context, string, int64) (string, *telemetry.UsageLog, error) {
		return "", nil, errors.New("index offline")
	}))

	start := time.Now()
	_, _, err = exec.fanOut(context.Background(),
		[]model.SourceTag{model.SourceDatabase, model.SourceDocument}, "q", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index offline")
	assert.True(t, canceled.Load())
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExecute_NilSynthesizerFallsBack(t *testing.T) {
	exec := NewExecutor(nil, DefaultConfig(), nil).
		WithBackend(model.SourceDocument, staticBackend("text", nil))

	res, err := exec.Execute(context.Background(), Request{
		Sources:   []model.SourceTag{model.SourceDocument},
		Question:  "q",
		AccountID: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "text", res.Answer)
	require.Len(t, res.Usage.Errors, 1)
	assert.True(t, strings.HasPrefix(res.Usage.Errors[0], "synthesis unavailable"))
}
