// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-answer/internal/backend"
	"github.com/jeranaias/rigrun-answer/internal/llm"
	"github.com/jeranaias/rigrun-answer/internal/model"
	"github.com/jeranaias/rigrun-answer/internal/router"
	"github.com/jeranaias/rigrun-answer/internal/sources"
	"github.com/jeranaias/rigrun-answer/internal/telemetry"
)

// scriptedCompleter answers routing calls with route and everything else
// with synth.
func scriptedCompleter(route, synth string) llm.Completer {
	return llm.CompleterFunc(func(_ context.Context, req llm.Request) (*llm.Response, error) {
		content := synth
		if req.Format != nil {
			content = route
		}
		return &llm.Response{
			Content: content,
			Usage:   telemetry.ModelUsage{Model: "groq/" + req.Model, TotalTokens: 20, Cost: 0.001},
		}, nil
	})
}

func newTestAgent(t *testing.T, completer llm.Completer, answerer backend.Answerer) (*Agent, *telemetry.CostTracker) {
	t.Helper()
	tracker, err := telemetry.NewCostTracker(t.TempDir())
	require.NoError(t, err)

	exec := sources.NewExecutor(completer, sources.DefaultConfig(), nil)
	if answerer != nil {
		exec.WithBackend(model.SourceDocument, answerer)
	}
	orch := NewOrchestrator(router.New(completer, router.DefaultConfig(), nil), exec, nil)
	return NewAgent(orch, completer, DefaultAgentConfig(), nil).WithCostTracker(tracker), tracker
}

func docBackend(text string) backend.Answerer {
	return backend.AnswerFunc(func(context.Context, string, int64) (string, *telemetry.UsageLog, error) {
		l := telemetry.NewUsageLog()
		l.Add(telemetry.ModelUsage{Model: "backend/doc", TotalTokens: 100})
		return text, l, nil
	})
}

func TestInteract_Structured(t *testing.T) {
	agent, tracker := newTestAgent(t,
		scriptedCompleter(`{"sources":["casual","document"],"improved_question":"What is the travel policy?"}`, "Travel needs approval."),
		docBackend("Section 4: travel requires approval."))

	resp := agent.Interact(context.Background(), model.ChatRequest{
		Content:   "what is the travle policy?",
		AccountID: 3,
	})

	assert.True(t, resp.Success)
	assert.Equal(t, "Travel needs approval.", resp.Response)
	assert.Equal(t, "document", resp.ConversationType)
	assert.Equal(t, "What is the travel policy?", resp.ImprovedQuestion)
	assert.Equal(t, model.ModeStandard, resp.Mode)
	assert.Nil(t, resp.Extras)
	require.NotNil(t, resp.UsageLog)
	assert.Len(t, resp.UsageLog.ModelUsages, 3, "routing, backend, synthesis")
	assert.Equal(t, 140, resp.UsageLog.TotalTokens)

	session := tracker.GetCurrentSession()
	assert.Equal(t, 1, session.Requests)
	assert.Equal(t, 1, session.ByKind[KindAgent])
}

func TestInteract_MissingAccountApologizes(t *testing.T) {
	agent, tracker := newTestAgent(t,
		scriptedCompleter(`{"sources":["document"],"improved_question":"q"}`, "unused"),
		docBackend("unused"))

	resp := agent.Interact(context.Background(), model.ChatRequest{Content: "policy?"})

	assert.False(t, resp.Success)
	assert.Equal(t, DefaultApology, resp.Response)
	assert.Equal(t, model.ConversationTypeError, resp.ConversationType)
	assert.True(t, resp.UsageLog.IsError())
	assert.Contains(t, resp.UsageLog.Message, "account")
	assert.Equal(t, 1, tracker.GetCurrentSession().Failures)
}

func TestInteract_SupportModeSwallows(t *testing.T) {
	agent, _ := newTestAgent(t,
		scriptedCompleter(`{"sources":["document"],"improved_question":"q"}`, "unused"),
		docBackend("unused"))

	resp := agent.Interact(context.Background(), model.ChatRequest{Content: "policy?", Mode: model.ModeSupport})

	assert.True(t, resp.Success)
	assert.Equal(t, "", resp.Response)
	assert.Equal(t, "casual", resp.ConversationType)
	assert.Equal(t, model.ModeSupport, resp.Mode)
	assert.True(t, resp.UsageLog.IsError())
}

type panicRouter struct{}

func (panicRouter) Route(context.Context, router.Query) router.Result { panic("boom") }

func TestInteract_RecoversPanic(t *testing.T) {
	orch := NewOrchestrator(panicRouter{}, nil, nil)
	agent := NewAgent(orch, nil, DefaultAgentConfig(), nil)

	resp := agent.Interact(context.Background(), model.ChatRequest{Content: "q"})
	assert.False(t, resp.Success)
	assert.Equal(t, DefaultApology, resp.Response)
	assert.Contains(t, resp.UsageLog.Message, "boom")
}

func TestInteract_CasualExtrasAndTemplates(t *testing.T) {
	completer := scriptedCompleter(`{"sources":["database"],"improved_question":"open incidents"}`, "Two are open.")
	exec := sources.NewExecutor(completer, sources.DefaultConfig(), nil).
		WithBackend(model.SourceDatabase, docBackend("2 rows")).
		WithTemplates(staticTemplates{{Input: "open incidents", Query: "SELECT 1"}})
	orch := NewOrchestrator(router.New(completer, router.DefaultConfig(), nil), exec, nil)
	agent := NewAgent(orch, nil, DefaultAgentConfig(), nil)

	resp := agent.Interact(context.Background(), model.ChatRequest{Content: "open incidents", AccountID: 5})
	require.True(t, resp.Success)
	require.NotNil(t, resp.Extras)
	assert.Len(t, resp.Extras.QueryTemplates, 1)
	assert.Equal(t, "database", resp.ConversationType)
}

type staticTemplates []model.QueryTemplate

func (s staticTemplates) Templates(context.Context) ([]model.QueryTemplate, error) { return s, nil }

func TestSupport_Answered(t *testing.T) {
	agent, tracker := newTestAgent(t,
		scriptedCompleter(`{"sources":["casual","document"],"improved_question":"reset","casual_response":"Use the reset link on the login page."}`, "unused"),
		nil)

	resp := agent.Support(context.Background(), model.SupportRequest{Message: "how do I reset my password", UserID: 4})

	assert.Equal(t, "Use the reset link on the login page.", resp.Response)
	assert.InDelta(t, DefaultSuccessConfidence, resp.Confidence, 1e-9)
	assert.False(t, resp.NeedsHumanSupport)
	assert.Equal(t, model.IntentGeneral, resp.Intent)
	assert.NotNil(t, resp.Suggestions)
	assert.Empty(t, resp.Suggestions)
	assert.Equal(t, 1, tracker.GetCurrentSession().ByKind[KindSupport])
	assert.Zero(t, tracker.GetCurrentSession().ByKind[KindAgent])
}

func TestSupport_EmptyAnswerEscalates(t *testing.T) {
	empty := ""
	r := routerFunc(func(_ context.Context, q router.Query) router.Result {
		return router.Result{
			Decision: router.Decision{Sources: []model.SourceTag{model.SourceCasual}, Question: q.Question, Immediate: &empty},
			Outcome:  router.OutcomeCasual,
			Usage:    telemetry.NewUsageLog(),
		}
	})
	agent := NewAgent(NewOrchestrator(r, nil, nil), nil, DefaultAgentConfig(), nil)

	resp := agent.Support(context.Background(), model.SupportRequest{Message: "help"})

	assert.Equal(t, DefaultSupportApology, resp.Response)
	assert.Zero(t, resp.Confidence)
	assert.True(t, resp.NeedsHumanSupport)
	assert.Equal(t, model.IntentError, resp.Intent)
	assert.Equal(t, []string{DefaultSupportSuggestion}, resp.Suggestions)
}

func TestSupport_BackendFailureEscalates(t *testing.T) {
	agent, _ := newTestAgent(t,
		scriptedCompleter(`{"sources":["document"],"improved_question":"q"}`, "unused"),
		backend.AnswerFunc(func(context.Context, string, int64) (string, *telemetry.UsageLog, error) {
			return "", nil, errors.New("index offline")
		}))

	resp := agent.Support(context.Background(), model.SupportRequest{Message: "policy", AccountID: 2})
	assert.True(t, resp.NeedsHumanSupport)
	assert.Equal(t, model.IntentError, resp.Intent)
}

func TestTitle(t *testing.T) {
	var got llm.Request
	titler := llm.CompleterFunc(func(_ context.Context, req llm.Request) (*llm.Response, error) {
		got = req
		return &llm.Response{Content: "\"Travel Policy Questions\"\n", Usage: telemetry.ModelUsage{Model: "m", TotalTokens: 12}}, nil
	})
	agent := NewAgent(NewOrchestrator(nil, nil, nil), titler, DefaultAgentConfig(), nil)

	turns := []model.ConversationTurn{
		model.NewTurn(model.RoleUser, "one"),
		model.NewTurn(model.RoleAssistant, "two"),
		model.NewTurn(model.RoleUser, "three"),
		model.NewTurn(model.RoleAssistant, "four"),
	}
	resp := agent.Title(context.Background(), turns)

	assert.True(t, resp.Success)
	assert.Equal(t, "Travel Policy Questions", resp.Title)
	assert.Equal(t, 12, resp.UsageLog.TotalTokens)
	assert.Equal(t, DefaultTitleModel, got.Model)
	assert.InDelta(t, DefaultTitleTemperature, got.Temperature, 1e-9)
	assert.NotContains(t, got.Prompt, "user: one")
	assert.Contains(t, got.Prompt, "assistant: two\nuser: three\nassistant: four")
	assert.Contains(t, got.Prompt, "maximum 6 words")
}

func TestTitle_Failure(t *testing.T) {
	titler := llm.CompleterFunc(func(context.Context, llm.Request) (*llm.Response, error) {
		return nil, errors.New("rate limited")
	})
	agent := NewAgent(NewOrchestrator(nil, nil, nil), titler, DefaultAgentConfig(), nil)

	resp := agent.Title(context.Background(), nil)
	assert.False(t, resp.Success)
	assert.Equal(t, DefaultTitle, resp.Title)
	assert.True(t, resp.UsageLog.IsError())
	assert.Contains(t, resp.UsageLog.Message, "rate limited")

	noTitler := NewAgent(NewOrchestrator(nil, nil, nil), nil, DefaultAgentConfig(), nil)
	assert.False(t, noTitler.Title(context.Background(), nil).Success)
}

func TestCleanTitle(t *testing.T) {
	assert.Equal(t, "Budget Review", cleanTitle("  'Budget Review'  "))
	assert.Equal(t, "First", cleanTitle("First\nSecond"))
	assert.Equal(t, "", cleanTitle("  "))
}

func TestAgentConfigDefaults(t *testing.T) {
	agent := NewAgent(nil, nil, AgentConfig{SuccessConfidence: 5}, nil)
	cfg := agent.Config()
	assert.Equal(t, DefaultApology, cfg.Apology)
	assert.Equal(t, DefaultSuccessConfidence, cfg.SuccessConfidence)
	assert.Equal(t, DefaultTitleTurns, cfg.TitleTurns)
	assert.Equal(t, DefaultTitleModel, cfg.TitleModel)
}
