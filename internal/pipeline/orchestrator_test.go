// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-answer/internal/model"
	"github.com/jeranaias/rigrun-answer/internal/router"
	"github.com/jeranaias/rigrun-answer/internal/sources"
	"github.com/jeranaias/rigrun-answer/internal/telemetry"
)

type routerFunc func(ctx context.Context, q router.Query) router.Result

func (f routerFunc) Route(ctx context.Context, q router.Query) router.Result { return f(ctx, q) }

type executorFunc func(ctx context.Context, req sources.Request) (*sources.Result, error)

func (f executorFunc) Execute(ctx context.Context, req sources.Request) (*sources.Result, error) {
	return f(ctx, req)
}

func usageOf(tokens int) *telemetry.UsageLog {
	l := telemetry.NewUsageLog()
	l.Add(telemetry.ModelUsage{Model: "m", TotalTokens: tokens})
	return l
}

func immediateRouter(answer string, srcs ...model.SourceTag) Router {
	return routerFunc(func(_ context.Context, q router.Query) router.Result {
		return router.Result{
			Decision: router.Decision{Sources: srcs, Question: q.Question, Immediate: &answer},
			Outcome:  router.OutcomeCasual,
			Usage:    usageOf(10),
		}
	})
}

func structuredRouter(refined string, srcs ...model.SourceTag) Router {
	return routerFunc(func(_ context.Context, q router.Query) router.Result {
		return router.Result{
			Decision: router.Decision{Sources: srcs, Question: refined},
			Outcome:  router.OutcomeStructured,
			Usage:    usageOf(10),
		}
	})
}

func panicExecutor(t *testing.T) Executor {
	return executorFunc(func(context.Context, sources.Request) (*sources.Result, error) {
		t.Fatal("executor must not be called")
		return nil, nil
	})
}

func TestRun_ImmediateReturn(t *testing.T) {
	o := NewOrchestrator(immediateRouter("Hi there!", model.SourceCasual), panicExecutor(t), nil)

	res, err := o.Run(context.Background(), Input{Question: "helo", Mode: model.ModeStandard})
	require.NoError(t, err)

	assert.Equal(t, "Hi there!", res.Answer)
	assert.Equal(t, "Hi there!", res.RawText)
	assert.Equal(t, []model.SourceTag{model.SourceCasual}, res.Sources)
	assert.Equal(t, "helo", res.ImprovedQuestion)
	assert.True(t, res.Extras.IsEmpty())
	assert.Equal(t, 10, res.Usage.TotalTokens)
}

func TestRun_ImmediateDefaultsSources(t *testing.T) {
	o := NewOrchestrator(immediateRouter("ok"), panicExecutor(t), nil)

	res, err := o.Run(context.Background(), Input{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, []model.SourceTag{model.SourceCasual}, res.Sources)
}

func TestRun_ImmediateEmptyAnswer(t *testing.T) {
	o := NewOrchestrator(immediateRouter("", model.SourceCasual), panicExecutor(t), nil)

	res, err := o.Run(context.Background(), Input{Question: "q", Policy: PolicySwallow})
	require.NoError(t, err)
	assert.Equal(t, "", res.Answer)
}

func TestRun_Execute(t *testing.T) {
	var got sources.Request
	exec := executorFunc(func(_ context.Context, req sources.Request) (*sources.Result, error) {
		got = req
		return &sources.Result{
			Answer:  "Four incidents.",
			RawText: "4",
			Usage:   usageOf(25),
			Sources: []model.SourceTag{model.SourceDatabase},
			Extras:  model.Extras{QueryTemplates: []model.QueryTemplate{{Input: "i", Query: "q"}}},
		}, nil
	})
	o := NewOrchestrator(structuredRouter("How many incidents?", model.SourceDatabase), exec, nil)

	history := []model.ConversationTurn{model.NewTurn(model.RoleUser, "earlier")}
	res, err := o.Run(context.Background(), Input{
		Question:  "how many incidnets?",
		History:   history,
		AccountID: 9,
	})
	require.NoError(t, err)

	assert.Equal(t, "How many incidents?", got.Question)
	assert.Equal(t, int64(9), got.AccountID)
	assert.Equal(t, history, got.History)

	assert.Equal(t, "Four incidents.", res.Answer)
	assert.Equal(t, "4", res.RawText)
	assert.Equal(t, "How many incidents?", res.ImprovedQuestion)
	assert.Equal(t, []model.SourceTag{model.SourceDatabase}, res.Sources)
	assert.Len(t, res.Extras.QueryTemplates, 1)
	assert.Equal(t, 35, res.Usage.TotalTokens)
	assert.Len(t, res.Usage.ModelUsages, 2)
}

func TestRun_RoutingFailureStillExecutes(t *testing.T) {
	r := routerFunc(func(_ context.Context, q router.Query) router.Result {
		return router.Result{
			Decision: router.Decision{Sources: []model.SourceTag{model.SourceDocument}, Question: q.Question},
			Outcome:  router.OutcomeCallFailed,
			Usage:    telemetry.NewErrorLog("router down"),
		}
	})
	exec := executorFunc(func(context.Context, sources.Request) (*sources.Result, error) {
		return &sources.Result{Answer: "a", Usage: usageOf(5), Sources: []model.SourceTag{model.SourceDocument}}, nil
	})

	res, err := NewOrchestrator(r, exec, nil).Run(context.Background(), Input{Question: "q", AccountID: 1})
	require.NoError(t, err)
	assert.Equal(t, "a", res.Answer)
	assert.False(t, res.Usage.IsError())
	assert.Equal(t, []string{"router down"}, res.Usage.Errors)
}

func TestRun_FailurePolicies(t *testing.T) {
	exec := executorFunc(func(context.Context, sources.Request) (*sources.Result, error) {
		return nil, sources.ErrMissingAccount
	})
	o := NewOrchestrator(structuredRouter("refined", model.SourceDocument), exec, nil)

	_, err := o.Run(context.Background(), Input{Question: "original", Policy: PolicyRaise})
	assert.ErrorIs(t, err, sources.ErrMissingAccount)

	res, err := o.Run(context.Background(), Input{Question: "original", Policy: PolicySwallow})
	require.NoError(t, err)
	assert.Equal(t, "", res.Answer)
	assert.Equal(t, "", res.RawText)
	assert.Equal(t, []model.SourceTag{model.SourceCasual}, res.Sources)
	assert.Equal(t, "original", res.ImprovedQuestion)
	assert.True(t, res.Usage.IsError())
	assert.Contains(t, res.Usage.Message, "account")
	assert.True(t, res.Extras.IsEmpty())
}

func TestRun_EmptyQuestion(t *testing.T) {
	called := false
	r := routerFunc(func(context.Context, router.Query) router.Result {
		called = true
		return router.Result{}
	})
	o := NewOrchestrator(r, panicExecutor(t), nil)

	_, err := o.Run(context.Background(), Input{Question: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.False(t, called)
}

func TestRun_NilExecutorResult(t *testing.T) {
	exec := executorFunc(func(context.Context, sources.Request) (*sources.Result, error) { return nil, nil })
	o := NewOrchestrator(structuredRouter("q", model.SourceDocument), exec, nil)

	_, err := o.Run(context.Background(), Input{Question: "q"})
	assert.Error(t, err)
}

func TestPolicyFor(t *testing.T) {
	assert.Equal(t, PolicyRaise, PolicyFor(model.ModeStandard))
	assert.Equal(t, PolicyRaise, PolicyFor(""))
	assert.Equal(t, PolicySwallow, PolicyFor(model.ModeSupport))
}

func TestStateString(t *testing.T) {
	names := map[State]string{
		StateRoute:           "ROUTE",
		StateImmediateReturn: "IMMEDIATE_RETURN",
		StateExecute:         "EXECUTE",
		StateDone:            "DONE",
		StateFailed:          "FAILED",
	}
	for s, want := range names {
		assert.Equal(t, want, s.String())
	}
	assert.Equal(t, "swallow", PolicySwallow.String())
	assert.Equal(t, "raise", PolicyRaise.String())
}
