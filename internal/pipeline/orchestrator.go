// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-answer/internal/logging"
	"github.com/jeranaias/rigrun-answer/internal/model"
	"github.com/jeranaias/rigrun-answer/internal/router"
	"github.com/jeranaias/rigrun-answer/internal/sources"
	"github.com/jeranaias/rigrun-answer/internal/telemetry"
	"github.com/jeranaias/rigrun-answer/internal/util"
)

// ErrEmptyQuestion is returned when the question is blank.
var ErrEmptyQuestion = errors.New("question is empty")

// =============================================================================
// COLLABORATORS
// =============================================================================

// Router classifies a question. *router.Router implements it.
type Router interface {
	Route(ctx context.Context, q router.Query) router.Result
}

// Executor runs the chosen sources. *sources.Executor implements it.
type Executor interface {
	Execute(ctx context.Context, req sources.Request) (*sources.Result, error)
}

// =============================================================================
// STATES AND POLICIES
// =============================================================================

// State is a step of the orchestrator.
type State int

const (
	StateRoute State = iota
	StateImmediateReturn
	StateExecute
	StateDone
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateRoute:
		return "ROUTE"
	case StateImmediateReturn:
		return "IMMEDIATE_RETURN"
	case StateExecute:
		return "EXECUTE"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// FailurePolicy decides what Run does when a step fails.
type FailurePolicy int

const (
	// PolicyRaise returns the error to the caller.
	PolicyRaise FailurePolicy = iota

	// PolicySwallow returns a degraded result with an empty answer.
	PolicySwallow
)

// String returns the policy name.
func (p FailurePolicy) String() string {
	if p == PolicySwallow {
		return "swallow"
	}
	return "raise"
}

// PolicyFor returns the policy used for a chat mode: support conversations
// swallow failures, everything else raises them.
func PolicyFor(mode model.ChatMode) FailurePolicy {
	if mode == model.ModeSupport {
		return PolicySwallow
	}
	return PolicyRaise
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Input is one pipeline run.
type Input struct {
	Question    string
	History     []model.ConversationTurn
	AccountID   int64
	SiteContext string
	Mode        model.ChatMode
	Policy      FailurePolicy
}

// Orchestrator runs routing and execution for one question at a time.
// It holds no per-request state and is safe for concurrent use.
type Orchestrator struct {
	router   Router
	executor Executor
	logger   *zap.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(r Router, e Executor, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		router:   r,
		executor: e,
		logger:   logging.OrNop(logger).Named("pipeline"),
	}
}

// run carries the state of one request through the machine.
type run struct {
	in       Input
	state    State
	usage    *telemetry.UsageLog
	decision router.Decision
	result   *model.PipelineResult
	err      error
}

// Run answers one question. With PolicySwallow it never returns an error.
func (o *Orchestrator) Run(ctx context.Context, in Input) (*model.PipelineResult, error) {
	r := &run{
		in:    in,
		state: StateRoute,
		usage: telemetry.NewUsageLog(),
	}

	for r.state != StateDone && r.state != StateFailed {
		from := r.state
		switch r.state {
		case StateRoute:
			o.route(ctx, r)
		case StateImmediateReturn:
			o.immediate(r)
		case StateExecute:
			o.execute(ctx, r)
		}
		o.logger.Debug("pipeline transition",
			zap.Stringer("from", from),
			zap.Stringer("to", r.state))
	}

	if r.state == StateDone {
		return r.result, nil
	}
	return o.fail(r)
}

func (o *Orchestrator) route(ctx context.Context, r *run) {
	if strings.TrimSpace(r.in.Question) == "" {
		r.err = ErrEmptyQuestion
		r.state = StateFailed
		return
	}

	res := o.router.Route(ctx, router.Query{
		Question:    r.in.Question,
		History:     r.in.History,
		SiteContext: r.in.SiteContext,
		Mode:        r.in.Mode,
	})
	telemetry.Merge(r.usage, res.Usage)
	r.decision = res.Decision

	if _, ok := res.Decision.ImmediateAnswer(); ok {
		r.state = StateImmediateReturn
	} else {
		r.state = StateExecute
	}
}

func (o *Orchestrator) immediate(r *run) {
	answer, _ := r.decision.ImmediateAnswer()

	srcs := r.decision.Sources
	if len(srcs) == 0 {
		srcs = []model.SourceTag{model.SourceCasual}
	}

	r.result = &model.PipelineResult{
		Answer:           answer,
		RawText:          answer,
		Usage:            r.usage,
		Sources:          append([]model.SourceTag(nil), srcs...),
		ImprovedQuestion: r.in.Question,
	}
	r.state = StateDone
}

func (o *Orchestrator) execute(ctx context.Context, r *run) {
	res, err := o.executor.Execute(ctx, sources.Request{
		Sources:   r.decision.Sources,
		Question:  r.decision.Question,
		History:   r.in.History,
		AccountID: r.in.AccountID,
	})
	if err == nil && res == nil {
		err = errors.New("executor returned no result")
	}
	if err != nil {
		r.err = err
		r.state = StateFailed
		return
	}

	telemetry.Merge(r.usage, res.Usage)
	r.result = &model.PipelineResult{
		Answer:           res.Answer,
		RawText:          res.RawText,
		Usage:            r.usage,
		Sources:          res.Sources,
		ImprovedQuestion: r.decision.Question,
		Extras:           res.Extras,
	}
	r.state = StateDone
}

// fail applies the failure policy.
func (o *Orchestrator) fail(r *run) (*model.PipelineResult, error) {
	if r.in.Policy != PolicySwallow {
		return nil, r.err
	}

	o.logger.Warn("pipeline fallback",
		zap.String("question", util.TruncateRunes(r.in.Question, 80)),
		zap.Error(r.err))

	return &model.PipelineResult{
		Answer:           "",
		RawText:          "",
		Usage:            telemetry.NewErrorLog(r.err.Error()),
		Sources:          []model.SourceTag{model.SourceCasual},
		ImprovedQuestion: r.in.Question,
	}, nil
}
