// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sources

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/rigrun-answer/internal/backend"
	"github.com/jeranaias/rigrun-answer/internal/llm"
	"github.com/jeranaias/rigrun-answer/internal/logging"
	"github.com/jeranaias/rigrun-answer/internal/model"
	"github.com/jeranaias/rigrun-answer/internal/telemetry"
	"github.com/jeranaias/rigrun-answer/internal/templates"
)

// =============================================================================
// ERRORS AND CONFIG
// =============================================================================

var (
	// ErrMissingAccount is returned when a heavy source is requested
	// without an account id. No backend is called.
	ErrMissingAccount = errors.New("structured sources require a valid account id")

	// ErrNoBackend is returned when a heavy source has no backend registered.
	ErrNoBackend = errors.New("no backend registered")
)

const (
	// DefaultSynthesisModel writes the final answer.
	DefaultSynthesisModel = "meta-llama/llama-4-scout"

	// DefaultSynthesisTemperature allows some freedom in wording.
	DefaultSynthesisTemperature = 0.7
)

// Config controls execution.
type Config struct {
	SynthesisModel       string
	SynthesisTemperature float64

	// HistoryTurns limits the history shown to synthesis. Zero shows all.
	HistoryTurns int

	AssistantName string
}

// DefaultConfig returns the default execution configuration.
func DefaultConfig() Config {
	return Config{
		SynthesisModel:       DefaultSynthesisModel,
		SynthesisTemperature: DefaultSynthesisTemperature,
	}
}

// =============================================================================
// REQUEST / RESULT
// =============================================================================

// Request is one execution.
type Request struct {
	Sources   []model.SourceTag
	Question  string
	History   []model.ConversationTurn
	AccountID int64
}

// Result is the output of one execution.
type Result struct {
	// Answer is the synthesized text, or RawText when synthesis failed.
	Answer string

	// RawText is the combined backend output before synthesis.
	RawText string

	// Usage holds every backend and synthesis usage. A synthesis failure
	// is recorded in Usage.Errors.
	Usage *telemetry.UsageLog

	// Sources are the sources that produced output, in priority order.
	Sources []model.SourceTag

	Extras model.Extras
}

// =============================================================================
// EXECUTOR
// =============================================================================

// Executor runs backends and synthesis. It holds no per-request state and
// is safe for concurrent use once configured.
type Executor struct {
	synth     llm.Completer
	backends  map[model.SourceTag]backend.Answerer
	templates templates.Provider
	cfg       Config
	logger    *zap.Logger
}

// NewExecutor creates an executor that synthesizes with synth.
func NewExecutor(synth llm.Completer, cfg Config, logger *zap.Logger) *Executor {
	if cfg.SynthesisModel == "" {
		cfg.SynthesisModel = DefaultSynthesisModel
	}
	return &Executor{
		synth:    synth,
		backends: make(map[model.SourceTag]backend.Answerer),
		cfg:      cfg,
		logger:   logging.OrNop(logger).Named("sources"),
	}
}

// WithBackend registers the backend that answers tag.
func (e *Executor) WithBackend(tag model.SourceTag, a backend.Answerer) *Executor {
	if a != nil {
		e.backends[tag] = a
	}
	return e
}

// WithTemplates sets the query template provider used with database answers.
func (e *Executor) WithTemplates(p templates.Provider) *Executor {
	e.templates = p
	return e
}

// Execute runs one request. It fails when a heavy source lacks an account,
// or when any backend call fails. A synthesis failure is not an error.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	resolved := ResolveSources(req.Sources)
	heavy := heavySources(resolved)

	if len(heavy) > 0 && req.AccountID <= 0 {
		return nil, ErrMissingAccount
	}

	e.logger.Debug("active sources resolved",
		zap.String("sources", model.JoinSources(resolved)),
		zap.Int64("account_id", req.AccountID))

	sections, usages, err := e.fanOut(ctx, heavy, req.Question, req.AccountID)
	if err != nil {
		e.logger.Error("source fan-out failed", zap.Error(err))
		return nil, err
	}

	usage := telemetry.NewUsageLog()
	active := make([]model.SourceTag, 0, len(sections))
	for i, s := range sections {
		telemetry.Merge(usage, usages[i])
		active = append(active, s.Source)
	}
	if len(active) == 0 {
		active = append(active, model.SourceCasual)
	}

	raw := combine(sections)

	var extras model.Extras
	if model.ContainsSource(active, model.SourceDatabase) {
		list := e.loadTemplates(ctx)
		raw = appendTemplates(raw, list)
		extras.QueryTemplates = list
	}

	answer := e.synthesize(ctx, req, active, raw, usage)

	return &Result{
		Answer:  answer,
		RawText: raw,
		Usage:   usage,
		Sources: active,
		Extras:  extras,
	}, nil
}

// fanOut calls every heavy backend concurrently. Results are indexed by the
// position of their source so ordering never depends on completion order.
func (e *Executor) fanOut(ctx context.Context, heavy []model.SourceTag, question string, accountID int64) ([]section, []*telemetry.UsageLog, error) {
	if len(heavy) == 0 {
		return nil, nil, nil
	}

	for _, tag := range heavy {
		if _, ok := e.backends[tag]; !ok {
			return nil, nil, fmt.Errorf("%s: %w", tag, ErrNoBackend)
		}
	}

	sections := make([]section, len(heavy))
	usages := make([]*telemetry.UsageLog, len(heavy))

	g, gctx := errgroup.WithContext(ctx)
	for i, tag := range heavy {
		a := e.backends[tag]
		g.Go(func() error {
			text, usage, err := a.Answer(gctx, question, accountID)
			if err != nil {
				return fmt.Errorf("%s source: %w", tag, err)
			}
			sections[i] = section{Source: tag, Text: text}
			usages[i] = usage
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return sections, usages, nil
}

func (e *Executor) loadTemplates(ctx context.Context) []model.QueryTemplate {
	if e.templates == nil {
		return nil
	}
	list, err := e.templates.Templates(ctx)
	if err != nil {
		e.logger.Warn("query templates unavailable", zap.Error(err))
		return nil
	}
	return list
}

// synthesize returns the polished answer, or raw when the call fails.
// Usage and failures are recorded on usage.
func (e *Executor) synthesize(ctx context.Context, req Request, active []model.SourceTag, raw string, usage *telemetry.UsageLog) string {
	if e.synth == nil {
		usage.RecordError("synthesis unavailable: no completer configured")
		return raw
	}

	prompt := BuildSynthesisPrompt(SynthesisData{
		AssistantName: e.cfg.AssistantName,
		Question:      req.Question,
		Sources:       active,
		RawResult:     raw,
		History:       model.FormatHistory(req.History, e.cfg.HistoryTurns),
	})

	resp, err := e.synth.Complete(ctx, llm.Request{
		Prompt:      prompt,
		Model:       e.cfg.SynthesisModel,
		Temperature: e.cfg.SynthesisTemperature,
	})
	if err == nil && resp == nil {
		err = errors.New("completer returned no response")
	}
	if err != nil {
		e.logger.Error("synthesis failed, returning raw result", zap.Error(err))
		telemetry.Merge(usage, telemetry.NewErrorLog(err.Error()))
		return raw
	}

	usage.Add(resp.Usage)
	return strings.TrimSpace(resp.Content)
}
