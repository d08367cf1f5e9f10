// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/rigrun-answer/internal/llm"
	"github.com/jeranaias/rigrun-answer/internal/logging"
	"github.com/jeranaias/rigrun-answer/internal/model"
	"github.com/jeranaias/rigrun-answer/internal/telemetry"
	"github.com/jeranaias/rigrun-answer/internal/util"
)

// =============================================================================
// CONFIG
// =============================================================================

const (
	// DefaultModel is the routing model.
	DefaultModel = "meta-llama/llama-4-scout"

	// DefaultTemperature keeps classification close to deterministic.
	DefaultTemperature = 0.1

	// DefaultHistoryTurns is how many recent turns the routing prompt sees.
	DefaultHistoryTurns = 5

	// DefaultApology is the immediate answer when casual has no reply.
	DefaultApology = "Sorry, I couldn't come up with an answer to that. Could you rephrase your question?"

	logQuestionRunes = 80
)

// DefaultDatabaseKeywords hint at questions about stored records.
var DefaultDatabaseKeywords = []string{
	"dfi", "incident report", "safety report", "operational audit report",
	"odr", "secg internal audit report", "audit report", "risk assessment",
	"statistics", "numbers",
}

// DefaultDocumentKeywords hint at questions about written guidance.
var DefaultDocumentKeywords = []string{
	"document", "policy", "procedure", "general knowledge",
}

// Config controls routing.
type Config struct {
	Model        string
	Temperature  float64
	HistoryTurns int

	AssistantName string
	SiteURL       string

	// Apology is the immediate answer when only casual survives and the
	// model wrote no reply.
	Apology string

	DatabaseKeywords []string
	DocumentKeywords []string
}

// DefaultConfig returns the default routing configuration.
func DefaultConfig() Config {
	return Config{
		Model:            DefaultModel,
		Temperature:      DefaultTemperature,
		HistoryTurns:     DefaultHistoryTurns,
		Apology:          DefaultApology,
		DatabaseKeywords: append([]string(nil), DefaultDatabaseKeywords...),
		DocumentKeywords: append([]string(nil), DefaultDocumentKeywords...),
	}
}

// =============================================================================
// ROUTER
// =============================================================================

// Router classifies questions into knowledge sources.
// It holds no per-request state and is safe for concurrent use.
type Router struct {
	completer llm.Completer
	cfg       Config
	logger    *zap.Logger
}

// New creates a Router. Zero config fields take their defaults.
func New(completer llm.Completer, cfg Config, logger *zap.Logger) *Router {
	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = def.HistoryTurns
	}
	if strings.TrimSpace(cfg.Apology) == "" {
		cfg.Apology = def.Apology
	}
	return &Router{
		completer: completer,
		cfg:       cfg,
		logger:    logging.OrNop(logger).Named("router"),
	}
}

// Config returns the effective configuration.
func (r *Router) Config() Config {
	return r.cfg
}

// Route classifies q. It never fails: every error resolves to an Outcome
// with a usable Decision.
func (r *Router) Route(ctx context.Context, q Query) Result {
	prompt := BuildPrompt(PromptData{
		Question:         q.Question,
		History:          model.FormatHistory(q.History, r.cfg.HistoryTurns),
		SiteContext:      q.SiteContext,
		Mode:             q.Mode,
		AssistantName:    r.cfg.AssistantName,
		SiteURL:          r.cfg.SiteURL,
		DatabaseKeywords: r.cfg.DatabaseKeywords,
		DocumentKeywords: r.cfg.DocumentKeywords,
	})

	resp, err := r.completer.Complete(ctx, llm.Request{
		Prompt:      prompt,
		Model:       r.cfg.Model,
		Temperature: r.cfg.Temperature,
		Format:      RoutingFormat(),
	})
	if err == nil && resp == nil {
		err = errNilResponse
	}
	if err != nil {
		r.logger.Error("routing call failed",
			zap.String("question", util.TruncateRunes(q.Question, logQuestionRunes)),
			zap.Error(err))
		return Result{
			Decision: Decision{
				Sources:  []model.SourceTag{model.SourceDocument},
				Question: q.Question,
			},
			Outcome: OutcomeCallFailed,
			Usage:   telemetry.NewErrorLog(err.Error()),
			Reason:  err.Error(),
		}
	}

	usage := telemetry.NewUsageLog()
	usage.Add(resp.Usage)

	res := r.resolve(q, Parse(resp.Content))
	res.Usage = usage

	r.logger.Debug("routed question",
		zap.String("question", util.TruncateRunes(q.Question, logQuestionRunes)),
		zap.String("outcome", res.Outcome.String()),
		zap.String("sources", model.JoinSources(res.Decision.Sources)),
		zap.String("mode", string(q.Mode)))
	return res
}

// resolve turns a parse result into exactly one outcome.
func (r *Router) resolve(q Query, parsed ParseResult) Result {
	decision := defaultDecision(q.Question)
	casualReply := ""
	outcome := OutcomeCasual
	reason := ""

	switch p := parsed.(type) {
	case Parsed:
		decision.Sources = ApplyPolicy(p.Sources, q.Mode)
		if p.ImprovedQuestion != "" {
			decision.Question = norm.NFC.String(p.ImprovedQuestion)
		}
		casualReply = p.CasualResponse
	case Unparseable:
		r.logger.Warn("routing response unparseable",
			zap.String("reason", p.Reason),
			zap.String("question", util.TruncateRunes(q.Question, logQuestionRunes)))
		outcome = OutcomeUnparseable
		reason = p.Reason
	}

	if decision.RequiresBackend() {
		return Result{Decision: decision, Outcome: OutcomeStructured}
	}

	// Not a structured request: answer now with the unrefined question.
	decision.Question = q.Question
	if casualReply == "" {
		casualReply = r.cfg.Apology
	}
	decision.Immediate = stringPtr(casualReply)
	return Result{Decision: decision, Outcome: outcome, Reason: reason}
}
