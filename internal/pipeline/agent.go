// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-answer/internal/llm"
	"github.com/jeranaias/rigrun-answer/internal/logging"
	"github.com/jeranaias/rigrun-answer/internal/model"
	"github.com/jeranaias/rigrun-answer/internal/telemetry"
)

// =============================================================================
// CONFIG
// =============================================================================

const (
	// DefaultApology is returned when a chat request fails.
	DefaultApology = "I encountered an error processing your request. Please try again."

	// DefaultSupportApology is returned when a support request escalates.
	DefaultSupportApology = "Sorry, something went wrong. Please request live support."

	// DefaultSupportSuggestion is the single action offered on escalation.
	DefaultSupportSuggestion = "Request live support"

	// DefaultSuccessConfidence is attached to every answered support request.
	DefaultSuccessConfidence = 0.7

	// DefaultTitleModel writes conversation titles.
	DefaultTitleModel = "google/gemini-2.5-flash-lite-preview-06-17"

	// DefaultTitleTemperature for title generation.
	DefaultTitleTemperature = 0.3

	// DefaultTitleTurns is how many recent turns a title summarizes.
	DefaultTitleTurns = 3

	// DefaultTitle is returned when no title could be generated.
	DefaultTitle = "Conversation Title"
)

// Usage kinds recorded with the cost tracker.
const (
	KindAgent   = "agent"
	KindSupport = "support"
	KindTitle   = "title"
)

// AgentConfig holds the fixed texts and title settings of the agent.
type AgentConfig struct {
	Apology           string
	SupportApology    string
	SupportSuggestion string

	// SuccessConfidence is reported on every answered support request.
	// It is a fixed value; nothing estimates confidence from the answer.
	SuccessConfidence float64

	TitleModel       string
	TitleTemperature float64
	TitleTurns       int
}

// DefaultAgentConfig returns the default agent configuration.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Apology:           DefaultApology,
		SupportApology:    DefaultSupportApology,
		SupportSuggestion: DefaultSupportSuggestion,
		SuccessConfidence: DefaultSuccessConfidence,
		TitleModel:        DefaultTitleModel,
		TitleTemperature:  DefaultTitleTemperature,
		TitleTurns:        DefaultTitleTurns,
	}
}

func (c AgentConfig) withDefaults() AgentConfig {
	def := DefaultAgentConfig()
	if strings.TrimSpace(c.Apology) == "" {
		c.Apology = def.Apology
	}
	if strings.TrimSpace(c.SupportApology) == "" {
		c.SupportApology = def.SupportApology
	}
	if strings.TrimSpace(c.SupportSuggestion) == "" {
		c.SupportSuggestion = def.SupportSuggestion
	}
	if c.SuccessConfidence <= 0 || c.SuccessConfidence > 1 {
		c.SuccessConfidence = def.SuccessConfidence
	}
	if c.TitleModel == "" {
		c.TitleModel = def.TitleModel
	}
	if c.TitleTurns <= 0 {
		c.TitleTurns = def.TitleTurns
	}
	return c
}

// =============================================================================
// AGENT
// =============================================================================

// Agent is the outward boundary of the pipeline. None of its methods fail.
type Agent struct {
	orchestrator *Orchestrator
	titler       llm.Completer
	tracker      *telemetry.CostTracker
	cfg          AgentConfig
	logger       *zap.Logger
}

// NewAgent creates an agent. titler may be nil, in which case titles fall
// back to DefaultTitle.
func NewAgent(o *Orchestrator, titler llm.Completer, cfg AgentConfig, logger *zap.Logger) *Agent {
	return &Agent{
		orchestrator: o,
		titler:       titler,
		cfg:          cfg.withDefaults(),
		logger:       logging.OrNop(logger).Named("agent"),
	}
}

// WithCostTracker records every response's usage with tracker.
func (a *Agent) WithCostTracker(tracker *telemetry.CostTracker) *Agent {
	a.tracker = tracker
	return a
}

// record hands a usage log to the cost tracker. Persistence failures are
// logged; they never affect the response.
func (a *Agent) record(kind string, log *telemetry.UsageLog) {
	if err := a.tracker.Record(kind, log); err != nil {
		a.logger.Warn("usage not persisted", zap.String("kind", kind), zap.Error(err))
	}
}

// Config returns the effective configuration.
func (a *Agent) Config() AgentConfig {
	return a.cfg
}

// Interact answers a chat request. Failures become an apology with
// Success false and conversation type "error".
func (a *Agent) Interact(ctx context.Context, req model.ChatRequest) *model.ChatResponse {
	resp := a.interact(ctx, req)
	a.record(KindAgent, resp.UsageLog)
	return resp
}

func (a *Agent) interact(ctx context.Context, req model.ChatRequest) (resp *model.ChatResponse) {
	mode := model.ParseChatMode(string(req.Mode))

	defer func() {
		if r := recover(); r != nil {
			resp = a.apology(fmt.Errorf("panic: %v", r))
		}
	}()

	result, err := a.orchestrator.Run(ctx, Input{
		Question:    req.Content,
		History:     req.Context,
		AccountID:   req.AccountID,
		SiteContext: req.SiteContext,
		Mode:        mode,
		Policy:      PolicyFor(mode),
	})
	if err != nil {
		return a.apology(err)
	}

	resp = &model.ChatResponse{
		Success:          true,
		Response:         result.Answer,
		UsageLog:         result.Usage,
		ConversationType: result.ConversationType(),
		ImprovedQuestion: result.ImprovedQuestion,
		Mode:             mode,
	}
	if !result.Extras.IsEmpty() {
		extras := result.Extras
		resp.Extras = &extras
	}
	return resp
}

func (a *Agent) apology(err error) *model.ChatResponse {
	a.logger.Error("chat request failed", zap.Error(err))
	return &model.ChatResponse{
		Success:          false,
		Response:         a.cfg.Apology,
		UsageLog:         telemetry.NewErrorLog(err.Error()),
		ConversationType: model.ConversationTypeError,
	}
}

// Support answers a support request. The request carries no history and no
// site context. An empty answer escalates to human support.
func (a *Agent) Support(ctx context.Context, req model.SupportRequest) *model.SupportResponse {
	accountID := req.AccountID
	chat := a.interact(ctx, model.ChatRequest{
		Content:   req.Message,
		AccountID: accountID,
		Mode:      model.ModeSupport,
		Support: &model.SupportMetadata{
			UserID:    req.UserID,
			AccountID: accountID,
		},
	})
	a.record(KindSupport, chat.UsageLog)

	answer := strings.TrimSpace(chat.Response)
	if !chat.Success || answer == "" {
		a.logger.Warn("empty support response, escalating to human support",
			zap.Int64("user_id", req.UserID),
			zap.Int64("account_id", accountID))
		return a.escalation()
	}

	return &model.SupportResponse{
		Response:          answer,
		Confidence:        a.cfg.SuccessConfidence,
		NeedsHumanSupport: false,
		Intent:            model.IntentGeneral,
		Suggestions:       []string{},
	}
}

func (a *Agent) escalation() *model.SupportResponse {
	return &model.SupportResponse{
		Response:          a.cfg.SupportApology,
		Confidence:        0.0,
		NeedsHumanSupport: true,
		Intent:            model.IntentError,
		Suggestions:       []string{a.cfg.SupportSuggestion},
	}
}

// Title summarizes the most recent turns into a short title.
func (a *Agent) Title(ctx context.Context, turns []model.ConversationTurn) *model.TitleResponse {
	resp := a.title(ctx, turns)
	a.record(KindTitle, resp.UsageLog)
	return resp
}

func (a *Agent) title(ctx context.Context, turns []model.ConversationTurn) *model.TitleResponse {
	fail := func(err error) *model.TitleResponse {
		a.logger.Error("title generation failed", zap.Error(err))
		return &model.TitleResponse{
			Success:  false,
			Title:    DefaultTitle,
			UsageLog: telemetry.NewErrorLog(err.Error()),
		}
	}

	if a.titler == nil {
		return fail(errors.New("no title model configured"))
	}

	resp, err := a.titler.Complete(ctx, llm.Request{
		Prompt:      BuildTitlePrompt(model.FormatHistory(turns, a.cfg.TitleTurns)),
		Model:       a.cfg.TitleModel,
		Temperature: a.cfg.TitleTemperature,
	})
	if err == nil && resp == nil {
		err = errors.New("completer returned no response")
	}
	if err != nil {
		return fail(err)
	}

	usage := telemetry.NewUsageLog()
	usage.Add(resp.Usage)

	title := cleanTitle(resp.Content)
	if title == "" {
		title = DefaultTitle
	}
	return &model.TitleResponse{Success: true, Title: title, UsageLog: usage}
}

// BuildTitlePrompt renders the title prompt for a serialized conversation.
func BuildTitlePrompt(conversation string) string {
	return "You write short, descriptive titles for conversations.\n" +
		"Write a concise title (maximum 6 words) that captures the main topic of the conversation below.\n\n" +
		"Conversation:\n" + conversation + "\n\n" +
		"Generate only the title, nothing else."
}

// cleanTitle keeps the first line and strips surrounding quotes.
func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"'`))
}
