// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"errors"
	"fmt"

	"github.com/jeranaias/rigrun-answer/internal/model"
	"github.com/jeranaias/rigrun-answer/internal/telemetry"
)

// ============================================================================
// QUERY
// ============================================================================

// Query is the input to one routing call.
type Query struct {
	// Question is the latest user message.
	Question string

	// History holds prior turns, oldest first. Only the most recent
	// Config.HistoryTurns are shown to the model.
	History []model.ConversationTurn

	// SiteContext is optional text describing the product, such as a site map.
	SiteContext string

	Mode model.ChatMode
}

// ============================================================================
// DECISION
// ============================================================================

// Decision is the router's answer for one question.
type Decision struct {
	// Sources are unique tags from the closed set, in priority order.
	Sources []model.SourceTag `json:"sources"`

	// Question is the refined question to send to backends.
	Question string `json:"question"`

	// Immediate is the final answer when no backend call is needed.
	Immediate *string `json:"immediate,omitempty"`
}

// ImmediateAnswer returns the immediate answer and whether one is present.
// An empty string is a present answer.
func (d Decision) ImmediateAnswer() (string, bool) {
	if d.Immediate == nil {
		return "", false
	}
	return *d.Immediate, true
}

// RequiresBackend reports whether any heavy source survived.
func (d Decision) RequiresBackend() bool {
	for _, s := range d.Sources {
		if s.IsHeavy() {
			return true
		}
	}
	return false
}

// ============================================================================
// OUTCOME
// ============================================================================

// Outcome names how a routing call resolved.
type Outcome int

const (
	// OutcomeStructured means the model chose at least one heavy source.
	OutcomeStructured Outcome = iota

	// OutcomeCasual means only casual survived; the decision carries the
	// model's reply or the apology.
	OutcomeCasual

	// OutcomeUnparseable means the model's output did not conform; the
	// decision is casual with the apology as its immediate answer.
	OutcomeUnparseable

	// OutcomeCallFailed means the model call failed; the decision is
	// document with the original question.
	OutcomeCallFailed
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeStructured:
		return "structured"
	case OutcomeCasual:
		return "casual"
	case OutcomeUnparseable:
		return "unparseable"
	case OutcomeCallFailed:
		return "call_failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result is everything a routing call produces.
type Result struct {
	Decision Decision
	Outcome  Outcome

	// Usage is the routing call's telemetry, or an error log when the call failed.
	Usage *telemetry.UsageLog

	// Reason explains an unparseable or failed outcome.
	Reason string
}

func defaultDecision(question string) Decision {
	return Decision{
		Sources:  []model.SourceTag{model.SourceCasual},
		Question: question,
	}
}

func stringPtr(s string) *string {
	return &s
}

var errNilResponse = errors.New("completer returned no response")
