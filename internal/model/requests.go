// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"

	"github.com/jeranaias/rigrun-answer/internal/telemetry"
)

// =============================================================================
// CHAT AGENT
// =============================================================================

// ChatRequest asks the agent to answer one question.
type ChatRequest struct {
	Content     string             `json:"content"`
	Context     []ConversationTurn `json:"context,omitempty"`
	AccountID   int64              `json:"account_id,omitempty"`
	SiteContext string             `json:"site_context,omitempty"`
	Mode        ChatMode           `json:"mode,omitempty"`

	// Support carries caller metadata for support-mode requests.
	Support *SupportMetadata `json:"support_metadata,omitempty"`
}

// UnmarshalJSON decodes a ChatRequest. The older field names "siteMap"
// and "supportMetadata" are accepted when the current ones are absent.
func (r *ChatRequest) UnmarshalJSON(data []byte) error {
	type plain ChatRequest
	var in struct {
		plain
		SiteMap         string           `json:"siteMap"`
		SupportMetadata *SupportMetadata `json:"supportMetadata"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = ChatRequest(in.plain)
	if r.SiteContext == "" {
		r.SiteContext = in.SiteMap
	}
	if r.Support == nil {
		r.Support = in.SupportMetadata
	}
	return nil
}

// SupportMetadata identifies who raised a support-mode request.
type SupportMetadata struct {
	UserID    int64 `json:"user_id,omitempty"`
	AccountID int64 `json:"account_id,omitempty"`
}

// ChatResponse is the envelope returned by the agent entry point.
type ChatResponse struct {
	Success          bool                `json:"success"`
	Response         string              `json:"response"`
	UsageLog         *telemetry.UsageLog `json:"usage_logs"`
	ConversationType string              `json:"conversation_type"`
	ImprovedQuestion string              `json:"improved_question,omitempty"`
	Mode             ChatMode            `json:"mode,omitempty"`
	Extras           *Extras             `json:"extras,omitempty"`
}

// ConversationTypeError marks a response produced by the failure boundary.
const ConversationTypeError = "error"

// =============================================================================
// SUPPORT CHAT
// =============================================================================

// SupportRequest is a single support question with no history.
type SupportRequest struct {
	Message   string `json:"message"`
	Context   string `json:"context,omitempty"`
	UserID    int64  `json:"user_id,omitempty"`
	AccountID int64  `json:"account_id,omitempty"`
}

// Support intents.
const (
	IntentGeneral = "general"
	IntentError   = "error"
)

// SupportResponse wraps a support answer with an escalation recommendation.
// Confidence is a fixed placeholder, not an estimate derived from the model.
type SupportResponse struct {
	Response          string   `json:"response"`
	Confidence        float64  `json:"confidence"`
	NeedsHumanSupport bool     `json:"needsHumanSupport"`
	Intent            string   `json:"intent"`
	Suggestions       []string `json:"suggestions"`
}

// =============================================================================
// CONVERSATION TITLE
// =============================================================================

// TitleRequest asks for a short title summarizing a conversation.
type TitleRequest struct {
	Messages []ConversationTurn `json:"messages"`
}

// TitleResponse carries the generated title.
type TitleResponse struct {
	Success  bool                `json:"success"`
	Title    string              `json:"title"`
	UsageLog *telemetry.UsageLog `json:"usage_log"`
}
