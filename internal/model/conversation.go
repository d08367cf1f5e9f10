// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
)

// =============================================================================
// ROLE
// =============================================================================

// Role represents the author of a conversation turn.
type Role string

const (
	// RoleUser is a turn written by the end user.
	RoleUser Role = "user"

	// RoleAssistant is a turn produced by the assistant.
	RoleAssistant Role = "assistant"

	// RoleSystem is an instruction turn.
	RoleSystem Role = "system"
)

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// =============================================================================
// CONVERSATION TURN
// =============================================================================

// ConversationTurn is one message in the chat history.
// Turns are values and are never modified after creation.
type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewTurn creates a conversation turn.
func NewTurn(role Role, content string) ConversationTurn {
	return ConversationTurn{Role: role, Content: content}
}

// LastTurns returns at most n of the most recent turns, or all of them when
// n <= 0. The returned slice shares no backing array with turns.
func LastTurns(turns []ConversationTurn, n int) []ConversationTurn {
	if len(turns) == 0 {
		return nil
	}
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]ConversationTurn, len(turns))
	copy(out, turns)
	return out
}

// FormatHistory renders the last n turns as "role: content" lines for
// inclusion in a prompt. An empty history renders as an empty string.
func FormatHistory(turns []ConversationTurn, n int) string {
	recent := LastTurns(turns, n)
	if len(recent) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, turn := range recent {
		if i > 0 {
			sb.WriteByte('\n')
		}
		role := turn.Role
		if role == "" {
			role = RoleUser
		}
		sb.WriteString(string(role))
		sb.WriteString(": ")
		sb.WriteString(turn.Content)
	}
	return sb.String()
}
