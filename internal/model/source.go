// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
)

// =============================================================================
// SOURCE TAG
// =============================================================================

// SourceTag names a knowledge source a question can be answered from.
type SourceTag string

const (
	// SourceDatabase is the structured-data backend.
	SourceDatabase SourceTag = "database"

	// SourceDocument is the document-retrieval backend.
	SourceDocument SourceTag = "document"

	// SourceCasual is answered by the language model alone.
	SourceCasual SourceTag = "casual"
)

// AllSources lists the closed tag set in priority order.
var AllSources = []SourceTag{SourceDatabase, SourceDocument, SourceCasual}

// ParseSourceTag case-folds and trims s. Empty input maps to SourceCasual.
// Unknown values are returned as-is so callers can reject them with IsValid.
func ParseSourceTag(s string) SourceTag {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return SourceCasual
	}
	return SourceTag(s)
}

// IsValid reports whether t belongs to the closed tag set.
func (t SourceTag) IsValid() bool {
	switch t {
	case SourceDatabase, SourceDocument, SourceCasual:
		return true
	}
	return false
}

// IsHeavy reports whether t requires a backend call scoped to an account.
func (t SourceTag) IsHeavy() bool {
	return t == SourceDatabase || t == SourceDocument
}

// String returns the tag text.
func (t SourceTag) String() string {
	return string(t)
}

// JoinSources renders tags separated by ", ".
func JoinSources(tags []SourceTag) string {
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

// ContainsSource reports whether tags includes t.
func ContainsSource(tags []SourceTag, t SourceTag) bool {
	for _, tag := range tags {
		if tag == t {
			return true
		}
	}
	return false
}

// =============================================================================
// CHAT MODE
// =============================================================================

// ChatMode selects how the pipeline routes and fails.
type ChatMode string

const (
	// ModeStandard is the primary chat agent.
	ModeStandard ChatMode = "standard"

	// ModeSupport is the support chat, which prefers the lightweight path.
	ModeSupport ChatMode = "support"
)

// ParseChatMode maps s to a mode, defaulting to ModeStandard.
func ParseChatMode(s string) ChatMode {
	if strings.EqualFold(strings.TrimSpace(s), string(ModeSupport)) {
		return ModeSupport
	}
	return ModeStandard
}
