// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jeranaias/rigrun-answer/internal/model"
)

// maxRouteSources bounds how many sources the model may pick.
const maxRouteSources = 3

// ============================================================================
// PARSE RESULT
// ============================================================================

// ParseResult is either Parsed or Unparseable.
type ParseResult interface {
	isParseResult()
}

// Parsed is a conforming routing response.
type Parsed struct {
	// Sources are unique, valid tags in the order the model listed them.
	Sources []model.SourceTag

	// ImprovedQuestion is trimmed and may be empty.
	ImprovedQuestion string

	// CasualResponse is trimmed and may be empty.
	CasualResponse string
}

// Unparseable is a response that could not be used.
type Unparseable struct {
	Reason string
}

func (Parsed) isParseResult()      {}
func (Unparseable) isParseResult() {}

// rawRoute mirrors the routing schema. Pointers distinguish missing fields.
type rawRoute struct {
	Sources          *[]string `json:"sources"`
	ImprovedQuestion *string   `json:"improved_question"`
	CasualResponse   *string   `json:"casual_response"`
}

// ============================================================================
// PARSE
// ============================================================================

// Parse decodes a routing response.
//
// The content may be wrapped in a markdown code fence. Source tags are
// case-folded and duplicates are dropped keeping the first occurrence; any
// tag outside the closed set makes the whole response unparseable.
func Parse(content string) ParseResult {
	body := stripCodeFence(content)
	if body == "" {
		return Unparseable{Reason: "empty response"}
	}

	var raw rawRoute
	dec := json.NewDecoder(strings.NewReader(body))
	if err := dec.Decode(&raw); err != nil {
		return Unparseable{Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if dec.More() {
		return Unparseable{Reason: "trailing data after JSON object"}
	}

	if raw.Sources == nil {
		return Unparseable{Reason: "missing sources"}
	}
	if raw.ImprovedQuestion == nil {
		return Unparseable{Reason: "missing improved_question"}
	}

	tags := *raw.Sources
	if len(tags) == 0 || len(tags) > maxRouteSources {
		return Unparseable{Reason: fmt.Sprintf("sources must hold 1-%d entries, got %d", maxRouteSources, len(tags))}
	}

	sources := make([]model.SourceTag, 0, len(tags))
	for _, s := range tags {
		tag := model.SourceTag(strings.ToLower(strings.TrimSpace(s)))
		if !tag.IsValid() {
			return Unparseable{Reason: fmt.Sprintf("unknown source %q", s)}
		}
		if !model.ContainsSource(sources, tag) {
			sources = append(sources, tag)
		}
	}

	parsed := Parsed{
		Sources:          sources,
		ImprovedQuestion: strings.TrimSpace(*raw.ImprovedQuestion),
	}
	if raw.CasualResponse != nil {
		parsed.CasualResponse = strings.TrimSpace(*raw.CasualResponse)
	}
	return parsed
}

// stripCodeFence removes a surrounding ```json fence if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop the info string, e.g. "json".
		if info := strings.TrimSpace(s[:nl]); !strings.ContainsAny(info, "{[") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
