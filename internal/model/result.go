// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"

	"github.com/jeranaias/rigrun-answer/internal/telemetry"
)

// =============================================================================
// QUERY TEMPLATES
// =============================================================================

// QueryTemplate is an example question paired with the query that answers it.
// Templates are few-shot hints only; they are never executed.
type QueryTemplate struct {
	Input       string `json:"input" toml:"input" yaml:"input"`
	Query       string `json:"query" toml:"query" yaml:"query"`
	Description string `json:"description" toml:"description" yaml:"description,omitempty"`
}

// Render formats the template as an "Input/Query/Description" block.
// A missing description renders as an em dash placeholder.
func (t QueryTemplate) Render() string {
	desc := t.Description
	if strings.TrimSpace(desc) == "" {
		desc = "—"
	}
	return "Input: " + t.Input + "\nQuery: " + t.Query + "\nDescription: " + desc
}

// RenderTemplates joins rendered templates with blank lines.
func RenderTemplates(templates []QueryTemplate) string {
	blocks := make([]string, len(templates))
	for i, t := range templates {
		blocks[i] = t.Render()
	}
	return strings.Join(blocks, "\n\n")
}

// =============================================================================
// EXTRAS
// =============================================================================

// Extras is the auxiliary payload attached to a pipeline result.
// Each field is an optional variant; add fields rather than free-form keys.
type Extras struct {
	QueryTemplates []QueryTemplate `json:"query_templates,omitempty"`
}

// IsEmpty reports whether no variant is set.
func (e Extras) IsEmpty() bool {
	return len(e.QueryTemplates) == 0
}

// =============================================================================
// PIPELINE RESULT
// =============================================================================

// PipelineResult is the final output of one answered question.
type PipelineResult struct {
	// Answer is the polished, user-facing text.
	Answer string `json:"answer"`

	// RawText is the combined backend output before synthesis.
	RawText string `json:"raw_text"`

	// Usage is the merged telemetry of every call made for this request.
	Usage *telemetry.UsageLog `json:"usage_log"`

	// Sources lists the sources that actually produced output.
	Sources []SourceTag `json:"sources"`

	// ImprovedQuestion is the question the backends were asked.
	ImprovedQuestion string `json:"improved_question"`

	Extras Extras `json:"extras"`
}

// ConversationType renders the active sources the way clients display them.
func (r *PipelineResult) ConversationType() string {
	return JoinSources(r.Sources)
}
