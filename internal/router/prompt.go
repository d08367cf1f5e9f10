// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/rigrun-answer/internal/llm"
	"github.com/jeranaias/rigrun-answer/internal/model"
)

// SchemaName is the name of the routing response schema.
const SchemaName = "determine_answer_source"

const (
	noHistoryText     = "No prior conversation."
	noSiteContextText = "No site map context provided."
)

// RoutingSchema returns the JSON schema the model's answer must follow.
func RoutingSchema() map[string]any {
	enum := make([]any, len(model.AllSources))
	for i, s := range model.AllSources {
		enum[i] = string(s)
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sources": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "string",
					"enum": enum,
				},
				"minItems":    1,
				"maxItems":    maxRouteSources,
				"uniqueItems": true,
				"description": "Sources needed to answer the question.",
			},
			"improved_question": map[string]any{
				"type":        "string",
				"description": "The question with typos fixed and nothing else changed.",
			},
			"casual_response": map[string]any{
				"type":        "string",
				"description": "Direct reply, only when casual is the sole source.",
			},
		},
		"required":             []any{"sources", "improved_question"},
		"additionalProperties": false,
	}
}

// RoutingFormat returns the structured-output format for routing calls.
func RoutingFormat() *llm.ResponseFormat {
	return llm.JSONSchemaFormat(SchemaName, RoutingSchema())
}

// PromptData is everything rendered into a routing prompt.
type PromptData struct {
	Question         string
	History          string
	SiteContext      string
	Mode             model.ChatMode
	AssistantName    string
	SiteURL          string
	DatabaseKeywords []string
	DocumentKeywords []string
}

// BuildPrompt renders the routing prompt. Text is NFC-normalized so
// composed and decomposed accents reach the model identically.
func BuildPrompt(d PromptData) string {
	history := strings.TrimSpace(d.History)
	if history == "" {
		history = noHistoryText
	}
	site := strings.TrimSpace(d.SiteContext)
	if site == "" {
		site = noSiteContextText
	}
	name := strings.TrimSpace(d.AssistantName)
	if name == "" {
		name = "the assistant"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s. Decide which sources are needed to answer the latest user message.\n\n", name)

	fmt.Fprintf(&b, "Latest message:\n%s\n\n", d.Question)
	fmt.Fprintf(&b, "Conversation history:\n%s\n\n", history)
	fmt.Fprintf(&b, "Site map:\n%s\n\n", site)
	fmt.Fprintf(&b, "Mode: %s\n\n", d.Mode)

	b.WriteString("Possible sources:\n")
	b.WriteString("- database: records and numbers stored for the user's account")
	writeKeywords(&b, d.DatabaseKeywords)
	b.WriteString("- document: policies, procedures and written guidance")
	writeKeywords(&b, d.DocumentKeywords)
	b.WriteString("- casual: greetings, small talk, questions about the assistant or the site\n\n")

	b.WriteString("Rules:\n")
	b.WriteString("- You may pick more than one source, but only the ones that are necessary.\n")
	b.WriteString("- Prefer database or document over casual when the question needs facts.\n")
	if d.Mode == model.ModeSupport {
		b.WriteString("- This is the support chat: default to casual unless the question clearly requires structured data.\n")
	}
	b.WriteString("- Write casual_response only when casual is the only source. Reply in the language of the message.\n")
	if url := strings.TrimRight(strings.TrimSpace(d.SiteURL), "/"); url != "" {
		fmt.Fprintf(&b, "- When casual_response links to a page, use markdown links starting with %s.\n", url)
	}
	b.WriteString("- improved_question fixes typos only. Never expand abbreviations or change the meaning.\n\n")

	b.WriteString("Answer with a JSON object containing sources, improved_question and optionally casual_response.")

	return norm.NFC.String(b.String())
}

func writeKeywords(b *strings.Builder, keywords []string) {
	if len(keywords) == 0 {
		b.WriteString("\n")
		return
	}
	fmt.Fprintf(b, " (hints: %s)\n", strings.Join(keywords, ", "))
}
