// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sources

import (
	"fmt"
	"strings"

	"github.com/jeranaias/rigrun-answer/internal/model"
)

const noHistoryText = "No prior conversation."

// SynthesisData is everything rendered into a synthesis prompt.
type SynthesisData struct {
	AssistantName string
	Question      string
	Sources       []model.SourceTag
	RawResult     string
	History       string
}

// BuildSynthesisPrompt renders the prompt that turns raw backend output into
// a user-facing answer.
func BuildSynthesisPrompt(d SynthesisData) string {
	name := strings.TrimSpace(d.AssistantName)
	if name == "" {
		name = "a helpful assistant"
	}
	history := strings.TrimSpace(d.History)
	if history == "" {
		history = noHistoryText
	}
	kinds := model.JoinSources(d.Sources)
	if kinds == "" {
		kinds = string(model.SourceCasual)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s and write clear, detailed answers. Always answer in the language of the question.\n", name)
	b.WriteString("Summarize the result in plain language and mention only the figures that matter. ")
	b.WriteString("Never reveal internal identifiers such as account or record IDs, user names, e-mail addresses or IPs; refer to them generically instead.\n")
	b.WriteString("If the result comes from several sources, merge it into one coherent answer.\n\n")
	b.WriteString("You are writing for end users. Do not output code, SQL, logs or implementation details.\n\n")

	b.WriteString("Answer using this information:\n")
	fmt.Fprintf(&b, "Question: %s\n", d.Question)
	fmt.Fprintf(&b, "Source Types: %s\n", kinds)
	fmt.Fprintf(&b, "Raw Result: %s\n\n", d.RawResult)
	fmt.Fprintf(&b, "Conversation History:\n%s\n\n", history)
	b.WriteString("Provide your response:")
	return b.String()
}
