// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/rigrun-answer/internal/telemetry"
)

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			MarginBottom(1)

	SectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")).
			MarginTop(1)

	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(20)

	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	SourceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	PromptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// renderMarkdown renders content with glamour at width. The input is
// returned unchanged when rendering fails.
func renderMarkdown(content string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// displayAnswer prints an answer, rendering markdown only on a terminal so
// piped output stays plain.
func displayAnswer(w io.Writer, answer string) {
	if isTerminal(w) {
		fmt.Fprint(w, renderMarkdown(answer, terminalWidth(w)-4))
		return
	}
	fmt.Fprintln(w, answer)
}

// usageLine summarizes a usage log in one dim line.
func usageLine(log *telemetry.UsageLog) string {
	if log == nil {
		return ""
	}
	models := make([]string, 0, len(log.ModelUsages))
	for _, u := range log.ModelUsages {
		models = append(models, u.Model)
	}
	line := fmt.Sprintf("%d tokens | $%.4f | %dms", log.TotalTokens, log.TotalCost, log.TotalResponseTimeMs)
	if len(models) > 0 {
		line += " | " + strings.Join(models, ", ")
	}
	if log.IsError() {
		line += " | error: " + log.Message
	}
	if n := len(log.Errors); n > 0 {
		line += fmt.Sprintf(" | %d recovered error(s)", n)
	}
	return line
}
