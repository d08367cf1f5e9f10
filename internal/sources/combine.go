// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sources

import (
	"strings"

	"github.com/jeranaias/rigrun-answer/internal/model"
)

// templatesHeader introduces the rendered template block.
const templatesHeader = "Available templates:"

// section is one backend's output.
type section struct {
	Source model.SourceTag
	Text   string
}

// Label returns the heading used when several sections are combined.
func Label(tag model.SourceTag) string {
	switch tag {
	case model.SourceDatabase:
		return "Database Result"
	case model.SourceDocument:
		return "Document Result"
	default:
		s := tag.String()
		if s == "" {
			return ""
		}
		return strings.ToUpper(s[:1]) + s[1:]
	}
}

// combine joins sections in the given order. A single section is returned
// trimmed and unlabeled; several are labeled and separated by a blank line.
func combine(sections []section) string {
	switch len(sections) {
	case 0:
		return ""
	case 1:
		return strings.TrimSpace(sections[0].Text)
	}

	parts := make([]string, len(sections))
	for i, s := range sections {
		parts[i] = Label(s.Source) + ":\n" + strings.TrimSpace(s.Text)
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

// appendTemplates adds the rendered template block to raw.
func appendTemplates(raw string, templates []model.QueryTemplate) string {
	if len(templates) == 0 {
		return raw
	}
	block := templatesHeader + "\n" + model.RenderTemplates(templates)
	return strings.TrimSpace(raw + "\n\n" + block)
}
