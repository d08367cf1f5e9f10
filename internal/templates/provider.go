// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package templates

import (
	"context"
	"errors"
	"strings"

	"github.com/jeranaias/rigrun-answer/internal/model"
)

// ErrNotFound is returned when a template id does not exist.
var ErrNotFound = errors.New("template not found")

// Provider lists the configured query templates.
type Provider interface {
	Templates(ctx context.Context) ([]model.QueryTemplate, error)
}

// Static is a fixed template list.
type Static []model.QueryTemplate

// Templates returns a copy of the list.
func (s Static) Templates(context.Context) ([]model.QueryTemplate, error) {
	return append([]model.QueryTemplate(nil), s...), nil
}

// valid reports whether a template has both an input and a query.
func valid(t model.QueryTemplate) bool {
	return strings.TrimSpace(t.Input) != "" && strings.TrimSpace(t.Query) != ""
}

func clean(t model.QueryTemplate) model.QueryTemplate {
	return model.QueryTemplate{
		Input:       strings.TrimSpace(t.Input),
		Query:       strings.TrimSpace(t.Query),
		Description: strings.TrimSpace(t.Description),
	}
}
