// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"

	"github.com/jeranaias/rigrun-answer/internal/telemetry"
)

// =============================================================================
// REQUEST / RESPONSE
// =============================================================================

// Request is a single-prompt completion request.
type Request struct {
	// Prompt is sent as the user message.
	Prompt string

	// System is an optional system message sent before the prompt.
	System string

	Model       string
	Temperature float64

	// MaxTokens limits the completion length. Zero means provider default.
	MaxTokens int

	// Format requests structured output. Nil means free text.
	Format *ResponseFormat
}

// Response is the result of a completion.
type Response struct {
	Content string

	// Usage is the telemetry of this call, including measured latency.
	Usage telemetry.ModelUsage
}

// ResponseFormat asks the provider to constrain its output.
type ResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

// JSONSchema is a named JSON schema for structured output.
type JSONSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict,omitempty"`
	Schema map[string]any `json:"schema"`
}

// JSONSchemaFormat builds a json_schema response format. It is not strict,
// so schemas may keep optional properties.
func JSONSchemaFormat(name string, schema map[string]any) *ResponseFormat {
	return &ResponseFormat{
		Type: "json_schema",
		JSONSchema: &JSONSchema{
			Name:   name,
			Schema: schema,
		},
	}
}

// =============================================================================
// COMPLETER
// =============================================================================

// Completer produces text for a prompt.
// Implementations must honor ctx cancellation.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, req Request) (*Response, error)

// Complete calls f(ctx, req).
func (f CompleterFunc) Complete(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}
