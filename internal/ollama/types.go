// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

// =============================================================================
// WIRE TYPES
// =============================================================================

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the body of POST /api/chat.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`

	// Format is "json" or a JSON schema object.
	Format    any          `json:"format,omitempty"`
	Options   *chatOptions `json:"options,omitempty"`
	KeepAlive string       `json:"keep_alive,omitempty"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// chatResponse is a non-streamed /api/chat reply. Durations are in
// nanoseconds.
type chatResponse struct {
	Model           string      `json:"model"`
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	DoneReason      string      `json:"done_reason,omitempty"`
	PromptEvalCount int         `json:"prompt_eval_count,omitempty"`
	EvalCount       int         `json:"eval_count,omitempty"`
	EvalDuration    int64       `json:"eval_duration,omitempty"`
	LoadDuration    int64       `json:"load_duration,omitempty"`
}

// evalRate is the generation speed in tokens per second.
func (r *chatResponse) evalRate() float64 {
	if r.EvalDuration <= 0 {
		return 0
	}
	return float64(r.EvalCount) / (float64(r.EvalDuration) / 1e9)
}

type versionResponse struct {
	Version string `json:"version"`
}

type apiError struct {
	Error string `json:"error"`
}
