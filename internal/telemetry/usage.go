// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"time"
)

// =============================================================================
// LOG CLASSIFICATION
// =============================================================================

// LogType classifies a usage log.
type LogType string

const (
	LogTypeInfo  LogType = "info"
	LogTypeError LogType = "error"
)

// Status is the outcome recorded on a usage log.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// defaultErrorMessage is used when an error log is created without a message.
const defaultErrorMessage = "unknown error"

// =============================================================================
// MODEL USAGE
// =============================================================================

// ModelUsage is the telemetry for a single model or backend call.
type ModelUsage struct {
	Model            string  `json:"model"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Cost             float64 `json:"cost"`
	ResponseTimeMs   int64   `json:"response_time_ms"`
}

// normalized clamps negative values to zero and fills TotalTokens from the
// prompt and completion counts when the provider left it empty.
func (u ModelUsage) normalized() ModelUsage {
	if u.PromptTokens < 0 {
		u.PromptTokens = 0
	}
	if u.CompletionTokens < 0 {
		u.CompletionTokens = 0
	}
	if u.TotalTokens < 0 {
		u.TotalTokens = 0
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	if u.Cost < 0 {
		u.Cost = 0
	}
	if u.ResponseTimeMs < 0 {
		u.ResponseTimeMs = 0
	}
	return u
}

// =============================================================================
// USAGE LOG
// =============================================================================

// UsageLog aggregates the telemetry of every call made for one request.
//
// Totals always equal the sum of ModelUsages. An error log carries no usages
// and a non-empty Message. Failures recovered later in a pipeline are kept in
// Errors without changing Status.
type UsageLog struct {
	ModelUsages         []ModelUsage `json:"model_usages"`
	TotalTokens         int          `json:"total_tokens"`
	TotalCost           float64      `json:"total_cost"`
	TotalResponseTimeMs int64        `json:"total_response_time_ms"`

	LogType   LogType   `json:"log_type"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Errors    []string  `json:"errors,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUsageLog creates an empty successful usage log.
func NewUsageLog() *UsageLog {
	return &UsageLog{
		ModelUsages: make([]ModelUsage, 0),
		LogType:     LogTypeInfo,
		Status:      StatusSuccess,
		CreatedAt:   time.Now().UTC(),
	}
}

// NewErrorLog creates an error-tagged usage log with no usages.
func NewErrorLog(message string) *UsageLog {
	if message == "" {
		message = defaultErrorMessage
	}
	return &UsageLog{
		ModelUsages: make([]ModelUsage, 0),
		LogType:     LogTypeError,
		Status:      StatusError,
		Message:     message,
		CreatedAt:   time.Now().UTC(),
	}
}

// IsError reports whether the log records a failure.
func (l *UsageLog) IsError() bool {
	return l != nil && l.Status == StatusError
}

// Add appends one usage entry and updates the totals.
// Entries added to an error log are dropped so it keeps zero usages.
func (l *UsageLog) Add(u ModelUsage) {
	if l == nil || l.IsError() {
		return
	}
	u = u.normalized()
	l.ModelUsages = append(l.ModelUsages, u)
	l.TotalTokens += u.TotalTokens
	l.TotalCost += u.Cost
	l.TotalResponseTimeMs += u.ResponseTimeMs
}

// RecordError notes a recovered failure without changing the log's status.
func (l *UsageLog) RecordError(message string) {
	if l == nil {
		return
	}
	if message == "" {
		message = defaultErrorMessage
	}
	l.Errors = append(l.Errors, message)
}

// =============================================================================
// MERGE
// =============================================================================

// Merge appends every usage entry of source to target, in order, and adds
// source's totals into target's. It is a no-op when either log is nil.
//
// When source is an error log its message is recorded in target.Errors, as
// are any errors source itself recorded. Merge never fails.
func Merge(target, source *UsageLog) {
	if target == nil || source == nil || target == source {
		return
	}

	for _, u := range source.ModelUsages {
		target.Add(u)
	}

	if source.IsError() {
		target.RecordError(source.Message)
	}
	for _, msg := range source.Errors {
		target.RecordError(msg)
	}
}
