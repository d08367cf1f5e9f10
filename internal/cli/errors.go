// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeranaias/rigrun-answer/internal/backend"
	"github.com/jeranaias/rigrun-answer/internal/cloud"
	"github.com/jeranaias/rigrun-answer/internal/config"
	"github.com/jeranaias/rigrun-answer/internal/templates"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitConfigError  = 3
	ExitAuthError    = 4
	ExitNetworkError = 5
	ExitNotFound     = 7
	ExitTimeout      = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError is a command failure carrying its exit code.
type CommandError struct {
	Command  string
	Message  string
	Cause    error
	ExitCode int
}

func (e *CommandError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Command, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Command, e.Message)
}

func (e *CommandError) Unwrap() error {
	return e.Cause
}

// NewUsageError reports invalid arguments.
func NewUsageError(command, message string) *CommandError {
	return &CommandError{Command: command, Message: message, ExitCode: ExitUsageError}
}

// NewConfigError reports a configuration problem.
func NewConfigError(command string, cause error) *CommandError {
	return &CommandError{Command: command, Message: "configuration error", Cause: cause, ExitCode: ExitConfigError}
}

// ExitCodeFor maps an error to a process exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.ExitCode
	}
	var verrs config.ValidateErrors
	switch {
	case errors.As(err, &verrs), errors.Is(err, cloud.ErrNotConfigured):
		return ExitConfigError
	case errors.Is(err, cloud.ErrAuthFailed):
		return ExitAuthError
	case errors.Is(err, backend.ErrBackendUnavailable):
		return ExitNetworkError
	case errors.Is(err, templates.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeout
	}
	return ExitGeneralError
}
