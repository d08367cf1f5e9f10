// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-answer/internal/logging"
	"github.com/jeranaias/rigrun-answer/internal/telemetry"
	"github.com/jeranaias/rigrun-answer/internal/util"
)

// =============================================================================
// CONSTANTS AND ERRORS
// =============================================================================

const (
	// DefaultTimeout bounds a single backend call.
	DefaultTimeout = 90 * time.Second

	// MaxResponseSize limits how much of a backend reply is read.
	MaxResponseSize = 10 * 1024 * 1024

	// maxErrorMessageRunes bounds the body text kept in a StatusError.
	maxErrorMessageRunes = 200
)

var (
	// ErrBackendUnavailable is returned when a backend cannot be reached.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrNotConfigured is returned when a client has no URL.
	ErrNotConfigured = errors.New("backend URL not configured")
)

// StatusError is a non-2xx reply from a backend.
type StatusError struct {
	Backend    string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s backend: HTTP %d", e.Backend, e.StatusCode)
	}
	return fmt.Sprintf("%s backend: HTTP %d: %s", e.Backend, e.StatusCode, e.Message)
}

// =============================================================================
// ANSWERER
// =============================================================================

// Answerer answers a question scoped to one account.
type Answerer interface {
	Answer(ctx context.Context, question string, accountID int64) (string, *telemetry.UsageLog, error)
}

// AnswerFunc adapts a function to the Answerer interface.
type AnswerFunc func(ctx context.Context, question string, accountID int64) (string, *telemetry.UsageLog, error)

// Answer calls f(ctx, question, accountID).
func (f AnswerFunc) Answer(ctx context.Context, question string, accountID int64) (string, *telemetry.UsageLog, error) {
	return f(ctx, question, accountID)
}

// =============================================================================
// CLIENT
// =============================================================================

type answerRequest struct {
	Question  string `json:"question"`
	AccountID int64  `json:"account_id"`
}

type answerResponse struct {
	Text     string              `json:"text"`
	UsageLog *telemetry.UsageLog `json:"usage_log"`
}

type errorResponse struct {
	Detail string `json:"detail"`
	Error  string `json:"error"`
}

// Client calls a backend over HTTP.
type Client struct {
	name       string
	url        string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ Answerer = (*Client)(nil)

// NewClient creates a client for the backend at url. name labels errors
// and log lines.
func NewClient(name, url string) *Client {
	return &Client{
		name: name,
		url:  strings.TrimSpace(url),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: zap.NewNop(),
	}
}

// WithTimeout sets the per-call timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		c.httpClient.Timeout = timeout
	}
	return c
}

// WithToken sets a bearer token sent with every call.
func (c *Client) WithToken(token string) *Client {
	c.token = token
	return c
}

// WithLogger sets the logger.
func (c *Client) WithLogger(logger *zap.Logger) *Client {
	c.logger = logging.OrNop(logger).Named(c.name)
	return c
}

// Name returns the backend label.
func (c *Client) Name() string {
	return c.name
}

// IsConfigured reports whether the client has a URL.
func (c *Client) IsConfigured() bool {
	return c.url != ""
}

// Answer posts the question and returns the backend's text and usage.
// The returned usage log is never nil on success.
func (c *Client) Answer(ctx context.Context, question string, accountID int64) (string, *telemetry.UsageLog, error) {
	if !c.IsConfigured() {
		return "", nil, fmt.Errorf("%s: %w", c.name, ErrNotConfigured)
	}

	payload, err := json.Marshal(answerRequest{Question: question, AccountID: accountID})
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", nil, ctxErr
		}
		return "", nil, fmt.Errorf("%s: %w: %v", c.name, ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return "", nil, fmt.Errorf("%s: failed to read response: %w", c.name, err)
	}
	if len(body) > MaxResponseSize {
		return "", nil, fmt.Errorf("%s: response exceeded maximum size of %d bytes", c.name, MaxResponseSize)
	}

	c.logger.Debug("backend call finished",
		zap.Int("status", resp.StatusCode),
		zap.Int64("account_id", accountID),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", nil, c.statusError(resp.StatusCode, body)
	}

	var out answerResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", nil, fmt.Errorf("%s: failed to parse response: %w", c.name, err)
	}

	usage := out.UsageLog
	if usage == nil {
		usage = telemetry.NewUsageLog()
	}
	return out.Text, usage, nil
}

func (c *Client) statusError(code int, body []byte) error {
	var parsed errorResponse
	msg := ""
	if json.Unmarshal(body, &parsed) == nil {
		msg = parsed.Detail
		if msg == "" {
			msg = parsed.Error
		}
	}
	if msg == "" {
		msg = util.TruncateRunes(strings.TrimSpace(string(body)), maxErrorMessageRunes)
	}

	err := &StatusError{Backend: c.name, StatusCode: code, Message: msg}
	if code == http.StatusBadGateway || code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout {
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	return err
}
