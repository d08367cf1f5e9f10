// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

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

	"github.com/jeranaias/rigrun-answer/internal/llm"
	"github.com/jeranaias/rigrun-answer/internal/logging"
	"github.com/jeranaias/rigrun-answer/internal/telemetry"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrorType categorizes client failures.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeModelNotFound
	ErrTypeInvalidResponse
)

// ClientError is a categorized Ollama failure. errors.Is matches any
// ClientError of the same Type.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

func (e *ClientError) Is(target error) bool {
	var t *ClientError
	return errors.As(target, &t) && t.Type == e.Type
}

var (
	ErrNotRunning    = &ClientError{Type: ErrTypeNotRunning, Message: "Ollama is not running"}
	ErrTimeout       = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrModelNotFound = &ClientError{Type: ErrTypeModelNotFound, Message: "model not found"}
)

// IsModelNotFound reports whether err means the model is not pulled.
func IsModelNotFound(err error) bool { return errors.Is(err, ErrModelNotFound) }

// IsNotRunning reports whether err means the server could not be reached.
func IsNotRunning(err error) bool { return errors.Is(err, ErrNotRunning) }

// IsTimeout reports whether err is a client timeout.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

// =============================================================================
// CONFIGURATION
// =============================================================================

const (
	// DefaultBaseURL is IPv4 so Windows does not try ::1 first.
	DefaultBaseURL = "http://127.0.0.1:11434"

	DefaultTimeout = 120 * time.Second
	DefaultModel   = "llama3.1:8b"

	// MaxResponseSize bounds a completion body.
	MaxResponseSize = 10 * 1024 * 1024
)

// ClientConfig configures a Client. Zero fields take defaults.
type ClientConfig struct {
	BaseURL string

	// Timeout bounds one completion, model load included.
	Timeout time.Duration

	// DefaultModel answers requests that name no model.
	DefaultModel string

	// KeepAlive is how long Ollama keeps the model loaded after a call,
	// e.g. "10m". Empty uses the server default.
	KeepAlive string
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:      DefaultBaseURL,
		Timeout:      DefaultTimeout,
		DefaultModel: DefaultModel,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is an llm.Completer backed by a local Ollama server. It is safe
// for concurrent use.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	logger     *zap.Logger
}

var _ llm.Completer = (*Client)(nil)

// NewClient creates a client with the default configuration.
func NewClient() *Client {
	return NewClientWithConfig(nil)
}

// NewClientWithConfig creates a client from config.
func NewClientWithConfig(config *ClientConfig) *Client {
	cfg := *DefaultConfig()
	if config != nil {
		if config.BaseURL != "" {
			cfg.BaseURL = config.BaseURL
		}
		if config.Timeout > 0 {
			cfg.Timeout = config.Timeout
		}
		if config.DefaultModel != "" {
			cfg.DefaultModel = config.DefaultModel
		}
		cfg.KeepAlive = config.KeepAlive
	}
	cfg.BaseURL = strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     zap.NewNop(),
	}
}

// WithLogger sets the logger.
func (c *Client) WithLogger(logger *zap.Logger) *Client {
	c.logger = logging.OrNop(logger).Named("ollama")
	return c
}

// GetConfig returns a copy of the configuration.
func (c *Client) GetConfig() ClientConfig {
	return c.cfg
}

// Version returns the server version.
func (c *Client) Version(ctx context.Context) (string, error) {
	var v versionResponse
	if err := c.do(ctx, http.MethodGet, "/api/version", nil, &v); err != nil {
		return "", err
	}
	return v.Version, nil
}

// CheckRunning returns nil when the server answers.
func (c *Client) CheckRunning(ctx context.Context) error {
	_, err := c.Version(ctx)
	return err
}

// Complete runs one non-streamed chat. Local models are free, so usage
// carries tokens and latency only.
func (c *Client) Complete(ctx context.Context, r llm.Request) (*llm.Response, error) {
	model := r.Model
	if model == "" {
		model = c.cfg.DefaultModel
	}

	body := chatRequest{
		Model:     model,
		Options:   &chatOptions{Temperature: r.Temperature, NumPredict: r.MaxTokens},
		KeepAlive: c.cfg.KeepAlive,
	}
	if r.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: r.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: r.Prompt})
	switch {
	case r.Format == nil:
	case r.Format.JSONSchema != nil:
		body.Format = r.Format.JSONSchema.Schema
	default:
		body.Format = "json"
	}

	start := time.Now()
	var out chatResponse
	if err := c.do(ctx, http.MethodPost, "/api/chat", body, &out); err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	c.logger.Debug("ollama response",
		zap.String("model", model),
		zap.String("done_reason", out.DoneReason),
		zap.Int("eval_count", out.EvalCount),
		zap.Float64("tokens_per_second", out.evalRate()),
		zap.Duration("load", time.Duration(out.LoadDuration)),
		zap.Duration("elapsed", elapsed))

	return &llm.Response{
		Content: out.Message.Content,
		Usage: telemetry.ModelUsage{
			Model:            "ollama/" + model,
			PromptTokens:     out.PromptEvalCount,
			CompletionTokens: out.EvalCount,
			TotalTokens:      out.PromptEvalCount + out.EvalCount,
			ResponseTimeMs:   elapsed.Milliseconds(),
		},
	}, nil
}

// do performs one API round trip, decoding a 200 reply into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		switch {
		case errors.Is(ctx.Err(), context.Canceled):
			return ctx.Err()
		case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
			return ErrTimeout
		}
		return &ClientError{Type: ErrTypeNotRunning, Message: ErrNotRunning.Message, Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to read response", Cause: err}
	}
	if len(data) > MaxResponseSize {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: fmt.Sprintf("response exceeded %d bytes", MaxResponseSize)}
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		msg := "request failed: " + resp.Status
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		typ := ErrTypeInvalidResponse
		if resp.StatusCode == http.StatusNotFound {
			typ = ErrTypeModelNotFound
		}
		return &ClientError{Type: typ, Message: msg}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return nil
}
