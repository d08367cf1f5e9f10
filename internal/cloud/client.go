// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/rigrun-answer/internal/llm"
	"github.com/jeranaias/rigrun-answer/internal/logging"
	"github.com/jeranaias/rigrun-answer/internal/telemetry"
)

// Configuration constants for OpenRouter API.
const (
	// DefaultOpenRouterURL is the base URL for OpenRouter API.
	DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 120 * time.Second

	// DefaultMaxRetries is the default number of attempts for transient errors.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB limit
)

// Error variables for common OpenRouter errors.
var (
	// ErrNotConfigured indicates the API key is not set.
	ErrNotConfigured = errors.New("OpenRouter API key not configured")

	// ErrAuthFailed indicates authentication failed (invalid or expired API key).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrModelNotFound indicates the requested model does not exist.
	ErrModelNotFound = errors.New("model not found")

	// ErrInsufficientCredits indicates the account has insufficient credits.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrEmptyResponse indicates the API returned no choices.
	ErrEmptyResponse = errors.New("response contained no choices")
)

// OpenRouterError is a non-200 reply from OpenRouter. It unwraps to the
// sentinel matching its status, so errors.Is(err, ErrRateLimited) holds for
// a 429.
type OpenRouterError struct {
	Code    string
	Message string
	Status  int

	// RetryAfter is the wait the server asked for, zero when absent.
	RetryAfter time.Duration

	kind error
}

func (e *OpenRouterError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("OpenRouter error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("OpenRouter error (HTTP %d): %s", e.Status, e.Message)
}

func (e *OpenRouterError) Unwrap() error {
	return e.kind
}

// statusKinds maps HTTP statuses to the sentinel their errors unwrap to.
var statusKinds = map[int]error{
	http.StatusUnauthorized:    ErrAuthFailed,
	http.StatusPaymentRequired: ErrInsufficientCredits,
	http.StatusNotFound:        ErrModelNotFound,
	http.StatusTooManyRequests: ErrRateLimited,
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// chatMessage is a single message in the chat-completions format.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the body sent to /chat/completions.
type chatRequest struct {
	Model          string              `json:"model"`
	Messages       []chatMessage       `json:"messages"`
	Temperature    float64             `json:"temperature"`
	MaxTokens      int                 `json:"max_tokens,omitempty"`
	ResponseFormat *llm.ResponseFormat `json:"response_format,omitempty"`
	Usage          *usageOptions       `json:"usage,omitempty"`
}

// usageOptions asks OpenRouter to report the billed cost.
type usageOptions struct {
	Include bool `json:"include"`
}

// chatResponse is the body returned by /chat/completions.
type chatResponse struct {
	ID       string `json:"id"`
	Model    string `json:"model"`
	Provider string `json:"provider"`
	Choices  []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int     `json:"prompt_tokens"`
		CompletionTokens int     `json:"completion_tokens"`
		TotalTokens      int     `json:"total_tokens"`
		Cost             float64 `json:"cost"`
	} `json:"usage"`
}

// apiErrorResponse represents an error response from the API.
type apiErrorResponse struct {
	Error struct {
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
	} `json:"error"`
}

// =============================================================================
// CLIENT
// =============================================================================

// OpenRouterClient implements llm.Completer against the OpenRouter API.
// It is safe for concurrent use.
type OpenRouterClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	maxRetries int
	siteURL    string
	siteName   string

	limiter *rate.Limiter
	pricing telemetry.Pricing
	logger  *zap.Logger
}

var _ llm.Completer = (*OpenRouterClient)(nil)

// NewOpenRouterClient creates a new OpenRouter client with the given API key.
//
// If the API key is empty the client is still created, but Complete fails
// with ErrNotConfigured.
func NewOpenRouterClient(apiKey string) *OpenRouterClient {
	return &OpenRouterClient{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: DefaultOpenRouterURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		maxRetries: DefaultMaxRetries,
		siteName:   "rigrun-answer",
		limiter:    rate.NewLimiter(rate.Inf, 0),
		logger:     zap.NewNop(),
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *OpenRouterClient) WithBaseURL(url string) *OpenRouterClient {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

// WithTimeout sets the per-attempt request timeout.
func (c *OpenRouterClient) WithTimeout(timeout time.Duration) *OpenRouterClient {
	if timeout > 0 {
		c.httpClient.Timeout = timeout
	}
	return c
}

// WithMaxRetries sets the maximum number of attempts.
func (c *OpenRouterClient) WithMaxRetries(maxRetries int) *OpenRouterClient {
	if maxRetries > 0 {
		c.maxRetries = maxRetries
	}
	return c
}

// WithSiteURL sets the HTTP-Referer reported to OpenRouter.
func (c *OpenRouterClient) WithSiteURL(url string) *OpenRouterClient {
	c.siteURL = url
	return c
}

// WithSiteName sets the X-Title reported to OpenRouter.
func (c *OpenRouterClient) WithSiteName(name string) *OpenRouterClient {
	c.siteName = name
	return c
}

// WithRateLimit paces outgoing attempts to rps requests per second with the
// given burst. A non-positive rps disables pacing.
func (c *OpenRouterClient) WithRateLimit(rps float64, burst int) *OpenRouterClient {
	if rps <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
		return c
	}
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return c
}

// WithPricing sets the table used to price calls when OpenRouter does not
// report a cost.
func (c *OpenRouterClient) WithPricing(p telemetry.Pricing) *OpenRouterClient {
	c.pricing = p
	return c
}

// WithLogger sets the logger.
func (c *OpenRouterClient) WithLogger(logger *zap.Logger) *OpenRouterClient {
	c.logger = logging.OrNop(logger)
	return c
}

// IsConfigured returns true if the client has an API key configured.
func (c *OpenRouterClient) IsConfigured() bool {
	return c.apiKey != ""
}

// KeyFingerprint returns a short SHA-256 fingerprint of the API key for
// logging. The key itself is never exposed.
func (c *OpenRouterClient) KeyFingerprint() string {
	if c.apiKey == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(c.apiKey))
	return hex.EncodeToString(h[:4])
}

// =============================================================================
// COMPLETION
// =============================================================================

// Complete sends a single-prompt chat completion.
//
// Rate limiting and 5xx responses are retried with exponential backoff. The
// returned usage is attributed to "provider/model" when OpenRouter names the
// upstream provider, and its latency covers the successful attempt.
func (c *OpenRouterClient) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if req.Model == "" {
		return nil, fmt.Errorf("%w: empty model", ErrModelNotFound)
	}

	body := chatRequest{
		Model:          req.Model,
		Temperature:    req.Temperature,
		MaxTokens:      req.MaxTokens,
		ResponseFormat: req.Format,
		Usage:          &usageOptions{Include: true},
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})

	url := c.baseURL + "/chat/completions"

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay(attempt-1, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		resp, err := c.doRequest(ctx, url, body)
		elapsed := time.Since(start)

		if err != nil {
			c.logger.Debug("openrouter attempt failed",
				zap.String("model", req.Model),
				zap.Int("attempt", attempt+1),
				zap.Duration("elapsed", elapsed),
				zap.Error(err))
			if c.isRetryable(err) {
				lastErr = err
				continue
			}
			return nil, err
		}

		return c.toResponse(req.Model, resp, elapsed)
	}

	if lastErr != nil {
		return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
	}
	return nil, errors.New("max retries exceeded")
}

// toResponse converts a wire response into an llm.Response with usage.
func (c *OpenRouterClient) toResponse(model string, resp *chatResponse, elapsed time.Duration) (*llm.Response, error) {
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	modelID := model
	if resp.Provider != "" {
		modelID = resp.Provider + "/" + model
	}

	cost := resp.Usage.Cost
	if cost <= 0 {
		cost = c.pricing.Cost(model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}

	c.logger.Debug("openrouter response",
		zap.String("id", resp.ID),
		zap.String("model", modelID),
		zap.String("finish_reason", resp.Choices[0].FinishReason),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("elapsed", elapsed))

	return &llm.Response{
		Content: resp.Choices[0].Message.Content,
		Usage: telemetry.ModelUsage{
			Model:            modelID,
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
			Cost:             cost,
			ResponseTimeMs:   elapsed.Milliseconds(),
		},
	}, nil
}

// setHeaders sets the required headers for OpenRouter API requests.
func (c *OpenRouterClient) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "rigrun-answer/1.0")

	if c.siteURL != "" {
		req.Header.Set("HTTP-Referer", c.siteURL)
	}
	if c.siteName != "" {
		req.Header.Set("X-Title", c.siteName)
	}
}

// readResponse reads at most limit bytes of body. A body longer than
// limit is an error.
func readResponse(body io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", limit)
	}
	return data, nil
}

// doRequest performs a single HTTP request to the chat completions endpoint.
func (c *OpenRouterClient) doRequest(ctx context.Context, requestURL string, reqBody chatRequest) (*chatResponse, error) {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)

	// Drop the key from the request so nothing downstream can log it.
	req.Header.Del("Authorization")

	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp.Body, MaxResponseSize)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp.StatusCode, resp.Header, body)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &chatResp, nil
}

// parseAPIError builds the error for a non-200 reply.
func parseAPIError(status int, header http.Header, body []byte) *OpenRouterError {
	e := &OpenRouterError{Status: status, kind: statusKinds[status]}

	var apiErr apiErrorResponse
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		e.Message = apiErr.Error.Message
		if code := strings.Trim(string(apiErr.Error.Code), `"`); code != "null" {
			e.Code = code
		}
	} else {
		e.Message = strings.TrimSpace(string(body))
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}

	if secs, err := strconv.Atoi(strings.TrimSpace(header.Get("Retry-After"))); err == nil && secs > 0 {
		e.RetryAfter = time.Duration(secs) * time.Second
	}
	return e
}

// isRetryable reports whether another attempt may succeed: rate limits and
// upstream 5xx.
func (c *OpenRouterClient) isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var orErr *OpenRouterError
	return errors.As(err, &orErr) && orErr.Status >= 500 && orErr.Status < 600
}

// calculateBackoff returns the exponential delay before retry attempt+1:
// 500ms, 1s, 2s and so on up to retryMaxDelay.
func (c *OpenRouterClient) calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay << uint(attempt)
	if delay <= 0 || delay > retryMaxDelay {
		return retryMaxDelay
	}
	return delay
}

// retryDelay is the backoff for attempt, stretched to any Retry-After the
// last error carried.
func (c *OpenRouterClient) retryDelay(attempt int, lastErr error) time.Duration {
	delay := c.calculateBackoff(attempt)
	var orErr *OpenRouterError
	if errors.As(lastErr, &orErr) && orErr.RetryAfter > delay {
		delay = min(orErr.RetryAfter, retryMaxDelay)
	}
	return delay
}

// ValidateAPIKey checks if the API key format appears valid.
// This doesn't verify the key with OpenRouter, it only checks the format.
func ValidateAPIKey(apiKey string) bool {
	apiKey = strings.TrimSpace(apiKey)

	// OpenRouter keys start with "sk-or-"
	if !strings.HasPrefix(apiKey, "sk-or-") {
		return false
	}

	if len(apiKey) < 38 {
		return false
	}

	// Reject obvious placeholder keys like "sk-or-aaaaaaaa..."
	uniqueChars := make(map[rune]bool)
	for _, char := range apiKey[6:] {
		uniqueChars[char] = true
	}

	return len(uniqueChars) >= 10
}
