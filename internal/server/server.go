// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-answer/internal/logging"
	"github.com/jeranaias/rigrun-answer/internal/model"
	"github.com/jeranaias/rigrun-answer/internal/pipeline"
	"github.com/jeranaias/rigrun-answer/internal/telemetry"
	"github.com/jeranaias/rigrun-answer/internal/templates"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultPort is the default port for the HTTP server.
	DefaultPort = 8787

	// MaxQueryLength bounds a single message.
	MaxQueryLength = 100000

	// MaxContextTurns bounds the history sent with a request.
	MaxContextTurns = 100

	// MaxRequestBodySize is the maximum request body (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// HealthCheckTimeout bounds each health probe.
	HealthCheckTimeout = 2 * time.Second

	// StatsTrendDays is how many days /stats summarizes.
	StatsTrendDays = 7

	// Version is the server version.
	Version = "0.1.0"
)

// ============================================================================
// SERVER
// ============================================================================

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Server is the HTTP API.
type Server struct {
	port   int
	host   string
	mux    *http.ServeMux
	server *http.Server

	agent     *pipeline.Agent
	tracker   *telemetry.CostTracker
	templates templates.Provider
	checks    map[string]HealthCheck

	auth    *AuthConfig
	cors    *CORSConfig
	limiter *RateLimiter
	logger  *zap.Logger

	startTime time.Time
	mu        sync.RWMutex
}

// NewServer creates a server answering with agent. Port 0 uses DefaultPort.
func NewServer(port int, agent *pipeline.Agent) *Server {
	if port == 0 {
		port = DefaultPort
	}

	s := &Server{
		port:      port,
		host:      "127.0.0.1",
		mux:       http.NewServeMux(),
		agent:     agent,
		checks:    make(map[string]HealthCheck),
		auth:      DefaultAuthConfig(),
		cors:      DefaultCORSConfig(),
		limiter:   DefaultRateLimiter(),
		logger:    zap.NewNop(),
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// WithHost sets the listen host.
func (s *Server) WithHost(host string) *Server {
	if host != "" {
		s.host = host
	}
	return s
}

// WithCostTracker exposes tracker through /stats.
func (s *Server) WithCostTracker(tracker *telemetry.CostTracker) *Server {
	s.tracker = tracker
	return s
}

// WithTemplates exposes p through /templates.
func (s *Server) WithTemplates(p templates.Provider) *Server {
	s.templates = p
	return s
}

// WithHealthCheck adds a named probe to /health.
func (s *Server) WithHealthCheck(name string, check HealthCheck) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
	return s
}

// WithAuth sets the authentication configuration.
func (s *Server) WithAuth(config *AuthConfig) *Server {
	if config != nil {
		s.auth = config
	}
	return s
}

// WithCORS sets the CORS configuration.
func (s *Server) WithCORS(config *CORSConfig) *Server {
	if config != nil {
		s.cors = config
	}
	return s
}

// WithRateLimiter sets the per-client rate limiter.
func (s *Server) WithRateLimiter(limiter *RateLimiter) *Server {
	if limiter != nil {
		s.limiter = limiter
	}
	return s
}

// WithLogger sets the logger.
func (s *Server) WithLogger(logger *zap.Logger) *Server {
	s.logger = logging.OrNop(logger).Named("server")
	return s
}

// Port returns the server port.
func (s *Server) Port() int {
	return s.port
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /chat/agent", s.handleAgent)
	s.mux.HandleFunc("POST /chat/agent/title", s.handleTitle)
	s.mux.HandleFunc("POST /chat/support", s.handleSupport)

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /stats", s.handleStats)
	s.mux.HandleFunc("GET /templates", s.handleTemplates)
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return Chain(
		RequestIDMiddleware(),
		RecoveryMiddleware(s.logger),
		LoggingMiddleware(s.logger),
		SecurityHeadersMiddleware(),
		CORSMiddleware(s.cors),
		RateLimitMiddleware(s.limiter, s.logger),
		AuthMiddleware(s.auth, s.logger, "/health"),
	)(s.mux)
}

// ============================================================================
// REQUEST DECODING
// ============================================================================

// decode reads a JSON body into v, writing a 4xx and returning false on
// failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds maximum size of %d bytes", MaxRequestBodySize))
			return false
		}
		s.logger.Debug("invalid request body", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid request format")
		return false
	}
	return true
}

// validateTurns checks roles, count and length of conversation turns.
func validateTurns(turns []model.ConversationTurn) error {
	if len(turns) > MaxContextTurns {
		return fmt.Errorf("too many context turns: maximum is %d", MaxContextTurns)
	}
	for i, t := range turns {
		if !t.Role.IsValid() {
			return fmt.Errorf("invalid role %q at turn %d: must be one of user, assistant, system", t.Role, i)
		}
		if len(t.Content) > MaxQueryLength {
			return fmt.Errorf("turn %d exceeds maximum length of %d", i, MaxQueryLength)
		}
	}
	return nil
}

// ============================================================================
// CHAT HANDLERS
// ============================================================================

// handleAgent handles POST /chat/agent. Pipeline failures are reported in
// the body with success=false; the status stays 200.
func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	var req model.ChatRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content must not be empty")
		return
	}
	if len(req.Content) > MaxQueryLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("content exceeds maximum length of %d", MaxQueryLength))
		return
	}
	if err := validateTurns(req.Context); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, s.agent.Interact(r.Context(), req))
}

// handleTitle handles POST /chat/agent/title.
func (s *Server) handleTitle(w http.ResponseWriter, r *http.Request) {
	var req model.TitleRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages must not be empty")
		return
	}
	if err := validateTurns(req.Messages); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, s.agent.Title(r.Context(), req.Messages))
}

// handleSupport handles POST /chat/support.
func (s *Server) handleSupport(w http.ResponseWriter, r *http.Request) {
	var req model.SupportRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message must not be empty")
		return
	}
	if len(req.Message) > MaxQueryLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("message exceeds maximum length of %d", MaxQueryLength))
		return
	}

	writeJSON(w, http.StatusOK, s.agent.Support(r.Context(), req))
}

// ============================================================================
// HEALTH HANDLER
// ============================================================================

// HealthResponse is the health check response.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

// handleHealth handles GET /health. Failing probes mark the service
// degraded but still answer 200.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	checks := make(map[string]HealthCheck, len(s.checks))
	for k, v := range s.checks {
		checks[k] = v
	}
	s.mu.RUnlock()
	sort.Strings(names)

	health := HealthResponse{
		Status:        "ok",
		Version:       Version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Checks:        make(map[string]string, len(names)),
	}

	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
		err := checks[name](ctx)
		cancel()
		if err != nil {
			health.Checks[name] = "unavailable"
			health.Status = "degraded"
			s.logger.Debug("health check failed", zap.String("check", name), zap.Error(err))
			continue
		}
		health.Checks[name] = "ok"
	}

	writeJSON(w, http.StatusOK, health)
}

// ============================================================================
// STATS HANDLER
// ============================================================================

// StatsResponse is the usage statistics response.
type StatsResponse struct {
	Enabled       bool                   `json:"enabled"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	Session       *telemetry.SessionCost `json:"session,omitempty"`
	Trends        *telemetry.CostTrends  `json:"trends,omitempty"`
}

// handleStats handles GET /stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{UptimeSeconds: int64(time.Since(s.startTime).Seconds())}
	if s.tracker != nil {
		resp.Enabled = true
		resp.Session = s.tracker.GetCurrentSession()
		resp.Trends = s.tracker.GetTrends(StatsTrendDays)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ============================================================================
// TEMPLATES HANDLER
// ============================================================================

// TemplatesResponse lists the configured query templates.
type TemplatesResponse struct {
	Templates []model.QueryTemplate `json:"templates"`
	Count     int                   `json:"count"`
}

// handleTemplates handles GET /templates.
func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	resp := TemplatesResponse{Templates: []model.QueryTemplate{}}
	if s.templates != nil {
		list, err := s.templates.Templates(r.Context())
		if err != nil {
			s.logger.Error("listing templates failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "templates unavailable")
			return
		}
		if list != nil {
			resp.Templates = list
		}
	}
	resp.Count = len(resp.Templates)
	writeJSON(w, http.StatusOK, resp)
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens and serves until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	srv := s.httpServer()
	s.logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("version", Version))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server and saves the usage session. A
// server shut down before Start never serves.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")

	if err := s.tracker.SaveCurrentSession(); err != nil {
		s.logger.Warn("saving usage session failed", zap.Error(err))
	}
	return s.httpServer().Shutdown(ctx)
}

// httpServer creates the underlying http.Server on first use.
func (s *Server) httpServer() *http.Server {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		s.server = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", s.host, s.port),
			Handler:           s.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      180 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
	}
	return s.server
}

// ============================================================================
// HELPERS
// ============================================================================

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes an error.
type ErrorDetail struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Message: message, Code: status}})
}
