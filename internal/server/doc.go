// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the answer pipeline over HTTP.
//
// # Endpoints
//
//   - POST /chat/agent       - Answer a chat message
//   - POST /chat/agent/title - Title a conversation
//   - POST /chat/support     - Answer a support message with escalation advice
//   - GET  /health           - Health check (never requires auth)
//   - GET  /stats            - Usage and cost of the current session
//   - GET  /templates        - Configured query templates
//
// Chat endpoints always answer 200 once the request is valid; pipeline
// failures are reported in the body.
//
// # Middleware
//
//   - Request ids (X-Request-Id, uuid)
//   - Panic recovery and request logging with zap
//   - Security headers and CORS
//   - Per-client token-bucket rate limiting
//   - Bearer token authentication with an optional IP allowlist
//
// # Key Types
//
//   - Server: HTTP server with routes and middleware
//   - AuthConfig, CORSConfig, RateLimiter: Middleware configuration
//
// # Usage
//
//	srv := server.NewServer(cfg.Server.Port, agent).
//	    WithCostTracker(tracker).
//	    WithTemplates(store).
//	    WithLogger(logger)
//	go srv.Start()
//	defer srv.Shutdown(ctx)
package server
