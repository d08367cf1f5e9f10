// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides the OpenRouter implementation of llm.Completer.
//
// OpenRouter exposes many hosted models behind one chat-completions API. The
// client adds what the answer pipeline needs on top of a plain HTTP call:
// retries with exponential backoff, mapping of API failures to sentinel
// errors, size-limited response reads, client-side request pacing, and
// capture of token usage, latency and cost for every call.
//
// # Key Types
//
//   - OpenRouterClient: HTTP client for the chat-completions endpoint
//   - OpenRouterError: Non-specific API failure with status and code
//
// # Usage
//
//	client := cloud.NewOpenRouterClient(apiKey).
//	    WithRateLimit(5, 10).
//	    WithPricing(cfg.Pricing).
//	    WithLogger(logger)
//	resp, err := client.Complete(ctx, llm.Request{
//	    Prompt: "Hello",
//	    Model:  "meta-llama/llama-4-scout",
//	})
//
// # Security
//
// API keys are never logged. Only a short SHA-256 fingerprint is exposed.
package cloud
