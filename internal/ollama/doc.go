// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the local Ollama implementation of llm.Completer.
//
// It lets the answer pipeline run its routing, synthesis and title prompts
// against models served on the user's own machine instead of OpenRouter.
// JSON-schema response formats are passed through as Ollama structured
// outputs.
//
// # Key Types
//
//   - Client: HTTP client for the Ollama /api/chat endpoint
//   - ClientConfig: Base URL, timeout, fallback model and keep-alive
//   - ClientError: Categorized client failure; errors.Is matches by category
//
// # Usage
//
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
//	    BaseURL:   "http://127.0.0.1:11434",
//	    KeepAlive: "10m",
//	}).WithLogger(logger)
//	if err := client.CheckRunning(ctx); err != nil {
//	    return err
//	}
//	resp, err := client.Complete(ctx, llm.Request{Prompt: "Hello", Model: "llama3.1:8b"})
package ollama
