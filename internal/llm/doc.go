// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm defines the text-completion contract shared by the routing,
// synthesis and title steps.
//
// A Completer turns a prompt into text and reports the usage of the call.
// The cloud package implements it against OpenRouter and the ollama package
// against a local Ollama server.
//
// # Key Types
//
//   - Request: Prompt, model, temperature and optional JSON schema
//   - Response: Completion text plus telemetry.ModelUsage
//   - ResponseFormat: Structured-output request (json_schema)
//   - Completer: The interface every provider implements
//
// # Usage
//
//	resp, err := completer.Complete(ctx, llm.Request{
//	    Prompt:      prompt,
//	    Model:       "meta-llama/llama-4-scout",
//	    Temperature: 0.1,
//	    Format:      llm.JSONSchemaFormat("route", schema),
//	})
//	if err != nil {
//	    return err
//	}
//	usageLog.Add(resp.Usage)
package llm
