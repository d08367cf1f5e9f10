// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for
// rigrun-answer.
//
// Supports both TOML and JSON configuration formats, with defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - LLMConfig, ModelsConfig: Completion provider and per-step models
//   - BackendsConfig, TemplatesConfig: Answer sources
//   - ServerConfig: HTTP API settings
//   - ValidateErrors: Every invalid field found by Validate
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (OPENROUTER_API_KEY, RIGRUN_ANSWER_*)
//   - A .env file next to the config file, for variables not already set
//   - ~/.rigrun-answer/config.toml (or the path given with --config)
//   - ~/.rigrun-answer/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//
//	port := cfg.Server.Port
//	_ = cfg.Set("log.level", "debug")
package config
