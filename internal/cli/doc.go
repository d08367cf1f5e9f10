// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the rigrun-answer command tree.
//
// # Commands Overview
//
//   - serve: Run the HTTP API
//   - ask: Answer one question
//   - chat: Interactive chat with history (liner)
//   - support: Answer one support message with escalation advice
//   - title: Title a conversation read from a JSON file or stdin
//   - templates: Manage query templates (list, add, remove, import)
//   - costs: Show usage and cost over recent days, with an optional chart and pruning
//   - config: Show, read and change configuration
//
// Every command accepts --config to select a config file and --json for
// machine-readable output.
//
// # Usage
//
//	func main() {
//	    os.Exit(cli.Execute())
//	}
package cli
