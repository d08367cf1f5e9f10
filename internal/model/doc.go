// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared by the answer pipeline.
//
// These types describe a conversation turn, the knowledge sources a question
// can be routed to, and the request and response envelopes exposed by the
// HTTP server and the CLI.
//
// # Key Types
//
//   - ConversationTurn: One immutable message in the chat history
//   - Role: Turn role enumeration (user, assistant, system)
//   - SourceTag: Knowledge source enumeration (database, document, casual)
//   - ChatMode: Pipeline mode (standard, support)
//   - QueryTemplate: Example question/query pair surfaced as a hint
//   - Extras: Tagged auxiliary payload attached to a pipeline result
//   - PipelineResult: Final output of one answered question
//
// # Usage
//
// Build a history and render it for a prompt:
//
//	turns := []model.ConversationTurn{
//	    model.NewTurn(model.RoleUser, "How many invoices are open?"),
//	    model.NewTurn(model.RoleAssistant, "There are 12 open invoices."),
//	}
//	history := model.FormatHistory(turns, 5)
//
// Normalize a source tag coming from a model or a client:
//
//	tag := model.ParseSourceTag(" Database ") // model.SourceDatabase
package model
