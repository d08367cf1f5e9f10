// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sources runs the knowledge backends chosen for a question and
// turns their output into one answer.
//
// Execution has four steps:
//
//  1. Resolve: normalize, deduplicate and cap the requested sources so at
//     most one of database and document proceeds.
//  2. Fan out: call every surviving heavy backend concurrently. The first
//     failure cancels the others and fails the whole call.
//  3. Combine: merge usage logs and join the backend texts in source order,
//     labeling each section when more than one produced text. Database
//     answers get the configured query templates appended.
//  4. Synthesize: ask the language model for a polished, user-facing
//     answer. If that call fails the combined text is returned as is.
//
// # Key Types
//
//   - Executor: Runs the four steps for one request
//   - Request: Sources, question, history and account
//   - Result: Answer, raw text, merged usage, active sources, extras
//
// # Usage
//
//	exec := sources.NewExecutor(completer, sources.DefaultConfig(), logger).
//	    WithBackend(model.SourceDatabase, dbClient).
//	    WithBackend(model.SourceDocument, docClient).
//	    WithTemplates(store)
//	res, err := exec.Execute(ctx, sources.Request{
//	    Sources:   decision.Sources,
//	    Question:  decision.Question,
//	    AccountID: 42,
//	})
package sources
