// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package router decides which knowledge sources should answer a question.
//
// The router asks a language model to classify the latest user message into
// one or more of database, document and casual, to lightly fix typos in the
// question, and to write the reply itself when casual is the only source.
// The model's JSON answer is parsed into an explicit Parsed or Unparseable
// value, filtered by the priority policy, and resolved into exactly one
// Outcome.
//
// # Key Types
//
//   - Router: Runs one classification per question
//   - Query: Question, recent history, site context and mode
//   - Decision: Prioritized sources, refined question, optional immediate answer
//   - Outcome: Closed set of routing results (structured, casual, unparseable, call failed)
//   - ParseResult: Parsed or Unparseable model output
//
// # Priority Policy
//
// When the model picks more than one source, casual is dropped unless it is
// the only one left. In support mode any pick that includes casual collapses
// to casual alone. If neither database nor document survives, the decision
// keeps the original question and carries an immediate answer.
//
// # Failure Handling
//
// Route never returns an error. A response that cannot be parsed falls back
// to casual with an apology. A failed model call falls back to document with
// the original question and an error-tagged usage log.
//
// # Usage
//
//	r := router.New(completer, router.DefaultConfig(), logger)
//	res := r.Route(ctx, router.Query{
//	    Question: "how many incident reports were filed last month?",
//	    History:  turns,
//	    Mode:     model.ModeStandard,
//	})
//	if answer, ok := res.Decision.ImmediateAnswer(); ok {
//	    return answer
//	}
package router
