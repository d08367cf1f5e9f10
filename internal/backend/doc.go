// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides clients for the knowledge backends that answer
// account-scoped questions.
//
// Two backends exist: the structured-data backend, which turns a question
// into a query against the account's records, and the document-retrieval
// backend, which searches the account's documents. Both speak the same
// HTTP contract:
//
//	POST <url>
//	{"question": "...", "account_id": 42}
//
//	200 OK
//	{"text": "...", "usage_log": {...}}
//
// # Key Types
//
//   - Answerer: Interface the source executor fans out to
//   - Client: HTTP implementation of Answerer
//   - StatusError: Non-2xx reply from a backend
//
// # Usage
//
//	db := backend.NewClient("database", cfg.DatabaseURL).
//	    WithTimeout(60 * time.Second).
//	    WithToken(cfg.Token)
//	text, usage, err := db.Answer(ctx, "open incidents this month", 42)
package backend
