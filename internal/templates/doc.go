// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package templates provides the example query templates shown alongside
// database answers.
//
// Templates are few-shot hints: an example question, the query that answers
// it, and a short description. They are rendered into the raw text handed to
// synthesis and returned to clients in the result extras. They are never
// executed.
//
// # Key Types
//
//   - Provider: Anything that lists templates
//   - Store: SQLite-backed store (query_templates table)
//   - FileSource: TOML or YAML file with optional hot reload through fsnotify
//   - Static: Fixed in-memory list
//
// # File Format
//
//	[[template]]
//	input = "How many incident reports were filed this year?"
//	query = "SELECT COUNT(*) FROM incident_reports WHERE ..."
//	description = "Yearly incident count"
//
// The same list in a .yaml file:
//
//	template:
//	  - input: How many incident reports were filed this year?
//	    query: SELECT COUNT(*) FROM incident_reports WHERE ...
//	    description: Yearly incident count
//
// # Usage
//
//	store, err := templates.OpenStore(cfg.Templates.DBPath)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//	list, err := store.Templates(ctx)
package templates
