// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// rigrun-answer routes questions to knowledge sources and writes one answer
// from what they return.
//
// Usage:
//
//	rigrun-answer serve              # HTTP API on :8787
//	rigrun-answer ask "question"     # one-shot answer
//	rigrun-answer chat               # interactive session
//	rigrun-answer templates list     # manage query templates
//	rigrun-answer costs              # usage and cost report
package main

import (
	"os"

	"github.com/jeranaias/rigrun-answer/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
