// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pipeline sequences routing and source execution into one answer
// and owns the failure policy seen by callers.
//
// # Key Types
//
//   - Orchestrator: State machine ROUTE -> IMMEDIATE_RETURN | EXECUTE -> DONE | FAILED
//   - FailurePolicy: Raise returns the error; Swallow returns a degraded result
//   - Agent: Outward entry points (Interact, Support, Title) that never fail
//
// # Failure Handling
//
// Routing and synthesis failures are absorbed below this package. A missing
// account, a failed backend call or an empty question reach the
// orchestrator, which either returns the error (Raise) or an empty answer
// with an error-tagged usage log (Swallow). The Agent turns anything that
// still escapes into a fixed apology, and the support wrapper turns an empty
// answer into an escalation to human support.
//
// # Usage
//
//	orch := pipeline.NewOrchestrator(r, exec, logger)
//	agent := pipeline.NewAgent(orch, titleCompleter, pipeline.DefaultAgentConfig(), logger).
//	    WithCostTracker(tracker)
//	resp := agent.Interact(ctx, model.ChatRequest{Content: "open incidents?", AccountID: 42})
package pipeline
