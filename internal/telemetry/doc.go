// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry aggregates token, cost and latency usage for answered
// questions and persists it for later reporting.
//
// Every model or backend call produces a ModelUsage. The calls made for one
// request are folded into a single UsageLog with Merge, whose totals always
// equal the sum of its entries. Completed logs are recorded by a CostTracker
// into sessions stored as JSON files.
//
// # Key Types
//
//   - ModelUsage: Telemetry for one call
//   - UsageLog: Ordered usages plus running totals and a status
//   - Pricing: Per-model prices used to compute call cost
//   - CostTracker: Session-level accumulation of usage logs
//   - CostStorage: JSON persistence of sessions
//
// # Usage
//
// Aggregate the usage of two calls:
//
//	total := telemetry.NewUsageLog()
//	telemetry.Merge(total, routingLog)
//	telemetry.Merge(total, backendLog)
//	fmt.Printf("%d tokens, $%.4f\n", total.TotalTokens, total.TotalCost)
//
// Record a finished request:
//
//	tracker, _ := telemetry.NewCostTracker("")
//	if err := tracker.Record("agent", total); err != nil {
//	    log.Printf("usage not persisted: %v", err)
//	}
//	defer tracker.EndSession()
//
// # Privacy
//
// Usage tracking is local-only. Question text is never stored.
package telemetry
