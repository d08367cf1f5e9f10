// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usage(model string, prompt, completion int, cost float64, ms int64) ModelUsage {
	return ModelUsage{
		Model:            model,
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
		Cost:             cost,
		ResponseTimeMs:   ms,
	}
}

// assertTotals checks that the totals match the entries.
func assertTotals(t *testing.T, l *UsageLog) {
	t.Helper()
	var tokens int
	var cost float64
	var ms int64
	for _, u := range l.ModelUsages {
		tokens += u.TotalTokens
		cost += u.Cost
		ms += u.ResponseTimeMs
	}
	assert.Equal(t, tokens, l.TotalTokens)
	assert.InDelta(t, cost, l.TotalCost, 1e-9)
	assert.Equal(t, ms, l.TotalResponseTimeMs)
}

func TestUsageLog_Add(t *testing.T) {
	l := NewUsageLog()
	l.Add(usage("openrouter/a", 10, 20, 0.5, 100))
	l.Add(ModelUsage{Model: "b", PromptTokens: 3, CompletionTokens: 4})

	require.Len(t, l.ModelUsages, 2)
	assert.Equal(t, 7, l.ModelUsages[1].TotalTokens, "total filled from prompt+completion")
	assert.Equal(t, 37, l.TotalTokens)
	assert.Equal(t, StatusSuccess, l.Status)
	assertTotals(t, l)
}

func TestUsageLog_AddClampsNegatives(t *testing.T) {
	l := NewUsageLog()
	l.Add(ModelUsage{Model: "x", PromptTokens: -5, CompletionTokens: -1, Cost: -2, ResponseTimeMs: -9})

	require.Len(t, l.ModelUsages, 1)
	u := l.ModelUsages[0]
	assert.Zero(t, u.PromptTokens)
	assert.Zero(t, u.CompletionTokens)
	assert.Zero(t, u.TotalTokens)
	assert.Zero(t, u.Cost)
	assert.Zero(t, u.ResponseTimeMs)
	assertTotals(t, l)
}

func TestNewErrorLog(t *testing.T) {
	l := NewErrorLog("backend down")
	assert.True(t, l.IsError())
	assert.Equal(t, LogTypeError, l.LogType)
	assert.Equal(t, "backend down", l.Message)
	assert.Empty(t, l.ModelUsages)

	l.Add(usage("m", 1, 1, 0, 0))
	assert.Empty(t, l.ModelUsages, "error log must keep zero usages")

	assert.Equal(t, defaultErrorMessage, NewErrorLog("").Message)
}

func TestMerge_NilIsNoop(t *testing.T) {
	l := NewUsageLog()
	l.Add(usage("m", 1, 2, 0.1, 5))

	Merge(nil, l)
	Merge(l, nil)
	Merge(l, l)

	assert.Len(t, l.ModelUsages, 1)
	assertTotals(t, l)
}

func TestMerge_PreservesOrder(t *testing.T) {
	a := NewUsageLog()
	a.Add(usage("router", 10, 5, 0.01, 100))

	b := NewUsageLog()
	b.Add(usage("database", 100, 50, 0.1, 800))
	b.Add(usage("synthesis", 40, 60, 0.02, 300))

	Merge(a, b)

	require.Len(t, a.ModelUsages, 3)
	assert.Equal(t, "router", a.ModelUsages[0].Model)
	assert.Equal(t, "database", a.ModelUsages[1].Model)
	assert.Equal(t, "synthesis", a.ModelUsages[2].Model)
	assertTotals(t, a)
	assert.Len(t, b.ModelUsages, 2, "source is left untouched")
}

func TestMerge_ErrorSourceRecordedOnTarget(t *testing.T) {
	target := NewUsageLog()
	target.Add(usage("m", 1, 1, 0, 1))

	Merge(target, NewErrorLog("synthesis failed"))

	assert.Equal(t, StatusSuccess, target.Status)
	assert.Equal(t, []string{"synthesis failed"}, target.Errors)
	assert.Len(t, target.ModelUsages, 1)

	outer := NewUsageLog()
	Merge(outer, target)
	assert.Equal(t, []string{"synthesis failed"}, outer.Errors, "recorded errors propagate")
	assertTotals(t, outer)
}

func TestMerge_TotalsIndependentOfOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	logs := make([]*UsageLog, 6)
	for i := range logs {
		logs[i] = NewUsageLog()
		for j := 0; j < rng.Intn(4); j++ {
			logs[i].Add(usage("m", rng.Intn(500), rng.Intn(500), rng.Float64(), int64(rng.Intn(2000))))
		}
	}

	forward := NewUsageLog()
	for _, l := range logs {
		Merge(forward, l)
	}

	backward := NewUsageLog()
	for i := len(logs) - 1; i >= 0; i-- {
		Merge(backward, logs[i])
	}

	// Merge pairs first, then fold.
	left := NewUsageLog()
	Merge(left, logs[0])
	Merge(left, logs[1])
	Merge(left, logs[2])
	right := NewUsageLog()
	Merge(right, logs[3])
	Merge(right, logs[4])
	Merge(right, logs[5])
	nested := NewUsageLog()
	Merge(nested, right)
	Merge(nested, left)

	for _, l := range []*UsageLog{forward, backward, nested} {
		assertTotals(t, l)
		assert.Equal(t, forward.TotalTokens, l.TotalTokens)
		assert.Equal(t, forward.TotalResponseTimeMs, l.TotalResponseTimeMs)
		assert.True(t, math.Abs(forward.TotalCost-l.TotalCost) < 1e-9)
		assert.Len(t, l.ModelUsages, len(forward.ModelUsages))
	}
}

func TestPricing_Cost(t *testing.T) {
	p := Pricing{
		"meta-llama/llama-4-scout": {PromptPerMillion: 0.08, CompletionPerMillion: 0.3},
		"gemini-2.5-flash-lite":    {PromptPerMillion: 0.1, CompletionPerMillion: 0.4},
	}

	assert.InDelta(t, 0.08+0.3, p.Cost("meta-llama/llama-4-scout", 1_000_000, 1_000_000), 1e-12)
	assert.InDelta(t, 0.1, p.Cost("google/gemini-2.5-flash-lite", 1_000_000, 0), 1e-12, "falls back to bare name")
	assert.Zero(t, p.Cost("unknown/model", 1000, 1000))
	assert.Zero(t, Pricing(nil).Cost("x", 10, 10))
	assert.Zero(t, p.Cost("meta-llama/llama-4-scout", -10, -10))
}
