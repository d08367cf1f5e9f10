// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"strings"
)

// =============================================================================
// PRICING
// =============================================================================

// Price is the USD cost per one million tokens for a model.
type Price struct {
	PromptPerMillion     float64 `toml:"prompt" json:"prompt"`
	CompletionPerMillion float64 `toml:"completion" json:"completion"`
}

// Pricing maps model identifiers to prices.
// Keys may be either "provider/model" or the bare model name.
type Pricing map[string]Price

// Lookup finds the price for model, trying the full identifier first and then
// the name without its provider prefix.
func (p Pricing) Lookup(model string) (Price, bool) {
	if p == nil {
		return Price{}, false
	}
	if price, ok := p[model]; ok {
		return price, true
	}
	if i := strings.LastIndex(model, "/"); i >= 0 {
		if price, ok := p[model[i+1:]]; ok {
			return price, true
		}
	}
	return Price{}, false
}

// Cost returns the dollar cost of a call. Unknown models cost nothing.
func (p Pricing) Cost(model string, promptTokens, completionTokens int) float64 {
	price, ok := p.Lookup(model)
	if !ok {
		return 0
	}
	if promptTokens < 0 {
		promptTokens = 0
	}
	if completionTokens < 0 {
		completionTokens = 0
	}
	return float64(promptTokens)/1_000_000*price.PromptPerMillion +
		float64(completionTokens)/1_000_000*price.CompletionPerMillion
}
