// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"github.com/jeranaias/rigrun-answer/internal/model"
)

// Prioritize drops casual when another source is present. The result is
// never empty; an empty input yields casual.
func Prioritize(sources []model.SourceTag) []model.SourceTag {
	if len(sources) == 0 {
		return []model.SourceTag{model.SourceCasual}
	}

	out := make([]model.SourceTag, 0, len(sources))
	if len(sources) > 1 && model.ContainsSource(sources, model.SourceCasual) {
		for _, s := range sources {
			if s != model.SourceCasual {
				out = append(out, s)
			}
		}
	} else {
		out = append(out, sources...)
	}

	if len(out) == 0 {
		return []model.SourceTag{model.SourceCasual}
	}
	return out
}

// ApplyPolicy filters the model's chosen sources for a mode. Support mode
// collapses any choice that includes casual to casual alone; otherwise the
// priority rule applies.
func ApplyPolicy(chosen []model.SourceTag, mode model.ChatMode) []model.SourceTag {
	if mode == model.ModeSupport && model.ContainsSource(chosen, model.SourceCasual) {
		return []model.SourceTag{model.SourceCasual}
	}
	return Prioritize(chosen)
}
