// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sources

import (
	"github.com/jeranaias/rigrun-answer/internal/model"
)

// ResolveSources normalizes the requested tags, drops unknown ones and
// duplicates, and keeps only the first heavy source. Casual survives next
// to a heavy source. An empty result becomes casual.
func ResolveSources(requested []model.SourceTag) []model.SourceTag {
	out := make([]model.SourceTag, 0, len(requested))
	heavySeen := false

	for _, raw := range requested {
		tag := model.ParseSourceTag(string(raw))
		if !tag.IsValid() || model.ContainsSource(out, tag) {
			continue
		}
		if tag.IsHeavy() {
			if heavySeen {
				continue
			}
			heavySeen = true
		}
		out = append(out, tag)
	}

	if len(out) == 0 {
		return []model.SourceTag{model.SourceCasual}
	}
	return out
}

// heavySources returns the tags that need a backend call.
func heavySources(tags []model.SourceTag) []model.SourceTag {
	var out []model.SourceTag
	for _, t := range tags {
		if t.IsHeavy() {
			out = append(out, t)
		}
	}
	return out
}
