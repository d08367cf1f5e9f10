// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeranaias/rigrun-answer/internal/model"
)

const (
	db  = model.SourceDatabase
	doc = model.SourceDocument
	cas = model.SourceCasual
)

func TestPrioritize(t *testing.T) {
	tests := []struct {
		in   []model.SourceTag
		want []model.SourceTag
	}{
		{nil, []model.SourceTag{cas}},
		{[]model.SourceTag{cas}, []model.SourceTag{cas}},
		{[]model.SourceTag{cas, doc}, []model.SourceTag{doc}},
		{[]model.SourceTag{db, cas, doc}, []model.SourceTag{db, doc}},
		{[]model.SourceTag{doc, db}, []model.SourceTag{doc, db}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Prioritize(tt.in), "Prioritize(%v)", tt.in)
	}
}

func TestApplyPolicy_NeverKeepsCasualBesideOthers(t *testing.T) {
	// Every ordered pick of 1-3 distinct tags.
	var picks [][]model.SourceTag
	var build func(prefix []model.SourceTag)
	build = func(prefix []model.SourceTag) {
		if len(prefix) > 0 {
			picks = append(picks, append([]model.SourceTag(nil), prefix...))
		}
		for _, s := range model.AllSources {
			if !model.ContainsSource(prefix, s) {
				build(append(prefix, s))
			}
		}
	}
	build(nil)

	for _, pick := range picks {
		name := model.JoinSources(pick)
		t.Run(strings.ReplaceAll(name, ", ", "+"), func(t *testing.T) {
			std := ApplyPolicy(pick, model.ModeStandard)
			assert.NotEmpty(t, std)
			if len(std) > 1 {
				assert.NotContains(t, std, cas)
			}

			sup := ApplyPolicy(pick, model.ModeSupport)
			if model.ContainsSource(pick, cas) {
				assert.Equal(t, []model.SourceTag{cas}, sup)
			} else {
				assert.Equal(t, pick, sup)
			}
		})
	}
}
