// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across packages.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis, used for log previews
//   - TruncateWidth: Display-width truncation for terminal tables
//   - PadRight: Width-aware padding for aligned columns
//   - OneLine: Collapse whitespace so multi-line text fits one log field
//
// File Operations:
//   - WriteFileAtomic: Crash-safe file writing with fsync
//
// # Usage
//
//	logger.Debug("routing", zap.String("question", util.TruncateRunes(q, 80)))
//	fmt.Println(util.PadRight(model, 30) + cost)
//	err := util.WriteFileAtomic(path, data, 0644)
package util
