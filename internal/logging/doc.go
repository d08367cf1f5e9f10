// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the zap loggers used by every component.
//
// Components take a *zap.Logger in their constructor and fall back to a
// no-op logger when given nil, so libraries stay silent unless the caller
// wires logging in.
//
// # Usage
//
//	logger, err := logging.New("info", "json")
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//	logger.Info("server started", zap.Int("port", 8787))
package logging
