// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the application logger.
//
// The client logs diagnostics only: best-effort failures (session
// persistence, script file saves), probe transitions and turn outcomes.
// Nothing here ever reaches the transcript. The log lives next to the
// config so `nexus -verbose` plus the file cover both interactive and
// post-mortem debugging.
package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates the client logger. In verbose mode a human-readable console
// logger is returned; otherwise JSON goes to logDir/nexus.log and the
// terminal stays quiet. A nop logger is returned when the log file cannot
// be opened, so logging never blocks startup.
func New(logDir string, verbose bool) *zap.Logger {
	if verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return zap.NewNop()
		}
		return logger
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return zap.NewNop()
	}

	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{filepath.Join(logDir, "nexus.log")}
	cfg.ErrorOutputPaths = cfg.OutputPaths
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
