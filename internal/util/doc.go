// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across the application:
// atomic file writes for the config, rune-safe truncation for titles and
// previews, and fenced-code-block extraction for script mode.
package util
