// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"regexp"
	"strings"
)

// UNICODE: rune-aware truncation preserves multi-byte characters and
// prevents mid-character cuts that would corrupt UTF-8 strings.

// TruncateRunes truncates a string to a maximum number of runes. If the
// string is truncated, "..." is appended.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}

// TruncateRunesNoEllipsis truncates a string to a maximum number of runes
// without appending an ellipsis.
func TruncateRunesNoEllipsis(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes])
}

// fencedBlock matches the first fenced code block, tolerating an optional
// language tag after the opening fence.
var fencedBlock = regexp.MustCompile("(?s)```[a-zA-Z0-9_+-]*\n(.*?)```")

// FirstCodeBlock extracts the body of the first fenced code block in s.
// When no fence is present the whole string is returned unchanged, so a
// model that answered with bare code still saves cleanly.
func FirstCodeBlock(s string) string {
	m := fencedBlock.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	return m[1]
}

// SingleLine collapses all whitespace runs (including newlines) into single
// spaces, for previews and log fields.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
