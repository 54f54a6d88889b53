// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strconv"
	"time"
)

// DefaultTitle is the title a session carries until its first message
// arrives, at which point the title is rewritten to a prefix of it.
const DefaultTitle = "New Session"

// TitlePrefixRunes is the fixed length of the auto-generated session title.
const TitlePrefixRunes = 30

// Session is a named, persisted conversation. The active session's Messages
// mirror the live transcript and are re-synchronized after each turn.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	Messages  []Message `json:"messages"`
}

// NewSession creates a session with a time-derived unique id and the
// default title.
func NewSession() *Session {
	now := time.Now()
	return &Session{
		ID:        "sess_" + strconv.FormatInt(now.UnixNano(), 10),
		Title:     DefaultTitle,
		Timestamp: now,
	}
}

// RefreshTitle rewrites a still-default title to a fixed-length prefix of
// the first message's content. Titles the user has already seen change
// under are never rewritten again.
func (s *Session) RefreshTitle() {
	if s.Title != DefaultTitle || len(s.Messages) == 0 {
		return
	}
	first := s.Messages[0].Content
	if first == "" {
		return
	}
	runes := []rune(first)
	if len(runes) > TitlePrefixRunes {
		runes = runes[:TitlePrefixRunes]
	}
	s.Title = string(runes)
}

// SetMessages replaces the session's stored messages with a copy of the
// given snapshot.
func (s *Session) SetMessages(messages []Message) {
	s.Messages = make([]Message, len(messages))
	copy(s.Messages, messages)
}
