// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"
)

func TestNewSession(t *testing.T) {
	s := NewSession()

	if !strings.HasPrefix(s.ID, "sess_") {
		t.Errorf("ID = %q, want 'sess_' prefix", s.ID)
	}
	if s.Title != DefaultTitle {
		t.Errorf("Title = %q, want %q", s.Title, DefaultTitle)
	}
	if s.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestSession_RefreshTitle(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		content string
		want    string
	}{
		{
			name:    "short first message becomes title",
			title:   DefaultTitle,
			content: "weather today",
			want:    "weather today",
		},
		{
			name:    "long first message truncated to fixed prefix",
			title:   DefaultTitle,
			content: strings.Repeat("x", 80),
			want:    strings.Repeat("x", TitlePrefixRunes),
		},
		{
			name:    "custom title untouched",
			title:   "My research notes",
			content: "something else entirely",
			want:    "My research notes",
		},
		{
			name:    "multibyte content truncated on rune boundary",
			title:   DefaultTitle,
			content: strings.Repeat("ü", 80),
			want:    strings.Repeat("ü", TitlePrefixRunes),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewSession()
			s.Title = tc.title
			s.Messages = []Message{{ID: 1, Role: RoleUser, Content: tc.content}}
			s.RefreshTitle()
			if s.Title != tc.want {
				t.Errorf("Title = %q, want %q", s.Title, tc.want)
			}
		})
	}
}

func TestSession_RefreshTitleEmpty(t *testing.T) {
	s := NewSession()
	s.RefreshTitle()
	if s.Title != DefaultTitle {
		t.Errorf("Title of empty session = %q, want default", s.Title)
	}
}

func TestSession_SetMessagesCopies(t *testing.T) {
	s := NewSession()
	src := []Message{{ID: 1, Role: RoleUser, Content: "a"}}
	s.SetMessages(src)

	src[0].Content = "mutated"
	if s.Messages[0].Content != "a" {
		t.Error("SetMessages must copy the snapshot")
	}
}

func TestModelState(t *testing.T) {
	st := NewModelState(ModeProxy, "llama3", "sd_xl.safetensors", "http://localhost:11434/api/chat")

	if st.Mode() != ModeProxy {
		t.Errorf("Mode = %q, want proxy", st.Mode())
	}

	st.SetMode(ModeLocal)
	st.SetChatModel("qwen2.5.gguf")

	if st.Mode() != ModeLocal {
		t.Errorf("Mode = %q, want local", st.Mode())
	}
	if st.ChatModel() != "qwen2.5.gguf" {
		t.Errorf("ChatModel = %q", st.ChatModel())
	}
	if st.ImageModel() != "sd_xl.safetensors" {
		t.Errorf("ImageModel = %q", st.ImageModel())
	}
}

func TestInferenceMode_Valid(t *testing.T) {
	if !ModeProxy.Valid() || !ModeLocal.Valid() {
		t.Error("proxy and local must be valid modes")
	}
	if InferenceMode("cloud").Valid() {
		t.Error("unknown mode should not validate")
	}
}
