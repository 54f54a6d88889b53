// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "sync"

// =============================================================================
// INFERENCE MODE
// =============================================================================

// InferenceMode selects which backend route the chat request takes.
type InferenceMode string

const (
	// ModeProxy forwards the request through the bridge to an external
	// provider (e.g. a local Ollama server).
	ModeProxy InferenceMode = "proxy"

	// ModeLocal runs inference on a GGUF model loaded inside the bridge.
	ModeLocal InferenceMode = "local"
)

// Valid reports whether the mode is one the bridge understands.
func (m InferenceMode) Valid() bool {
	return m == ModeProxy || m == ModeLocal
}

// =============================================================================
// MODEL STATE
// =============================================================================

// ModelState tracks which models the client targets and how. It is the only
// value written from the background probe (the passive chat-model side
// channel), so access is guarded.
type ModelState struct {
	mu sync.Mutex

	mode        InferenceMode
	chatModel   string
	imageModel  string
	providerURL string
}

// NewModelState creates a ModelState with the given initial values.
func NewModelState(mode InferenceMode, chatModel, imageModel, providerURL string) *ModelState {
	return &ModelState{
		mode:        mode,
		chatModel:   chatModel,
		imageModel:  imageModel,
		providerURL: providerURL,
	}
}

// Mode returns the current inference mode.
func (s *ModelState) Mode() InferenceMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode switches between proxy and local inference.
func (s *ModelState) SetMode(mode InferenceMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

// ChatModel returns the chat model id.
func (s *ModelState) ChatModel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatModel
}

// SetChatModel updates the chat model id. Called by the user on model
// switch and by the connection monitor when the bridge reports which model
// is actually loaded (the backend is the source of truth).
func (s *ModelState) SetChatModel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatModel = id
}

// ImageModel returns the image model id.
func (s *ModelState) ImageModel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.imageModel
}

// SetImageModel updates the image model id.
func (s *ModelState) SetImageModel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imageModel = id
}

// ProviderURL returns the proxy-mode provider endpoint.
func (s *ModelState) ProviderURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.providerURL
}

// SetProviderURL updates the proxy-mode provider endpoint.
func (s *ModelState) SetProviderURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providerURL = url
}
