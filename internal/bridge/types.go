// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package bridge

import "encoding/json"

// =============================================================================
// STATUS
// =============================================================================

// StatusResponse is the bridge's answer to GET /api/status.
type StatusResponse struct {
	Status       string  `json:"status"`
	CurrentModel string  `json:"current_model,omitempty"`
	Loaded       bool    `json:"loaded"`
	ImageModel   string  `json:"image_model,omitempty"`
	ImageLoaded  bool    `json:"image_loaded"`
	ModelDir     string  `json:"model_dir,omitempty"`
	ImageDir     string  `json:"image_dir,omitempty"`
	ContextSize  int     `json:"context_size,omitempty"`
	Timestamp    float64 `json:"timestamp,omitempty"`
}

// =============================================================================
// CHAT
// =============================================================================

// ChatMessage is a single {role, content} item sent to POST /api/chat, in
// strict transcript order with the system message first.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the payload for POST /api/chat.
type ChatRequest struct {
	Messages    []ChatMessage `json:"messages"`
	Model       string        `json:"model,omitempty"`
	ProviderURL string        `json:"provider_url,omitempty"`
	Mode        string        `json:"mode,omitempty"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

// ChatResponse is the bridge's chat answer. Local mode fills Message; some
// proxied providers answer with a bare Response field instead.
type ChatResponse struct {
	Model    string       `json:"model,omitempty"`
	Message  *ChatMessage `json:"message,omitempty"`
	Response string       `json:"response,omitempty"`
	Done     bool         `json:"done,omitempty"`
}

// Content resolves the assistant text: the message field, then the fallback
// response field, then a literal "No response." when both are absent.
func (r *ChatResponse) Content() string {
	if r.Message != nil && r.Message.Content != "" {
		return r.Message.Content
	}
	if r.Response != "" {
		return r.Response
	}
	return "No response."
}

// =============================================================================
// MODEL MANAGEMENT
// =============================================================================

// LoadRequest asks the bridge to load a model file. Path is relative to the
// bridge's model directory unless BaseDir overrides it.
type LoadRequest struct {
	Path    string `json:"path"`
	BaseDir string `json:"base_dir,omitempty"`
}

// LoadResponse confirms a model load.
type LoadResponse struct {
	Status  string `json:"status"`
	Model   string `json:"model"`
	Warning string `json:"warning,omitempty"`
}

// ModelsResponse lists model files the bridge can see.
type ModelsResponse struct {
	Models []string `json:"models"`
	Error  string   `json:"error,omitempty"`
}

// SubfoldersResponse lists output subfolders of the image directory.
type SubfoldersResponse struct {
	Subfolders []string `json:"subfolders"`
	Error      string   `json:"error,omitempty"`
}

// =============================================================================
// SEARCH & SCRAPE
// =============================================================================

// SearchRequest is the payload for POST /search.
type SearchRequest struct {
	Q          string `json:"q"`
	MaxResults int    `json:"max_results,omitempty"`
}

// SearchResult is one web search hit.
type SearchResult struct {
	Title string `json:"title"`
	Href  string `json:"href"`
	Body  string `json:"body"`
}

// SearchResponse is the bridge's answer to POST /search.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Error   string         `json:"error,omitempty"`
}

// ScrapeResponse is the bridge's answer to GET /scrape.
type ScrapeResponse struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// =============================================================================
// IMAGE GENERATION
// =============================================================================

// ImageGenRequest is the payload for POST /api/generate-image. Field
// defaults mirror the bridge's own.
type ImageGenRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Steps          int     `json:"steps,omitempty"`
	CfgScale       float64 `json:"cfg_scale,omitempty"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`
	Seed           int     `json:"seed,omitempty"`
	Subfolder      string  `json:"subfolder,omitempty"`
	BaseDir        string  `json:"base_dir,omitempty"`
}

// ApplyDefaults fills unset generation parameters with the bridge's
// documented defaults.
func (r *ImageGenRequest) ApplyDefaults() {
	if r.NegativePrompt == "" {
		r.NegativePrompt = "ugly, blurry, low quality"
	}
	if r.Steps == 0 {
		r.Steps = 20
	}
	if r.CfgScale == 0 {
		r.CfgScale = 7.5
	}
	if r.Width == 0 {
		r.Width = 512
	}
	if r.Height == 0 {
		r.Height = 512
	}
	if r.Seed == 0 {
		r.Seed = -1
	}
}

// ImageGenResponse carries the generated image as a data URI, plus the disk
// path when the bridge also saved it.
type ImageGenResponse struct {
	Status  string `json:"status"`
	Image   string `json:"image"`
	SavedTo string `json:"saved_to,omitempty"`
}

// =============================================================================
// FILE SAVE
// =============================================================================

// SaveFileRequest is the payload for POST /save-file.
type SaveFileRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// SaveFileResponse confirms a file save.
type SaveFileResponse struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
}

// =============================================================================
// ERROR BODY
// =============================================================================

// errorBody is the shape of bridge error responses: FastAPI-style
// {"detail": ...}, optionally with a message wrapper.
type errorBody struct {
	Message string          `json:"message,omitempty"`
	Detail  json.RawMessage `json:"detail,omitempty"`
	Error   string          `json:"error,omitempty"`
}
