// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jeranaias/nexus-tui/internal/model"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the bridge client.
type ClientConfig struct {
	// BaseURL is the bridge base URL (default: http://127.0.0.1:5484)
	// Note: Uses explicit IPv4 address instead of localhost to avoid IPv6
	// resolution issues on Windows
	BaseURL string

	// Timeout for short requests: status, sessions, search, load, save
	// (default: 30s)
	Timeout time.Duration

	// GenerateTimeout for chat and image generation, which can run for
	// minutes on CPU-bound models (default: 5m)
	GenerateTimeout time.Duration

	// ProbeTimeout for the liveness probe (default: 3s)
	ProbeTimeout time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:         "http://127.0.0.1:5484",
		Timeout:         30 * time.Second,
		GenerateTimeout: 5 * time.Minute,
		ProbeTimeout:    3 * time.Second,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the Nexus bridge. It is safe for
// concurrent use.
//
// Example:
//
//	client := bridge.NewClient()
//	status, err := client.Status(ctx)
//	if err != nil {
//	    log.Fatal("bridge not available:", err)
//	}
type Client struct {
	config *ClientConfig

	// Separate HTTP clients so a minutes-long generation never shares a
	// timeout with the 3-second liveness probe.
	http    *http.Client
	genHTTP *http.Client
	probe   *http.Client
}

// NewClient creates a new bridge client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new bridge client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	// Fill in defaults for any zero values
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:5484"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.GenerateTimeout == 0 {
		config.GenerateTimeout = 5 * time.Minute
	}
	if config.ProbeTimeout == 0 {
		config.ProbeTimeout = 3 * time.Second
	}

	return &Client{
		config:  config,
		http:    &http.Client{Timeout: config.Timeout},
		genHTTP: &http.Client{Timeout: config.GenerateTimeout},
		probe:   &http.Client{Timeout: config.ProbeTimeout},
	}
}

// BaseURL returns the configured bridge base URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// =============================================================================
// STATUS
// =============================================================================

// Status probes GET /api/status. It uses the short probe timeout so a dead
// bridge is detected quickly.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.do(ctx, c.probe, http.MethodGet, "/api/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// CHAT
// =============================================================================

// Chat sends a non-streaming chat completion request.
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	var out ChatResponse
	if err := c.do(ctx, c.genHTTP, http.MethodPost, "/api/chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// MODEL MANAGEMENT
// =============================================================================

// LoadModel asks the bridge to load a chat model.
func (c *Client) LoadModel(ctx context.Context, req *LoadRequest) (*LoadResponse, error) {
	var out LoadResponse
	if err := c.do(ctx, c.genHTTP, http.MethodPost, "/api/load", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoadImageModel asks the bridge to load an image model.
func (c *Client) LoadImageModel(ctx context.Context, req *LoadRequest) (*LoadResponse, error) {
	var out LoadResponse
	if err := c.do(ctx, c.genHTTP, http.MethodPost, "/api/load-image-model", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListModels returns the chat model files the bridge can see.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	var out ModelsResponse
	if err := c.do(ctx, c.http, http.MethodGet, "/api/models", nil, &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// ListImageModels returns the image model files the bridge can see.
func (c *Client) ListImageModels(ctx context.Context) ([]string, error) {
	var out ModelsResponse
	if err := c.do(ctx, c.http, http.MethodGet, "/api/image-models", nil, &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// ListImageSubfolders returns the output subfolders of the image directory.
func (c *Client) ListImageSubfolders(ctx context.Context) ([]string, error) {
	var out SubfoldersResponse
	if err := c.do(ctx, c.http, http.MethodGet, "/api/image-subfolders", nil, &out); err != nil {
		return nil, err
	}
	return out.Subfolders, nil
}

// =============================================================================
// IMAGE GENERATION
// =============================================================================

// GenerateImage requests an image from the currently loaded image model.
// A 400 answer means no image model is loaded; callers recover via an
// explicit LoadImageModel followed by one retry.
func (c *Client) GenerateImage(ctx context.Context, req *ImageGenRequest) (*ImageGenResponse, error) {
	req.ApplyDefaults()
	var out ImageGenResponse
	if err := c.do(ctx, c.genHTTP, http.MethodPost, "/api/generate-image", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// SEARCH & SCRAPE
// =============================================================================

// Search runs a web search through the bridge.
func (c *Client) Search(ctx context.Context, q string, maxResults int) ([]SearchResult, error) {
	req := SearchRequest{Q: q, MaxResults: maxResults}
	var out SearchResponse
	if err := c.do(ctx, c.http, http.MethodPost, "/search", &req, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Scrape retrieves the extracted text content of a page through the bridge.
func (c *Client) Scrape(ctx context.Context, pageURL string, useBrowser bool) (string, error) {
	path := "/scrape?url=" + url.QueryEscape(pageURL) + "&use_browser=" + strconv.FormatBool(useBrowser)
	var out ScrapeResponse
	if err := c.do(ctx, c.http, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

// =============================================================================
// SESSIONS
// =============================================================================

// Sessions fetches the full session registry from the bridge.
func (c *Client) Sessions(ctx context.Context) ([]*model.Session, error) {
	var out []*model.Session
	if err := c.do(ctx, c.http, http.MethodGet, "/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveSessions pushes the full session registry to the bridge.
// Last-writer-wins: the bridge replaces its stored registry wholesale.
func (c *Client) SaveSessions(ctx context.Context, sessions []*model.Session) error {
	return c.do(ctx, c.http, http.MethodPost, "/sessions", sessions, nil)
}

// =============================================================================
// FILE SAVE
// =============================================================================

// SaveFile writes a file into the bridge's output directory.
func (c *Client) SaveFile(ctx context.Context, filename, content string) error {
	req := SaveFileRequest{Filename: filename, Content: content}
	return c.do(ctx, c.http, http.MethodPost, "/save-file", &req, nil)
}

// =============================================================================
// TRANSPORT
// =============================================================================

// do issues one request and decodes the answer into out (skipped when out
// is nil). Transport failures map to connection/timeout errors; non-2xx
// statuses decode the bridge's error body, preserving the structured detail
// on validation failures.
func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return ErrTimeout
		}
		return ErrBridgeDown
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return nil
}

// decodeError turns a non-2xx answer into a typed ClientError.
func decodeError(resp *http.Response) *ClientError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var eb errorBody
	_ = json.Unmarshal(raw, &eb)

	msg := eb.Message
	if msg == "" {
		msg = eb.Error
	}
	if msg == "" {
		msg = "bridge returned " + resp.Status
	}

	typ := ErrTypeServer
	if resp.StatusCode == http.StatusBadRequest {
		typ = ErrTypeValidation
	}

	return &ClientError{
		Type:    typ,
		Status:  resp.StatusCode,
		Message: msg,
		Detail:  eb.Detail,
	}
}
