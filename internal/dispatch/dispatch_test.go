// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jeranaias/nexus-tui/internal/augment"
	"github.com/jeranaias/nexus-tui/internal/bridge"
	"github.com/jeranaias/nexus-tui/internal/config"
	"github.com/jeranaias/nexus-tui/internal/loader"
	"github.com/jeranaias/nexus-tui/internal/model"
	"github.com/jeranaias/nexus-tui/internal/session"
)

// fakeBridge scripts the bridge endpoints a turn touches and records what
// the dispatcher actually sent.
type fakeBridge struct {
	mu sync.Mutex

	chatReqs      []bridge.ChatRequest
	chatAnswer    bridge.ChatResponse
	chatStatus    int // 0 means 200
	chatDetail    string
	searchResults []bridge.SearchResult
	generateCalls int
	generateFail1 bool
	loadImage     int
	savedFiles    map[string]string
	block         chan struct{} // when set, /api/chat parks until closed
}

func (f *fakeBridge) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat":
			if f.block != nil {
				<-f.block
			}
			var req bridge.ChatRequest
			json.NewDecoder(r.Body).Decode(&req)
			f.mu.Lock()
			f.chatReqs = append(f.chatReqs, req)
			f.mu.Unlock()
			if f.chatStatus != 0 {
				w.WriteHeader(f.chatStatus)
				json.NewEncoder(w).Encode(map[string]string{"detail": f.chatDetail})
				return
			}
			json.NewEncoder(w).Encode(f.chatAnswer)
		case "/search":
			json.NewEncoder(w).Encode(bridge.SearchResponse{Results: f.searchResults})
		case "/api/generate-image":
			f.mu.Lock()
			f.generateCalls++
			call := f.generateCalls
			f.mu.Unlock()
			if f.generateFail1 && call == 1 {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"detail": "No image model loaded"})
				return
			}
			json.NewEncoder(w).Encode(bridge.ImageGenResponse{
				Status: "ok", Image: "data:image/png;base64,abc", SavedTo: "/out/img.png",
			})
		case "/api/load-image-model":
			f.mu.Lock()
			f.loadImage++
			f.mu.Unlock()
			json.NewEncoder(w).Encode(bridge.LoadResponse{Status: "ok"})
		case "/save-file":
			var req bridge.SaveFileRequest
			json.NewDecoder(r.Body).Decode(&req)
			f.mu.Lock()
			if f.savedFiles == nil {
				f.savedFiles = map[string]string{}
			}
			f.savedFiles[req.Filename] = req.Content
			f.mu.Unlock()
			json.NewEncoder(w).Encode(bridge.SaveFileResponse{Status: "ok"})
		case "/sessions":
			if r.Method == http.MethodGet {
				w.Write([]byte("[]"))
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}
}

func (f *fakeBridge) lastChat(t *testing.T) bridge.ChatRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.chatReqs)
	return f.chatReqs[len(f.chatReqs)-1]
}

type fixture struct {
	dispatcher *Dispatcher
	transcript *model.Transcript
	store      *session.Store
	cfg        *config.Config
	fake       *fakeBridge
}

func newFixture(t *testing.T, fake *fakeBridge, mutate func(*config.Config)) *fixture {
	t.Helper()
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)

	client := bridge.NewClientWithConfig(&bridge.ClientConfig{BaseURL: server.URL})
	transcript := model.NewTranscript()
	logger := zap.NewNop()
	connected := func() bool { return true }
	store := session.New(client, transcript, connected, logger)
	models := model.NewModelState(model.ModeProxy, "llama3", "sdxl.safetensors", "http://localhost:11434/api/chat")
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}

	d := New(
		client, transcript, store, models,
		loader.New(client, models, logger),
		augment.New(client, logger),
		connected,
		func() *config.Config { return cfg },
		logger,
	)
	return &fixture{dispatcher: d, transcript: transcript, store: store, cfg: cfg, fake: fake}
}

// =============================================================================
// REJECTIONS
// =============================================================================

func TestDispatch_EmptyInputRejected(t *testing.T) {
	fx := newFixture(t, &fakeBridge{}, nil)

	assert.ErrorIs(t, fx.dispatcher.Dispatch(context.Background(), "   "), ErrEmptyInput)
	assert.Equal(t, 0, fx.transcript.Len(), "rejection must not touch the transcript")
}

func TestDispatch_RejectedWhileThinking(t *testing.T) {
	fake := &fakeBridge{block: make(chan struct{})}
	fx := newFixture(t, fake, nil)

	done := make(chan error, 1)
	go func() { done <- fx.dispatcher.Dispatch(context.Background(), "first") }()

	// Wait for the first turn to park inside /api/chat.
	for fx.dispatcher.State() != StateThinking {
		time.Sleep(time.Millisecond)
	}

	assert.ErrorIs(t, fx.dispatcher.Dispatch(context.Background(), "second"), ErrBusy)

	close(fake.block)
	require.NoError(t, <-done)
	assert.Equal(t, StateIdle, fx.dispatcher.State())
}

func TestDispatch_RejectedWhileDisconnected(t *testing.T) {
	fake := &fakeBridge{}
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)
	client := bridge.NewClientWithConfig(&bridge.ClientConfig{BaseURL: server.URL})
	transcript := model.NewTranscript()
	logger := zap.NewNop()
	disconnected := func() bool { return false }
	store := session.New(client, transcript, disconnected, logger)
	models := model.NewModelState(model.ModeProxy, "llama3", "", "http://localhost:11434/api/chat")
	cfg := config.Default()

	d := New(client, transcript, store, models,
		loader.New(client, models, logger), augment.New(client, logger),
		disconnected, func() *config.Config { return cfg }, logger)

	assert.ErrorIs(t, d.Dispatch(context.Background(), "hello"), ErrDisconnected)
	assert.Equal(t, 0, transcript.Len())
}

// =============================================================================
// CHAT BRANCH
// =============================================================================

func TestDispatch_PlainChatTurn(t *testing.T) {
	fake := &fakeBridge{chatAnswer: bridge.ChatResponse{
		Message: &bridge.ChatMessage{Role: "assistant", Content: "Hi there"},
		Done:    true,
	}}
	fx := newFixture(t, fake, nil)

	require.NoError(t, fx.dispatcher.Dispatch(context.Background(), "Hello"))

	msgs := fx.transcript.Snapshot()
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "Hello", msgs[0].Content)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hi there", msgs[1].Content)
	assert.False(t, msgs[1].Transient, "placeholder must be resolved")
	assert.False(t, fx.transcript.HasTransient())

	// Outbound payload: system message first, then the user message.
	sent := fake.lastChat(t)
	require.Len(t, sent.Messages, 2)
	assert.Equal(t, "system", sent.Messages[0].Role)
	assert.Equal(t, "You are a helpful assistant.", sent.Messages[0].Content)
	assert.Equal(t, "Hello", sent.Messages[1].Content)
	assert.Equal(t, "llama3", sent.Model)
	assert.Equal(t, "proxy", sent.Mode)
	assert.Equal(t, "http://localhost:11434/api/chat", sent.ProviderURL)
	assert.False(t, sent.Stream)

	// Turn completion must have recorded the session.
	require.NotNil(t, fx.store.Active())
	assert.Len(t, fx.store.Active().Messages, 2)
	assert.Equal(t, "Hello", fx.store.Active().Title)
}

func TestDispatch_AugmentedTurnSubstitutesOutboundOnly(t *testing.T) {
	fake := &fakeBridge{
		chatAnswer:    bridge.ChatResponse{Message: &bridge.ChatMessage{Content: "It is sunny."}},
		searchResults: []bridge.SearchResult{{Title: "WX", Body: "Sunny"}},
	}
	fx := newFixture(t, fake, func(c *config.Config) { c.Search.Enabled = true })

	var busyCalls []bool
	fx.dispatcher.OnBusy(func(on bool) { busyCalls = append(busyCalls, on) })

	require.NoError(t, fx.dispatcher.Dispatch(context.Background(), "weather today"))

	sent := fake.lastChat(t)
	require.Len(t, sent.Messages, 2)
	assert.Equal(t, "Context:\nSource: WX\nSnippet: Sunny\n\nTask: weather today",
		sent.Messages[1].Content)

	// The transcript keeps the raw question.
	assert.Equal(t, "weather today", fx.transcript.Snapshot()[0].Content)

	// Progress indicator shown, then hidden.
	assert.Equal(t, []bool{true, false}, busyCalls)
}

func TestDispatch_HistoryUsesStoredContent(t *testing.T) {
	fake := &fakeBridge{
		chatAnswer:    bridge.ChatResponse{Message: &bridge.ChatMessage{Content: "ok"}},
		searchResults: []bridge.SearchResult{{Title: "T", Body: "B"}},
	}
	fx := newFixture(t, fake, func(c *config.Config) { c.Search.Enabled = true })

	require.NoError(t, fx.dispatcher.Dispatch(context.Background(), "first question"))
	require.NoError(t, fx.dispatcher.Dispatch(context.Background(), "second question"))

	sent := fake.lastChat(t)
	require.Len(t, sent.Messages, 4) // system, U1, A1, U2

	// Earlier turns go out verbatim; only the new question carries context.
	assert.Equal(t, "first question", sent.Messages[1].Content)
	assert.True(t, strings.HasPrefix(sent.Messages[3].Content, "Context:\n"))
	assert.True(t, strings.HasSuffix(sent.Messages[3].Content, "Task: second question"))
}

func TestDispatch_ValidationErrorLandsInTranscript(t *testing.T) {
	fake := &fakeBridge{chatStatus: http.StatusBadRequest, chatDetail: "max_tokens must be positive"}
	fx := newFixture(t, fake, nil)

	require.NoError(t, fx.dispatcher.Dispatch(context.Background(), "hello"))

	msgs := fx.transcript.Snapshot()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Content, "rejected by the bridge")
	assert.Contains(t, msgs[1].Content, "max_tokens must be positive")
	assert.False(t, fx.transcript.HasTransient())
	assert.Equal(t, StateIdle, fx.dispatcher.State())
}

func TestDispatch_ConnectionLossMidTurn(t *testing.T) {
	// The gate check passes, then the chat call hits a dead connection.
	srvHit := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sessions" {
			w.Write([]byte("[]"))
			return
		}
		srvHit = true
		// Hijack and drop the connection to simulate a dead bridge.
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		conn.Close()
	}))
	t.Cleanup(server.Close)

	client := bridge.NewClientWithConfig(&bridge.ClientConfig{BaseURL: server.URL})
	transcript := model.NewTranscript()
	logger := zap.NewNop()
	connected := func() bool { return true }
	store := session.New(client, transcript, connected, logger)
	models := model.NewModelState(model.ModeProxy, "llama3", "", "http://localhost:11434/api/chat")
	cfg := config.Default()
	d := New(client, transcript, store, models,
		loader.New(client, models, logger), augment.New(client, logger),
		connected, func() *config.Config { return cfg }, logger)

	require.NoError(t, d.Dispatch(context.Background(), "hello"))
	require.True(t, srvHit)

	msgs := transcript.Snapshot()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Content, "Connection lost")
	assert.False(t, transcript.HasTransient())
}

func TestDispatch_FallbackResponseField(t *testing.T) {
	fake := &fakeBridge{chatAnswer: bridge.ChatResponse{Response: "bare response"}}
	fx := newFixture(t, fake, nil)

	require.NoError(t, fx.dispatcher.Dispatch(context.Background(), "hi"))
	assert.Equal(t, "bare response", fx.transcript.Snapshot()[1].Content)
}

func TestDispatch_NoResponseFallback(t *testing.T) {
	fake := &fakeBridge{chatAnswer: bridge.ChatResponse{}}
	fx := newFixture(t, fake, nil)

	require.NoError(t, fx.dispatcher.Dispatch(context.Background(), "hi"))
	assert.Equal(t, "No response.", fx.transcript.Snapshot()[1].Content)
}

// =============================================================================
// SCRIPT MODE
// =============================================================================

func TestDispatch_ScriptModeSavesFirstCodeBlock(t *testing.T) {
	fake := &fakeBridge{chatAnswer: bridge.ChatResponse{
		Message: &bridge.ChatMessage{Content: "Sure:\n```lua\nprint(1)\n```"},
	}}
	fx := newFixture(t, fake, func(c *config.Config) {
		c.Script.Enabled = true
		c.Script.Language = "lua"
		c.Script.OutputFile = "script.lua"
	})

	require.NoError(t, fx.dispatcher.Dispatch(context.Background(), "print one"))

	sent := fake.lastChat(t)
	assert.Contains(t, sent.Messages[0].Content, "expert lua programmer")

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, "print(1)\n", fake.savedFiles["script.lua"])
}

func TestDispatch_ScriptModeSystemOverrideAppended(t *testing.T) {
	fake := &fakeBridge{chatAnswer: bridge.ChatResponse{
		Message: &bridge.ChatMessage{Content: "```lua\nx\n```"},
	}}
	fx := newFixture(t, fake, func(c *config.Config) {
		c.Script.Enabled = true
		c.Chat.SystemPrompt = "Prefer terse code."
	})

	require.NoError(t, fx.dispatcher.Dispatch(context.Background(), "x"))

	sys := fake.lastChat(t).Messages[0].Content
	assert.Contains(t, sys, "expert lua programmer")
	assert.True(t, strings.HasSuffix(sys, "Prefer terse code."))
}

// =============================================================================
// IMAGE BRANCH
// =============================================================================

func TestDispatch_ImageTurnLazyLoadRetry(t *testing.T) {
	fake := &fakeBridge{generateFail1: true}
	fx := newFixture(t, fake, nil)
	fx.dispatcher.SetImageMode(true)

	require.NoError(t, fx.dispatcher.Dispatch(context.Background(), "a red fox"))

	assert.Equal(t, 2, fake.generateCalls, "exactly one retry after the load")
	assert.Equal(t, 1, fake.loadImage)

	msgs := fx.transcript.Snapshot()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Content, "data:image/png;base64,abc")
	assert.Contains(t, msgs[0].Content, "Prompt: a red fox")
	assert.Contains(t, msgs[0].Content, "Saved to: /out/img.png")
	assert.False(t, msgs[0].Transient)
	assert.Equal(t, StateIdle, fx.dispatcher.State())
}

func TestDispatch_ImageTurnValidationFailure(t *testing.T) {
	// No image model configured: the 400 must surface without a load.
	fake := &fakeBridge{generateFail1: true}
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)
	client := bridge.NewClientWithConfig(&bridge.ClientConfig{BaseURL: server.URL})
	transcript := model.NewTranscript()
	logger := zap.NewNop()
	connected := func() bool { return true }
	store := session.New(client, transcript, connected, logger)
	models := model.NewModelState(model.ModeLocal, "m.gguf", "", "")
	cfg := config.Default()
	d := New(client, transcript, store, models,
		loader.New(client, models, logger), augment.New(client, logger),
		connected, func() *config.Config { return cfg }, logger)
	d.SetImageMode(true)

	require.NoError(t, d.Dispatch(context.Background(), "a red fox"))

	msgs := transcript.Snapshot()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Content, "No image model loaded")
	assert.Equal(t, 0, fake.loadImage)
}
