// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dispatch orchestrates one user turn end to end.
//
// The dispatcher is a two-state machine, Idle and Thinking. A turn moves
// Idle -> Thinking -> Idle; anything arriving while Thinking is rejected
// outright, there is no queue. Within a turn the steps run in a strict
// sequence: the user message lands in the transcript before the assistant
// placeholder, and the placeholder is replaced exactly once, whatever the
// outcome. The transcript and active session are touched only from here
// and from the session store, never concurrently.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jeranaias/nexus-tui/internal/augment"
	"github.com/jeranaias/nexus-tui/internal/bridge"
	"github.com/jeranaias/nexus-tui/internal/config"
	"github.com/jeranaias/nexus-tui/internal/loader"
	"github.com/jeranaias/nexus-tui/internal/model"
	"github.com/jeranaias/nexus-tui/internal/session"
	"github.com/jeranaias/nexus-tui/internal/util"
)

// =============================================================================
// STATES & ERRORS
// =============================================================================

// State is the dispatcher's turn-level state.
type State int

const (
	StateIdle State = iota
	StateThinking
)

// Rejection sentinels. These never reach the transcript; the caller decides
// how to show them.
var (
	ErrEmptyInput   = errors.New("empty input")
	ErrBusy         = errors.New("a request is already in flight")
	ErrDisconnected = errors.New("bridge is not connected; start it and check /status")
)

// defaultSystemPrompt is the persona line used when the user sets none.
const defaultSystemPrompt = "You are a helpful assistant."

// =============================================================================
// DISPATCHER
// =============================================================================

// Dispatcher composes the transcript, augmentation pipeline and model
// loader into one outbound request per user turn.
type Dispatcher struct {
	client     *bridge.Client
	transcript *model.Transcript
	store      *session.Store
	models     *model.ModelState
	loader     *loader.Loader
	pipeline   *augment.Pipeline
	connected  func() bool
	cfg        func() *config.Config
	logger     *zap.Logger

	// onBusy toggles the display's progress indicator around the
	// augmentation step.
	onBusy func(bool)

	mu        sync.Mutex
	thinking  bool
	imageMode bool
}

// New creates a dispatcher. cfg is called at the start of every turn so
// live config reloads take effect on the next turn, never mid-turn.
func New(
	client *bridge.Client,
	transcript *model.Transcript,
	store *session.Store,
	models *model.ModelState,
	ldr *loader.Loader,
	pipeline *augment.Pipeline,
	connected func() bool,
	cfg func() *config.Config,
	logger *zap.Logger,
) *Dispatcher {
	if connected == nil {
		connected = func() bool { return true }
	}
	return &Dispatcher{
		client:     client,
		transcript: transcript,
		store:      store,
		models:     models,
		loader:     ldr,
		pipeline:   pipeline,
		connected:  connected,
		cfg:        cfg,
		logger:     logger,
	}
}

// OnBusy registers the progress indicator hook. A nil hook disables it.
func (d *Dispatcher) OnBusy(fn func(bool)) {
	d.onBusy = fn
}

// State returns Idle or Thinking.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.thinking {
		return StateThinking
	}
	return StateIdle
}

// SetImageMode routes subsequent turns to image generation instead of chat.
func (d *Dispatcher) SetImageMode(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.imageMode = on
}

// ImageMode reports whether turns currently generate images.
func (d *Dispatcher) ImageMode() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.imageMode
}

// =============================================================================
// TURN ENTRY POINT
// =============================================================================

// Dispatch runs one user turn. It returns a rejection sentinel without
// touching the transcript when the input is empty, a turn is already in
// flight, or the bridge is down. Once accepted, the turn always completes:
// failures land in the transcript as formatted messages, not as returned
// errors.
func (d *Dispatcher) Dispatch(ctx context.Context, input string) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return ErrEmptyInput
	}

	d.mu.Lock()
	if d.thinking {
		d.mu.Unlock()
		return ErrBusy
	}
	if !d.connected() {
		d.mu.Unlock()
		return ErrDisconnected
	}
	d.thinking = true
	imageMode := d.imageMode
	d.mu.Unlock()

	turnID := uuid.NewString()
	cfg := d.cfg()
	d.logger.Debug("turn accepted",
		zap.String("turn", turnID),
		zap.Bool("image_mode", imageMode),
		zap.String("prompt", util.TruncateRunesNoEllipsis(util.SingleLine(input), 80)))

	defer func() {
		d.mu.Lock()
		d.thinking = false
		d.mu.Unlock()
		d.store.RecordTurn(ctx)
	}()

	if d.store.Active() == nil {
		d.store.Create(ctx)
	}

	if imageMode {
		d.imageTurn(ctx, turnID, cfg, input)
	} else {
		d.chatTurn(ctx, turnID, cfg, input)
	}
	return nil
}

// =============================================================================
// IMAGE BRANCH
// =============================================================================

func (d *Dispatcher) imageTurn(ctx context.Context, turnID string, cfg *config.Config, prompt string) {
	// No user message for image turns; the result carries a prompt echo
	// instead.
	placeholder := d.transcript.Append(model.RoleAssistant, "Generating image...", true)

	req := &bridge.ImageGenRequest{
		Prompt:         prompt,
		NegativePrompt: cfg.Image.NegativePrompt,
		Steps:          cfg.Image.Steps,
		CfgScale:       cfg.Image.CfgScale,
		Width:          cfg.Image.Width,
		Height:         cfg.Image.Height,
		Seed:           cfg.Image.Seed,
		Subfolder:      cfg.Image.Subfolder,
		BaseDir:        cfg.Image.BaseDir,
	}

	resp, err := d.loader.GenerateImage(ctx, req, cfg.Image.BaseDir)
	switch {
	case err == nil:
		var b strings.Builder
		fmt.Fprintf(&b, "![generated image](%s)\n\nPrompt: %s", resp.Image, prompt)
		if resp.SavedTo != "" {
			fmt.Fprintf(&b, "\nSaved to: %s", resp.SavedTo)
		}
		d.transcript.Update(placeholder, b.String())
		d.logger.Info("image turn complete",
			zap.String("turn", turnID), zap.String("saved_to", resp.SavedTo))
	case bridge.IsValidation(err):
		d.transcript.Update(placeholder, fmt.Sprintf(
			"**Image generation rejected by the bridge:**\n%s", bridge.DetailString(err)))
		d.logger.Warn("image turn rejected", zap.String("turn", turnID), zap.Error(err))
	case bridge.IsConnection(err) || bridge.IsTimeout(err):
		d.transcript.Update(placeholder, connectionErrorMessage(d.client.BaseURL()))
		d.logger.Warn("image turn lost the bridge", zap.String("turn", turnID), zap.Error(err))
	default:
		d.transcript.Update(placeholder, fmt.Sprintf(
			"**Image generation failed:**\n%s", bridge.DetailString(err)))
		d.logger.Error("image turn failed", zap.String("turn", turnID), zap.Error(err))
	}
}

// =============================================================================
// CHAT BRANCH
// =============================================================================

func (d *Dispatcher) chatTurn(ctx context.Context, turnID string, cfg *config.Config, input string) {
	userID := d.transcript.Append(model.RoleUser, input, false)

	// Augmentation runs against the raw input; the result replaces the
	// outbound content of this one message only. The transcript keeps the
	// original so history re-sent on later turns stays clean.
	outbound := input
	if cfg.Search.Enabled {
		d.setBusy(true)
		outbound = d.pipeline.Augment(ctx, input, cfg.Search)
		d.setBusy(false)
	}

	messages := d.buildMessages(cfg, userID, outbound)
	placeholder := d.transcript.Append(model.RoleAssistant, "Thinking...", true)

	req := &bridge.ChatRequest{
		Messages:    messages,
		Model:       d.models.ChatModel(),
		Mode:        string(d.models.Mode()),
		Temperature: cfg.Chat.Temperature,
		MaxTokens:   cfg.Chat.MaxTokens,
	}
	if d.models.Mode() == model.ModeProxy {
		req.ProviderURL = d.models.ProviderURL()
	}

	resp, err := d.client.Chat(ctx, req)
	switch {
	case err == nil:
		content := resp.Content()
		d.transcript.Update(placeholder, content)
		d.saveScript(ctx, cfg, content)
		d.logger.Info("chat turn complete",
			zap.String("turn", turnID), zap.Int("messages", len(messages)))
	case bridge.IsValidation(err):
		d.transcript.Update(placeholder, fmt.Sprintf(
			"**Request rejected by the bridge:**\n%s", bridge.DetailString(err)))
		d.logger.Warn("chat turn rejected", zap.String("turn", turnID), zap.Error(err))
	case bridge.IsConnection(err) || bridge.IsTimeout(err):
		d.transcript.Update(placeholder, connectionErrorMessage(d.client.BaseURL()))
		d.logger.Warn("chat turn lost the bridge", zap.String("turn", turnID), zap.Error(err))
	default:
		d.transcript.Update(placeholder, fmt.Sprintf(
			"**Request failed:**\n%s", bridge.DetailString(err)))
		d.logger.Error("chat turn failed", zap.String("turn", turnID), zap.Error(err))
	}
}

// buildMessages assembles the outbound list: system message first, then the
// transcript snapshot minus transient placeholders, with the augmented
// content substituted for the just-asked question only.
func (d *Dispatcher) buildMessages(cfg *config.Config, userID int64, outbound string) []bridge.ChatMessage {
	snapshot := d.transcript.Snapshot()
	messages := make([]bridge.ChatMessage, 0, len(snapshot)+1)
	messages = append(messages, bridge.ChatMessage{
		Role:    string(model.RoleSystem),
		Content: systemPrompt(cfg),
	})
	for _, m := range snapshot {
		if m.Transient {
			continue
		}
		content := m.Content
		if m.ID == userID {
			content = outbound
		}
		messages = append(messages, bridge.ChatMessage{Role: string(m.Role), Content: content})
	}
	return messages
}

// systemPrompt picks the system message: the script-mode instruction plus
// any user override, the override alone, or the default persona.
func systemPrompt(cfg *config.Config) string {
	if cfg.Script.Enabled {
		instruction := fmt.Sprintf(
			"You are an expert %s programmer. Respond with a single complete %s script in a fenced code block.",
			cfg.Script.Language, cfg.Script.Language)
		if cfg.Chat.SystemPrompt != "" {
			return instruction + "\n\n" + cfg.Chat.SystemPrompt
		}
		return instruction
	}
	if cfg.Chat.SystemPrompt != "" {
		return cfg.Chat.SystemPrompt
	}
	return defaultSystemPrompt
}

// saveScript extracts the answer's first code block and pushes it through
// the bridge's file-save endpoint. Best-effort: failures are logged, never
// surfaced to the transcript.
func (d *Dispatcher) saveScript(ctx context.Context, cfg *config.Config, content string) {
	if !cfg.Script.Enabled || cfg.Script.OutputFile == "" {
		return
	}
	code := util.FirstCodeBlock(content)
	if err := d.client.SaveFile(ctx, cfg.Script.OutputFile, code); err != nil {
		d.logger.Warn("script save failed",
			zap.String("file", cfg.Script.OutputFile), zap.Error(err))
	}
}

func (d *Dispatcher) setBusy(on bool) {
	if d.onBusy != nil {
		d.onBusy(on)
	}
}

func connectionErrorMessage(baseURL string) string {
	return fmt.Sprintf(
		"**Connection lost.** The bridge at %s did not answer. Check that it is running and try again.",
		baseURL)
}
