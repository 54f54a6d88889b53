// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides the interactive REPL for talking to the Nexus bridge.
//
// The REPL is a thin display layer: every turn goes through the dispatcher,
// which owns the transcript, and the REPL prints whatever new messages the
// turn produced. Slash commands cover session management, model selection
// and mode toggles.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/peterh/liner"
	"go.uber.org/zap"

	"github.com/jeranaias/nexus-tui/internal/bridge"
	"github.com/jeranaias/nexus-tui/internal/config"
	"github.com/jeranaias/nexus-tui/internal/dispatch"
	"github.com/jeranaias/nexus-tui/internal/loader"
	"github.com/jeranaias/nexus-tui/internal/model"
	"github.com/jeranaias/nexus-tui/internal/monitor"
	"github.com/jeranaias/nexus-tui/internal/session"
	"github.com/jeranaias/nexus-tui/internal/util"
)

// =============================================================================
// REPL
// =============================================================================

// REPL drives the interactive loop.
type REPL struct {
	client     *bridge.Client
	transcript *model.Transcript
	store      *session.Store
	models     *model.ModelState
	monitor    *monitor.Monitor
	loader     *loader.Loader
	dispatcher *dispatch.Dispatcher
	logger     *zap.Logger

	mu  sync.Mutex
	cfg *config.Config

	input *Input

	// printed tracks the last transcript message already shown, so a turn's
	// output is printed exactly once.
	printed int64
}

// Deps bundles the wired components the REPL drives.
type Deps struct {
	Client     *bridge.Client
	Transcript *model.Transcript
	Store      *session.Store
	Models     *model.ModelState
	Monitor    *monitor.Monitor
	Loader     *loader.Loader
	Config     *config.Config
	Logger     *zap.Logger
}

// New creates a REPL. The dispatcher is attached afterwards with
// SetDispatcher, since it reads live configuration through the REPL.
func New(d Deps) *REPL {
	return &REPL{
		client:     d.Client,
		transcript: d.Transcript,
		store:      d.Store,
		models:     d.Models,
		monitor:    d.Monitor,
		loader:     d.Loader,
		cfg:        d.Config,
		logger:     d.Logger,
	}
}

// SetDispatcher attaches the turn dispatcher. Must be called before Run.
func (r *REPL) SetDispatcher(d *dispatch.Dispatcher) {
	r.dispatcher = d
}

// Config returns the current configuration. Safe to call from the config
// watcher goroutine.
func (r *REPL) Config() *config.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// SetConfig swaps in a reloaded configuration. It takes effect on the next
// turn.
func (r *REPL) SetConfig(cfg *config.Config) {
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
	fmt.Println(infoStyle.Render("[config reloaded]"))
}

// Run is the main loop. It returns when the user quits or input reaches EOF.
func (r *REPL) Run(ctx context.Context) error {
	r.input = NewInput()
	defer r.input.Close()

	r.dispatcher.OnBusy(func(on bool) {
		if on {
			fmt.Println(infoStyle.Render("[searching the web...]"))
		}
	})

	r.printWelcome()

	for {
		input, err := r.input.Read(r.prompt())
		if err != nil {
			if err == liner.ErrPromptAborted {
				fmt.Println()
				continue
			}
			// EOF (Ctrl+D) or terminal failure: leave quietly.
			fmt.Println()
			fmt.Println(infoStyle.Render("Goodbye!"))
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			keepGoing, err := r.handleCommand(ctx, input)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
			}
			if !keepGoing {
				fmt.Println(infoStyle.Render("Goodbye!"))
				return nil
			}
			continue
		}

		r.runTurn(ctx, input)
	}
}

// prompt renders the input prompt with mode and connectivity markers.
func (r *REPL) prompt() string {
	marker := "nexus"
	if r.dispatcher.ImageMode() {
		marker = "nexus/img"
	}
	if !r.monitor.IsConnected() {
		return disconnectedStyle.Render(marker+"!") + promptStyle.Render("> ")
	}
	return promptStyle.Render(marker + "> ")
}

// runTurn dispatches one turn and prints whatever it added to the transcript.
func (r *REPL) runTurn(ctx context.Context, input string) {
	start := time.Now()
	err := r.dispatcher.Dispatch(ctx, input)
	switch err {
	case nil:
	case dispatch.ErrBusy:
		fmt.Println(warningStyle.Render("[A request is already running, wait for it to finish]"))
		return
	case dispatch.ErrDisconnected:
		fmt.Printf("%s The bridge at %s is not answering. Start it, then check %s.\n",
			errorStyle.Render("[Offline]"), r.client.BaseURL(), commandStyle.Render("/status"))
		return
	default:
		fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
		return
	}

	r.printNewMessages()
	fmt.Println(infoStyle.Render(fmt.Sprintf("[%s]", time.Since(start).Round(100*time.Millisecond))))
}

// printNewMessages shows transcript entries added since the last print,
// skipping the user's own echo.
func (r *REPL) printNewMessages() {
	for _, m := range r.transcript.Snapshot() {
		if m.ID <= r.printed {
			continue
		}
		r.printed = m.ID
		if m.Role == model.RoleUser {
			continue
		}
		fmt.Println()
		fmt.Println(headerStyle.Render(m.Role.DisplayName() + ":"))
		fmt.Println(assistantStyle.Render(m.Content))
		fmt.Println()
	}
}

// markAllPrinted resets the print cursor after a session switch, so old
// history is not replayed as if it were new output.
func (r *REPL) markAllPrinted() {
	for _, m := range r.transcript.Snapshot() {
		if m.ID > r.printed {
			r.printed = m.ID
		}
	}
}

// =============================================================================
// WELCOME
// =============================================================================

func (r *REPL) printWelcome() {
	cfg := r.Config()

	fmt.Println()
	fmt.Println(welcomeStyle.Render("nexus interactive chat"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 30)))

	fmt.Printf("%s %s\n", infoStyle.Render("Bridge:"), commandStyle.Render(r.client.BaseURL()))
	if r.models.Mode() == model.ModeProxy {
		fmt.Printf("%s %s\n", infoStyle.Render("Mode:"),
			commandStyle.Render("Proxy via "+util.TruncateRunes(r.models.ProviderURL(), 48)))
	} else {
		fmt.Printf("%s %s\n", infoStyle.Render("Mode:"), commandStyle.Render("Local inference"))
	}
	fmt.Printf("%s %s\n", infoStyle.Render("Model:"), commandStyle.Render(r.models.ChatModel()))
	if cfg.Search.Enabled {
		kind := "shallow"
		if cfg.Search.DeepDive {
			kind = "deep"
		}
		fmt.Printf("%s %s\n", infoStyle.Render("Web:"), warningStyle.Render(kind+" augmentation on"))
	}

	fmt.Println()
	fmt.Println(infoStyle.Render("Type your message and press Enter. Commands: /help, /quit"))
	fmt.Println()
}
