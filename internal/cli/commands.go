// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/nexus-tui/internal/util"
)

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleCommand processes one slash command. It returns (keepGoing, error);
// keepGoing=false means exit the REPL.
func (r *REPL) handleCommand(ctx context.Context, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "/help", "/h", "/?":
		r.printHelp()
		return true, nil

	case "/quit", "/q", "/exit":
		return false, nil

	case "/new", "/n":
		sess := r.store.Create(ctx)
		r.markAllPrinted()
		fmt.Printf("%s Started session %s\n", commandStyle.Render("[OK]"), sess.ID)
		return true, nil

	case "/sessions":
		r.printSessions(ctx)
		return true, nil

	case "/session":
		if len(args) == 0 {
			return true, fmt.Errorf("usage: /session <id>")
		}
		if !r.store.Activate(args[0]) {
			return true, fmt.Errorf("no session with id %s (see /sessions)", args[0])
		}
		r.markAllPrinted()
		fmt.Printf("%s Switched to %s\n", commandStyle.Render("[OK]"),
			r.store.Active().Title)
		return true, nil

	case "/models":
		return true, r.printModelList(ctx, "Chat models", r.client.ListModels)

	case "/image-models":
		return true, r.printModelList(ctx, "Image models", r.client.ListImageModels)

	case "/subfolders":
		return true, r.printModelList(ctx, "Image subfolders", r.client.ListImageSubfolders)

	case "/load":
		return true, r.loadChatModel(ctx, args)

	case "/load-image":
		return true, r.loadImageModel(ctx, args)

	case "/image", "/i":
		on := !r.dispatcher.ImageMode()
		r.dispatcher.SetImageMode(on)
		if on {
			fmt.Println(warningStyle.Render("[Image mode on: prompts now generate images]"))
		} else {
			fmt.Println(commandStyle.Render("[Image mode off]"))
		}
		return true, nil

	case "/web", "/w":
		r.toggleSearch(false)
		return true, nil

	case "/deep", "/d":
		r.toggleSearch(true)
		return true, nil

	case "/system":
		r.mu.Lock()
		r.cfg.Chat.SystemPrompt = strings.TrimSpace(strings.TrimPrefix(cmd, "/system"))
		override := r.cfg.Chat.SystemPrompt
		r.mu.Unlock()
		if override == "" {
			fmt.Println(commandStyle.Render("[System prompt reset to default]"))
		} else {
			fmt.Printf("%s System prompt set (%d chars)\n", commandStyle.Render("[OK]"), len(override))
		}
		return true, nil

	case "/script":
		r.toggleScript(args)
		return true, nil

	case "/status", "/s":
		r.printStatus(ctx)
		return true, nil

	case "/":
		r.printHelp()
		return true, nil

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
}

// =============================================================================
// MODEL COMMANDS
// =============================================================================

func (r *REPL) printModelList(ctx context.Context, title string, list func(context.Context) ([]string, error)) error {
	items, err := list(ctx)
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Println(headerStyle.Render(title))
	if len(items) == 0 {
		fmt.Println(infoStyle.Render("  (none found)"))
	}
	for _, item := range items {
		fmt.Printf("  %s\n", item)
	}
	fmt.Println()
	return nil
}

func (r *REPL) loadChatModel(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: /load <model-file>")
	}
	fmt.Println(infoStyle.Render("[loading model, this can take a while...]"))
	resp, err := r.loader.EnsureChatModel(ctx, args[0], "")
	if err != nil {
		return err
	}
	fmt.Printf("%s Loaded %s\n", commandStyle.Render("[OK]"), resp.Model)
	if resp.Warning != "" {
		fmt.Printf("%s %s\n", warningStyle.Render("[Warning]"), resp.Warning)
	}
	return nil
}

func (r *REPL) loadImageModel(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: /load-image <model-file>")
	}
	fmt.Println(infoStyle.Render("[loading image model, this can take a while...]"))
	resp, err := r.loader.EnsureImageModel(ctx, args[0], r.Config().Image.BaseDir)
	if err != nil {
		return err
	}
	fmt.Printf("%s Loaded %s\n", commandStyle.Render("[OK]"), resp.Model)
	return nil
}

// =============================================================================
// MODE TOGGLES
// =============================================================================

// toggleSearch cycles web augmentation. /web toggles shallow mode; /deep
// toggles deep-dive scraping (and enables augmentation if it was off).
func (r *REPL) toggleSearch(deep bool) {
	r.mu.Lock()
	if deep {
		r.cfg.Search.DeepDive = !r.cfg.Search.DeepDive
		r.cfg.Search.Enabled = r.cfg.Search.DeepDive || r.cfg.Search.Enabled
	} else {
		r.cfg.Search.Enabled = !r.cfg.Search.Enabled
		if !r.cfg.Search.Enabled {
			r.cfg.Search.DeepDive = false
		}
	}
	enabled, deepOn := r.cfg.Search.Enabled, r.cfg.Search.DeepDive
	r.mu.Unlock()

	switch {
	case enabled && deepOn:
		fmt.Println(warningStyle.Render("[Web augmentation: deep dive]"))
	case enabled:
		fmt.Println(commandStyle.Render("[Web augmentation: shallow]"))
	default:
		fmt.Println(commandStyle.Render("[Web augmentation off]"))
	}
}

// toggleScript switches script-generation mode, optionally setting the
// output file: /script [filename].
func (r *REPL) toggleScript(args []string) {
	r.mu.Lock()
	if len(args) > 0 {
		r.cfg.Script.Enabled = true
		r.cfg.Script.OutputFile = args[0]
	} else {
		r.cfg.Script.Enabled = !r.cfg.Script.Enabled
	}
	enabled, lang, out := r.cfg.Script.Enabled, r.cfg.Script.Language, r.cfg.Script.OutputFile
	r.mu.Unlock()

	if enabled {
		msg := fmt.Sprintf("[Script mode on: %s", lang)
		if out != "" {
			msg += ", saving to " + out
		}
		msg += "]"
		fmt.Println(warningStyle.Render(msg))
	} else {
		fmt.Println(commandStyle.Render("[Script mode off]"))
	}
}

// =============================================================================
// STATUS & HELP
// =============================================================================

func (r *REPL) printStatus(ctx context.Context) {
	fmt.Println()
	fmt.Println(headerStyle.Render("Status"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 20)))

	state := r.monitor.ProbeOnce(ctx)
	if state.Connected {
		fmt.Printf("  %s %s", infoStyle.Render("Bridge:"), connectedStyle.Render("connected"))
		if state.LatencyKnown {
			fmt.Printf(" (%s)", state.Latency.Round(time.Millisecond))
		}
		fmt.Println()
	} else {
		fmt.Printf("  %s %s\n", infoStyle.Render("Bridge:"), disconnectedStyle.Render("disconnected"))
	}

	fmt.Printf("  %s %s\n", infoStyle.Render("Mode:"), r.models.Mode())
	fmt.Printf("  %s %s\n", infoStyle.Render("Chat model:"), r.models.ChatModel())
	if r.models.ImageModel() != "" {
		fmt.Printf("  %s %s\n", infoStyle.Render("Image model:"), r.models.ImageModel())
	}

	if active := r.store.Active(); active != nil {
		fmt.Printf("  %s %s (%d messages)\n", infoStyle.Render("Session:"),
			active.Title, len(active.Messages))
	}

	cfg := r.Config()
	if cfg.Search.Enabled {
		kind := "shallow"
		if cfg.Search.DeepDive {
			kind = "deep"
		}
		fmt.Printf("  %s %s\n", infoStyle.Render("Web:"), kind)
	}
	if cfg.Script.Enabled {
		fmt.Printf("  %s %s -> %s\n", infoStyle.Render("Script:"),
			cfg.Script.Language, cfg.Script.OutputFile)
	}
	fmt.Println()
}

func (r *REPL) printSessions(ctx context.Context) {
	r.store.Sync(ctx)
	sessions := r.store.Sessions()
	if len(sessions) == 0 {
		fmt.Println(infoStyle.Render("[No sessions yet, /new starts one]"))
		return
	}

	fmt.Println()
	fmt.Println(headerStyle.Render("Sessions"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 20)))
	active := r.store.Active()
	for _, s := range sessions {
		marker := "  "
		if active != nil && s.ID == active.ID {
			marker = commandStyle.Render("* ")
		}
		fmt.Printf("%s%s  %s (%d messages)\n", marker, s.ID,
			util.TruncateRunes(s.Title, 40), len(s.Messages))
	}
	fmt.Println()
}

func (r *REPL) printHelp() {
	fmt.Println()
	fmt.Println(headerStyle.Render("Available Commands"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 20)))
	fmt.Println()

	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help, /h", "Show this help"},
		{"/new, /n", "Start a fresh session"},
		{"/sessions", "List sessions"},
		{"/session <id>", "Switch to a session"},
		{"/models", "List chat model files"},
		{"/image-models", "List image model files"},
		{"/subfolders", "List image output subfolders"},
		{"/load <file>", "Load a chat model"},
		{"/load-image <file>", "Load an image model"},
		{"/image, /i", "Toggle image-generation mode"},
		{"/web, /w", "Toggle shallow web augmentation"},
		{"/deep, /d", "Toggle deep-dive augmentation"},
		{"/system [text]", "Set or reset the system prompt"},
		{"/script [file]", "Toggle script mode, optionally saving output"},
		{"/status, /s", "Show bridge and session status"},
		{"/quit, /q", "Exit"},
	}

	for _, c := range commands {
		fmt.Printf("  %s  %s\n",
			commandStyle.Render(fmt.Sprintf("%-20s", c.cmd)),
			infoStyle.Render(c.desc))
	}

	fmt.Println()
	fmt.Println(infoStyle.Render("Tip: Ctrl+D exits, /image flips between chat and image generation"))
	fmt.Println()
}
