// nexus - An interactive terminal client for the Nexus local bridge.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/jeranaias/nexus-tui/internal/augment"
	"github.com/jeranaias/nexus-tui/internal/bridge"
	"github.com/jeranaias/nexus-tui/internal/cli"
	"github.com/jeranaias/nexus-tui/internal/config"
	"github.com/jeranaias/nexus-tui/internal/dispatch"
	"github.com/jeranaias/nexus-tui/internal/loader"
	"github.com/jeranaias/nexus-tui/internal/logging"
	"github.com/jeranaias/nexus-tui/internal/model"
	"github.com/jeranaias/nexus-tui/internal/monitor"
	"github.com/jeranaias/nexus-tui/internal/session"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var (
		configPath = flag.String("config", "", "config file path (default: ~/.nexus/config.toml)")
		bridgeURL  = flag.String("bridge", "", "bridge base URL (overrides config)")
		verbose    = flag.Bool("verbose", false, "log to the console instead of the log file")
		version    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Printf("nexus %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	if err := run(*configPath, *bridgeURL, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, bridgeURL string, verbose bool) error {
	if configPath == "" {
		path, err := config.DefaultPath()
		if err != nil {
			return fmt.Errorf("cannot resolve config path: %w", err)
		}
		configPath = path
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if bridgeURL != "" {
		cfg.Bridge.URL = bridgeURL
	}

	logDir, err := config.ConfigDir()
	if err != nil {
		logDir = os.TempDir()
	}
	logger := logging.New(logDir, verbose)
	defer logger.Sync()

	// Wire the core: one client, one transcript, one model-state record.
	client := bridge.NewClientWithConfig(&bridge.ClientConfig{BaseURL: cfg.Bridge.URL})
	transcript := model.NewTranscript()
	models := model.NewModelState(
		model.InferenceMode(cfg.Chat.Mode),
		cfg.Chat.Model,
		cfg.Image.Model,
		cfg.Chat.ProviderURL,
	)

	mon := monitor.New(client, models, cfg.ProbeInterval(), logger)
	store := session.New(client, transcript, mon.IsConnected, logger)
	ldr := loader.New(client, models, logger)
	pipeline := augment.New(client, logger)

	repl := cli.New(cli.Deps{
		Client:     client,
		Transcript: transcript,
		Store:      store,
		Models:     models,
		Monitor:    mon,
		Loader:     ldr,
		Config:     cfg,
		Logger:     logger,
	})

	dispatcher := dispatch.New(
		client, transcript, store, models, ldr, pipeline,
		mon.IsConnected, repl.Config, logger,
	)
	repl.SetDispatcher(dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// First probe before the prompt appears, then the periodic ticker.
	mon.ProbeOnce(ctx)
	mon.Start(ctx)

	// Pull down the session registry so /sessions works from the start.
	store.Sync(ctx)

	// Live config reload: edits to the config file land on the next turn.
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	if err := config.Watch(configPath, stopWatch, repl.SetConfig, func(err error) {
		logger.Warn("config reload failed", zap.Error(err))
	}); err != nil {
		logger.Warn("config watcher unavailable", zap.Error(err))
	}

	return repl.Run(ctx)
}
