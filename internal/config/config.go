// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for the
// Nexus client.
//
// Configuration lives in TOML at ~/.nexus/config.toml with sensible
// defaults and a handful of environment variable overrides. Saving is
// atomic, and Watch provides live reload through fsnotify.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"

	"github.com/jeranaias/nexus-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete client configuration.
type Config struct {
	Bridge BridgeConfig `toml:"bridge"`
	Chat   ChatConfig   `toml:"chat"`
	Image  ImageConfig  `toml:"image"`
	Search SearchConfig `toml:"search"`
	Script ScriptConfig `toml:"script"`
}

// BridgeConfig locates the bridge and tunes the liveness probe.
type BridgeConfig struct {
	// URL is the bridge base URL
	URL string `toml:"url"`
	// ProbeIntervalSecs is how often the connection monitor probes
	ProbeIntervalSecs int `toml:"probe_interval_secs"`
}

// ChatConfig selects the chat model and generation parameters.
type ChatConfig struct {
	// Mode is the inference mode: "proxy" or "local"
	Mode string `toml:"mode"`
	// Model is the chat model id (GGUF filename in local mode)
	Model string `toml:"model"`
	// ProviderURL is the external provider endpoint used in proxy mode
	ProviderURL string `toml:"provider_url"`
	// SystemPrompt overrides the default persona line when set
	SystemPrompt string  `toml:"system_prompt"`
	Temperature  float64 `toml:"temperature"`
	MaxTokens    int     `toml:"max_tokens"`
}

// ImageConfig selects the image model and generation parameters.
type ImageConfig struct {
	// Model is the image model filename the lazy loader falls back to
	Model string `toml:"model"`
	// Subfolder of the bridge's image directory generated images save into
	Subfolder string `toml:"subfolder"`
	// BaseDir overrides the bridge's image directory when set
	BaseDir string `toml:"base_dir"`

	NegativePrompt string  `toml:"negative_prompt"`
	Steps          int     `toml:"steps"`
	CfgScale       float64 `toml:"cfg_scale"`
	Width          int     `toml:"width"`
	Height         int     `toml:"height"`
	Seed           int     `toml:"seed"`
}

// SearchConfig controls the web augmentation pipeline.
type SearchConfig struct {
	// Enabled turns prompt augmentation on for chat turns
	Enabled bool `toml:"enabled"`
	// DeepDive scrapes full pages instead of using result snippets
	DeepDive bool `toml:"deep_dive"`
	// MaxResults caps the search result count per query
	MaxResults int `toml:"max_results"`
	// UseBrowser asks the bridge to scrape with a headless browser
	UseBrowser bool `toml:"use_browser"`
}

// ScriptConfig controls script-generation mode.
type ScriptConfig struct {
	// Enabled switches the system prompt to the code-generation instruction
	Enabled bool `toml:"enabled"`
	// Language names the target output language (e.g. "lua")
	Language string `toml:"language"`
	// OutputFile, when set, saves the first code block of each answer
	// through the bridge
	OutputFile string `toml:"output_file"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Bridge: BridgeConfig{
			URL:               "http://127.0.0.1:5484",
			ProbeIntervalSecs: 5,
		},
		Chat: ChatConfig{
			Mode:        "proxy",
			Model:       "llama3",
			ProviderURL: "http://localhost:11434/api/chat",
			Temperature: 0.7,
			MaxTokens:   2048,
		},
		Image: ImageConfig{
			NegativePrompt: "ugly, blurry, low quality",
			Steps:          20,
			CfgScale:       7.5,
			Width:          512,
			Height:         512,
			Seed:           -1,
		},
		Search: SearchConfig{
			MaxResults: 8,
		},
		Script: ScriptConfig{
			Language: "lua",
		},
	}
}

// ProbeInterval returns the probe interval as a duration.
func (c *Config) ProbeInterval() time.Duration {
	if c.Bridge.ProbeIntervalSecs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Bridge.ProbeIntervalSecs) * time.Second
}

// =============================================================================
// LOCATIONS
// =============================================================================

// ConfigDir returns the client's configuration directory (~/.nexus).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".nexus"), nil
}

// DefaultPath returns the default config file path.
func DefaultPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir creates the configuration directory if missing.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads the config file at path, fills defaults for anything unset,
// applies environment overrides and validates. A missing file is not an
// error: defaults plus overrides are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// fall through to env overrides
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config atomically to path.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return util.AtomicWriteFile(path, buf.Bytes(), 0644)
}

// applyEnvOverrides layers NEXUS_* environment variables over the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NEXUS_BRIDGE_URL"); v != "" {
		cfg.Bridge.URL = v
	}
	if v := os.Getenv("NEXUS_MODE"); v != "" {
		cfg.Chat.Mode = v
	}
	if v := os.Getenv("NEXUS_CHAT_MODEL"); v != "" {
		cfg.Chat.Model = v
	}
	if v := os.Getenv("NEXUS_IMAGE_MODEL"); v != "" {
		cfg.Image.Model = v
	}
	if v := os.Getenv("NEXUS_PROVIDER_URL"); v != "" {
		cfg.Chat.ProviderURL = v
	}
	if v := os.Getenv("NEXUS_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Chat.MaxTokens = n
		}
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks fields that would otherwise fail deep inside a turn.
func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.Bridge.URL); err != nil {
		return fmt.Errorf("invalid bridge url %q: %w", c.Bridge.URL, err)
	}
	if c.Chat.Mode != "proxy" && c.Chat.Mode != "local" {
		return fmt.Errorf("invalid chat mode %q: must be proxy or local", c.Chat.Mode)
	}
	if c.Chat.Mode == "proxy" {
		if _, err := url.ParseRequestURI(c.Chat.ProviderURL); err != nil {
			return fmt.Errorf("invalid provider url %q: %w", c.Chat.ProviderURL, err)
		}
	}
	if c.Chat.Temperature < 0 || c.Chat.Temperature > 2 {
		return fmt.Errorf("temperature %v out of range [0, 2]", c.Chat.Temperature)
	}
	if c.Chat.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.Chat.MaxTokens)
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search max_results must be positive, got %d", c.Search.MaxResults)
	}
	return nil
}

// =============================================================================
// LIVE RELOAD
// =============================================================================

// Watch reloads the config whenever the file at path changes and hands the
// fresh copy to onReload. Parse or validation failures keep the previous
// config and are reported through onError (which may be nil). The watcher
// stops when stop is closed.
func Watch(path string, stop <-chan struct{}, onReload func(*Config), onError func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory: editors replace files on save, which drops
	// watches registered on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-stop:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != path {
					continue
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					if onError != nil {
						onError(err)
					}
					continue
				}
				onReload(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(err)
				}
			}
		}
	}()

	return nil
}
