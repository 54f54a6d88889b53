// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package monitor provides the periodic liveness probe against the bridge.
//
// Every component that issues a network call gates on the monitor's binary
// connectivity signal: when the bridge is unreachable, calls are skipped,
// never queued. The probe is the only background activity permitted while
// a turn is in flight.
package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/nexus-tui/internal/bridge"
	"github.com/jeranaias/nexus-tui/internal/model"
)

// State is the connectivity signal consumed by the rest of the client.
type State struct {
	Connected bool

	// Latency is the probe round-trip time. LatencyKnown is false after a
	// failed probe, where no meaningful measurement exists.
	Latency      time.Duration
	LatencyKnown bool
}

// Monitor probes the bridge status endpoint on a fixed interval.
type Monitor struct {
	client   *bridge.Client
	models   *model.ModelState
	logger   *zap.Logger
	interval time.Duration

	mu       sync.RWMutex
	state    State
	onChange func(State)
}

// New creates a monitor. The models reference receives the passive
// chat-model side channel: in local mode, the bridge's reported
// current_model wins over whatever the client believes is loaded.
func New(client *bridge.Client, models *model.ModelState, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{
		client:   client,
		models:   models,
		logger:   logger,
		interval: interval,
	}
}

// OnChange registers a callback invoked after every probe with the fresh
// state. Used by the display layer for the status line.
func (m *Monitor) OnChange(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// State returns the most recent probe result.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected reports the binary connectivity signal.
func (m *Monitor) IsConnected() bool {
	return m.State().Connected
}

// Start probes immediately, then on every tick until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		m.ProbeOnce(ctx)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.ProbeOnce(ctx)
			}
		}
	}()
}

// ProbeOnce runs a single probe and returns the resulting state.
func (m *Monitor) ProbeOnce(ctx context.Context) State {
	start := time.Now()
	status, err := m.client.Status(ctx)

	var next State
	if err != nil {
		next = State{Connected: false}
	} else {
		next = State{
			Connected:    true,
			Latency:      time.Since(start),
			LatencyKnown: true,
		}
		// The bridge is the source of truth for which model is actually
		// loaded.
		if status.CurrentModel != "" && m.models != nil && m.models.Mode() == model.ModeLocal {
			m.models.SetChatModel(status.CurrentModel)
		}
	}

	m.mu.Lock()
	prev := m.state
	m.state = next
	fn := m.onChange
	m.mu.Unlock()

	if prev.Connected != next.Connected {
		if next.Connected {
			m.logger.Info("bridge reachable", zap.Duration("latency", next.Latency))
		} else {
			m.logger.Warn("bridge unreachable", zap.Error(err))
		}
	}

	if fn != nil {
		fn(next)
	}
	return next
}
