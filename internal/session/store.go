// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session provides the bridge-synchronized session registry.
//
// The bridge holds the durable copy; this store is a local mirror with a
// stale-but-available policy. Sync and persist are gated on connectivity
// and both are best-effort: a failed sync keeps the previous registry, a
// failed persist is logged and otherwise ignored. Persistence is
// last-writer-wins, the bridge replaces its stored list wholesale.
package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/jeranaias/nexus-tui/internal/bridge"
	"github.com/jeranaias/nexus-tui/internal/model"
)

// Store owns the session registry and the binding between the active
// session and the live transcript.
type Store struct {
	client     *bridge.Client
	transcript *model.Transcript
	connected  func() bool
	logger     *zap.Logger

	sessions []*model.Session // most-recent-first
	active   *model.Session
}

// New creates a store bound to the given transcript. The connected gate is
// consulted before every bridge call; when it reports false the call is
// skipped, never queued.
func New(client *bridge.Client, transcript *model.Transcript, connected func() bool, logger *zap.Logger) *Store {
	if connected == nil {
		connected = func() bool { return true }
	}
	return &Store{
		client:     client,
		transcript: transcript,
		connected:  connected,
		logger:     logger,
	}
}

// Sessions returns the registry, most recent first.
func (s *Store) Sessions() []*model.Session {
	out := make([]*model.Session, len(s.sessions))
	copy(out, s.sessions)
	return out
}

// Active returns the active session, or nil before the first Create.
func (s *Store) Active() *model.Session {
	return s.active
}

// Sync replaces the local registry with the bridge's copy. On any failure
// the current registry stays in place.
func (s *Store) Sync(ctx context.Context) {
	if !s.connected() {
		return
	}
	sessions, err := s.client.Sessions(ctx)
	if err != nil {
		s.logger.Warn("session sync failed, keeping local registry", zap.Error(err))
		return
	}
	s.sessions = sessions

	// Re-point the active session at the fresh copy so recordTurn writes
	// into the registry that will be persisted.
	if s.active != nil {
		for _, sess := range s.sessions {
			if sess.ID == s.active.ID {
				s.active = sess
				return
			}
		}
		// Active session vanished from the bridge: keep it locally, it
		// rejoins the registry on the next persist.
		s.sessions = append([]*model.Session{s.active}, s.sessions...)
	}
}

// Persist pushes the full registry to the bridge. Failures are logged only:
// the conversation must not stall on a persistence hiccup.
func (s *Store) Persist(ctx context.Context) {
	if !s.connected() {
		return
	}
	if err := s.client.SaveSessions(ctx, s.sessions); err != nil {
		s.logger.Warn("session persist failed", zap.Error(err))
	}
}

// Create starts a fresh session, makes it active, clears the transcript and
// persists the registry.
func (s *Store) Create(ctx context.Context) *model.Session {
	sess := model.NewSession()
	s.sessions = append([]*model.Session{sess}, s.sessions...)
	s.active = sess
	s.transcript.Clear()
	s.Persist(ctx)
	return sess
}

// Activate switches to the session with the given id, loading its messages
// into the transcript. Unknown ids are a no-op.
func (s *Store) Activate(id string) bool {
	for _, sess := range s.sessions {
		if sess.ID == id {
			s.active = sess
			s.transcript.Replace(sess.Messages)
			return true
		}
	}
	return false
}

// RecordTurn copies the transcript into the active session, derives the
// title from the first message while the default title still stands, and
// persists. Called once per completed turn regardless of outcome.
func (s *Store) RecordTurn(ctx context.Context) {
	if s.active == nil {
		return
	}
	s.active.SetMessages(s.transcript.Snapshot())
	s.active.RefreshTitle()
	s.Persist(ctx)
}
