// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for transcripts, sessions and
// messages.
//
// This package defines the core domain types used throughout the application
// for representing the active conversation and the named sessions that are
// synchronized with the Nexus bridge.
//
// # Key Types
//
//   - Transcript: ordered, mutable message log for the active session
//   - Message: single message with id, role, content and transient flag
//   - Session: named, persisted snapshot of a transcript
//   - ModelState: which models and inference mode the client is using
//   - Role: message role enumeration (user, assistant, system)
//
// # Usage
//
// Append to the live transcript and later resolve the placeholder:
//
//	tr := model.NewTranscript()
//	tr.Append(model.RoleUser, "Hello", false)
//	id := tr.Append(model.RoleAssistant, "Thinking...", true)
//	// ... request completes ...
//	tr.Update(id, "Hi there!")
package model
