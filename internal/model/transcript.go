// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// TRANSCRIPT TYPE
// =============================================================================

// Transcript is the ordered, mutable message log for the active session.
//
// A Transcript is mutated only by the request dispatcher and the session
// store, never concurrently: the single-flow gate guarantees at most one
// turn's side effects are in flight at a time, so no locking is needed here.
type Transcript struct {
	messages []Message
	nextID   int64

	// onChange fires after every mutation. The display layer hooks in here
	// to refresh; the core never renders anything itself.
	onChange func()
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{nextID: 1}
}

// OnChange registers the display refresh hook. A nil hook disables it.
func (t *Transcript) OnChange(fn func()) {
	t.onChange = fn
}

// =============================================================================
// MUTATION
// =============================================================================

// Append adds a message and returns its freshly assigned id.
func (t *Transcript) Append(role Role, content string, transient bool) int64 {
	id := t.nextID
	t.nextID++
	t.messages = append(t.messages, Message{
		ID:        id,
		Role:      role,
		Content:   content,
		Transient: transient,
	})
	t.notify()
	return id
}

// Update replaces the content of the message with the given id and clears
// its transient flag. It returns false if no message has that id; callers
// treat that as a logic error.
func (t *Transcript) Update(id int64, content string) bool {
	for i := range t.messages {
		if t.messages[i].ID == id {
			t.messages[i].Content = content
			t.messages[i].Transient = false
			t.notify()
			return true
		}
	}
	return false
}

// Clear removes all messages. Used when switching sessions. IDs keep
// counting up so stale ids from a previous session never resolve.
func (t *Transcript) Clear() {
	t.messages = nil
	t.notify()
}

// Replace swaps in the stored messages of a session being activated.
func (t *Transcript) Replace(messages []Message) {
	t.messages = make([]Message, len(messages))
	copy(t.messages, messages)
	for _, m := range messages {
		if m.ID >= t.nextID {
			t.nextID = m.ID + 1
		}
	}
	t.notify()
}

// =============================================================================
// INSPECTION
// =============================================================================

// Snapshot returns a copy of the current message sequence, in order.
// Used to build outbound request payloads and to persist into a session.
func (t *Transcript) Snapshot() []Message {
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	return len(t.messages)
}

// HasTransient reports whether a placeholder is currently awaiting a result.
func (t *Transcript) HasTransient() bool {
	for i := range t.messages {
		if t.messages[i].Transient {
			return true
		}
	}
	return false
}

func (t *Transcript) notify() {
	if t.onChange != nil {
		t.onChange()
	}
}
