// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota

	// ErrTypeConnection - the bridge could not be reached at all.
	ErrTypeConnection

	// ErrTypeTimeout - the request exceeded its deadline.
	ErrTypeTimeout

	// ErrTypeValidation - the bridge rejected the payload with HTTP 400.
	// The structured detail field is preserved for display.
	ErrTypeValidation

	// ErrTypeServer - the bridge answered with a non-400 error status.
	ErrTypeServer

	// ErrTypeInvalidResponse - the body could not be decoded.
	ErrTypeInvalidResponse
)

// ClientError represents an error from the bridge client.
type ClientError struct {
	Type    ErrorType
	Status  int             // HTTP status, 0 for transport failures
	Message string
	Detail  json.RawMessage // backend "detail" field, if any
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Sentinel errors for easy checking.
var (
	ErrBridgeDown = &ClientError{Type: ErrTypeConnection, Message: "bridge is not reachable"}
	ErrTimeout    = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
)

// =============================================================================
// CLASSIFICATION HELPERS
// =============================================================================

// IsValidation reports whether err is an HTTP 400 rejection from the bridge.
func IsValidation(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeValidation
	}
	return false
}

// IsConnection reports whether err means the bridge could not be reached.
func IsConnection(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeConnection
	}
	return errors.Is(err, ErrBridgeDown)
}

// IsTimeout reports whether err is a deadline failure.
func IsTimeout(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeTimeout
	}
	return errors.Is(err, ErrTimeout)
}

// DetailString renders the backend's structured detail for display. JSON
// objects and arrays are pretty-printed; plain strings are unquoted; errors
// without a detail fall back to their message.
func DetailString(err error) string {
	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		return err.Error()
	}
	if len(clientErr.Detail) == 0 {
		return clientErr.Message
	}

	var s string
	if json.Unmarshal(clientErr.Detail, &s) == nil {
		return s
	}

	var buf bytes.Buffer
	if json.Indent(&buf, clientErr.Detail, "", "  ") == nil {
		return buf.String()
	}
	return string(clientErr.Detail)
}
