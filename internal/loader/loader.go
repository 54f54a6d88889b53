// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package loader guarantees the bridge has the requested model active.
//
// The bridge loads models lazily and answers 400 when asked to generate
// with nothing loaded. For image generation the loader recovers from that
// reactively: one explicit load, one retry, and the second outcome is
// final. Chat models are loaded proactively instead, at startup or when
// the user switches models.
package loader

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jeranaias/nexus-tui/internal/bridge"
	"github.com/jeranaias/nexus-tui/internal/model"
)

// =============================================================================
// RETRY POLICY
// =============================================================================

// RetryPolicy bounds the load-and-retry recovery.
type RetryPolicy struct {
	// MaxAttempts is the total generate attempts, the first included.
	MaxAttempts int

	// ShouldRetry reports whether an error means "no model loaded" and a
	// load plus retry can recover.
	ShouldRetry func(error) bool
}

// DefaultRetryPolicy allows exactly one retry, triggered by a validation
// (HTTP 400) answer from the bridge.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 2,
		ShouldRetry: bridge.IsValidation,
	}
}

// =============================================================================
// LOADER
// =============================================================================

// Loader wraps generate calls with the lazy-load recovery.
type Loader struct {
	client *bridge.Client
	models *model.ModelState
	logger *zap.Logger
	policy RetryPolicy
}

// New creates a loader with the default retry policy.
func New(client *bridge.Client, models *model.ModelState, logger *zap.Logger) *Loader {
	return NewWithPolicy(client, models, logger, DefaultRetryPolicy())
}

// NewWithPolicy creates a loader with a custom retry policy.
func NewWithPolicy(client *bridge.Client, models *model.ModelState, logger *zap.Logger, policy RetryPolicy) *Loader {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 2
	}
	if policy.ShouldRetry == nil {
		policy.ShouldRetry = bridge.IsValidation
	}
	return &Loader{client: client, models: models, logger: logger, policy: policy}
}

// GenerateImage attempts generation directly, and on a "no model loaded"
// answer loads the selected image model and retries. The final attempt's
// outcome is returned as-is, success or failure.
func (l *Loader) GenerateImage(ctx context.Context, req *bridge.ImageGenRequest, baseDir string) (*bridge.ImageGenResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= l.policy.MaxAttempts; attempt++ {
		resp, err := l.client.GenerateImage(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt == l.policy.MaxAttempts || !l.policy.ShouldRetry(err) {
			break
		}

		imageModel := l.models.ImageModel()
		if imageModel == "" {
			// Nothing to load: surface the bridge's answer unchanged.
			break
		}

		l.logger.Info("image model not loaded, loading before retry",
			zap.String("model", imageModel))
		if _, err := l.client.LoadImageModel(ctx, &bridge.LoadRequest{
			Path:    imageModel,
			BaseDir: baseDir,
		}); err != nil {
			return nil, fmt.Errorf("failed to load image model %q: %w", imageModel, err)
		}
	}
	return nil, lastErr
}

// EnsureChatModel explicitly loads a chat model and records it as current.
func (l *Loader) EnsureChatModel(ctx context.Context, path, baseDir string) (*bridge.LoadResponse, error) {
	resp, err := l.client.LoadModel(ctx, &bridge.LoadRequest{Path: path, BaseDir: baseDir})
	if err != nil {
		return nil, err
	}
	l.models.SetChatModel(path)
	return resp, nil
}

// EnsureImageModel explicitly loads an image model and records it as current.
func (l *Loader) EnsureImageModel(ctx context.Context, path, baseDir string) (*bridge.LoadResponse, error) {
	resp, err := l.client.LoadImageModel(ctx, &bridge.LoadRequest{Path: path, BaseDir: baseDir})
	if err != nil {
		return nil, err
	}
	l.models.SetImageModel(path)
	return resp, nil
}
