// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package augment enriches a raw user prompt with web-search context before
// it is sent to the model.
//
// The pipeline is strictly best-effort: a failed search, a failed scrape or
// an empty result set all degrade to the raw prompt. A turn is never blocked
// or failed because retrieval misbehaved.
package augment

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/jeranaias/nexus-tui/internal/bridge"
	"github.com/jeranaias/nexus-tui/internal/config"
)

// deepDiveLimit caps how many pages a deep dive scrapes. Full page text is
// large; two pages already approach the context budget of small local models.
const deepDiveLimit = 2

// Pipeline performs search-backed prompt augmentation through the bridge.
type Pipeline struct {
	client *bridge.Client
	logger *zap.Logger
}

// New creates an augmentation pipeline.
func New(client *bridge.Client, logger *zap.Logger) *Pipeline {
	return &Pipeline{client: client, logger: logger}
}

// Augment searches the web for the prompt and wraps it with the retrieved
// context. On any failure, or when the search comes back empty, the prompt
// is returned unchanged.
func (p *Pipeline) Augment(ctx context.Context, prompt string, opts config.SearchConfig) string {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 8
	}

	results, err := p.client.Search(ctx, prompt, maxResults)
	if err != nil {
		p.logger.Warn("search failed, sending raw prompt", zap.Error(err))
		return prompt
	}
	if len(results) == 0 {
		return prompt
	}

	var block string
	if opts.DeepDive {
		block = p.deepBlock(ctx, results, opts.UseBrowser)
	} else {
		block = shallowBlock(results)
	}
	if block == "" {
		return prompt
	}

	return fmt.Sprintf("Context:\n%s\n\nTask: %s", block, prompt)
}

// shallowBlock joins result titles and snippets, one blank line between
// entries.
func shallowBlock(results []bridge.SearchResult) string {
	entries := make([]string, 0, len(results))
	for _, r := range results {
		entries = append(entries, fmt.Sprintf("Source: %s\nSnippet: %s", r.Title, r.Body))
	}
	return strings.Join(entries, "\n\n")
}

// deepBlock scrapes the top results concurrently and joins the page texts
// with a horizontal-rule marker, preserving result order. A page that fails
// to scrape contributes its snippet instead, so a single dead link does not
// cost the whole dive.
func (p *Pipeline) deepBlock(ctx context.Context, results []bridge.SearchResult, useBrowser bool) string {
	if len(results) > deepDiveLimit {
		results = results[:deepDiveLimit]
	}

	entries := make([]string, len(results))
	var wg sync.WaitGroup
	for i, r := range results {
		wg.Add(1)
		go func(i int, r bridge.SearchResult) {
			defer wg.Done()
			content, err := p.client.Scrape(ctx, r.Href, useBrowser)
			if err != nil || content == "" {
				if err != nil {
					p.logger.Warn("scrape failed, using snippet",
						zap.String("url", r.Href), zap.Error(err))
				}
				content = r.Body
			}
			entries[i] = fmt.Sprintf("Source: %s\n%s", r.Title, content)
		}(i, r)
	}
	wg.Wait()

	return strings.Join(entries, "\n\n---\n\n")
}
