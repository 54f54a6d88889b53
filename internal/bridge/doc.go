// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bridge provides the HTTP client for communicating with the Nexus
// local bridge.
//
// The bridge is the single backend the client talks to: it hosts chat and
// image models, proxies to external providers, runs web search and page
// scraping, and stores the session registry.
//
// # Key Types
//
//   - Client: HTTP client for all bridge routes
//   - ClientError: typed error with category, HTTP status and backend detail
//   - ChatRequest / ChatResponse: chat completion payloads
//   - ImageGenRequest / ImageGenResponse: image generation payloads
//
// # Usage
//
// Create a client and send a chat request:
//
//	client := bridge.NewClient()
//	resp, err := client.Chat(ctx, &bridge.ChatRequest{
//	    Messages: []bridge.ChatMessage{{Role: "user", Content: "Hello"}},
//	    Model:    "llama3",
//	    Mode:     "proxy",
//	})
//
// Validation failures (HTTP 400) decode the backend's structured detail:
//
//	if bridge.IsValidation(err) {
//	    fmt.Println(bridge.DetailString(err))
//	}
package bridge
