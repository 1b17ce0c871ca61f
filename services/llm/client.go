// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides provider clients for chat generation.
package llm

import (
	"context"

	"github.com/jinterlante1206/ChatRelay/services/relay/datatypes"
)

// GenerationParams carries per-call sampling parameters.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// StreamEventType tags increments produced during streaming generation.
type StreamEventType string

const (
	// StreamEventToken is one unit of partial answer text.
	StreamEventToken StreamEventType = "token"
	// StreamEventError reports a provider-side failure mid-stream.
	StreamEventError StreamEventType = "error"
)

// StreamEvent is one increment from a streaming generation.
//
// Exactly one of Content or Error is meaningful, selected by Type.
// Consumers switch exhaustively on Type; there is no duck typing of
// increment payloads.
type StreamEvent struct {
	Type    StreamEventType
	Content string
	Error   string
}

// StreamCallback is called for each increment during streaming.
//
// # Description
//
// StreamCallback receives increments as they are generated, in order.
// Return an error to abort streaming (e.g., on client disconnect).
type StreamCallback func(event StreamEvent) error

// LLMClient defines the standard interface for any LLM backend.
//
// # Description
//
// Given an ordered list of role-tagged messages, a backend produces an
// asynchronous sequence of text increments via ChatStream, or a complete
// answer via Generate. Implementations must be safe for concurrent use;
// a single client instance is shared by all requests in the process.
type LLMClient interface {
	// Generate produces a complete answer for a single prompt.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// ChatStream streams increments for a conversation, invoking callback
	// per increment in arrival order. Returns a non-nil error if the
	// stream failed; increments already delivered remain delivered.
	ChatStream(ctx context.Context, messages []datatypes.Message, params GenerationParams, callback StreamCallback) error
}
