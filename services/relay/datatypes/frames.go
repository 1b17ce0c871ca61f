// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Stream frame types for the line-delimited data-stream protocol.
//
// Each frame is one line, tagged by a single-character prefix:
//
//	0:"token text"
//	2:[{"filename":"notes.txt",...}]
//	3:"error message"
//	d:{"finishReason":"stop","usage":{...}}
//
// The prefixes and trailing newline are a wire-compatibility contract with
// the Vercel AI SDK data-stream client (x-vercel-ai-data-stream: v1).
package datatypes

import "encoding/json"

// StreamEventType represents the type of a stream frame.
type StreamEventType string

const (
	StreamEventText   StreamEventType = "text"
	StreamEventData   StreamEventType = "data"
	StreamEventError  StreamEventType = "error"
	StreamEventFinish StreamEventType = "finish"
)

// FinishReason describes why a stream terminated.
type FinishReason string

const (
	FinishReasonStop   FinishReason = "stop"
	FinishReasonLength FinishReason = "length"
	FinishReasonError  FinishReason = "error"
)

// StreamEvent is the tagged union of frames emitted on one stream.
//
// # Description
//
// Exactly one variant is populated per event, selected by Type:
//   - text: Content holds the token text
//   - data: Payload holds a raw JSON value for the data side-channel
//   - error: Content holds the sanitized error message
//   - finish: Finish holds the terminal accounting metadata
//
// Events are created and consumed entirely within one request's streaming
// pipeline and never shared across requests. Exactly one finish event
// terminates every stream, success or failure.
//
// # Fields
//
//   - Type: Frame type discriminant.
//   - Content: Text for text/error frames.
//   - Payload: Raw JSON for data frames.
//   - Finish: Terminal metadata for finish frames.
type StreamEvent struct {
	Type    StreamEventType
	Content string
	Payload json.RawMessage
	Finish  *FinishData
}

// TextEvent constructs a text frame event.
func TextEvent(content string) StreamEvent {
	return StreamEvent{Type: StreamEventText, Content: content}
}

// DataEvent constructs a data frame event carrying a raw JSON payload.
func DataEvent(payload json.RawMessage) StreamEvent {
	return StreamEvent{Type: StreamEventData, Payload: payload}
}

// ErrorEvent constructs an error frame event. The message must already be
// sanitized for client display.
func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: StreamEventError, Content: message}
}

// FinishEvent constructs the terminal finish frame event.
func FinishEvent(reason FinishReason, usage UsageInfo) StreamEvent {
	return StreamEvent{
		Type:   StreamEventFinish,
		Finish: &FinishData{FinishReason: reason, Usage: usage},
	}
}

// UsageInfo carries the accounting counters in the finish frame.
//
// CompletionTokens is the number of text increments emitted during
// generation, not a provider-reported token count. PromptTokens is always 0.
// Both are approximations and are labeled as such in API documentation.
type UsageInfo struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// FinishData is the JSON object carried by the d: frame.
type FinishData struct {
	FinishReason FinishReason `json:"finishReason"`
	Usage        UsageInfo    `json:"usage"`
}

// FilePayload is the data-frame payload for a successfully read file.
//
// # Fields
//
//   - Filename: The name the user asked for.
//   - Content: Full UTF-8 file content.
//   - Size: UTF-8 byte length of Content.
//   - Path: Root-relative path of the resolved file.
type FilePayload struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	Size     int    `json:"size"`
	Path     string `json:"path"`
}
