// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/jinterlante1206/ChatRelay/services/relay/datatypes"
)

// =============================================================================
// Interface Definition
// =============================================================================

// DataStreamWriter defines the contract for writing data-stream frames to
// HTTP responses.
//
// # Description
//
// DataStreamWriter abstracts frame serialization and writing, enabling
// testability and separation from HTTP response mechanics. Implementations
// handle the line-delimited wire format internally: one frame per line,
// single-character type prefix, colon, payload, trailing newline.
//
// The frame-order contract for one stream is:
//
//	(zero or more data)(zero or more text/error)(exactly one finish)
//
// Implementations enforce the tail of that contract: once the finish frame
// is written, every further write fails.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use by multiple goroutines.
//
// # Limitations
//
//   - Must be used with http.Flusher-compatible ResponseWriter
//   - Response headers must be set before the first write
//
// # Assumptions
//
//   - Caller has set the stream headers via SetDataStreamHeaders
type DataStreamWriter interface {
	// WriteEvent writes a single frame to the response.
	//
	// # Description
	//
	// Serializes the event per its type and writes one line, flushing
	// immediately. Writing a finish frame closes the stream; any
	// subsequent write (including a second finish) returns an error.
	//
	// # Inputs
	//
	//   - event: StreamEvent to write. Exactly one variant populated.
	//
	// # Outputs
	//
	//   - error: Non-nil if serialization or writing failed, or if the
	//     stream already finished.
	WriteEvent(event datatypes.StreamEvent) error

	// WriteText writes one text frame carrying a generation increment.
	//
	// # Description
	//
	// Convenience method for text frames. Content is JSON-string-encoded
	// so quotes and control characters cannot break the line protocol.
	//
	// # Inputs
	//
	//   - content: Increment text (may be partial word or whitespace)
	//
	// # Outputs
	//
	//   - error: Non-nil if writing failed.
	//
	// # Limitations
	//
	//   - No buffering; each increment is sent immediately
	WriteText(content string) error

	// WriteData writes one data frame carrying a side-channel payload.
	//
	// # Description
	//
	// Convenience method for data frames. The payload is marshaled and
	// wrapped in the protocol's array form: 2:[<payload>].
	//
	// # Inputs
	//
	//   - payload: JSON-serializable side-channel value (e.g. FilePayload)
	//
	// # Outputs
	//
	//   - error: Non-nil if marshaling or writing failed.
	WriteData(payload any) error

	// WriteError writes one error frame.
	//
	// # Description
	//
	// Writes an error frame informing the client of a failure. Must be
	// followed by the finish frame; the stream never ends on an error
	// frame alone.
	//
	// # Inputs
	//
	//   - errMsg: Error message for the client (sanitized, no internal details)
	//
	// # Outputs
	//
	//   - error: Non-nil if writing failed.
	//
	// # Limitations
	//
	//   - Caller must sanitize error messages (no internal details).
	WriteError(errMsg string) error

	// WriteFinish writes the terminal finish frame and closes the stream.
	//
	// # Description
	//
	// Writes the d: frame with the finish reason and usage counters.
	// Exactly one finish frame terminates every stream, success or
	// failure. After this call every further write fails.
	//
	// # Inputs
	//
	//   - reason: Why the stream ended (stop, length, error).
	//   - usage: Accounting counters for the finish payload.
	//
	// # Outputs
	//
	//   - error: Non-nil if writing failed or finish was already written.
	WriteFinish(reason datatypes.FinishReason, usage datatypes.UsageInfo) error

	// Finished reports whether the finish frame has been written.
	Finished() bool
}

// =============================================================================
// Struct Definition
// =============================================================================

// dataStreamWriter implements DataStreamWriter for chunked HTTP responses.
//
// # Description
//
// dataStreamWriter wraps an http.ResponseWriter to emit protocol frames.
// Each frame is one line:
//
//	0:"token text"
//	2:[{"filename":"notes.txt","content":"...","size":12,"path":"notes.txt"}]
//	3:"error message"
//	d:{"finishReason":"stop","usage":{"promptTokens":0,"completionTokens":4}}
//
// # Fields
//
//   - writer: Underlying http.ResponseWriter
//   - flusher: http.Flusher interface for immediate send
//   - finished: Whether the finish frame has been written
//   - mu: Mutex for thread-safe writes
//
// # Thread Safety
//
// Thread-safe via mutex.
//
// # Limitations
//
//   - Cannot be reused across requests
//
// # Assumptions
//
//   - Response headers already set by caller
//   - ResponseWriter supports the http.Flusher interface
type dataStreamWriter struct {
	writer   http.ResponseWriter
	flusher  http.Flusher
	finished bool
	mu       sync.Mutex
}

// =============================================================================
// Constructor
// =============================================================================

// NewDataStreamWriter creates a DataStreamWriter for the given ResponseWriter.
//
// # Description
//
// Creates a dataStreamWriter that wraps the ResponseWriter. The caller
// must set the stream headers before creating the writer.
//
// # Inputs
//
//   - w: HTTP ResponseWriter. Must implement http.Flusher.
//
// # Outputs
//
//   - DataStreamWriter: Ready to write frames.
//   - error: Non-nil if ResponseWriter doesn't support flushing.
//
// # Examples
//
//	SetDataStreamHeaders(w)
//	writer, err := NewDataStreamWriter(w)
//	if err != nil {
//	    http.Error(w, "Streaming not supported", http.StatusInternalServerError)
//	    return
//	}
//	writer.WriteText("Hello")
//	writer.WriteFinish(datatypes.FinishReasonStop, datatypes.UsageInfo{CompletionTokens: 1})
//
// # Assumptions
//
//   - Caller has set headers via SetDataStreamHeaders()
func NewDataStreamWriter(w http.ResponseWriter) (DataStreamWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}

	return &dataStreamWriter{
		writer:  w,
		flusher: flusher,
	}, nil
}

// =============================================================================
// Methods
// =============================================================================

// WriteEvent writes a single frame to the response.
func (w *dataStreamWriter) WriteEvent(event datatypes.StreamEvent) error {
	line, err := EncodeFrame(event)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finished {
		return fmt.Errorf("write %s frame: stream already finished", event.Type)
	}

	if _, err := fmt.Fprint(w.writer, line); err != nil {
		return fmt.Errorf("write %s frame: %w", event.Type, err)
	}
	w.flusher.Flush()

	if event.Type == datatypes.StreamEventFinish {
		w.finished = true
	}
	return nil
}

// WriteText writes one text frame carrying a generation increment.
func (w *dataStreamWriter) WriteText(content string) error {
	return w.WriteEvent(datatypes.TextEvent(content))
}

// WriteData writes one data frame carrying a side-channel payload.
func (w *dataStreamWriter) WriteData(payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal data payload: %w", err)
	}
	return w.WriteEvent(datatypes.DataEvent(raw))
}

// WriteError writes one error frame.
func (w *dataStreamWriter) WriteError(errMsg string) error {
	return w.WriteEvent(datatypes.ErrorEvent(errMsg))
}

// WriteFinish writes the terminal finish frame.
func (w *dataStreamWriter) WriteFinish(reason datatypes.FinishReason, usage datatypes.UsageInfo) error {
	return w.WriteEvent(datatypes.FinishEvent(reason, usage))
}

// Finished reports whether the finish frame has been written.
func (w *dataStreamWriter) Finished() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finished
}

// =============================================================================
// Frame Encoding
// =============================================================================

// EncodeFrame serializes one StreamEvent into its wire line.
//
// # Description
//
// Maps each event variant to its line format, including the trailing
// newline. String payloads are JSON-string-encoded so the client's
// line-oriented parser can split unambiguously on the prefix. The
// prefixes are a wire-compatibility contract and must not change:
//
//	text   → 0:<JSON string>\n
//	data   → 2:[<raw JSON>]\n
//	error  → 3:<JSON string>\n
//	finish → d:<JSON object>\n
//
// # Inputs
//
//   - event: StreamEvent with exactly one variant populated.
//
// # Outputs
//
//   - string: The full frame line.
//   - error: Non-nil for unknown event types or marshal failures.
func EncodeFrame(event datatypes.StreamEvent) (string, error) {
	switch event.Type {
	case datatypes.StreamEventText:
		encoded, err := json.Marshal(event.Content)
		if err != nil {
			return "", fmt.Errorf("encode text frame: %w", err)
		}
		return fmt.Sprintf("0:%s\n", encoded), nil

	case datatypes.StreamEventData:
		return fmt.Sprintf("2:[%s]\n", event.Payload), nil

	case datatypes.StreamEventError:
		encoded, err := json.Marshal(event.Content)
		if err != nil {
			return "", fmt.Errorf("encode error frame: %w", err)
		}
		return fmt.Sprintf("3:%s\n", encoded), nil

	case datatypes.StreamEventFinish:
		if event.Finish == nil {
			return "", fmt.Errorf("encode finish frame: missing finish data")
		}
		encoded, err := json.Marshal(event.Finish)
		if err != nil {
			return "", fmt.Errorf("encode finish frame: %w", err)
		}
		return fmt.Sprintf("d:%s\n", encoded), nil

	default:
		return "", fmt.Errorf("encode frame: unknown event type %q", event.Type)
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// SetDataStreamHeaders configures HTTP response headers for the data stream.
//
// # Description
//
// Sets the headers the Vercel AI SDK data-stream client expects:
//   - Content-Type: text/plain; charset=utf-8
//   - x-vercel-ai-data-stream: v1
//   - Cache-Control: no-cache
//
// Must be called before writing any response body.
//
// # Inputs
//
//   - w: HTTP ResponseWriter to configure.
func SetDataStreamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("x-vercel-ai-data-stream", "v1")
	w.Header().Set("Cache-Control", "no-cache")
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ DataStreamWriter = (*dataStreamWriter)(nil)
