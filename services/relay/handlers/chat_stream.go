// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tmc/langchaingo/textsplitter"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jinterlante1206/ChatRelay/services/llm"
	"github.com/jinterlante1206/ChatRelay/services/relay/datatypes"
	"github.com/jinterlante1206/ChatRelay/services/relay/files"
	"github.com/jinterlante1206/ChatRelay/services/relay/observability"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// fileContextChunkSize bounds each chunk of file content injected into
	// the hidden system message.
	fileContextChunkSize = 1000

	// fileContextChunkOverlap preserves continuity between adjacent chunks.
	fileContextChunkOverlap = 100

	// maxFileContextChunks caps how much of a retrieved file reaches the
	// model prompt. The full file still goes to the client in the data
	// frame; only the prompt injection is capped.
	maxFileContextChunks = 4
)

// =============================================================================
// Interface Definition
// =============================================================================

// ChatStreamHandler defines the contract for handling streaming chat HTTP requests.
//
// # Description
//
// ChatStreamHandler abstracts the streaming chat endpoint, enabling different
// implementations and facilitating testing via mocks. The endpoint speaks the
// line-delimited data-stream protocol (see DataStreamWriter) rather than SSE.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use by multiple goroutines.
// HTTP handlers are called concurrently by the Gin framework.
//
// # Limitations
//
//   - Requires an LLM client that supports streaming (ChatStream method)
//   - Client must parse the line-delimited data-stream format
//
// # Assumptions
//
//   - All dependencies are properly initialized before handler use
//   - Gin context is valid and not nil
type ChatStreamHandler interface {
	// HandleChatStream processes chat requests with data-stream responses.
	//
	// # Description
	//
	// Handles POST /api/chat requests. Streams generation increments as
	// they are produced by the LLM, preceded by any file-retrieval data
	// frames, and terminated by exactly one finish frame.
	//
	// # Inputs
	//
	//   - c: Gin context containing the HTTP request.
	//
	// # Outputs
	//
	// Data-stream frames:
	//   - 2:[...]  file payloads (if the user asked about a readable file)
	//   - 0:"..."  generated text increments
	//   - 3:"..."  sanitized error message (if failure occurs mid-stream)
	//   - d:{...}  stream completion with finish reason and usage
	//
	// HTTP Status (before streaming starts):
	//   - 400 Bad Request: Invalid request body or validation failure
	//   - 500 Internal Server Error: Streaming not supported by transport
	//
	// # Limitations
	//
	//   - Errors during streaming are sent as frames, not HTTP errors
	//
	// # Assumptions
	//
	//   - Client parses frames per the line-delimited protocol
	HandleChatStream(c *gin.Context)
}

// =============================================================================
// Struct Definition
// =============================================================================

// chatStreamHandler implements ChatStreamHandler for production use.
//
// # Description
//
// chatStreamHandler coordinates between the HTTP layer and streaming business
// logic. It performs HTTP-related tasks and delegates generation to injected
// services:
//   - Request parsing and validation
//   - Data-stream header configuration and frame emission
//   - File-retrieval probe on the last user message
//   - Error handling and cleanup
//
// # Fields
//
//   - sessions: Lazy provider session source (must produce a streaming client)
//   - detector: File intent detector for the retrieval side-channel
//   - guard: Root-confined file reader. May be nil (retrieval disabled).
//   - backend: Provider backend name for metrics labeling
//   - tracer: OpenTelemetry tracer for distributed tracing
//
// # Thread Safety
//
// Thread-safe. All fields are read-only after construction.
// No shared mutable state between requests.
//
// # Limitations
//
//   - Requires an LLM client that supports the ChatStream method
//
// # Assumptions
//
//   - Dependencies are non-nil (except guard) and properly configured
type chatStreamHandler struct {
	sessions llm.SessionSource
	detector files.IntentDetector
	guard    *files.Guard
	backend  string
	tracer   trace.Tracer
}

// =============================================================================
// Constructor
// =============================================================================

// NewChatStreamHandler creates a ChatStreamHandler with the provided dependencies.
//
// # Description
//
// Creates a fully configured chatStreamHandler for production use.
// Panics if sessions or detector is nil (programming errors).
//
// # Inputs
//
//   - sessions: Provider session source. Must not be nil. The source may
//     defer client construction until the first request.
//   - detector: File intent detector. Must not be nil.
//   - guard: Root-confined file reader. May be nil to disable the file
//     retrieval side-channel entirely.
//   - backend: Provider backend name (openai, ollama) for metrics labels.
//
// # Outputs
//
//   - ChatStreamHandler: Ready for use with Gin router
//
// # Examples
//
//	handler := handlers.NewChatStreamHandler(sessions, detector, guard, "openai")
//	router.POST("/api/chat", handler.HandleChatStream)
//
// # Limitations
//
//   - Panics on nil sessions or detector
//
// # Assumptions
//
//   - The session source produces clients supporting ChatStream
func NewChatStreamHandler(
	sessions llm.SessionSource,
	detector files.IntentDetector,
	guard *files.Guard,
	backend string,
) ChatStreamHandler {
	if sessions == nil {
		panic("NewChatStreamHandler: sessions must not be nil")
	}
	if detector == nil {
		panic("NewChatStreamHandler: detector must not be nil")
	}

	return &chatStreamHandler{
		sessions: sessions,
		detector: detector,
		guard:    guard,
		backend:  backend,
		tracer:   otel.Tracer("chatrelay.relay.handlers.chat_stream"),
	}
}

// =============================================================================
// Handler Methods
// =============================================================================

// HandleChatStream processes chat requests with data-stream responses.
//
// # Description
//
// Handles POST /api/chat requests. The flow is:
//  1. Parse and validate request body
//  2. Create the stream writer and set data-stream headers
//  3. Acquire the shared provider session (lazy, first request pays init)
//  4. Probe the last user message for file-retrieval intent
//  5. Emit data frames for each readable requested file
//  6. Stream generation increments from the LLM via ChatStream
//  7. Emit exactly one finish frame
//
// Failures after step 2 are reported in-stream: a sanitized error frame
// followed by a finish frame with reason "error". Failures during the
// file probe are logged and skipped; the generation proceeds without
// the unreadable file.
//
// # Inputs
//
//   - c: Gin context containing the HTTP request
//
// Request Body (datatypes.ChatRequest):
//   - messages: Required. Array of 1-100 messages with role and content.
//     The last message must have role "user".
//   - id, userId, sessionId: Optional identifiers, echoed to logs only.
//
// # Outputs
//
// Data-stream frames (one per line):
//
//	2:[{"filename":"notes.txt","content":"...","size":42,"path":"notes.txt"}]
//	0:"Hello"
//	0:" world"
//	d:{"finishReason":"stop","usage":{"promptTokens":0,"completionTokens":2}}
//
// HTTP Status (before streaming starts):
//   - 400 Bad Request: Invalid request body or validation failure
//   - 500 Internal Server Error: Transport does not support streaming
//
// # Limitations
//
//   - Only the last user message is probed for file intent
//   - completionTokens counts provider increments, not model tokens
//
// # Assumptions
//
//   - Request body is valid JSON
//   - The provider client supports ChatStream
func (h *chatStreamHandler) HandleChatStream(c *gin.Context) {
	startTime := time.Now()
	endpoint := observability.EndpointChatStream

	ctx, span := h.tracer.Start(c.Request.Context(), "HandleChatStream")
	defer span.End()

	// Track active stream (for metrics)
	if m := observability.DefaultMetrics; m != nil {
		m.StreamStarted(endpoint)
		defer m.StreamEnded(endpoint)
	}

	success := false
	defer func() {
		// Record final metrics
		if m := observability.DefaultMetrics; m != nil {
			duration := time.Since(startTime).Seconds()
			m.RecordRequest(endpoint, success)
			m.RecordStreamDuration(endpoint, duration, success)
		}
	}()

	// Step 1: Parse request body
	var req datatypes.ChatRequest
	if err := c.BindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request body")
		slog.Error("Failed to parse chat stream request", "error", err)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, datatypes.NewErrorResponse(
			fmt.Errorf("invalid request body"), "validation_error"))
		return
	}

	// Step 2: Apply defaults and validate
	req.EnsureDefaults()
	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		slog.Error("Chat stream request validation failed",
			"error", err,
			"requestId", req.ID,
		)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, datatypes.NewErrorResponse(err, "validation_error"))
		return
	}

	span.SetAttributes(
		attribute.String("request.id", req.ID),
		attribute.Int("request.message_count", len(req.Messages)),
	)

	// Step 3: Create the stream writer, then commit data-stream headers.
	// The writer must exist before headers go out so an unsupported
	// transport still gets a clean JSON 500.
	writer, err := NewDataStreamWriter(c.Writer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream setup failed")
		slog.Error("Failed to create data stream writer",
			"error", err,
			"requestId", req.ID,
		)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeInternal)
		}
		c.JSON(http.StatusInternalServerError, datatypes.NewErrorResponse(
			fmt.Errorf("streaming not supported"), "internal_error"))
		return
	}
	SetDataStreamHeaders(c.Writer)

	// Step 4: Acquire the shared provider session.
	// Initialization happens lazily on the first request; a failure here
	// is reported in-stream because headers are already committed.
	client, err := h.sessions.Acquire(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session initialization failed")
		slog.Error("Provider session initialization failed",
			"error", err,
			"requestId", req.ID,
		)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeInit)
		}
		h.finishWithError(writer, req.ID, sanitizeErrorForClient(err), datatypes.UsageInfo{})
		return
	}

	// Step 5: Probe the last user message for file-retrieval intent and
	// emit a data frame per readable file. Data frames precede all text.
	served := h.serveRequestedFiles(ctx, writer, req.ID, req.LastUserMessage())

	// Step 6: Build the provider message list. Retrieved file content is
	// appended after the conversation as a hidden system message so the
	// model can answer about the file; the injection is never echoed in
	// text frames.
	messages := req.Messages
	if len(served) > 0 {
		messages = append(append([]datatypes.Message{}, req.Messages...),
			buildFileContextMessage(served))
	}

	// Step 7: Stream increments from the LLM
	var incrementCount int
	firstIncrementTime := time.Time{}

	callback := func(event llm.StreamEvent) error {
		switch event.Type {
		case llm.StreamEventError:
			return fmt.Errorf("provider stream error: %s", event.Error)
		case llm.StreamEventToken:
			if firstIncrementTime.IsZero() {
				firstIncrementTime = time.Now()
			}
			incrementCount++
			if m := observability.DefaultMetrics; m != nil {
				m.RecordFrame(string(datatypes.StreamEventText))
			}
			return writer.WriteText(event.Content)
		default:
			return nil
		}
	}

	streamErr := client.ChatStream(ctx, messages, llm.GenerationParams{}, callback)

	if streamErr != nil {
		span.RecordError(streamErr)
		span.SetStatus(codes.Error, "LLM streaming failed")
		span.SetAttributes(attribute.Int("stream.increment_count", incrementCount))
		slog.Error("LLM streaming failed",
			"error", streamErr,
			"requestId", req.ID,
			"incrementCount", incrementCount,
		)

		// Categorize error for metrics
		if m := observability.DefaultMetrics; m != nil {
			if errors.Is(streamErr, context.Canceled) {
				m.RecordError(endpoint, observability.ErrorCodeClientDisconnect)
			} else {
				m.RecordError(endpoint, observability.ErrorCodeLLMError)
			}
		}

		h.finishWithError(writer, req.ID, sanitizeErrorForClient(streamErr),
			datatypes.UsageInfo{CompletionTokens: incrementCount})
		return
	}

	// Record time to first increment
	if !firstIncrementTime.IsZero() {
		ttfi := firstIncrementTime.Sub(startTime).Seconds()
		span.SetAttributes(attribute.Float64("stream.time_to_first_increment_seconds", ttfi))
		if m := observability.DefaultMetrics; m != nil {
			m.RecordTimeToFirstIncrement(endpoint, ttfi)
		}
	}

	span.SetAttributes(attribute.Int("stream.increment_count", incrementCount))
	if m := observability.DefaultMetrics; m != nil {
		m.RecordIncrements(incrementCount, h.backend)
	}

	// Step 8: Emit the finish frame. Exactly one per stream.
	usage := datatypes.UsageInfo{CompletionTokens: incrementCount}
	if err := writer.WriteFinish(datatypes.FinishReasonStop, usage); err != nil {
		span.RecordError(err)
		slog.Error("Failed to write finish frame",
			"error", err,
			"requestId", req.ID,
		)
		return
	}
	if m := observability.DefaultMetrics; m != nil {
		m.RecordFrame(string(datatypes.StreamEventFinish))
	}

	success = true
	span.SetStatus(codes.Ok, "stream completed successfully")
}

// =============================================================================
// File Retrieval
// =============================================================================

// serveRequestedFiles probes text for file intent and emits data frames.
//
// # Description
//
// Runs the intent detector over the user's message and attempts to read
// each detected filename through the guard. Readable files become data
// frames and are returned for prompt injection. Unreadable files are
// logged and skipped; a failed read never aborts the stream.
//
// # Inputs
//
//   - ctx: Request context for tracing.
//   - writer: Stream writer for data frames.
//   - requestID: Request identifier for log correlation.
//   - text: The user message to probe.
//
// # Outputs
//
//   - []files.FileInfo: The files that were served, in detection order.
func (h *chatStreamHandler) serveRequestedFiles(
	ctx context.Context,
	writer DataStreamWriter,
	requestID string,
	text string,
) []files.FileInfo {
	if h.guard == nil {
		return nil
	}

	_, span := h.tracer.Start(ctx, "serveRequestedFiles")
	defer span.End()

	requested := h.detector.Detect(text)
	span.SetAttributes(attribute.Int("files.requested_count", len(requested)))
	if len(requested) == 0 {
		return nil
	}

	var served []files.FileInfo
	for _, name := range requested {
		info, err := h.guard.Read(name)
		if err != nil {
			// File-access failures are deliberately silent on the wire:
			// the model answers from conversation context alone.
			slog.Warn("Skipping unreadable requested file",
				"filename", name,
				"error", err,
				"requestId", requestID,
			)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordFileRead(fileReadOutcome(err))
				m.RecordError(observability.EndpointChatStream, observability.ErrorCodeFileAccess)
			}
			continue
		}

		payload := datatypes.FilePayload{
			Filename: info.Filename,
			Content:  info.Content,
			Size:     info.SizeBytes,
			Path:     info.RelativePath,
		}
		if err := writer.WriteData(payload); err != nil {
			span.RecordError(err)
			slog.Error("Failed to write file data frame",
				"filename", name,
				"error", err,
				"requestId", requestID,
			)
			continue
		}

		if m := observability.DefaultMetrics; m != nil {
			m.RecordFileRead("served")
			m.RecordFrame(string(datatypes.StreamEventData))
		}
		served = append(served, *info)
	}

	span.SetAttributes(attribute.Int("files.served_count", len(served)))
	return served
}

// fileReadOutcome maps a guard error to its metrics label.
func fileReadOutcome(err error) string {
	switch {
	case files.IsKind(err, files.ErrKindInvalidName):
		return "invalid_name"
	case files.IsKind(err, files.ErrKindPathEscape):
		return "path_escape"
	case files.IsKind(err, files.ErrKindNotFound):
		return "not_found"
	case files.IsKind(err, files.ErrKindNotText):
		return "not_text"
	default:
		return "read_error"
	}
}

// buildFileContextMessage builds the hidden system message carrying file context.
//
// # Description
//
// Each served file contributes a capped slice of its content, split on
// natural boundaries so the cap does not cut mid-sentence more than it
// must. Large files are truncated to the first maxFileContextChunks
// chunks; the client already received the full content in the data frame.
//
// # Inputs
//
//   - served: Files to inject, in detection order.
//
// # Outputs
//
//   - datatypes.Message: System-role message appended after the conversation.
func buildFileContextMessage(served []files.FileInfo) datatypes.Message {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(fileContextChunkSize),
		textsplitter.WithChunkOverlap(fileContextChunkOverlap),
	)

	var b strings.Builder
	b.WriteString("The following requested file(s) have been retrieved and delivered " +
		"to the user. Acknowledge that the file content was received and use it to " +
		"answer; do not repeat a file verbatim unless asked.\n")
	for _, info := range served {
		b.WriteString(fmt.Sprintf("\n--- %s ---\n", info.Filename))
		chunks, err := splitter.SplitText(info.Content)
		if err != nil || len(chunks) == 0 {
			chunks = []string{info.Content}
		}
		if len(chunks) > maxFileContextChunks {
			chunks = chunks[:maxFileContextChunks]
			b.WriteString(strings.Join(chunks, "\n"))
			b.WriteString("\n[content truncated]\n")
		} else {
			b.WriteString(strings.Join(chunks, "\n"))
			b.WriteString("\n")
		}
	}

	return datatypes.Message{
		Role:    datatypes.RoleSystem,
		Content: b.String(),
	}
}

// =============================================================================
// Error Handling
// =============================================================================

// finishWithError terminates a stream with an error frame and finish frame.
//
// # Description
//
// Writes the sanitized error frame followed by the mandatory finish frame
// with reason "error". The usage carries the increments already emitted
// before the failure, so partial output stays accounted for. Write
// failures are logged; there is nothing else to do once the transport is
// broken.
func (h *chatStreamHandler) finishWithError(writer DataStreamWriter, requestID, clientMsg string, usage datatypes.UsageInfo) {
	if err := writer.WriteError(clientMsg); err != nil {
		slog.Error("Failed to write error frame", "error", err, "requestId", requestID)
		return
	}
	if m := observability.DefaultMetrics; m != nil {
		m.RecordFrame(string(datatypes.StreamEventError))
	}
	if err := writer.WriteFinish(datatypes.FinishReasonError, usage); err != nil {
		slog.Error("Failed to write finish frame", "error", err, "requestId", requestID)
		return
	}
	if m := observability.DefaultMetrics; m != nil {
		m.RecordFrame(string(datatypes.StreamEventFinish))
	}
}

// sanitizeErrorForClient converts internal errors to client-safe messages.
//
// # Description
//
// Internal error details (connection strings, file paths, provider API
// responses) must never reach the wire. The full error is logged by the
// caller; the client sees a stable generic message.
//
// # Inputs
//
//   - err: The internal error.
//
// # Outputs
//
//   - string: Client-safe message.
func sanitizeErrorForClient(err error) string {
	if err == nil {
		return "An unexpected error occurred."
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "The request was cancelled or timed out."
	}
	return "The language model service is currently unavailable. Please try again."
}
