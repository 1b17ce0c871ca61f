// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the relay service.
//
// This file contains request and response types for the streaming chat
// endpoint. For stream frame types, see frames.go.
package datatypes

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Constants for Security Compliance
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single message content.
	// Checked in bytes, not runes, to bound memory per request.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxMessagesPerRequest is the maximum number of messages in a request.
	MaxMessagesPerRequest = 100
)

// Message roles accepted on the wire.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()

	// Register custom validator for message content size
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes validates that a string field does not exceed MaxMessageContentBytes.
//
// # Description
//
// Checks byte length (not rune count) to prevent memory exhaustion with
// large payloads.
//
// # Inputs
//
//   - fl: Validator field level containing the string to validate
//
// # Outputs
//
//   - bool: true if content <= 32KB, false otherwise
func validateMaxBytes(fl validator.FieldLevel) bool {
	content := fl.Field().String()
	return len(content) <= MaxMessageContentBytes
}

// =============================================================================
// Message Types
// =============================================================================

// Message represents a single message in a conversation.
//
// # Description
//
// Message is the unit of conversation history sent by the client. Each
// message carries a role, the text content, and an identifier. The ID is
// optional on the wire; EnsureDefaults generates one when absent so every
// message has a stable identifier for logging and correlation.
//
// # Fields
//
//   - ID: Unique identifier for the message (UUID v4, generated if absent).
//   - Role: One of "user", "assistant", "system".
//   - Content: The message text. Trimmed, non-empty, max 32KB.
//
// # Validation
//
// Uses go-playground/validator:
//   - Role: required, oneof=user assistant system
//   - Content: required, max 32768 bytes via custom "maxbytes" validator
//
// Whitespace-only content is rejected by ChatRequest.Validate, which checks
// the trimmed content (tag validators see the raw string).
//
// # Limitations
//
//   - Content must be text; binary payloads are not supported.
//
// # Assumptions
//
//   - Messages are in chronological order within a request.
type Message struct {
	ID      string `json:"id,omitempty"`
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content" validate:"required,maxbytes"`
}

// EnsureDefaults populates the message ID if the client did not provide one.
func (m *Message) EnsureDefaults() {
	if strings.TrimSpace(m.ID) == "" {
		m.ID = uuid.New().String()
	}
}

// =============================================================================
// Chat Request Types
// =============================================================================

// ChatRequest represents a streaming chat request body.
//
// # Description
//
// ChatRequest carries the full conversation history for one streaming chat
// turn. This is the body of POST /api/chat. The conversation must be
// non-empty and the final message must come from the user; the relay
// responds to user input only.
//
// # Fields
//
//   - Messages: Required. Conversation history with 1-100 messages.
//   - ID: Optional. Conversation identifier supplied by the client.
//   - UserID: Optional. User identifier for log correlation.
//   - SessionID: Optional. Session identifier for log correlation.
//
// # Validation
//
// Uses go-playground/validator tags plus explicit checks in Validate():
//   - Messages: required, 1-100 elements, each element validated
//   - Last message role must be "user"
//   - Every message content must be non-empty after trimming
//
// # Examples
//
//	req := ChatRequest{
//	    Messages: []Message{
//	        {Role: "user", Content: "Hello"},
//	    },
//	}
//
// # Limitations
//
//   - No conversation persistence; history travels with every request.
//
// # Assumptions
//
//   - Messages are in chronological order.
type ChatRequest struct {
	Messages  []Message `json:"messages" validate:"required,min=1,max=100,dive"`
	ID        string    `json:"id,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
}

// Validate validates the ChatRequest fields.
//
// # Description
//
// Performs tag-based validation, then enforces the conversational
// invariants the tags cannot express: the final message must be from the
// user, and no message content may be blank after trimming.
//
// # Outputs
//
//   - error: Non-nil if validation failed, with details about which field.
//
// # Examples
//
//	if err := req.Validate(); err != nil {
//	    c.JSON(http.StatusBadRequest, datatypes.NewErrorResponse(err, "validation_error"))
//	    return
//	}
func (r *ChatRequest) Validate() error {
	if err := chatValidate.Struct(r); err != nil {
		return err
	}

	for i := range r.Messages {
		if strings.TrimSpace(r.Messages[i].Content) == "" {
			return fmt.Errorf("message %d: content cannot be empty", i)
		}
	}

	last := r.Messages[len(r.Messages)-1]
	if last.Role != RoleUser {
		return fmt.Errorf("last message must be from user, got role %q", last.Role)
	}

	return nil
}

// EnsureDefaults populates identifiers for the request and its messages.
//
// # Description
//
// Generates a request ID if absent and fills in message IDs. Content is
// trimmed so downstream components always see canonical text.
func (r *ChatRequest) EnsureDefaults() {
	if strings.TrimSpace(r.ID) == "" {
		r.ID = uuid.New().String()
	}
	for i := range r.Messages {
		r.Messages[i].EnsureDefaults()
		r.Messages[i].Content = strings.TrimSpace(r.Messages[i].Content)
	}
}

// LastUserMessage returns the content of the final message.
//
// Callers must have validated the request first; the final message is
// guaranteed to be from the user after Validate succeeds.
func (r *ChatRequest) LastUserMessage() string {
	if len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[len(r.Messages)-1].Content
}

// =============================================================================
// Error Response Types
// =============================================================================

// ErrorResponse is the JSON error payload for non-streaming failures.
//
// # Description
//
// Returned for faults detected before any stream byte is written (HTTP 400
// validation failures, HTTP 500 setup failures). Once streaming has begun,
// errors travel in-band as error frames instead.
//
// # Fields
//
//   - Error: Human-readable error message.
//   - ErrorType: Machine-readable classification (validation_error,
//     internal_error).
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
}

// NewErrorResponse creates an ErrorResponse from an error and a type tag.
func NewErrorResponse(err error, errorType string) ErrorResponse {
	return ErrorResponse{
		Error:     err.Error(),
		ErrorType: errorType,
	}
}
