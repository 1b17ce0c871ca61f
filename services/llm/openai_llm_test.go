// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"

	"github.com/jinterlante1206/ChatRelay/services/relay/datatypes"
)

// =============================================================================
// Mock Server Helpers
// =============================================================================

// newMockOpenAIServer creates a test server speaking the OpenAI SSE dialect.
//
// # Description
//
// Creates an httptest.Server whose response is controlled by the provided
// handler. Streaming responses are SSE: one "data: <json>" line per chunk,
// terminated by "data: [DONE]".
//
// # Outputs
//
//   - *httptest.Server: Test server. Caller must call Close().
func newMockOpenAIServer(handler http.HandlerFunc) *httptest.Server {
	return httptest.NewServer(handler)
}

// newTestOpenAIClient creates an OpenAIClient pointing at a test server.
func newTestOpenAIClient(baseURL string) *OpenAIClient {
	config := openai.DefaultConfig("test-key")
	config.BaseURL = baseURL + "/v1"
	return newOpenAIClientWithConfig(config, "test-model", 0.7)
}

// writeSSEChunk writes one streaming chat-completion chunk.
func writeSSEChunk(w http.ResponseWriter, content string) {
	fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", content)
}

// =============================================================================
// ChatStream Tests (with Mock Server)
// =============================================================================

// TestOpenAIChatStream_BasicSuccess tests successful streaming.
//
// # Description
//
// Verifies end-to-end streaming with a mock server returning multiple
// delta chunks followed by the [DONE] sentinel.
func TestOpenAIChatStream_BasicSuccess(t *testing.T) {
	t.Parallel()

	server := newMockOpenAIServer(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("Expected chat completions path, got %s", r.URL.Path)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		writeSSEChunk(w, "Hello")
		writeSSEChunk(w, " there")
		writeSSEChunk(w, "!")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	defer server.Close()

	client := newTestOpenAIClient(server.URL)

	var response strings.Builder
	err := client.ChatStream(context.Background(), []datatypes.Message{
		{Role: "user", Content: "Hi"},
	}, GenerationParams{}, func(event StreamEvent) error {
		if event.Type == StreamEventToken {
			response.WriteString(event.Content)
		}
		return nil
	})

	if err != nil {
		t.Fatalf("ChatStream returned error: %v", err)
	}
	if response.String() != "Hello there!" {
		t.Errorf("Expected 'Hello there!', got '%s'", response.String())
	}
}

// TestOpenAIChatStream_SkipsEmptyDeltas verifies chunks with no content
// produce no increments.
func TestOpenAIChatStream_SkipsEmptyDeltas(t *testing.T) {
	t.Parallel()

	server := newMockOpenAIServer(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n")
		writeSSEChunk(w, "Answer")
		fmt.Fprint(w, "data: {\"choices\":[]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	defer server.Close()

	client := newTestOpenAIClient(server.URL)

	var tokens []string
	err := client.ChatStream(context.Background(), []datatypes.Message{
		{Role: "user", Content: "Hi"},
	}, GenerationParams{}, func(event StreamEvent) error {
		tokens = append(tokens, event.Content)
		return nil
	})

	if err != nil {
		t.Fatalf("ChatStream returned error: %v", err)
	}
	if len(tokens) != 1 || tokens[0] != "Answer" {
		t.Errorf("Expected single token 'Answer', got %v", tokens)
	}
}

// TestOpenAIChatStream_ServerError tests handling of HTTP errors.
func TestOpenAIChatStream_ServerError(t *testing.T) {
	t.Parallel()

	server := newMockOpenAIServer(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprintln(w, `{"error":{"message":"invalid api key","type":"invalid_request_error"}}`)
	})
	defer server.Close()

	client := newTestOpenAIClient(server.URL)

	err := client.ChatStream(context.Background(), []datatypes.Message{
		{Role: "user", Content: "Hi"},
	}, GenerationParams{}, func(event StreamEvent) error {
		return nil
	})

	if err == nil {
		t.Fatal("ChatStream should return error for server error")
	}
	if !strings.Contains(err.Error(), "OpenAI streaming call failed") {
		t.Errorf("Error should be wrapped, got: %v", err)
	}
}

// TestOpenAIChatStream_CallbackAbort tests callback-initiated abort.
func TestOpenAIChatStream_CallbackAbort(t *testing.T) {
	t.Parallel()

	server := newMockOpenAIServer(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeSSEChunk(w, "First")
		writeSSEChunk(w, "Second")
		writeSSEChunk(w, "Third")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	defer server.Close()

	client := newTestOpenAIClient(server.URL)

	tokenCount := 0
	abortErr := errors.New("user abort")
	err := client.ChatStream(context.Background(), []datatypes.Message{
		{Role: "user", Content: "Hi"},
	}, GenerationParams{}, func(event StreamEvent) error {
		tokenCount++
		if tokenCount >= 2 {
			return abortErr
		}
		return nil
	})

	if !errors.Is(err, abortErr) {
		t.Fatalf("Expected the callback error back, got: %v", err)
	}
	if tokenCount != 2 {
		t.Errorf("Expected 2 tokens before abort, got %d", tokenCount)
	}
}

// =============================================================================
// Generate Tests
// =============================================================================

// TestOpenAIGenerate_Success tests non-streaming generation.
func TestOpenAIGenerate_Success(t *testing.T) {
	t.Parallel()

	server := newMockOpenAIServer(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"choices":[{"message":{"role":"assistant","content":"The answer is 42"},"finish_reason":"stop"}]}`)
	})
	defer server.Close()

	client := newTestOpenAIClient(server.URL)

	answer, err := client.Generate(context.Background(), "What is the meaning of life?", GenerationParams{})

	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if answer != "The answer is 42" {
		t.Errorf("Expected 'The answer is 42', got '%s'", answer)
	}
}

// TestOpenAIGenerate_NoChoices tests the empty-choices fault.
func TestOpenAIGenerate_NoChoices(t *testing.T) {
	t.Parallel()

	server := newMockOpenAIServer(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"choices":[]}`)
	})
	defer server.Close()

	client := newTestOpenAIClient(server.URL)

	_, err := client.Generate(context.Background(), "Hi", GenerationParams{})

	if err == nil {
		t.Fatal("Generate should return error when no choices are returned")
	}
	if !strings.Contains(err.Error(), "no choices") {
		t.Errorf("Error should mention missing choices, got: %v", err)
	}
}

// =============================================================================
// convertMessages Tests
// =============================================================================

// TestConvertMessages_RoleMapping verifies wire roles map to the OpenAI
// schema and an unknown role degrades to user rather than failing.
func TestConvertMessages_RoleMapping(t *testing.T) {
	t.Parallel()

	messages := []datatypes.Message{
		{Role: datatypes.RoleSystem, Content: "You are helpful."},
		{Role: datatypes.RoleUser, Content: "Hi"},
		{Role: datatypes.RoleAssistant, Content: "Hello!"},
		{Role: "wizard", Content: "Abracadabra"},
	}

	converted := convertMessages(messages)

	if len(converted) != 4 {
		t.Fatalf("Expected 4 converted messages, got %d", len(converted))
	}
	expectedRoles := []string{
		openai.ChatMessageRoleSystem,
		openai.ChatMessageRoleUser,
		openai.ChatMessageRoleAssistant,
		openai.ChatMessageRoleUser,
	}
	for i, role := range expectedRoles {
		if converted[i].Role != role {
			t.Errorf("Message %d: expected role %q, got %q", i, role, converted[i].Role)
		}
		if converted[i].Content != messages[i].Content {
			t.Errorf("Message %d: content changed during conversion", i)
		}
	}
}

// TestConvertMessages_Empty verifies an empty history converts cleanly.
func TestConvertMessages_Empty(t *testing.T) {
	t.Parallel()

	converted := convertMessages(nil)

	if len(converted) != 0 {
		t.Errorf("Expected no converted messages, got %d", len(converted))
	}
}

// =============================================================================
// applyParams Tests
// =============================================================================

// TestOpenAIApplyParams verifies per-call overrides land on the request.
func TestOpenAIApplyParams(t *testing.T) {
	t.Parallel()

	temperature := float32(0.3)
	topP := float32(0.8)
	maxTokens := 256

	client := &OpenAIClient{model: "test-model", temperature: 0.7}
	req := openai.ChatCompletionRequest{Model: client.model, Temperature: client.temperature}
	client.applyParams(&req, GenerationParams{
		Temperature: &temperature,
		TopP:        &topP,
		MaxTokens:   &maxTokens,
		Stop:        []string{"END"},
	})

	if req.Temperature != 0.3 {
		t.Errorf("Expected temperature 0.3, got %v", req.Temperature)
	}
	if req.TopP != 0.8 {
		t.Errorf("Expected top_p 0.8, got %v", req.TopP)
	}
	if req.MaxCompletionTokens != 256 {
		t.Errorf("Expected max completion tokens 256, got %d", req.MaxCompletionTokens)
	}
	if len(req.Stop) != 1 || req.Stop[0] != "END" {
		t.Errorf("Expected stop [END], got %v", req.Stop)
	}
}

// TestOpenAIApplyParams_ZeroValuesKeepDefaults verifies nil params leave
// client defaults untouched.
func TestOpenAIApplyParams_ZeroValuesKeepDefaults(t *testing.T) {
	t.Parallel()

	client := &OpenAIClient{model: "test-model", temperature: 0.7}
	req := openai.ChatCompletionRequest{Model: client.model, Temperature: client.temperature}
	client.applyParams(&req, GenerationParams{})

	if req.Temperature != 0.7 {
		t.Errorf("Expected client default temperature 0.7, got %v", req.Temperature)
	}
	if req.MaxCompletionTokens != 0 {
		t.Errorf("Expected zero max completion tokens, got %d", req.MaxCompletionTokens)
	}
}
