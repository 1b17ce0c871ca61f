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
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/jinterlante1206/ChatRelay/services/relay/datatypes"
)

const (
	defaultOpenAIModel       = "gpt-4o-mini"
	defaultOpenAITemperature = float32(0.7)
)

type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAIClient builds a client from environment configuration.
//
// Reads OPENAI_API_KEY (falling back to the container secret mount),
// OPENAI_MODEL, and OPENAI_TEMPERATURE. The temperature must parse as a
// float in [0.0, 1.0]; out-of-range values are a configuration error, not
// silently clamped.
func NewOpenAIClient() (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	model := os.Getenv("OPENAI_MODEL") // e.g., "gpt-4o"
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the OpenAI API Key from the secrets mount")
		} else {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}
	if model == "" {
		model = defaultOpenAIModel
		slog.Warn("OPENAI_MODEL not set, defaulting to "+defaultOpenAIModel, "model", model)
	}

	temperature := defaultOpenAITemperature
	if raw := os.Getenv("OPENAI_TEMPERATURE"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return nil, fmt.Errorf("OPENAI_TEMPERATURE %q is not a number: %w", raw, err)
		}
		if parsed < 0.0 || parsed > 1.0 {
			return nil, fmt.Errorf("OPENAI_TEMPERATURE must be between 0.0 and 1.0, got %v", parsed)
		}
		temperature = float32(parsed)
	}

	slog.Info("Initializing OpenAI client", "model", model, "temperature", temperature)
	return &OpenAIClient{
		client:      openai.NewClient(apiKey),
		model:       model,
		temperature: temperature,
	}, nil
}

// newOpenAIClientWithConfig builds a client against a custom API base.
// Used by tests to point the client at a mock server.
func newOpenAIClientWithConfig(config openai.ClientConfig, model string, temperature float32) *OpenAIClient {
	return &OpenAIClient{
		client:      openai.NewClientWithConfig(config),
		model:       model,
		temperature: temperature,
	}
}

// Generate implements the LLMClient interface
func (o *OpenAIClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	slog.Debug("Generating text via OpenAI", "model", o.model)
	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: o.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	o.applyParams(&req, params)

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("OpenAI API call failed", "error", err)
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		slog.Warn("OpenAI returned no choices or empty content")
		return "", fmt.Errorf("OpenAI returned no choices")
	}
	slog.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

// ChatStream implements the LLMClient interface.
//
// # Description
//
// Opens a streaming chat completion and invokes callback once per content
// delta, in arrival order. The stream handle is always closed before
// returning, so an aborted consumer does not leak the provider connection.
//
// # Inputs
//
//   - ctx: Context for cancellation. An aborted client connection cancels
//     the provider call through here.
//   - messages: Conversation history in wire order.
//   - params: Sampling overrides; zero values fall back to client config.
//   - callback: Invoked per increment. A callback error aborts the stream.
//
// # Outputs
//
//   - error: Non-nil if the stream could not be opened or failed mid-way.
func (o *OpenAIClient) ChatStream(ctx context.Context, messages []datatypes.Message,
	params GenerationParams, callback StreamCallback) error {

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: o.temperature,
		Messages:    convertMessages(messages),
	}
	o.applyParams(&req, params)

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		slog.Error("OpenAI streaming call failed to open", "error", err)
		return fmt.Errorf("OpenAI streaming call failed: %w", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			slog.Error("OpenAI stream receive failed", "error", err)
			return fmt.Errorf("OpenAI stream receive failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		content := resp.Choices[0].Delta.Content
		if content == "" {
			continue
		}
		if err := callback(StreamEvent{Type: StreamEventToken, Content: content}); err != nil {
			return err
		}
	}
}

// applyParams overlays per-call params on the request.
func (o *OpenAIClient) applyParams(req *openai.ChatCompletionRequest, params GenerationParams) {
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}
}

// convertMessages maps wire messages to the OpenAI schema.
// Unknown roles are logged and treated as user messages rather than
// failing the whole request.
func convertMessages(messages []datatypes.Message) []openai.ChatCompletionMessage {
	converted := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case datatypes.RoleUser:
			role = openai.ChatMessageRoleUser
		case datatypes.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		case datatypes.RoleSystem:
			role = openai.ChatMessageRoleSystem
		default:
			slog.Warn("Unknown message role, treating as user message", "role", msg.Role)
		}
		converted = append(converted, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}
	return converted
}

var _ LLMClient = (*OpenAIClient)(nil)
