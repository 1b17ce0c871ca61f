// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"fmt"
	"log/slog"
	"os"
)

// NewClientFromEnv builds the configured LLM backend.
//
// # Description
//
// Selects the backend by LLM_BACKEND_TYPE (default: openai) and delegates
// to its constructor. All credential and endpoint validation happens in
// the backend constructors, so a failure here is a configuration fault.
//
// # Outputs
//
//   - LLMClient: Ready for shared use across requests.
//   - error: Non-nil if the backend type is unknown or its configuration
//     is invalid.
//
// # Examples
//
//	client, err := llm.NewClientFromEnv()
//	if err != nil {
//	    slog.Error("LLM backend unavailable", "error", err)
//	}
func NewClientFromEnv() (LLMClient, error) {
	backend := os.Getenv("LLM_BACKEND_TYPE")
	if backend == "" {
		backend = "openai"
	}

	slog.Info("Selecting LLM backend", "backend", backend)
	switch backend {
	case "openai":
		return NewOpenAIClient()
	case "ollama":
		return NewOllamaClient()
	default:
		return nil, fmt.Errorf("unknown LLM_BACKEND_TYPE %q (expected openai or ollama)", backend)
	}
}
