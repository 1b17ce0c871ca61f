// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command relay starts the ChatRelay HTTP server.
//
// This is the main entry point for the chat relay service. It reads
// configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - HOST: Bind address (default: 127.0.0.1)
//   - PORT: HTTP server port (default: 8000)
//   - LLM_BACKEND_TYPE: LLM provider - openai, ollama (default: openai)
//   - OPENAI_API_KEY: OpenAI API key (required for the openai backend)
//   - OPENAI_MODEL: OpenAI model name (default: gpt-4o-mini)
//   - OPENAI_TEMPERATURE: Sampling temperature 0.0-1.0 (default: 0.7)
//   - OLLAMA_BASE_URL: Ollama server URL (required for the ollama backend)
//   - FILES_ROOT: Directory served by the file retrieval side-channel (optional)
//   - CORS_ALLOWED_ORIGINS: Comma-separated frontend origins (optional)
//   - LOG_LEVEL: Minimum log level - debug, info, warn, error (default: info)
//   - LOG_DIR: Directory for JSON log files (optional)
//
// # Usage
//
//	# Build
//	go build -o relay ./cmd/relay
//
//	# Run
//	./relay
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/jinterlante1206/ChatRelay/pkg/logging"
	"github.com/jinterlante1206/ChatRelay/services/relay"
)

func main() {
	// Setup structured logging
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("LOG_LEVEL")),
		LogDir:  os.Getenv("LOG_DIR"),
		Service: "relay",
		JSON:    true,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	// Build configuration from environment variables
	cfg := relay.Config{
		Host:       getEnvString("HOST", "127.0.0.1"),
		Port:       getEnvInt("PORT", 8000),
		LLMBackend: getEnvString("LLM_BACKEND_TYPE", "openai"),
		FilesRoot:  os.Getenv("FILES_ROOT"),
	}

	slog.Info("Starting relay",
		"host", cfg.Host,
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
		"files_root", cfg.FilesRoot,
	)

	svc, err := relay.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create relay: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Relay error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
