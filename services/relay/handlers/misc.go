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
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jinterlante1206/ChatRelay/services/llm"
	"github.com/jinterlante1206/ChatRelay/services/relay/datatypes"
)

// readinessProbeTimeout bounds the provider round-trip during a readiness
// check so a hung provider cannot pin probe goroutines.
const readinessProbeTimeout = 10 * time.Second

// HealthCheck reports service liveness.
//
// # Description
//
// Handles GET /health requests. Returns 200 with a static payload; no
// downstream dependency (provider, files root) is probed, so a healthy
// response only means the HTTP layer is up.
//
// # Outputs
//
//	200 OK {"status":"healthy","service":"chat-backend"}
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "chat-backend",
	})
}

// ReadinessCheck builds a handler that probes the configured provider.
//
// # Description
//
// Handles GET /ready requests. Acquires the shared provider session and
// runs a one-token non-streaming generation against it, so a ready
// response means the provider is reachable and can actually generate.
// The first probe pays session initialization, same as the first chat
// request would.
//
// # Inputs
//
//   - sessions: Provider session source shared with the chat endpoint.
//
// # Outputs
//
//	200 OK {"status":"ready","service":"chat-backend"}
//	503 Service Unavailable {"error":"...","error_type":"not_ready"}
//
// # Limitations
//
//   - Each probe costs one provider generation; point orchestrator
//     readiness probes here, not load-balancer health checks.
func ReadinessCheck(sessions llm.SessionSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessProbeTimeout)
		defer cancel()

		client, err := sessions.Acquire(ctx)
		if err != nil {
			slog.Error("Readiness probe failed to acquire provider session", "error", err)
			c.JSON(http.StatusServiceUnavailable, datatypes.NewErrorResponse(
				errors.New(sanitizeErrorForClient(err)), "not_ready"))
			return
		}

		maxTokens := 1
		if _, err := client.Generate(ctx, "ping", llm.GenerationParams{MaxTokens: &maxTokens}); err != nil {
			slog.Error("Readiness probe generation failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, datatypes.NewErrorResponse(
				errors.New(sanitizeErrorForClient(err)), "not_ready"))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "ready",
			"service": "chat-backend",
		})
	}
}
