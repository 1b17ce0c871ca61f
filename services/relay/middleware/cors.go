// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the relay service.
//
// This package contains middleware for cross-origin request handling.
// The relay is consumed by a browser frontend served from a different
// origin during development, so CORS headers are mandatory for the
// streaming endpoint to be reachable at all.
package middleware

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

// defaultAllowedOrigin is the development frontend origin.
const defaultAllowedOrigin = "http://localhost:3000"

// CORS returns middleware that sets cross-origin response headers.
//
// # Description
//
// Allows requests from the configured frontend origins. Origins come
// from the CORS_ALLOWED_ORIGINS environment variable (comma-separated);
// when unset, only the development frontend origin is allowed.
// Preflight OPTIONS requests are answered directly with 204.
//
// The x-vercel-ai-data-stream header is exposed so browser clients can
// confirm the stream protocol version.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware for router.Use().
//
// # Examples
//
//	router := gin.New()
//	router.Use(middleware.CORS())
//
// # Limitations
//
//   - No wildcard subdomain matching; origins must match exactly.
func CORS() gin.HandlerFunc {
	allowed := map[string]bool{defaultAllowedOrigin: true}
	if raw := os.Getenv("CORS_ALLOWED_ORIGINS"); raw != "" {
		allowed = make(map[string]bool)
		for _, origin := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				allowed[trimmed] = true
			}
		}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowed[origin] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Writer.Header().Set("Access-Control-Expose-Headers", "x-vercel-ai-data-stream")
			c.Writer.Header().Set("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
