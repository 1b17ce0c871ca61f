// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jinterlante1206/ChatRelay/services/llm"
	"github.com/jinterlante1206/ChatRelay/services/relay/files"
	"github.com/jinterlante1206/ChatRelay/services/relay/handlers"
)

func SetupRoutes(router *gin.Engine, sessions llm.SessionSource,
	detector files.IntentDetector, guard *files.Guard, backend string) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/ready", handlers.ReadinessCheck(sessions))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	chatHandler := handlers.NewChatStreamHandler(sessions, detector, guard, backend)

	api := router.Group("/api")
	{
		api.POST("/chat", chatHandler.HandleChatStream)
	}
}
