// Copyright (C) 2025 Lautan AI (dev@lautan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/LautanAI/LautanCore/services/agent/handlers"
)

// SetupRoutes registers the agent HTTP surface on the router.
func SetupRoutes(router *gin.Engine, version string, backends []string, processor handlers.QueryProcessor) {
	router.Use(otelgin.Middleware("lautan-core"))

	health := handlers.NewHealthHandler(version, backends)
	router.GET("/health", health.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	agentHandler := handlers.NewAgentHandler(processor)
	v1 := router.Group("/v1")
	{
		agent := v1.Group("/agent")
		{
			agent.POST("/query", agentHandler.Query)
			agent.POST("/stream", agentHandler.Stream)
			agent.GET("/ws", agentHandler.WebSocket)
		}
	}
}
