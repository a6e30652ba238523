// Copyright (C) 2025 Lautan AI (dev@lautan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LautanAI/LautanCore/services/agent/datatypes"
	"github.com/LautanAI/LautanCore/services/agent/observability"
)

// keepAliveInterval is how often SSE comment pings go out during quiet
// stretches (long retrievals, slow model calls). Below common proxy idle
// timeouts (Nginx default 60s, AWS ALB 60s).
const keepAliveInterval = 15 * time.Second

// Stream handles POST /v1/agent/stream.
//
// # Description
//
// Runs the query through the streaming path and forwards every event in SSE
// format with the integrity hash chain. Keep-alive comments are interleaved
// during quiet periods. Client disconnects cancel the underlying loop via
// the request context.
func (h *AgentHandler) Stream(c *gin.Context) {
	var req datatypes.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request validation failed"})
		return
	}

	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	observability.ActiveStreams.Inc()
	defer observability.ActiveStreams.Dec()

	ctx := c.Request.Context()
	events := h.processor.StreamQuery(ctx, &req)

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := writer.WriteEvent(event); err != nil {
				slog.Debug("SSE write failed, client likely disconnected", "error", err)
				return
			}
		case <-ticker.C:
			if err := writer.WriteKeepAlive(); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
