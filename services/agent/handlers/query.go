// Copyright (C) 2025 Lautan AI (dev@lautan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the Gin handlers for the agent HTTP surface.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LautanAI/LautanCore/services/agent/datatypes"
	"github.com/LautanAI/LautanCore/services/agent/observability"
)

// QueryProcessor is the orchestrator surface the handlers depend on.
type QueryProcessor interface {
	ProcessQuery(ctx context.Context, req *datatypes.QueryRequest) (*datatypes.QueryResponse, error)
	StreamQuery(ctx context.Context, req *datatypes.QueryRequest) <-chan datatypes.StreamEvent
}

// AgentHandler serves the blocking and streaming query endpoints.
type AgentHandler struct {
	processor QueryProcessor
}

// NewAgentHandler creates the handler.
func NewAgentHandler(processor QueryProcessor) *AgentHandler {
	return &AgentHandler{processor: processor}
}

// Query handles POST /v1/agent/query.
//
// # Description
//
// Binds and validates the request, runs the query to completion, and returns
// the full response including the reasoning steps. Internal errors are never
// exposed; clients get a generic message (SEC-005).
func (h *AgentHandler) Query(c *gin.Context) {
	var req datatypes.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		slog.Debug("Query request failed validation", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "request validation failed"})
		return
	}

	start := time.Now()
	resp, err := h.processor.ProcessQuery(c.Request.Context(), &req)
	observability.QueryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.QueriesTotal.WithLabelValues("error", "loop").Inc()
		slog.Error("Query processing failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query processing failed"})
		return
	}

	observability.QueriesTotal.WithLabelValues("ok", observability.AnswerPath(resp.MatchType)).Inc()
	observability.ToolCalls.Observe(float64(resp.ToolsCalled))
	observability.ReasoningSteps.Observe(float64(resp.TotalSteps))
	c.JSON(http.StatusOK, resp)
}
