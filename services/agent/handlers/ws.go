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
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/LautanAI/LautanCore/services/agent/datatypes"
	"github.com/LautanAI/LautanCore/services/agent/observability"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 25 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser clients are same-origin; non-browser clients send no Origin.
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
	},
}

// WebSocket handles GET /v1/agent/ws.
//
// # Description
//
// Upgrades the connection, then serves one query per inbound JSON frame.
// Stream events go out as JSON messages in the same order as the SSE path.
// The full answer is assembled in an mlocked accumulator and its hash is
// attached to the done frame so clients can verify the transcript.
func (h *AgentHandler) WebSocket(c *gin.Context) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Debug("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	observability.ActiveStreams.Inc()
	defer observability.ActiveStreams.Dec()

	conn.SetReadLimit(datatypes.MaxQueryBytes + 4096)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	session := &wsSession{conn: conn}
	go session.pingLoop(ctx)

	for {
		var req datatypes.QueryRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("WebSocket closed unexpectedly", "error", err)
			}
			return
		}
		if err := req.Validate(); err != nil {
			if writeErr := session.writeEvent(datatypes.StreamEvent{
				Type: datatypes.EventError, Error: "request validation failed",
			}); writeErr != nil {
				return
			}
			continue
		}

		if err := h.serveWSQuery(ctx, session, &req); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	}
}

// serveWSQuery streams one query over the connection.
func (h *AgentHandler) serveWSQuery(ctx context.Context, session *wsSession, req *datatypes.QueryRequest) error {
	queryCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	accumulator := NewTokenAccumulator()
	defer accumulator.Destroy()

	for event := range h.processor.StreamQuery(queryCtx, req) {
		if event.Type == datatypes.EventToken {
			if err := accumulator.Write(event.Content); err != nil {
				slog.Warn("Token accumulation failed", "error", err)
			}
		}
		if event.Type == datatypes.EventDone {
			if _, hashHex, err := accumulator.Finalize(); err == nil {
				event.Hash = hashHex
			}
		}
		if err := session.writeEvent(event); err != nil {
			return err
		}
	}
	return nil
}

// wsSession serializes writes; gorilla connections allow one writer at a
// time and the ping loop runs beside the event stream.
type wsSession struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSession) writeEvent(event datatypes.StreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteJSON(event)
}

// pingLoop keeps the connection alive until ctx is canceled.
func (s *wsSession) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.mu.Unlock()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
