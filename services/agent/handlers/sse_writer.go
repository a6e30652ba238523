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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LautanAI/LautanCore/services/agent/datatypes"
)

// SSEWriter writes stream events to an HTTP response in SSE wire format.
//
// # Description
//
// Each event is automatically assigned:
//   - Id: UUID v4 for ordering and deduplication
//   - CreatedAt: Unix timestamp in milliseconds
//   - Hash: SHA-256 over the event content for integrity
//   - PrevHash: hash of the previous event, forming a chain
//
// The hash chain gives clients chain of custody over delivered content,
// sources, and timestamps.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
//
// # Assumptions
//
//   - Caller has set Content-Type: text/event-stream before writing
//   - Caller has disabled proxy buffering (X-Accel-Buffering: no)
type SSEWriter interface {
	// WriteEvent writes one event, populating Id, CreatedAt, Hash, PrevHash.
	WriteEvent(event datatypes.StreamEvent) error

	// WriteError writes a sanitized error event. The stream should be closed
	// afterwards.
	WriteError(errMsg string) error

	// WriteKeepAlive sends an SSE comment line (": ping") to keep the
	// connection alive through proxies with idle timeouts. Comments are not
	// events and do not enter the hash chain.
	WriteKeepAlive() error
}

// SetSSEHeaders sets the response headers required before streaming.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// sseWriter implements SSEWriter over an http.ResponseWriter.
//
// # Thread Safety
//
// Thread-safe via mutex; hash chain integrity holds across concurrent
// writes.
type sseWriter struct {
	writer   http.ResponseWriter
	flusher  http.Flusher
	prevHash string
	mu       sync.Mutex
}

// NewSSEWriter wraps the ResponseWriter. Fails when the writer cannot flush.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseWriter{writer: w, flusher: flusher}, nil
}

// WriteEvent implements the SSEWriter interface.
func (w *sseWriter) WriteEvent(event datatypes.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	event.Id = uuid.New().String()
	event.CreatedAt = time.Now().UnixMilli()
	event.PrevHash = w.prevHash
	event.Hash = computeEventHash(event)
	w.prevHash = event.Hash

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// WriteError implements the SSEWriter interface.
func (w *sseWriter) WriteError(errMsg string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:  datatypes.EventError,
		Error: errMsg,
	})
}

// WriteKeepAlive implements the SSEWriter interface.
func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprint(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keep-alive: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// computeEventHash hashes the event content for the integrity chain.
//
// Covers metadata (Id, Type, CreatedAt, PrevHash), all content fields, and
// the JSON-serialized sources. The Hash field itself must be empty.
func computeEventHash(event datatypes.StreamEvent) string {
	sourcesJSON := ""
	if len(event.Sources) > 0 {
		if data, err := json.Marshal(event.Sources); err == nil {
			sourcesJSON = string(data)
		}
	}

	hashInput := fmt.Sprintf("%s|%s|%d|%s|%s|%s|%s|%d|%s|%s|%s|%s",
		event.Id,
		event.Type,
		event.CreatedAt,
		event.PrevHash,
		event.Content,
		event.Message,
		event.ToolName,
		event.DurationMs,
		event.Error,
		event.SessionId,
		event.CorrelationId,
		sourcesJSON,
	)

	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])
}
