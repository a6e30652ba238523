// Copyright (C) 2025 Lautan AI (dev@lautan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// =============================================================================
// Stream Event Types
// =============================================================================

// Stream event type discriminators. Events within one stream are strictly
// ordered: metadata, status, interleaved tool_start/tool_end, token chunks,
// then exactly one done or error.
const (
	EventMetadata  = "metadata"
	EventStatus    = "status"
	EventToolStart = "tool_start"
	EventToolEnd   = "tool_end"
	EventToken     = "token"
	EventSources   = "sources"
	EventDone      = "done"
	EventError     = "error"
)

// StreamEvent is one frame of the incremental response stream.
//
// # Description
//
// StreamEvent is a tagged union discriminated by Type. Only the fields
// relevant to the event type are populated; all others are omitted from the
// JSON encoding. The SSE writer populates Id, CreatedAt, Hash, and PrevHash
// to form an integrity chain over the delivered frames.
//
// # Fields
//
//   - Type: Event discriminator (see Event* constants).
//   - Id: UUID v4 assigned at write time for ordering and deduplication.
//   - CreatedAt: Unix timestamp in milliseconds at write time.
//   - Hash: SHA-256 over the event content.
//   - PrevHash: Hash of the preceding event, chaining the stream.
//   - Content: Token text (token events).
//   - Message: Human-readable status text (status events).
//   - ToolName: Tool identifier (tool_start / tool_end events).
//   - DurationMs: Tool execution wall time (tool_end events).
//   - Error: Sanitized error message (error events).
//   - SessionId: Session identifier (done events).
//   - CorrelationId: Query correlation id (metadata events).
//   - Sources: Cited source documents (sources events).
type StreamEvent struct {
	Type          string       `json:"type"`
	Id            string       `json:"id,omitempty"`
	CreatedAt     int64        `json:"created_at,omitempty"`
	Hash          string       `json:"hash,omitempty"`
	PrevHash      string       `json:"prev_hash,omitempty"`
	Content       string       `json:"content,omitempty"`
	Message       string       `json:"message,omitempty"`
	ToolName      string       `json:"tool_name,omitempty"`
	DurationMs    int64        `json:"duration_ms,omitempty"`
	Error         string       `json:"error,omitempty"`
	SessionId     string       `json:"session_id,omitempty"`
	CorrelationId string       `json:"correlation_id,omitempty"`
	Sources       []SourceInfo `json:"sources,omitempty"`
}

// SourceInfo is a retrieved document reference with its relevance score.
type SourceInfo struct {
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}
