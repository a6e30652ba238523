// Copyright (C) 2025 Lautan AI (dev@lautan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit persists agent traces for offline evaluation and golden
// answer curation.
//
// The store is append-only: one row per completed trace, steps JSON-encoded.
// Writes are best-effort from the caller's perspective; a broken audit sink
// must never fail a user query.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/LautanAI/LautanCore/services/agent/datatypes"
)

const schema = `
CREATE TABLE IF NOT EXISTS agent_traces (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    correlation_id TEXT NOT NULL,
    query TEXT NOT NULL,
    final_answer TEXT NOT NULL,
    steps_json TEXT NOT NULL,
    retrieved_docs_json TEXT NOT NULL,
    confidence_scores_json TEXT NOT NULL,
    fallbacks_activated TEXT NOT NULL,
    total_duration_ms INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_agent_traces_correlation
    ON agent_traces(correlation_id);
`

// Store appends agent traces to SQLite.
//
// # Thread Safety
//
// Safe for concurrent use. Appends are serialized with a mutex; SQLite
// handles one writer at a time anyway, and serializing avoids lock
// contention errors from the driver.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// NewStore opens (or creates) the audit database at path and ensures the
// schema exists.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create audit schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append writes one completed trace.
func (s *Store) Append(ctx context.Context, trace *datatypes.AgentTrace) error {
	steps, err := json.Marshal(trace.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode trace steps: %w", err)
	}
	docs, err := json.Marshal(trace.RetrievedDocs)
	if err != nil {
		return fmt.Errorf("failed to encode retrieved docs: %w", err)
	}
	scores, err := json.Marshal(trace.ConfidenceScores)
	if err != nil {
		return fmt.Errorf("failed to encode confidence scores: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agent_traces
			(correlation_id, query, final_answer, steps_json,
			 retrieved_docs_json, confidence_scores_json,
			 fallbacks_activated, total_duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		trace.CorrelationID,
		trace.Query,
		trace.FinalAnswer,
		string(steps),
		string(docs),
		string(scores),
		strings.Join(trace.FallbacksActivated, ","),
		trace.TotalDuration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to append trace: %w", err)
	}
	return nil
}

// Count returns the number of stored traces, for tests and health checks.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM agent_traces").Scan(&n)
	return n, err
}

// TraceRow is one persisted trace, decoded for offline evaluation.
type TraceRow struct {
	CorrelationID      string
	Query              string
	FinalAnswer        string
	Steps              []datatypes.AgentStep
	FallbacksActivated []string
	TotalDuration      time.Duration
}

// Recent returns the most recent traces, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]TraceRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT correlation_id, query, final_answer, steps_json,
		       fallbacks_activated, total_duration_ms
		FROM agent_traces ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query traces: %w", err)
	}
	defer rows.Close()

	var out []TraceRow
	for rows.Next() {
		var row TraceRow
		var stepsJSON, fallbacks string
		var durationMs int64
		if err := rows.Scan(&row.CorrelationID, &row.Query, &row.FinalAnswer,
			&stepsJSON, &fallbacks, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan trace: %w", err)
		}
		if err := json.Unmarshal([]byte(stepsJSON), &row.Steps); err != nil {
			return nil, fmt.Errorf("corrupt steps for trace %s: %w", row.CorrelationID, err)
		}
		if fallbacks != "" {
			row.FallbacksActivated = strings.Split(fallbacks, ",")
		}
		row.TotalDuration = time.Duration(durationMs) * time.Millisecond
		out = append(out, row)
	}
	return out, rows.Err()
}
