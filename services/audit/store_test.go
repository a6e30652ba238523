// Copyright (C) 2025 Lautan AI (dev@lautan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/LautanAI/LautanCore/services/agent/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleTrace() *datatypes.AgentTrace {
	return &datatypes.AgentTrace{
		Query:         "What is the corporate tax rate?",
		CorrelationID: "corr-123",
		Steps: []datatypes.AgentStep{
			{
				StepNumber: 1,
				Thought:    "Need the current rate",
				Action: &datatypes.ToolCall{
					ToolName:  "vector_search",
					Arguments: map[string]string{"query": "corporate tax rate"},
				},
				Observation: "Rate is 22%",
				Timestamp:   time.Now(),
			},
		},
		FallbacksActivated: []string{"anthropic"},
		FinalAnswer:        "The corporate tax rate is 22%.",
		TotalDuration:      1200 * time.Millisecond,
	}
}

func TestStore_AppendAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, sampleTrace()))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	traces, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, traces, 1)
	assert.Equal(t, "corr-123", traces[0].CorrelationID)
	assert.Equal(t, "The corporate tax rate is 22%.", traces[0].FinalAnswer)
	assert.Equal(t, []string{"anthropic"}, traces[0].FallbacksActivated)
	require.Len(t, traces[0].Steps, 1)
	assert.Equal(t, "vector_search", traces[0].Steps[0].Action.ToolName)
	assert.Equal(t, 1200*time.Millisecond, traces[0].TotalDuration)
}

func TestStore_RecentNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := sampleTrace()
	first.CorrelationID = "corr-1"
	second := sampleTrace()
	second.CorrelationID = "corr-2"

	require.NoError(t, store.Append(ctx, first))
	require.NoError(t, store.Append(ctx, second))

	traces, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, traces, 1)
	assert.Equal(t, "corr-2", traces[0].CorrelationID)
}

func TestStore_ConcurrentAppends(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	done := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func() {
			done <- store.Append(ctx, sampleTrace())
		}()
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, <-done)
	}

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), count)
}
