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
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LautanAI/LautanCore/services/agent/datatypes"
)

// parseSSEEvents extracts the data payloads from a recorded SSE body.
func parseSSEEvents(t *testing.T, body string) []datatypes.StreamEvent {
	t.Helper()
	var events []datatypes.StreamEvent
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event datatypes.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
		events = append(events, event)
	}
	return events
}

// TestSSEWriter_HashChain verifies each event links to its predecessor and
// that every hash is recomputable from the event fields.
func TestSSEWriter_HashChain(t *testing.T) {
	rec := httptest.NewRecorder()
	writer, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, writer.WriteEvent(datatypes.StreamEvent{
		Type: datatypes.EventMetadata, CorrelationId: "corr-1",
	}))
	require.NoError(t, writer.WriteEvent(datatypes.StreamEvent{
		Type: datatypes.EventToken, Content: "PT PMA setup ",
	}))
	require.NoError(t, writer.WriteEvent(datatypes.StreamEvent{
		Type: datatypes.EventDone, SessionId: "sess-1",
	}))

	events := parseSSEEvents(t, rec.Body.String())
	require.Len(t, events, 3)

	assert.Empty(t, events[0].PrevHash, "chain starts with an empty prev_hash")
	for i, event := range events {
		assert.NotEmpty(t, event.Id)
		assert.NotZero(t, event.CreatedAt)

		expected := event
		expected.Hash = ""
		assert.Equal(t, computeEventHash(expected), event.Hash,
			"event %d hash must be recomputable", i)

		if i > 0 {
			assert.Equal(t, events[i-1].Hash, event.PrevHash,
				"event %d must link to predecessor", i)
		}
	}
}

// TestSSEWriter_WireFormat verifies the event/data framing.
func TestSSEWriter_WireFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	writer, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, writer.WriteEvent(datatypes.StreamEvent{
		Type: datatypes.EventToken, Content: "hello",
	}))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "event: "+datatypes.EventToken+"\n"))
	assert.Contains(t, body, "\ndata: ")
	assert.True(t, strings.HasSuffix(body, "\n\n"))
}

// TestSSEWriter_KeepAliveOutsideChain verifies pings are comments and do not
// advance the hash chain.
func TestSSEWriter_KeepAliveOutsideChain(t *testing.T) {
	rec := httptest.NewRecorder()
	writer, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, writer.WriteEvent(datatypes.StreamEvent{
		Type: datatypes.EventToken, Content: "a",
	}))
	require.NoError(t, writer.WriteKeepAlive())
	require.NoError(t, writer.WriteEvent(datatypes.StreamEvent{
		Type: datatypes.EventToken, Content: "b",
	}))

	assert.Contains(t, rec.Body.String(), ": ping\n\n")

	events := parseSSEEvents(t, rec.Body.String())
	require.Len(t, events, 2)
	assert.Equal(t, events[0].Hash, events[1].PrevHash,
		"keep-alive must not break the chain")
}

// TestSSEWriter_WriteError emits a terminal error event.
func TestSSEWriter_WriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	writer, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, writer.WriteError("query processing failed"))

	events := parseSSEEvents(t, rec.Body.String())
	require.Len(t, events, 1)
	assert.Equal(t, datatypes.EventError, events[0].Type)
	assert.Equal(t, "query processing failed", events[0].Error)
}
