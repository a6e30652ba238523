// Copyright (C) 2025 Lautan AI (dev@lautan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTool is a scriptable Tool for executor tests.
type fakeTool struct {
	name   string
	params map[string]ParamDef
	out    string
	err    error
	panics bool
	calls  int
}

func (f *fakeTool) Descriptor() Descriptor {
	return Descriptor{Name: f.name, Description: "fake", Parameters: f.params}
}

func (f *fakeTool) Execute(ctx context.Context, args map[string]string) (string, error) {
	f.calls++
	if f.panics {
		panic("boom")
	}
	return f.out, f.err
}

func TestRegistry_RejectsDuplicateNames(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&fakeTool{name: "calculator"}))
	assert.Error(t, registry.Register(&fakeTool{name: "calculator"}))
	assert.Equal(t, 1, registry.Len())
}

func TestRegistry_DescriptorsSortedByName(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&fakeTool{name: "pricing"}))
	require.NoError(t, registry.Register(&fakeTool{name: "calculator"}))

	descs := registry.Descriptors()
	require.Len(t, descs, 2)
	assert.Equal(t, "calculator", descs[0].Name)
	assert.Equal(t, "pricing", descs[1].Name)
}

func TestExecutor_UnknownToolReturnsErrorString(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&fakeTool{name: "calculator"}))
	executor := NewExecutor(registry, 0)

	out := executor.Execute(context.Background(), "nonexistent", nil)
	assert.True(t, strings.HasPrefix(out, "ERROR:"), "got %q", out)
	assert.Contains(t, out, "calculator", "error should list available tools")
}

func TestExecutor_MissingRequiredArgument(t *testing.T) {
	registry := NewRegistry()
	tool := &fakeTool{
		name:   "vector_search",
		params: map[string]ParamDef{"query": {Required: true}},
	}
	require.NoError(t, registry.Register(tool))
	executor := NewExecutor(registry, 0)

	out := executor.Execute(context.Background(), "vector_search", map[string]string{})
	assert.True(t, strings.HasPrefix(out, "ERROR:"), "got %q", out)
	assert.Zero(t, tool.calls, "tool must not run with invalid arguments")
}

func TestExecutor_RejectsUnknownArgument(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&fakeTool{name: "calculator", params: map[string]ParamDef{}}))
	executor := NewExecutor(registry, 0)

	out := executor.Execute(context.Background(), "calculator", map[string]string{"bogus": "1"})
	assert.True(t, strings.HasPrefix(out, "ERROR:"), "got %q", out)
}

func TestExecutor_ExecutionErrorBecomesObservation(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&fakeTool{
		name: "web_search",
		err:  fmt.Errorf("connection refused"),
	}))
	executor := NewExecutor(registry, 0)

	out := executor.Execute(context.Background(), "web_search", nil)
	assert.Equal(t, "ERROR: connection refused", out)
}

func TestExecutor_PanicBecomesObservation(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&fakeTool{name: "memory", panics: true}))
	executor := NewExecutor(registry, 0)

	out := executor.Execute(context.Background(), "memory", nil)
	assert.True(t, strings.HasPrefix(out, "ERROR:"), "got %q", out)
}

func TestExecutor_TruncatesLongOutput(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&fakeTool{
		name: "filesystem",
		out:  strings.Repeat("x", MaxObservationChars+100),
	}))
	executor := NewExecutor(registry, 0)

	out := executor.Execute(context.Background(), "filesystem", nil)
	assert.Contains(t, out, "[output truncated]")
	assert.LessOrEqual(t, len(out), MaxObservationChars+len("\n[output truncated]"))
}

func TestExecutor_TruncationPreservesRuneBoundaries(t *testing.T) {
	registry := NewRegistry()
	// "±" is 2 bytes in UTF-8; the ASCII prefix misaligns every rune start
	// so a byte-indexed cut at the limit would land mid-rune.
	require.NoError(t, registry.Register(&fakeTool{
		name: "db_query",
		out:  "x" + strings.Repeat("±", MaxObservationChars),
	}))
	executor := NewExecutor(registry, 0)

	out := executor.Execute(context.Background(), "db_query", nil)
	assert.Contains(t, out, "[output truncated]")
	assert.True(t, utf8.ValidString(out), "truncated observation must be valid UTF-8")
}
