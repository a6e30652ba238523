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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatedTool_DeniesUnlistedCaller(t *testing.T) {
	gated := NewGatedTool(&fakeTool{name: "web_search", out: "results"}, []string{"user-a"})

	ctx := WithCaller(context.Background(), "user-b")
	out, err := gated.Execute(ctx, nil)
	require.NoError(t, err, "refusal is an observation, not an error")
	assert.Equal(t, RefusalMessage, out)
}

func TestGatedTool_DeniesAnonymousCaller(t *testing.T) {
	gated := NewGatedTool(&fakeTool{name: "web_search", out: "results"}, []string{"user-a"})

	out, err := gated.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, RefusalMessage, out)
}

func TestGatedTool_AllowsListedCaller(t *testing.T) {
	inner := &fakeTool{name: "web_search", out: "results"}
	gated := NewGatedTool(inner, []string{"user-a"})

	ctx := WithCaller(context.Background(), "user-a")
	out, err := gated.Execute(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "results", out)
	assert.Equal(t, 1, inner.calls)
}

func TestGatedTool_EmptyAllowListDeniesEveryone(t *testing.T) {
	gated := NewGatedTool(&fakeTool{name: "memory"}, nil)

	out, err := gated.Execute(WithCaller(context.Background(), "user-a"), nil)
	require.NoError(t, err)
	assert.Equal(t, RefusalMessage, out)
}
