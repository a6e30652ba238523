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

import "context"

// RefusalMessage is returned verbatim when a gated tool denies a caller.
// Fixed wording so refusals are indistinguishable across tools and callers.
const RefusalMessage = "This capability is not enabled for your account."

type callerKey struct{}

// WithCaller attaches the caller identity used by gated tools.
func WithCaller(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, callerKey{}, userID)
}

// CallerFrom returns the caller identity, or "" when none was attached.
func CallerFrom(ctx context.Context) string {
	id, _ := ctx.Value(callerKey{}).(string)
	return id
}

// GatedTool wraps a tool behind a caller allow-list.
//
// # Description
//
// Denied callers get RefusalMessage as a successful observation, never an
// error: the agent should treat the refusal as final rather than retrying.
// An empty allow-list denies everyone.
//
// # Thread Safety
//
// Safe for concurrent use; the allow-list is fixed at construction.
type GatedTool struct {
	inner   Tool
	allowed map[string]bool
}

// NewGatedTool wraps a tool with an allow-list of user ids.
func NewGatedTool(inner Tool, allowedUserIDs []string) *GatedTool {
	allowed := make(map[string]bool, len(allowedUserIDs))
	for _, id := range allowedUserIDs {
		allowed[id] = true
	}
	return &GatedTool{inner: inner, allowed: allowed}
}

// Descriptor implements the Tool interface.
func (t *GatedTool) Descriptor() Descriptor {
	return t.inner.Descriptor()
}

// Execute implements the Tool interface.
func (t *GatedTool) Execute(ctx context.Context, args map[string]string) (string, error) {
	caller := CallerFrom(ctx)
	if caller == "" || !t.allowed[caller] {
		return RefusalMessage, nil
	}
	return t.inner.Execute(ctx, args)
}
