// Copyright (C) 2025 Lautan AI (dev@lautan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedBackend returns canned results in sequence, then repeats the last.
type scriptedBackend struct {
	name    string
	results []scriptedResult
	calls   int
}

type scriptedResult struct {
	completion *Completion
	err        error
}

func (s *scriptedBackend) Name() string { return s.name }

func (s *scriptedBackend) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	idx := s.calls
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	s.calls++
	r := s.results[idx]
	return r.completion, r.err
}

func timeoutErr(backend string) *BackendError {
	return &BackendError{Backend: backend, Kind: KindTimeout, Err: context.DeadlineExceeded}
}

func testChainConfig() ChainConfig {
	return ChainConfig{
		RequestsPerSecond: 1000,
		Burst:             1000,
	}
}

// TestFallbackChain_PrimarySucceeds verifies no fallback is recorded when the
// first backend serves the completion.
func TestFallbackChain_PrimarySucceeds(t *testing.T) {
	primary := &scriptedBackend{name: "anthropic", results: []scriptedResult{
		{completion: &Completion{Content: "hello", ModelName: "claude"}},
	}}
	secondary := &scriptedBackend{name: "openai"}

	chain, err := NewFallbackChain([]Backend{primary, secondary}, testChainConfig())
	require.NoError(t, err)

	res, err := chain.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", res.Backend)
	assert.Empty(t, res.Fallbacks, "no fallback should be recorded")
	assert.Equal(t, 0, secondary.calls, "secondary should not be called")
}

// TestFallbackChain_PrimaryTimesOutThreeTimes verifies the chain advances to
// the secondary backend after exhausting in-place retries, and that the
// secondary is named in the fallback list.
func TestFallbackChain_PrimaryTimesOutThreeTimes(t *testing.T) {
	primary := &scriptedBackend{name: "anthropic", results: []scriptedResult{
		{err: timeoutErr("anthropic")},
		{err: timeoutErr("anthropic")},
		{err: timeoutErr("anthropic")},
	}}
	secondary := &scriptedBackend{name: "openai", results: []scriptedResult{
		{completion: &Completion{Content: "recovered", ModelName: "gpt-4o-mini"}},
	}}

	chain, err := NewFallbackChain([]Backend{primary, secondary}, testChainConfig())
	require.NoError(t, err)

	res, err := chain.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, 3, primary.calls, "primary should be retried three times")
	assert.Equal(t, "openai", res.Backend)
	assert.Contains(t, res.Fallbacks, "openai")
	assert.Equal(t, "recovered", res.Completion.Content)
}

// TestFallbackChain_ContentPolicyAdvancesWithoutRetry verifies that a policy
// rejection is never retried on the same backend but still advances the chain.
func TestFallbackChain_ContentPolicyAdvancesWithoutRetry(t *testing.T) {
	primary := &scriptedBackend{name: "anthropic", results: []scriptedResult{
		{err: &BackendError{Backend: "anthropic", Kind: KindContentPolicy, StatusCode: 400,
			Err: assert.AnError}},
	}}
	secondary := &scriptedBackend{name: "openai", results: []scriptedResult{
		{completion: &Completion{Content: "ok"}},
	}}

	chain, err := NewFallbackChain([]Backend{primary, secondary}, testChainConfig())
	require.NoError(t, err)

	res, err := chain.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, primary.calls, "content-policy errors must not retry in place")
	assert.Equal(t, "openai", res.Backend)
}

// TestFallbackChain_AllBackendsExhausted verifies the terminal error wraps
// ErrAllBackendsExhausted.
func TestFallbackChain_AllBackendsExhausted(t *testing.T) {
	primary := &scriptedBackend{name: "anthropic", results: []scriptedResult{
		{err: timeoutErr("anthropic")},
	}}
	secondary := &scriptedBackend{name: "openai", results: []scriptedResult{
		{err: &BackendError{Backend: "openai", Kind: KindRateLimited, StatusCode: 429,
			Err: assert.AnError}},
	}}

	chain, err := NewFallbackChain([]Backend{primary, secondary}, testChainConfig())
	require.NoError(t, err)

	res, err := chain.Complete(context.Background(), CompletionRequest{})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrAllBackendsExhausted)
}

// TestFallbackChain_SkipsNilBackends verifies unconfigured (nil) backends are
// dropped at construction.
func TestFallbackChain_SkipsNilBackends(t *testing.T) {
	secondary := &scriptedBackend{name: "openai", results: []scriptedResult{
		{completion: &Completion{Content: "ok"}},
	}}

	chain, err := NewFallbackChain([]Backend{nil, secondary, nil}, testChainConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"openai"}, chain.Backends())

	res, err := chain.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "openai", res.Backend)
	assert.Empty(t, res.Fallbacks)
}

// TestFallbackChain_NoBackends verifies construction fails with an empty list.
func TestFallbackChain_NoBackends(t *testing.T) {
	_, err := NewFallbackChain(nil, testChainConfig())
	assert.Error(t, err)
}

// streamingBackend delivers scripted deltas, or fails after a given number
// of deltas when failAfter >= 0.
type streamingBackend struct {
	name      string
	deltas    []string
	failAfter int
	calls     int
}

func (s *streamingBackend) Name() string { return s.name }

func (s *streamingBackend) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	var content string
	for _, d := range s.deltas {
		content += d
	}
	return &Completion{Content: content}, nil
}

func (s *streamingBackend) StreamComplete(ctx context.Context, req CompletionRequest,
	fn func(delta string) error) (*Completion, error) {
	s.calls++
	var content string
	for i, d := range s.deltas {
		if s.failAfter >= 0 && i == s.failAfter {
			return nil, timeoutErr(s.name)
		}
		content += d
		if err := fn(d); err != nil {
			if errors.Is(err, ErrStopStreaming) {
				return &Completion{Content: content, FinishReason: "stop_requested"}, nil
			}
			return nil, err
		}
	}
	return &Completion{Content: content}, nil
}

// TestStreamComplete_DeliversDeltasInOrder verifies the callback sees every
// delta and the completion content matches their concatenation.
func TestStreamComplete_DeliversDeltasInOrder(t *testing.T) {
	backend := &streamingBackend{name: "ollama",
		deltas: []string{"Jakarta ", "requires ", "a KITAS."}, failAfter: -1}

	chain, err := NewFallbackChain([]Backend{backend}, testChainConfig())
	require.NoError(t, err)

	var got []string
	res, err := chain.StreamComplete(context.Background(), CompletionRequest{},
		func(delta string) error {
			got = append(got, delta)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"Jakarta ", "requires ", "a KITAS."}, got)
	assert.Equal(t, "Jakarta requires a KITAS.", res.Completion.Content)
}

// TestStreamComplete_EarlyStop verifies ErrStopStreaming from the callback
// ends generation cleanly with the accumulated content.
func TestStreamComplete_EarlyStop(t *testing.T) {
	backend := &streamingBackend{name: "ollama",
		deltas: []string{"ACTION: calculator(5+5)\n", "this should never arrive"},
		failAfter: -1}

	chain, err := NewFallbackChain([]Backend{backend}, testChainConfig())
	require.NoError(t, err)

	res, err := chain.StreamComplete(context.Background(), CompletionRequest{},
		func(delta string) error { return ErrStopStreaming })
	require.NoError(t, err)
	assert.Equal(t, "ACTION: calculator(5+5)\n", res.Completion.Content)
	assert.Equal(t, "stop_requested", res.Completion.FinishReason)
}

// TestStreamComplete_NoFallbackAfterFirstDelta verifies a mid-stream failure
// surfaces as an error instead of splicing another backend's output.
func TestStreamComplete_NoFallbackAfterFirstDelta(t *testing.T) {
	primary := &streamingBackend{name: "anthropic",
		deltas: []string{"partial ", "answer"}, failAfter: 1}
	secondary := &scriptedBackend{name: "openai", results: []scriptedResult{
		{completion: &Completion{Content: "should not serve"}},
	}}

	chain, err := NewFallbackChain([]Backend{primary, secondary}, testChainConfig())
	require.NoError(t, err)

	res, err := chain.StreamComplete(context.Background(), CompletionRequest{},
		func(delta string) error { return nil })
	assert.Nil(t, res)
	assert.Error(t, err)
	assert.Equal(t, 1, primary.calls, "no retry after a delivered delta")
	assert.Equal(t, 0, secondary.calls, "no fallback after a delivered delta")
}

// TestStreamComplete_FailureBeforeFirstDeltaFallsBack verifies pre-delta
// failures keep normal fallback semantics, with non-streaming backends
// served as a single delta.
func TestStreamComplete_FailureBeforeFirstDeltaFallsBack(t *testing.T) {
	primary := &streamingBackend{name: "anthropic",
		deltas: []string{"never"}, failAfter: 0}
	secondary := &scriptedBackend{name: "openai", results: []scriptedResult{
		{completion: &Completion{Content: "recovered"}},
	}}

	chain, err := NewFallbackChain([]Backend{primary, secondary}, testChainConfig())
	require.NoError(t, err)

	var got []string
	res, err := chain.StreamComplete(context.Background(), CompletionRequest{},
		func(delta string) error {
			got = append(got, delta)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, "openai", res.Backend)
	assert.Contains(t, res.Fallbacks, "openai")
	assert.Equal(t, []string{"recovered"}, got)
	assert.Equal(t, 3, primary.calls, "pre-delta timeouts retry in place")
}

// TestClassifyError covers the status-code to kind mapping.
func TestClassifyError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		err    error
		want   ErrorKind
	}{
		{"deadline", 0, context.DeadlineExceeded, KindTimeout},
		{"rate limited", 429, nil, KindRateLimited},
		{"server", 503, nil, KindServer},
		{"content policy", 400, nil, KindContentPolicy},
		{"other", 0, assert.AnError, KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyError(tt.status, tt.err))
		})
	}
}
