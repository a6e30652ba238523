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
	"fmt"
	"net"
	"net/http"
	"strings"
)

// =============================================================================
// Error Taxonomy
// =============================================================================

// ErrorKind classifies a backend failure for fallback routing.
type ErrorKind string

const (
	// KindTimeout covers deadline exceeded and network timeouts.
	KindTimeout ErrorKind = "timeout"

	// KindRateLimited covers HTTP 429 responses.
	KindRateLimited ErrorKind = "rate_limited"

	// KindContentPolicy covers 4xx content-policy rejections. These are not
	// retried on the same backend but do advance the fallback chain.
	KindContentPolicy ErrorKind = "content_policy"

	// KindServer covers 5xx responses.
	KindServer ErrorKind = "server"

	// KindOther covers everything else (malformed responses, local errors).
	KindOther ErrorKind = "other"
)

// ErrAllBackendsExhausted is returned when every configured backend has
// failed. The orchestrator converts it into a degraded, honest answer.
var ErrAllBackendsExhausted = errors.New("all model backends exhausted")

// ErrStopStreaming is returned by a StreamComplete callback to end
// generation early. The backend stops cleanly and returns the deltas
// accumulated so far; the chain does not treat it as a failure.
var ErrStopStreaming = errors.New("stop streaming")

// BackendError wraps a single backend failure with its classification.
type BackendError struct {
	Backend    string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s (%s): %v", e.Backend, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Retryable reports whether the same backend may be attempted again.
// Only timeouts and server errors are worth retrying in place; rate limits
// and policy rejections advance the chain immediately.
func (e *BackendError) Retryable() bool {
	return e.Kind == KindTimeout || e.Kind == KindServer
}

// classifyError maps an HTTP status and transport error onto an ErrorKind.
func classifyError(statusCode int, err error) ErrorKind {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return KindTimeout
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return KindTimeout
		}
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return KindRateLimited
	case statusCode >= 500:
		return KindServer
	case statusCode >= 400:
		// Provider content filters surface as 400-level errors with policy
		// wording in the body; treat all remaining 4xx as policy rejections
		// since retrying identical input cannot succeed.
		return KindContentPolicy
	}

	if err != nil && strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return KindTimeout
	}

	return KindOther
}
