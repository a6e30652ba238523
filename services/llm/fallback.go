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
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// Fallback Chain
// =============================================================================

// ChainConfig holds tuning knobs for the fallback chain.
//
// # Description
//
// Zero values are replaced with defaults by NewFallbackChain.
type ChainConfig struct {
	// AttemptTimeout is the deadline applied to each individual backend call.
	// Default: 45 seconds.
	AttemptTimeout time.Duration

	// MaxAttemptsPerBackend bounds in-place retries for transient failures
	// (timeouts, 5xx) before advancing to the next backend. Default: 3.
	MaxAttemptsPerBackend int

	// RequestsPerSecond is the per-backend rate limit. Default: 2.
	RequestsPerSecond float64

	// Burst is the per-backend rate limiter burst. Default: 4.
	Burst int
}

func applyChainDefaults(cfg ChainConfig) ChainConfig {
	if cfg.AttemptTimeout == 0 {
		cfg.AttemptTimeout = 45 * time.Second
	}
	if cfg.MaxAttemptsPerBackend == 0 {
		cfg.MaxAttemptsPerBackend = 3
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.Burst == 0 {
		cfg.Burst = 4
	}
	return cfg
}

// Result is a successful chain completion plus routing metadata.
type Result struct {
	Completion *Completion

	// Backend is the name of the backend that produced the completion.
	Backend string

	// Fallbacks lists the backends that served after the first configured
	// backend failed, in activation order. Empty when the primary succeeded.
	Fallbacks []string
}

// FallbackChain routes completion requests across an ordered backend list.
//
// # Description
//
// Backends are attempted in construction order. Transient failures (timeouts,
// 5xx) are retried on the same backend up to MaxAttemptsPerBackend; rate
// limits and content-policy rejections advance to the next backend
// immediately. Exhausting every backend returns ErrAllBackendsExhausted.
//
// Unconfigured backends never enter the chain: constructors that fail (e.g.
// missing API key) simply contribute no entry.
//
// # Thread Safety
//
// Safe for concurrent use. The backend list is immutable after construction
// and rate limiters are internally synchronized.
type FallbackChain struct {
	backends []Backend
	limiters map[string]*rate.Limiter
	cfg      ChainConfig
}

// NewFallbackChain creates a chain over the given backends, in priority order.
//
// # Inputs
//
//   - backends: Ordered backend list. Nil entries are skipped.
//   - cfg: Chain configuration. Zero values use defaults.
//
// # Outputs
//
//   - *FallbackChain: Ready to serve completions.
//   - error: Non-nil if no usable backend was supplied.
func NewFallbackChain(backends []Backend, cfg ChainConfig) (*FallbackChain, error) {
	cfg = applyChainDefaults(cfg)

	chain := &FallbackChain{
		limiters: make(map[string]*rate.Limiter),
		cfg:      cfg,
	}
	for _, b := range backends {
		if b == nil {
			continue
		}
		chain.backends = append(chain.backends, b)
		chain.limiters[b.Name()] = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}
	if len(chain.backends) == 0 {
		return nil, fmt.Errorf("no model backends configured")
	}
	return chain, nil
}

// Backends returns the names of the configured backends in priority order.
func (c *FallbackChain) Backends() []string {
	names := make([]string, 0, len(c.backends))
	for _, b := range c.backends {
		names = append(names, b.Name())
	}
	return names
}

// Complete attempts the request against each backend in order.
//
// # Description
//
// The first successful completion wins. Per-attempt deadlines and per-backend
// rate limits apply. On total failure the returned error wraps
// ErrAllBackendsExhausted together with the last backend error, so callers
// can match either with errors.Is / errors.As.
//
// # Inputs
//
//   - ctx: Caller context. Cancellation aborts the chain between attempts.
//   - req: The completion request, forwarded unchanged to each backend.
//
// # Outputs
//
//   - *Result: Completion plus which backend served it and any fallbacks.
//   - error: Non-nil only when every backend failed or ctx was canceled.
func (c *FallbackChain) Complete(ctx context.Context, req CompletionRequest) (*Result, error) {
	var lastErr error
	var fallbacks []string

	for i, backend := range c.backends {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		completion, err := c.tryBackend(ctx, backend, req)
		if err == nil {
			if i > 0 {
				fallbacks = append(fallbacks, backend.Name())
				slog.Info("Model fallback served completion",
					"backend", backend.Name(), "position", i)
			}
			return &Result{
				Completion: completion,
				Backend:    backend.Name(),
				Fallbacks:  fallbacks,
			}, nil
		}

		lastErr = err
		if i > 0 {
			fallbacks = append(fallbacks, backend.Name())
		}
		slog.Warn("Model backend failed, advancing fallback chain",
			"backend", backend.Name(), "error", err)
	}

	return nil, fmt.Errorf("%w: %v", ErrAllBackendsExhausted, lastErr)
}

// StreamComplete attempts a streaming request against each backend in order.
//
// # Description
//
// Same routing semantics as Complete, with one restriction: once a backend
// has delivered a delta to fn, the chain can no longer fall back — another
// backend's output cannot be spliced after deltas the caller has already
// consumed. Failures before the first delta retry and advance exactly like
// Complete. Backends that do not implement StreamingBackend are served via
// Complete and deliver their content as a single delta.
//
// # Inputs
//
//   - ctx: Caller context. Cancellation aborts between attempts.
//   - req: The completion request, forwarded unchanged to each backend.
//   - fn: Delta callback. Return ErrStopStreaming to end generation early.
//
// # Outputs
//
//   - *Result: Completion plus which backend served it and any fallbacks.
//   - error: Non-nil when every backend failed before the first delta, or
//     when a backend failed mid-stream.
func (c *FallbackChain) StreamComplete(ctx context.Context, req CompletionRequest,
	fn func(delta string) error) (*Result, error) {
	var lastErr error
	var fallbacks []string

	for i, backend := range c.backends {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		delivered := false
		wrapped := func(delta string) error {
			delivered = true
			return fn(delta)
		}

		completion, err := c.tryBackendStream(ctx, backend, req, wrapped, &delivered)
		if err == nil {
			if i > 0 {
				fallbacks = append(fallbacks, backend.Name())
				slog.Info("Model fallback served streaming completion",
					"backend", backend.Name(), "position", i)
			}
			return &Result{
				Completion: completion,
				Backend:    backend.Name(),
				Fallbacks:  fallbacks,
			}, nil
		}
		if delivered {
			return nil, fmt.Errorf("backend %s failed mid-stream: %w", backend.Name(), err)
		}

		lastErr = err
		if i > 0 {
			fallbacks = append(fallbacks, backend.Name())
		}
		slog.Warn("Model backend failed, advancing fallback chain",
			"backend", backend.Name(), "error", err)
	}

	return nil, fmt.Errorf("%w: %v", ErrAllBackendsExhausted, lastErr)
}

// tryBackendStream runs one backend's streaming path with in-place retries.
// Retries stop as soon as any delta has been delivered.
func (c *FallbackChain) tryBackendStream(ctx context.Context, backend Backend,
	req CompletionRequest, fn func(delta string) error, delivered *bool) (*Completion, error) {
	streamer, ok := backend.(StreamingBackend)
	if !ok {
		completion, err := c.tryBackend(ctx, backend, req)
		if err != nil {
			return nil, err
		}
		if err := fn(completion.Content); err != nil && !errors.Is(err, ErrStopStreaming) {
			return nil, err
		}
		return completion, nil
	}

	limiter := c.limiters[backend.Name()]

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttemptsPerBackend; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
		completion, err := streamer.StreamComplete(attemptCtx, req, fn)
		cancel()

		if err == nil {
			return completion, nil
		}
		lastErr = err
		if *delivered {
			break
		}

		var backendErr *BackendError
		if errors.As(err, &backendErr) && backendErr.Retryable() && attempt < c.cfg.MaxAttemptsPerBackend {
			slog.Debug("Retrying backend after transient failure",
				"backend", backend.Name(), "attempt", attempt, "kind", backendErr.Kind)
			continue
		}
		break
	}
	return nil, lastErr
}

// tryBackend runs one backend with in-place retries for transient failures.
func (c *FallbackChain) tryBackend(ctx context.Context, backend Backend, req CompletionRequest) (*Completion, error) {
	limiter := c.limiters[backend.Name()]

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttemptsPerBackend; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
		completion, err := backend.Complete(attemptCtx, req)
		cancel()

		if err == nil {
			return completion, nil
		}
		lastErr = err

		var backendErr *BackendError
		if errors.As(err, &backendErr) && backendErr.Retryable() && attempt < c.cfg.MaxAttemptsPerBackend {
			slog.Debug("Retrying backend after transient failure",
				"backend", backend.Name(), "attempt", attempt, "kind", backendErr.Kind)
			continue
		}
		break
	}
	return nil, lastErr
}
