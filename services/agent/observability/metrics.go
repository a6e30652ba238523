// Copyright (C) 2025 Lautan AI (dev@lautan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability exposes Prometheus metrics for the agent service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTotal counts processed queries by outcome ("ok", "error") and
	// answer path ("loop", "exact", "semantic").
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lautan",
		Subsystem: "agent",
		Name:      "queries_total",
		Help:      "Processed agent queries by outcome and answer path.",
	}, []string{"outcome", "path"})

	// QueryDuration observes end-to-end query latency.
	QueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "lautan",
		Subsystem: "agent",
		Name:      "query_duration_seconds",
		Help:      "End-to-end agent query latency.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	// ToolCalls counts tool invocations per completed query.
	ToolCalls = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "lautan",
		Subsystem: "agent",
		Name:      "tool_calls_per_query",
		Help:      "Tool invocations per completed query.",
		Buckets:   []float64{0, 1, 2, 3, 4, 5, 6},
	})

	// ReasoningSteps counts loop rounds per completed query.
	ReasoningSteps = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "lautan",
		Subsystem: "agent",
		Name:      "reasoning_steps_per_query",
		Help:      "Reasoning rounds per completed query.",
		Buckets:   []float64{0, 1, 2, 3, 4, 5, 6},
	})

	// ActiveStreams gauges concurrently open SSE and WebSocket streams.
	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "lautan",
		Subsystem: "agent",
		Name:      "active_streams",
		Help:      "Open SSE and WebSocket response streams.",
	})
)

// AnswerPath maps a response match type onto the "path" metric label.
func AnswerPath(matchType string) string {
	if matchType == "" {
		return "loop"
	}
	return matchType
}
