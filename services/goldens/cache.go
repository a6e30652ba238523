// Copyright (C) 2025 Lautan AI (dev@lautan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package goldens provides the golden answer cache: a semantic-similarity
// cache of vetted question/answer clusters that short-circuits the reasoning
// loop for near-duplicate queries.
//
// Clusters are curated by an offline job that owns writes; this package only
// reads them and increments usage counters on hits.
package goldens

import (
	"context"
	"log/slog"
	"strings"

	"github.com/LautanAI/LautanCore/services/retrieval"
)

// =============================================================================
// Cluster Types
// =============================================================================

// Cluster is one vetted canonical question with its curated answer.
type Cluster struct {
	ClusterID         string    `json:"cluster_id"`
	CanonicalQuestion string    `json:"canonical_question"`
	Embedding         []float32 `json:"embedding,omitempty"`
	Answer            string    `json:"answer"`
	Sources           []string  `json:"sources,omitempty"`
	Confidence        float64   `json:"confidence"`
	UsageCount        int64     `json:"usage_count"`
}

// Hit is a successful cache lookup.
type Hit struct {
	ClusterID string
	Answer    string
	Sources   []string

	// MatchType is "exact" for a canonical-question string match and
	// "semantic" for an embedding-similarity match.
	MatchType string

	// Similarity is the cosine similarity for semantic hits; 1.0 for exact.
	Similarity float64
}

// Match type values for Hit.MatchType.
const (
	MatchExact    = "exact"
	MatchSemantic = "semantic"
)

// ClusterStore abstracts where clusters live (Weaviate in production,
// in-memory in tests).
type ClusterStore interface {
	// ListClusters returns all clusters with their embeddings.
	ListClusters(ctx context.Context) ([]Cluster, error)

	// IncrementUsage bumps the monotonic usage counter for a cluster.
	IncrementUsage(ctx context.Context, clusterID string) error
}

// =============================================================================
// Cache
// =============================================================================

// Config holds cache tuning knobs.
type Config struct {
	// SimilarityThreshold is the minimum cosine similarity for a semantic
	// hit. Default: 0.92.
	SimilarityThreshold float64
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.SimilarityThreshold == 0 {
		cfg.SimilarityThreshold = 0.92
	}
	return cfg
}

// Cache answers queries from vetted clusters before the reasoning loop runs.
//
// # Description
//
// Lookup tries an exact canonical-question match first, then a semantic match
// by cosine similarity over cluster embeddings. Every failure path (store
// error, missing embedder, embedding error, empty cluster set) degrades
// silently to a miss:
// Lookup never returns an error and never panics, because a broken cache
// must not break query processing.
//
// # Thread Safety
//
// Safe for concurrent use; all state lives in the store and embedder, which
// carry their own guarantees.
type Cache struct {
	store    ClusterStore
	embedder retrieval.EmbeddingProvider
	cfg      Config
}

// NewCache creates a golden answer cache.
func NewCache(store ClusterStore, embedder retrieval.EmbeddingProvider, cfg Config) *Cache {
	return &Cache{
		store:    store,
		embedder: embedder,
		cfg:      applyConfigDefaults(cfg),
	}
}

// Lookup returns a cached answer for the query, or nil on a miss.
//
// # Description
//
// Match order:
//  1. Exact: normalized query equals a canonical question.
//  2. Semantic: embed the query; the highest-similarity cluster wins if it
//     clears the configured threshold.
//
// A hit increments the cluster's usage counter (best-effort; a failed
// increment still returns the hit).
func (c *Cache) Lookup(ctx context.Context, query string) *Hit {
	clusters, err := c.store.ListClusters(ctx)
	if err != nil {
		slog.Warn("Golden answer store unavailable, treating as miss", "error", err)
		return nil
	}
	if len(clusters) == 0 {
		return nil
	}

	normalized := normalizeQuestion(query)
	for _, cluster := range clusters {
		if normalizeQuestion(cluster.CanonicalQuestion) == normalized {
			c.recordHit(ctx, cluster.ClusterID)
			return &Hit{
				ClusterID:  cluster.ClusterID,
				Answer:     cluster.Answer,
				Sources:    cluster.Sources,
				MatchType:  MatchExact,
				Similarity: 1.0,
			}
		}
	}

	// No embedder means exact-only mode; the semantic branch is a miss.
	if c.embedder == nil {
		return nil
	}

	queryVec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		slog.Warn("Golden answer embedding failed, treating as miss", "error", err)
		return nil
	}

	var best *Cluster
	bestSim := 0.0
	for i := range clusters {
		if len(clusters[i].Embedding) == 0 {
			continue
		}
		sim := retrieval.CosineSimilarity(queryVec, clusters[i].Embedding)
		if sim > bestSim {
			bestSim = sim
			best = &clusters[i]
		}
	}

	if best == nil || bestSim < c.cfg.SimilarityThreshold {
		return nil
	}

	c.recordHit(ctx, best.ClusterID)
	slog.Debug("Golden answer semantic hit",
		"cluster_id", best.ClusterID, "similarity", bestSim)
	return &Hit{
		ClusterID:  best.ClusterID,
		Answer:     best.Answer,
		Sources:    best.Sources,
		MatchType:  MatchSemantic,
		Similarity: bestSim,
	}
}

// recordHit increments the usage counter, logging but swallowing failures.
func (c *Cache) recordHit(ctx context.Context, clusterID string) {
	if err := c.store.IncrementUsage(ctx, clusterID); err != nil {
		slog.Warn("Failed to increment golden answer usage",
			"cluster_id", clusterID, "error", err)
	}
}

// normalizeQuestion canonicalizes a question for exact matching.
func normalizeQuestion(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	q = strings.TrimSuffix(q, "?")
	return strings.Join(strings.Fields(q), " ")
}
