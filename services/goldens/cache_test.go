// Copyright (C) 2025 Lautan AI (dev@lautan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package goldens

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder returns a fixed vector per input text.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	vec, ok := s.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", text)
	}
	return vec, nil
}

// failingStore always errors.
type failingStore struct{}

func (f *failingStore) ListClusters(ctx context.Context) ([]Cluster, error) {
	return nil, fmt.Errorf("store down")
}

func (f *failingStore) IncrementUsage(ctx context.Context, clusterID string) error {
	return fmt.Errorf("store down")
}

func ptPMACluster() Cluster {
	return Cluster{
		ClusterID:         "cluster-001",
		CanonicalQuestion: "What is PT PMA?",
		Embedding:         []float32{1, 0, 0},
		Answer:            "PT PMA is a foreign-owned limited liability company in Indonesia.",
		Sources:           []string{"company_law.md"},
		Confidence:        0.97,
	}
}

// TestLookup_ExactMatch verifies a canonical-question match short-circuits
// with match_type "exact" and bumps the usage counter.
func TestLookup_ExactMatch(t *testing.T) {
	store := NewMemoryClusterStore([]Cluster{ptPMACluster()})
	cache := NewCache(store, &stubEmbedder{}, Config{})

	hit := cache.Lookup(context.Background(), "What is PT PMA?")
	require.NotNil(t, hit)
	assert.Equal(t, MatchExact, hit.MatchType)
	assert.Equal(t, 1.0, hit.Similarity)
	assert.Contains(t, hit.Answer, "foreign-owned")
	assert.Equal(t, int64(1), store.UsageCount("cluster-001"))
}

// TestLookup_ExactMatchIsCaseAndPunctuationInsensitive verifies question
// normalization before exact comparison.
func TestLookup_ExactMatchIsCaseAndPunctuationInsensitive(t *testing.T) {
	store := NewMemoryClusterStore([]Cluster{ptPMACluster()})
	cache := NewCache(store, &stubEmbedder{}, Config{})

	hit := cache.Lookup(context.Background(), "  what is   pt pma ")
	require.NotNil(t, hit)
	assert.Equal(t, MatchExact, hit.MatchType)
}

// TestLookup_SemanticMatch verifies a paraphrase above the threshold returns
// match_type "semantic".
func TestLookup_SemanticMatch(t *testing.T) {
	store := NewMemoryClusterStore([]Cluster{ptPMACluster()})
	embedder := &stubEmbedder{vectors: map[string][]float32{
		// Close to the cluster vector: cos = 0.98+
		"Can you explain what a PT PMA company is?": {0.99, 0.14, 0},
	}}
	cache := NewCache(store, embedder, Config{SimilarityThreshold: 0.92})

	hit := cache.Lookup(context.Background(), "Can you explain what a PT PMA company is?")
	require.NotNil(t, hit)
	assert.Equal(t, MatchSemantic, hit.MatchType)
	assert.GreaterOrEqual(t, hit.Similarity, 0.92)
	assert.Equal(t, int64(1), store.UsageCount("cluster-001"))
}

// TestLookup_DissimilarQueryMisses verifies a query below the threshold
// returns nil.
func TestLookup_DissimilarQueryMisses(t *testing.T) {
	store := NewMemoryClusterStore([]Cluster{ptPMACluster()})
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"How do I renew a KITAS visa?": {0, 1, 0}, // orthogonal
	}}
	cache := NewCache(store, embedder, Config{})

	hit := cache.Lookup(context.Background(), "How do I renew a KITAS visa?")
	assert.Nil(t, hit)
	assert.Equal(t, int64(0), store.UsageCount("cluster-001"))
}

// TestLookup_EmbedderFailureDegradesToMiss verifies embedding errors are
// swallowed.
func TestLookup_EmbedderFailureDegradesToMiss(t *testing.T) {
	store := NewMemoryClusterStore([]Cluster{ptPMACluster()})
	embedder := &stubEmbedder{err: fmt.Errorf("embedding model offline")}
	cache := NewCache(store, embedder, Config{})

	assert.Nil(t, cache.Lookup(context.Background(), "Some other question entirely"))
}

// TestLookup_NilEmbedderRunsExactOnly verifies a cache built without an
// embedder never reaches the semantic branch: exact matches still hit and
// everything else is a plain miss, not a panic.
func TestLookup_NilEmbedderRunsExactOnly(t *testing.T) {
	store := NewMemoryClusterStore([]Cluster{ptPMACluster()})
	cache := NewCache(store, nil, Config{})

	assert.Nil(t, cache.Lookup(context.Background(), "Completely different question"))

	hit := cache.Lookup(context.Background(), "What is PT PMA?")
	require.NotNil(t, hit)
	assert.Equal(t, MatchExact, hit.MatchType)
}

// TestLookup_StoreFailureDegradesToMiss verifies store errors are swallowed.
func TestLookup_StoreFailureDegradesToMiss(t *testing.T) {
	cache := NewCache(&failingStore{}, &stubEmbedder{}, Config{})
	assert.Nil(t, cache.Lookup(context.Background(), "What is PT PMA?"))
}

// TestLookup_EmptyClusterSetMisses verifies an empty cache is a plain miss.
func TestLookup_EmptyClusterSetMisses(t *testing.T) {
	cache := NewCache(NewMemoryClusterStore(nil), &stubEmbedder{}, Config{})
	assert.Nil(t, cache.Lookup(context.Background(), "What is PT PMA?"))
}
