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
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// goldenAnswerClass is the Weaviate class holding curated clusters.
const goldenAnswerClass = "GoldenAnswer"

// =============================================================================
// Weaviate Store
// =============================================================================

// WeaviateClusterStore reads golden answer clusters from Weaviate.
//
// # Description
//
// Cluster reads are snapshot-cached in memory and refreshed lazily, since the
// curation job updates clusters offline and staleness of a few minutes is
// acceptable. Usage increments write through to Weaviate immediately.
//
// # Thread Safety
//
// Safe for concurrent use; the snapshot is guarded by a mutex.
type WeaviateClusterStore struct {
	client          *weaviate.Client
	refreshInterval time.Duration

	mu        sync.Mutex
	snapshot  []Cluster
	refreshed time.Time
}

// NewWeaviateClusterStore creates a store with the given refresh interval
// (default 5 minutes when zero).
func NewWeaviateClusterStore(client *weaviate.Client, refreshInterval time.Duration) *WeaviateClusterStore {
	if refreshInterval == 0 {
		refreshInterval = 5 * time.Minute
	}
	return &WeaviateClusterStore{
		client:          client,
		refreshInterval: refreshInterval,
	}
}

type goldenQueryResponse struct {
	Get struct {
		GoldenAnswer []goldenResult `json:"GoldenAnswer"`
	} `json:"Get"`
}

type goldenResult struct {
	ClusterID         string   `json:"cluster_id"`
	CanonicalQuestion string   `json:"canonical_question"`
	Answer            string   `json:"answer"`
	Sources           []string `json:"sources"`
	Confidence        float64  `json:"confidence"`
	UsageCount        int64    `json:"usage_count"`
	Additional        struct {
		ID     string    `json:"id"`
		Vector []float32 `json:"vector"`
	} `json:"_additional"`
}

// ListClusters implements the ClusterStore interface.
func (s *WeaviateClusterStore) ListClusters(ctx context.Context) ([]Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshot != nil && time.Since(s.refreshed) < s.refreshInterval {
		return s.snapshot, nil
	}

	fields := []graphql.Field{
		{Name: "cluster_id"},
		{Name: "canonical_question"},
		{Name: "answer"},
		{Name: "sources"},
		{Name: "confidence"},
		{Name: "usage_count"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "vector"},
		}},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(goldenAnswerClass).
		WithFields(fields...).
		WithLimit(500).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("golden answer query failed: %w", err)
	}

	parsed, err := parseGoldenResponse(result)
	if err != nil {
		return nil, err
	}

	clusters := make([]Cluster, 0, len(parsed.Get.GoldenAnswer))
	for _, hit := range parsed.Get.GoldenAnswer {
		clusters = append(clusters, Cluster{
			ClusterID:         hit.ClusterID,
			CanonicalQuestion: hit.CanonicalQuestion,
			Embedding:         hit.Additional.Vector,
			Answer:            hit.Answer,
			Sources:           hit.Sources,
			Confidence:        hit.Confidence,
			UsageCount:        hit.UsageCount,
		})
	}

	s.snapshot = clusters
	s.refreshed = time.Now()
	return clusters, nil
}

// IncrementUsage implements the ClusterStore interface.
//
// The usage counter is monotonic; the increment merges the new value onto
// the object identified by cluster_id.
func (s *WeaviateClusterStore) IncrementUsage(ctx context.Context, clusterID string) error {
	s.mu.Lock()
	var objectID string
	var current int64
	for i := range s.snapshot {
		if s.snapshot[i].ClusterID == clusterID {
			current = s.snapshot[i].UsageCount
			s.snapshot[i].UsageCount++
		}
	}
	s.mu.Unlock()

	// Resolve the Weaviate object id for the cluster.
	result, err := s.client.GraphQL().Get().
		WithClassName(goldenAnswerClass).
		WithFields(
			graphql.Field{Name: "cluster_id"},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "id"}}},
		).
		WithLimit(500).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve golden answer object: %w", err)
	}
	parsed, err := parseGoldenResponse(result)
	if err != nil {
		return err
	}
	for _, hit := range parsed.Get.GoldenAnswer {
		if hit.ClusterID == clusterID {
			objectID = hit.Additional.ID
			break
		}
	}
	if objectID == "" {
		return fmt.Errorf("golden answer cluster %s not found", clusterID)
	}

	return s.client.Data().Updater().
		WithMerge().
		WithClassName(goldenAnswerClass).
		WithID(objectID).
		WithProperties(map[string]interface{}{
			"usage_count": current + 1,
		}).
		Do(ctx)
}

// parseGoldenResponse unmarshals the untyped GraphQL payload.
func parseGoldenResponse(resp *models.GraphQLResponse) (*goldenQueryResponse, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}
	var parsed goldenQueryResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal golden answer response: %w", err)
	}
	return &parsed, nil
}

// =============================================================================
// In-Memory Store
// =============================================================================

// MemoryClusterStore is an in-memory ClusterStore for tests and for running
// without Weaviate.
type MemoryClusterStore struct {
	mu       sync.RWMutex
	clusters []Cluster
}

// NewMemoryClusterStore creates a store seeded with the given clusters.
func NewMemoryClusterStore(clusters []Cluster) *MemoryClusterStore {
	return &MemoryClusterStore{clusters: clusters}
}

// ListClusters implements the ClusterStore interface.
func (s *MemoryClusterStore) ListClusters(ctx context.Context) ([]Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Cluster, len(s.clusters))
	copy(out, s.clusters)
	return out, nil
}

// IncrementUsage implements the ClusterStore interface.
func (s *MemoryClusterStore) IncrementUsage(ctx context.Context, clusterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.clusters {
		if s.clusters[i].ClusterID == clusterID {
			s.clusters[i].UsageCount++
			return nil
		}
	}
	return fmt.Errorf("cluster %s not found", clusterID)
}

// UsageCount returns the current usage count for a cluster, for tests.
func (s *MemoryClusterStore) UsageCount(clusterID string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.clusters {
		if s.clusters[i].ClusterID == clusterID {
			return s.clusters[i].UsageCount
		}
	}
	return 0
}
