// Copyright (C) 2025 Lautan AI (dev@lautan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/LautanAI/LautanCore/services/agent/datatypes"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("lautan.retrieval")

// =============================================================================
// Retriever Interface
// =============================================================================

// SearchOptions tunes one retrieval round.
type SearchOptions struct {
	// TopK is the maximum number of passages returned after resolution.
	// Default: 5.
	TopK int

	// Collections restricts the search. Empty means all configured
	// collections.
	Collections []string
}

// Retriever defines the contract for reranked multi-collection search.
//
// # Description
//
// Results returned by SearchWithReranking have already passed through the
// conflict resolver: losing passages from detected conflicts are removed and
// the resolution reasons are reported alongside.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Retriever interface {
	SearchWithReranking(ctx context.Context, query string, opts SearchOptions) (*datatypes.RetrievalResponse, error)
}

// =============================================================================
// Weaviate Implementation
// =============================================================================

// WeaviateRetriever searches the knowledge collections via nearVector queries
// and reconciles contradictory passages before returning them.
type WeaviateRetriever struct {
	client      *weaviate.Client
	embedder    EmbeddingProvider
	resolver    *Resolver
	collections []string
}

// DefaultCollections returns the standard knowledge collection names.
func DefaultCollections() []string {
	return []string{"Regulations", "RegulationsUpdates", "TaxGuidance", "TaxGuidanceUpdates", "CaseNotes"}
}

// NewWeaviateRetriever creates a retriever over the given collections.
//
// # Inputs
//
//   - client: Connected Weaviate client.
//   - embedder: Embedding provider for query vectors.
//   - resolver: Conflict resolver applied to every search.
//   - collections: Collections to search. Nil uses DefaultCollections().
func NewWeaviateRetriever(client *weaviate.Client, embedder EmbeddingProvider,
	resolver *Resolver, collections []string) *WeaviateRetriever {
	if collections == nil {
		collections = DefaultCollections()
	}
	if resolver == nil {
		resolver = NewResolver(DefaultConflictPairs())
	}
	return &WeaviateRetriever{
		client:      client,
		embedder:    embedder,
		resolver:    resolver,
		collections: collections,
	}
}

// passageQueryResponse is the typed shape of a Get query over one collection.
type passageQueryResponse struct {
	Get map[string][]passageResult `json:"Get"`
}

type passageResult struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	Timestamp  int64  `json:"timestamp"`
	Additional struct {
		Certainty float64 `json:"certainty"`
	} `json:"_additional"`
}

// parseGraphQLResponse unmarshals the untyped GraphQL payload into T.
func parseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}
	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}
	return &result, nil
}

// SearchWithReranking implements the Retriever interface.
//
// # Description
//
// Embeds the query once, searches each collection with nearVector, groups the
// hits by collection, detects and resolves conflicts, then returns the
// surviving passages ordered by certainty and truncated to TopK.
func (r *WeaviateRetriever) SearchWithReranking(ctx context.Context, query string,
	opts SearchOptions) (*datatypes.RetrievalResponse, error) {

	ctx, span := tracer.Start(ctx, "WeaviateRetriever.SearchWithReranking")
	defer span.End()

	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	collections := opts.Collections
	if len(collections) == 0 {
		collections = r.collections
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	byCollection := make(map[string][]datatypes.Passage, len(collections))
	var all []datatypes.Passage

	for _, collection := range collections {
		hits, err := r.searchCollection(ctx, collection, vector, opts.TopK)
		if err != nil {
			// One unreachable collection should not sink the whole search.
			slog.Warn("Collection search failed, continuing",
				"collection", collection, "error", err)
			continue
		}
		if len(hits) > 0 {
			byCollection[collection] = hits
			all = append(all, hits...)
		}
	}

	conflicts := r.resolver.DetectConflicts(byCollection)
	resolved, reports := r.resolver.ResolveConflicts(all, conflicts)

	sort.SliceStable(resolved, func(i, j int) bool {
		return resolved[i].Certainty > resolved[j].Certainty
	})
	if len(resolved) > opts.TopK {
		resolved = resolved[:opts.TopK]
	}

	slog.Debug("Retrieval complete",
		"query_len", len(query),
		"passages", len(resolved),
		"conflicts", len(conflicts))

	return &datatypes.RetrievalResponse{
		Results:         resolved,
		ConflictReports: reports,
	}, nil
}

// searchCollection runs one nearVector query against a single collection.
func (r *WeaviateRetriever) searchCollection(ctx context.Context, collection string,
	vector []float32, limit int) ([]datatypes.Passage, error) {

	nearVector := r.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	// Request certainty (always [0,1]) instead of distance which varies by metric.
	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "timestamp"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	result, err := r.client.GraphQL().Get().
		WithClassName(collection).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}

	parsed, err := parseGraphQLResponse[passageQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse results: %w", err)
	}

	raw := parsed.Get[collection]
	passages := make([]datatypes.Passage, 0, len(raw))
	for _, hit := range raw {
		passages = append(passages, datatypes.Passage{
			Text:       hit.Content,
			Source:     hit.Source,
			Collection: collection,
			Certainty:  hit.Additional.Certainty,
			Timestamp:  hit.Timestamp,
		})
	}
	return passages, nil
}
