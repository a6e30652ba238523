// Copyright (C) 2025 Lautan AI (dev@lautan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval provides vector search over the knowledge collections,
// text embedding, and conflict resolution between collections that may hold
// contradictory information.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strings"
	"time"
)

// =============================================================================
// Embedding Provider
// =============================================================================

// EmbeddingProvider defines the interface for computing text embeddings.
//
// # Description
//
// EmbeddingProvider wraps calls to the embedding model to convert text into
// vector representations for semantic search. The abstraction allows mocking
// in tests and swapping embedding backends.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type EmbeddingProvider interface {
	// Embed computes a vector embedding for the given text.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation and timeout.
	//   - text: The text to embed. May be truncated if exceeding model limits.
	//
	// # Outputs
	//
	//   - []float32: The embedding vector with dimension matching the model.
	//   - error: Non-nil if embedding fails (network error, model error).
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OllamaEmbedder computes embeddings via an Ollama-compatible endpoint.
type OllamaEmbedder struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewOllamaEmbedder creates an embedder against OLLAMA_BASE_URL, or the given
// baseURL when non-empty. Model defaults to nomic-embed-text.
func NewOllamaEmbedder(baseURL, model string) (*OllamaEmbedder, error) {
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("embedding base URL not configured")
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	slog.Info("Initializing Ollama embedder", "base_url", baseURL, "model", model)
	return &OllamaEmbedder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		model:      model,
	}, nil
}

// Embed implements the EmbeddingProvider interface.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	payload := ollamaEmbedRequest{Model: e.model, Prompt: text}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.baseURL+"/api/embeddings", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service returned status %d", resp.StatusCode)
	}

	var parsed ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("embedding service returned an empty vector")
	}
	return parsed.Embedding, nil
}

// CosineSimilarity computes the cosine similarity of two vectors.
// Returns 0 for mismatched or zero-length inputs.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
