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

import (
	"context"
	"fmt"
	"strings"

	"github.com/LautanAI/LautanCore/services/agent/datatypes"
	"github.com/LautanAI/LautanCore/services/retrieval"
)

// VectorSearchTool retrieves passages from the knowledge collections.
type VectorSearchTool struct {
	retriever retrieval.Retriever
	topK      int
}

// NewVectorSearchTool creates the search tool (topK default 5 when zero).
func NewVectorSearchTool(retriever retrieval.Retriever, topK int) *VectorSearchTool {
	if topK == 0 {
		topK = 5
	}
	return &VectorSearchTool{retriever: retriever, topK: topK}
}

// Descriptor implements the Tool interface.
func (t *VectorSearchTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "vector_search",
		Description: "Searches the regulatory knowledge base (regulations, tax guidance, case notes). Use for any question about Indonesian market entry rules.",
		Parameters: map[string]ParamDef{
			"query": {
				Description: "Natural language search query",
				Required:    true,
			},
		},
	}
}

// Execute implements the Tool interface.
//
// Conflicting passages are already reconciled by the retriever; resolution
// notes are appended so the model can explain superseded guidance.
func (t *VectorSearchTool) Execute(ctx context.Context, args map[string]string) (string, error) {
	resp, err := t.retriever.SearchWithReranking(ctx, args["query"], retrieval.SearchOptions{TopK: t.topK})
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}
	if len(resp.Results) == 0 {
		return "No relevant passages found.", nil
	}
	return FormatPassages(resp.Results, resp.ConflictReports), nil
}

// FormatPassages renders retrieval results as numbered observation text.
func FormatPassages(passages []datatypes.Passage, reports []string) string {
	var b strings.Builder
	for i, p := range passages {
		fmt.Fprintf(&b, "%d. [%s, %s, certainty %.2f] %s\n",
			i+1, p.Collection, p.Source, p.Certainty, strings.TrimSpace(p.Text))
	}
	for _, report := range reports {
		fmt.Fprintf(&b, "Note: %s\n", report)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
