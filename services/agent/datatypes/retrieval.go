// Copyright (C) 2025 Lautan AI (dev@lautan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// =============================================================================
// Retrieval Types
// =============================================================================

// Passage is one retrieved chunk of knowledge-base content.
//
// # Fields
//
//   - Text: The chunk content.
//   - Source: Human-readable origin (document name or URL).
//   - Collection: The knowledge collection the chunk came from.
//   - Certainty: Weaviate certainty in [0,1]; higher is more relevant.
//   - Timestamp: Unix milliseconds of the underlying record, when known.
//     Zero when the collection does not carry timestamps.
type Passage struct {
	Text       string  `json:"text"`
	Source     string  `json:"source"`
	Collection string  `json:"collection"`
	Certainty  float64 `json:"certainty"`
	Timestamp  int64   `json:"timestamp,omitempty"`
}

// RetrievalResponse is the result of a reranked multi-collection search after
// conflict resolution has been applied.
type RetrievalResponse struct {
	Results []Passage `json:"results"`

	// ConflictReports holds human-readable resolution reasons for any
	// conflicts detected between collections, for observability.
	ConflictReports []string `json:"conflict_reports,omitempty"`
}
