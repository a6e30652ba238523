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
	"fmt"
	"log/slog"

	"github.com/LautanAI/LautanCore/services/agent/datatypes"
)

// =============================================================================
// Conflict Types
// =============================================================================

// ConflictType distinguishes how a conflict between two collections is
// resolved.
type ConflictType string

const (
	// ConflictTemporal marks pairs where one collection is the time-ordered
	// "updates" companion of the other. The companion always wins, regardless
	// of relevance score.
	ConflictTemporal ConflictType = "temporal"

	// ConflictSemantic marks domain-adjacent pairs resolved by retrieval
	// score, with ties broken by the pair's declared priority collection.
	ConflictSemantic ConflictType = "semantic"
)

// ConflictPair declares two collections known to sometimes contradict each
// other. Pairs are a fixed allow-list configured at startup; they are never
// inferred from collection names at runtime.
type ConflictPair struct {
	// Base is the first collection of the pair.
	Base string

	// Companion is the second collection. For temporal pairs this is the
	// "updates" variant that always wins.
	Companion string

	// Type selects the resolution strategy.
	Type ConflictType

	// TieBreaker names the collection that wins a semantic score tie.
	// Ignored for temporal pairs. Defaults to Companion when empty.
	TieBreaker string
}

// ConflictRecord describes one detected conflict and its resolution.
type ConflictRecord struct {
	Type              ConflictType        `json:"type"`
	Collections       [2]string           `json:"collections"`
	WinningCollection string              `json:"winning_collection"`
	LosingPassages    []datatypes.Passage `json:"losing_passages"`
	ResolutionReason  string              `json:"resolution_reason"`
}

// =============================================================================
// Resolver
// =============================================================================

// Resolver reconciles contradictory passages retrieved from collections that
// appear in its declared conflict-pair table.
//
// # Thread Safety
//
// Safe for concurrent use; the pair table is read-only after construction.
type Resolver struct {
	pairs []ConflictPair
}

// NewResolver creates a Resolver over the given allow-list of conflict pairs.
func NewResolver(pairs []ConflictPair) *Resolver {
	return &Resolver{pairs: pairs}
}

// DefaultConflictPairs returns the pair table for the standard knowledge
// collections: each regulatory collection has a time-ordered updates
// companion, and the tax collections are domain-adjacent.
func DefaultConflictPairs() []ConflictPair {
	return []ConflictPair{
		{Base: "Regulations", Companion: "RegulationsUpdates", Type: ConflictTemporal},
		{Base: "TaxGuidance", Companion: "TaxGuidanceUpdates", Type: ConflictTemporal},
		{Base: "TaxGuidance", Companion: "CaseNotes", Type: ConflictSemantic, TieBreaker: "TaxGuidance"},
	}
}

// DetectConflicts evaluates the declared conflict pairs against grouped
// retrieval results.
//
// # Description
//
// Only pairs with at least one hit on each side are evaluated; pairs with no
// hits on either side are skipped. Temporal pairs always resolve to the
// companion collection. Semantic pairs resolve to the collection with the
// highest certainty score; a tie goes to the declared tie-breaker.
//
// # Inputs
//
//   - byCollection: Retrieval results grouped by collection name.
//
// # Outputs
//
//   - []ConflictRecord: One record per conflicting pair, with the losing
//     passages and a human-readable resolution reason.
func (r *Resolver) DetectConflicts(byCollection map[string][]datatypes.Passage) []ConflictRecord {
	var records []ConflictRecord

	for _, pair := range r.pairs {
		baseHits := byCollection[pair.Base]
		companionHits := byCollection[pair.Companion]
		if len(baseHits) == 0 || len(companionHits) == 0 {
			continue
		}

		var record ConflictRecord
		switch pair.Type {
		case ConflictTemporal:
			record = ConflictRecord{
				Type:              ConflictTemporal,
				Collections:       [2]string{pair.Base, pair.Companion},
				WinningCollection: pair.Companion,
				LosingPassages:    baseHits,
				ResolutionReason: fmt.Sprintf(
					"%s supersedes %s: updates collection always wins on overlap",
					pair.Companion, pair.Base),
			}

		case ConflictSemantic:
			baseScore := maxCertainty(baseHits)
			companionScore := maxCertainty(companionHits)

			winner, losers := pair.Base, companionHits
			reason := fmt.Sprintf("%s outscored %s (%.3f vs %.3f)",
				pair.Base, pair.Companion, baseScore, companionScore)

			if companionScore > baseScore {
				winner, losers = pair.Companion, baseHits
				reason = fmt.Sprintf("%s outscored %s (%.3f vs %.3f)",
					pair.Companion, pair.Base, companionScore, baseScore)
			} else if companionScore == baseScore {
				tieBreaker := pair.TieBreaker
				if tieBreaker == "" {
					tieBreaker = pair.Companion
				}
				if tieBreaker == pair.Companion {
					winner, losers = pair.Companion, baseHits
				}
				reason = fmt.Sprintf("score tie (%.3f): declared priority favors %s",
					baseScore, winner)
			}

			record = ConflictRecord{
				Type:              ConflictSemantic,
				Collections:       [2]string{pair.Base, pair.Companion},
				WinningCollection: winner,
				LosingPassages:    losers,
				ResolutionReason:  reason,
			}

		default:
			slog.Warn("Unknown conflict pair type, skipping",
				"base", pair.Base, "companion", pair.Companion, "type", pair.Type)
			continue
		}

		records = append(records, record)
		slog.Debug("Conflict detected",
			"type", record.Type,
			"winner", record.WinningCollection,
			"losing_passages", len(record.LosingPassages))
	}

	return records
}

// ResolveConflicts removes losing passages from the result set.
//
// # Description
//
// Only passages named in a ConflictRecord are removed; passages not
// implicated in any detected conflict always survive. Resolution is
// idempotent: resolving an already-resolved set is a no-op.
//
// # Outputs
//
//   - []datatypes.Passage: Surviving passages, original order preserved.
//   - []string: Human-readable resolution reasons for observability.
func (r *Resolver) ResolveConflicts(results []datatypes.Passage, conflicts []ConflictRecord) ([]datatypes.Passage, []string) {
	if len(conflicts) == 0 {
		return results, nil
	}

	losing := make(map[string]bool)
	reports := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		for _, p := range c.LosingPassages {
			losing[passageKey(p)] = true
		}
		reports = append(reports, c.ResolutionReason)
	}

	resolved := make([]datatypes.Passage, 0, len(results))
	for _, p := range results {
		if losing[passageKey(p)] {
			continue
		}
		resolved = append(resolved, p)
	}
	return resolved, reports
}

// passageKey identifies a passage within one retrieval round.
func passageKey(p datatypes.Passage) string {
	return p.Collection + "\x00" + p.Source + "\x00" + p.Text
}

// maxCertainty returns the highest certainty among the passages.
func maxCertainty(passages []datatypes.Passage) float64 {
	best := 0.0
	for _, p := range passages {
		if p.Certainty > best {
			best = p.Certainty
		}
	}
	return best
}
