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
	"testing"

	"github.com/LautanAI/LautanCore/services/agent/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func taxPassage(collection, text string, certainty float64, ts int64) datatypes.Passage {
	return datatypes.Passage{
		Text:       text,
		Source:     collection + ".md",
		Collection: collection,
		Certainty:  certainty,
		Timestamp:  ts,
	}
}

// TestDetectConflicts_TemporalAlwaysWins verifies the updates companion wins
// even when the base collection scores higher.
func TestDetectConflicts_TemporalAlwaysWins(t *testing.T) {
	resolver := NewResolver([]ConflictPair{
		{Base: "TaxGuidance", Companion: "TaxGuidanceUpdates", Type: ConflictTemporal},
	})

	old := taxPassage("TaxGuidance", "Corporate tax rate is 25%", 0.99, 1600000000000)
	updated := taxPassage("TaxGuidanceUpdates", "Corporate tax rate is 22%", 0.70, 1700000000000)

	byCollection := map[string][]datatypes.Passage{
		"TaxGuidance":        {old},
		"TaxGuidanceUpdates": {updated},
	}

	records := resolver.DetectConflicts(byCollection)
	require.Len(t, records, 1)
	assert.Equal(t, ConflictTemporal, records[0].Type)
	assert.Equal(t, "TaxGuidanceUpdates", records[0].WinningCollection,
		"updates companion must win regardless of relevance score")
	require.Len(t, records[0].LosingPassages, 1)
	assert.Equal(t, old.Text, records[0].LosingPassages[0].Text)
	assert.NotEmpty(t, records[0].ResolutionReason)
}

// TestDetectConflicts_SkipsPairsWithoutHits verifies pairs with no hits on
// either side are never evaluated.
func TestDetectConflicts_SkipsPairsWithoutHits(t *testing.T) {
	resolver := NewResolver(DefaultConflictPairs())

	byCollection := map[string][]datatypes.Passage{
		"TaxGuidance": {taxPassage("TaxGuidance", "VAT is 11%", 0.9, 0)},
		// No companion hits for any declared pair.
	}

	assert.Empty(t, resolver.DetectConflicts(byCollection))
}

// TestDetectConflicts_SemanticScoreWins verifies semantic pairs resolve by
// certainty score.
func TestDetectConflicts_SemanticScoreWins(t *testing.T) {
	resolver := NewResolver([]ConflictPair{
		{Base: "TaxGuidance", Companion: "CaseNotes", Type: ConflictSemantic, TieBreaker: "TaxGuidance"},
	})

	guidance := taxPassage("TaxGuidance", "Withholding tax applies at 2%", 0.80, 0)
	caseNote := taxPassage("CaseNotes", "Client observed 4% in practice", 0.95, 0)

	records := resolver.DetectConflicts(map[string][]datatypes.Passage{
		"TaxGuidance": {guidance},
		"CaseNotes":   {caseNote},
	})
	require.Len(t, records, 1)
	assert.Equal(t, ConflictSemantic, records[0].Type)
	assert.Equal(t, "CaseNotes", records[0].WinningCollection)
	assert.Equal(t, guidance.Text, records[0].LosingPassages[0].Text)
}

// TestDetectConflicts_SemanticTieUsesDeclaredPriority verifies a score tie
// goes to the declared tie-breaker collection.
func TestDetectConflicts_SemanticTieUsesDeclaredPriority(t *testing.T) {
	resolver := NewResolver([]ConflictPair{
		{Base: "TaxGuidance", Companion: "CaseNotes", Type: ConflictSemantic, TieBreaker: "TaxGuidance"},
	})

	records := resolver.DetectConflicts(map[string][]datatypes.Passage{
		"TaxGuidance": {taxPassage("TaxGuidance", "a", 0.9, 0)},
		"CaseNotes":   {taxPassage("CaseNotes", "b", 0.9, 0)},
	})
	require.Len(t, records, 1)
	assert.Equal(t, "TaxGuidance", records[0].WinningCollection)
}

// TestResolveConflicts_KeepsUnimplicatedPassages verifies passages absent from
// every ConflictRecord always survive resolution.
func TestResolveConflicts_KeepsUnimplicatedPassages(t *testing.T) {
	resolver := NewResolver([]ConflictPair{
		{Base: "TaxGuidance", Companion: "TaxGuidanceUpdates", Type: ConflictTemporal},
	})

	loser := taxPassage("TaxGuidance", "old rate", 0.9, 0)
	winner := taxPassage("TaxGuidanceUpdates", "new rate", 0.8, 0)
	bystander := taxPassage("Regulations", "visa requirements", 0.7, 0)

	byCollection := map[string][]datatypes.Passage{
		"TaxGuidance":        {loser},
		"TaxGuidanceUpdates": {winner},
		"Regulations":        {bystander},
	}
	all := []datatypes.Passage{loser, winner, bystander}

	conflicts := resolver.DetectConflicts(byCollection)
	resolved, reports := resolver.ResolveConflicts(all, conflicts)

	require.Len(t, resolved, 2)
	assert.Contains(t, resolved, winner)
	assert.Contains(t, resolved, bystander, "unimplicated passage must survive")
	assert.NotContains(t, resolved, loser)
	assert.Len(t, reports, 1)
}

// TestResolveConflicts_Idempotent verifies resolving an already-resolved set
// changes nothing.
func TestResolveConflicts_Idempotent(t *testing.T) {
	resolver := NewResolver([]ConflictPair{
		{Base: "TaxGuidance", Companion: "TaxGuidanceUpdates", Type: ConflictTemporal},
	})

	loser := taxPassage("TaxGuidance", "old", 0.9, 0)
	winner := taxPassage("TaxGuidanceUpdates", "new", 0.8, 0)

	byCollection := map[string][]datatypes.Passage{
		"TaxGuidance":        {loser},
		"TaxGuidanceUpdates": {winner},
	}
	conflicts := resolver.DetectConflicts(byCollection)

	once, _ := resolver.ResolveConflicts([]datatypes.Passage{loser, winner}, conflicts)
	twice, _ := resolver.ResolveConflicts(once, conflicts)
	assert.Equal(t, once, twice)
}

// TestResolveConflicts_NoConflicts verifies the input passes through untouched.
func TestResolveConflicts_NoConflicts(t *testing.T) {
	resolver := NewResolver(DefaultConflictPairs())
	passages := []datatypes.Passage{taxPassage("Regulations", "x", 0.5, 0)}

	resolved, reports := resolver.ResolveConflicts(passages, nil)
	assert.Equal(t, passages, resolved)
	assert.Empty(t, reports)
}
