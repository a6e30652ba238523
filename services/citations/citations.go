// Copyright (C) 2025 Lautan AI (dev@lautan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package citations attaches and validates inline source citations.
//
// Retrieved passages are numbered and injected into the prompt context as
// [n] markers; after the model answers, markers are validated against the
// real source list and a "Sources:" section is appended containing only the
// entries the answer actually cited.
package citations

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/LautanAI/LautanCore/services/agent/datatypes"
)

// markerPattern matches inline citation markers like [1] or [12].
var markerPattern = regexp.MustCompile(`\[(\d+)\]`)

// Source is one citable entry, numbered for inline markers.
type Source struct {
	// Index is the 1-based marker number used in the prompt context.
	Index int

	// Name is the document identifier, e.g. "tax_guidance_2025.md".
	Name string

	// Collection is the knowledge collection the passage came from.
	Collection string

	// Score is the best retrieval certainty among the source's passages.
	Score float64
}

// =============================================================================
// Service
// =============================================================================

// Service numbers retrieval results, builds citable prompt context, and
// enriches final answers with a validated source list.
//
// # Thread Safety
//
// Stateless; safe for concurrent use.
type Service struct{}

// NewService creates a citation service.
func NewService() *Service {
	return &Service{}
}

// ExtractSources derives the numbered source list from retrieval results.
//
// # Description
//
// Sources are deduplicated by document name, keep the order of first
// appearance, and carry the highest certainty seen for that document. Index
// assignment is stable for a given passage ordering, so markers injected
// into the context stay valid for the whole query.
func (s *Service) ExtractSources(passages []datatypes.Passage) []Source {
	byName := make(map[string]int)
	sources := make([]Source, 0, len(passages))

	for _, p := range passages {
		if p.Source == "" {
			continue
		}
		if idx, seen := byName[p.Source]; seen {
			if p.Certainty > sources[idx].Score {
				sources[idx].Score = p.Certainty
			}
			continue
		}
		byName[p.Source] = len(sources)
		sources = append(sources, Source{
			Index:      len(sources) + 1,
			Name:       p.Source,
			Collection: p.Collection,
			Score:      p.Certainty,
		})
	}
	return sources
}

// BuildContext renders passages as a numbered context block for the prompt.
//
// Each passage is prefixed with the [n] marker of its source so the model
// can cite by number. Returns the context text and the source list the
// markers refer to.
func (s *Service) BuildContext(passages []datatypes.Passage) (string, []Source) {
	sources := s.ExtractSources(passages)
	if len(sources) == 0 {
		return "", nil
	}

	indexByName := make(map[string]int, len(sources))
	for _, src := range sources {
		indexByName[src.Name] = src.Index
	}

	var b strings.Builder
	for _, p := range passages {
		idx, ok := indexByName[p.Source]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "[%d] (%s) %s\n\n", idx, p.Collection, strings.TrimSpace(p.Text))
	}
	return strings.TrimSuffix(b.String(), "\n"), sources
}

// CitedIndices returns the sorted, deduplicated marker numbers present in
// the answer that reference a real source. Markers outside the source range
// are reported in the second return value.
func (s *Service) CitedIndices(answer string, sources []Source) (cited []int, invalid []int) {
	seen := make(map[int]bool)
	for _, match := range markerPattern.FindAllStringSubmatch(answer, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true
		if n >= 1 && n <= len(sources) {
			cited = append(cited, n)
		} else {
			invalid = append(invalid, n)
		}
	}
	sort.Ints(cited)
	sort.Ints(invalid)
	return cited, invalid
}

// Enrich validates the answer's citation markers and appends a "Sources:"
// section listing only the cited entries.
//
// # Description
//
// Markers that reference a number outside the source list are stripped from
// the answer and logged; they indicate the model hallucinated a citation.
// When no valid markers remain the answer is returned unchanged, without a
// sources section. The names of the cited sources are also returned so the
// caller can populate the response's sources field.
func (s *Service) Enrich(answer string, sources []Source) (string, []string) {
	if len(sources) == 0 {
		return answer, nil
	}

	cited, invalid := s.CitedIndices(answer, sources)
	if len(invalid) > 0 {
		slog.Warn("Stripping citation markers with no matching source",
			"markers", invalid, "source_count", len(sources))
		answer = stripMarkers(answer, invalid)
	}
	if len(cited) == 0 {
		return answer, nil
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(answer, " \n"))
	b.WriteString("\n\nSources:\n")
	names := make([]string, 0, len(cited))
	for _, n := range cited {
		src := sources[n-1]
		fmt.Fprintf(&b, "[%d] %s (%s)\n", src.Index, src.Name, src.Collection)
		names = append(names, src.Name)
	}
	return strings.TrimSuffix(b.String(), "\n"), names
}

// stripMarkers removes the given marker numbers from the text.
func stripMarkers(text string, markers []int) string {
	drop := make(map[int]bool, len(markers))
	for _, n := range markers {
		drop[n] = true
	}
	return markerPattern.ReplaceAllStringFunc(text, func(m string) string {
		n, err := strconv.Atoi(markerPattern.FindStringSubmatch(m)[1])
		if err == nil && drop[n] {
			return ""
		}
		return m
	})
}
