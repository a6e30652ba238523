// Copyright (C) 2025 Lautan AI (dev@lautan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxAnswerChars bounds cleaned answer length.
const MaxAnswerChars = 8000

// cleanRule is one ordered substitution applied by Clean.
type cleanRule struct {
	name    string
	pattern *regexp.Regexp
	replace string
}

// cleanRules run in order. Each rule must be idempotent on its own output so
// the whole pipeline satisfies Clean(Clean(x)) == Clean(x).
var cleanRules = []cleanRule{
	// Scratch-pad lines the model should never show the user.
	{"thought lines", regexp.MustCompile(`(?m)^\s*(THOUGHT|Thought):.*$\n?`), ""},
	{"action lines", regexp.MustCompile(`(?m)^\s*(ACTION|Action):.*$\n?`), ""},
	{"observation lines", regexp.MustCompile(`(?m)^\s*(OBSERVATION|Observation):.*$\n?`), ""},
	{"final answer prefix", regexp.MustCompile(`(?mi)^\s*(final answer:\s*)+`), ""},

	// Filler openings and meta-commentary. One alternation applied greedily
	// so stacked filler ("Sure! As an AI, ...") comes off in a single pass,
	// keeping Clean idempotent.
	{"filler openings", regexp.MustCompile(`(?i)^\s*((sure|certainly|of course|great question|as an ai( language model)?|based on the (provided|retrieved) (context|information|documents))[,!:]?\s+)+`), ""},
	{"internal markers", regexp.MustCompile(`(?i)\[(internal|scratchpad|reasoning)\]`), ""},

	// Whitespace normalization.
	{"blank line runs", regexp.MustCompile(`\n{3,}`), "\n\n"},
	{"trailing spaces", regexp.MustCompile(`(?m)[ \t]+$`), ""},
}

// Clean strips leaked reasoning and filler from user-facing text.
//
// # Description
//
// Applies the ordered rule table, trims surrounding whitespace, and
// truncates to MaxAnswerChars. Idempotent: cleaning already-clean text is a
// no-op.
func Clean(text string) string {
	for _, rule := range cleanRules {
		text = rule.pattern.ReplaceAllString(text, rule.replace)
	}
	text = strings.TrimSpace(text)
	if len(text) > MaxAnswerChars {
		text = strings.TrimSpace(truncateAtRune(text, MaxAnswerChars))
	}
	return text
}

// truncateAtRune cuts text to at most max bytes without splitting a rune.
func truncateAtRune(text string, max int) string {
	if len(text) <= max {
		return text
	}
	for max > 0 && !utf8.RuneStart(text[max]) {
		max--
	}
	return text[:max]
}
