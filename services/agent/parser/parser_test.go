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
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_NamedArguments(t *testing.T) {
	call := Parse("THOUGHT: need to compute\nACTION: calculator(expression=5+5, calculation_type=arithmetic)")
	require.NotNil(t, call)
	assert.Equal(t, "calculator", call.ToolName)
	assert.Equal(t, map[string]string{
		"expression":       "5+5",
		"calculation_type": "arithmetic",
	}, call.Arguments)
}

func TestParse_PositionalBindsToDefaultArgument(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		tool    string
		argName string
		argVal  string
	}{
		{"search default", `ACTION: vector_search("PT PMA capital requirements")`, "vector_search", "query", "PT PMA capital requirements"},
		{"calculator default", `ACTION: calculator("5+5")`, "calculator", "expression", "5+5"},
		{"pricing default", `ACTION: pricing(company incorporation)`, "pricing", "service_type", "company incorporation"},
		{"unknown tool falls back to query", `ACTION: mystery("abc")`, "mystery", "query", "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call := Parse(tt.text)
			require.NotNil(t, call)
			assert.Equal(t, tt.tool, call.ToolName)
			assert.Equal(t, map[string]string{tt.argName: tt.argVal}, call.Arguments)
		})
	}
}

func TestParse_QuotedValueWithComma(t *testing.T) {
	call := Parse(`ACTION: vector_search(query="tax rates, 2025 update")`)
	require.NotNil(t, call)
	assert.Equal(t, "tax rates, 2025 update", call.Arguments["query"])
}

func TestParse_NoActionMarkerYieldsNil(t *testing.T) {
	tests := []string{
		"Just a plain conversational answer.",
		"The action is to register a company.",
		"ACTION calculator(expression=1)",
		"",
	}
	for _, text := range tests {
		assert.Nil(t, Parse(text), "text: %q", text)
	}
}

func TestParse_MalformedYieldsNil(t *testing.T) {
	tests := []string{
		"ACTION: calculator(=5+5)",
		"ACTION: calculator(a, b)",
		"ACTION: calculator(expression=1,,)",
	}
	for _, text := range tests {
		assert.Nil(t, Parse(text), "text: %q", text)
	}
}

func TestParse_EmptyArguments(t *testing.T) {
	call := Parse("ACTION: web_search()")
	require.NotNil(t, call)
	assert.Empty(t, call.Arguments)
}

func TestClean_StripsScratchPadAndFiller(t *testing.T) {
	raw := "THOUGHT: I should check the rate\n" +
		"ACTION: vector_search(query=tax)\n" +
		"Observation: rate is 22%\n" +
		"Final Answer: Sure! The corporate tax rate is 22%."

	assert.Equal(t, "The corporate tax rate is 22%.", Clean(raw))
}

func TestClean_CollapsesBlankLineRuns(t *testing.T) {
	assert.Equal(t, "a\n\nb", Clean("a\n\n\n\n\nb"))
}

func TestClean_Idempotent(t *testing.T) {
	inputs := []string{
		"Final Answer: Sure, of course! As an AI, the answer is 10.",
		"THOUGHT: x\n\n\n\nreal text   \nmore",
		"Already clean text.",
		"",
		"Based on the provided context, based on the retrieved documents, yes.",
	}
	for _, in := range inputs {
		once := Clean(in)
		assert.Equal(t, once, Clean(once), "input: %q", in)
	}
}

func TestClean_TruncatesLongText(t *testing.T) {
	long := make([]byte, MaxAnswerChars+500)
	for i := range long {
		long[i] = 'a'
	}
	cleaned := Clean(string(long))
	assert.Len(t, cleaned, MaxAnswerChars)
	assert.Equal(t, cleaned, Clean(cleaned))
}

func TestClean_TruncationPreservesRuneBoundaries(t *testing.T) {
	// "é" is 2 bytes in UTF-8; the ASCII prefix misaligns every rune start
	// so a byte-indexed cut at the limit would land mid-rune.
	long := "a" + strings.Repeat("é", MaxAnswerChars)
	cleaned := Clean(long)
	assert.True(t, utf8.ValidString(cleaned), "truncated text must be valid UTF-8")
	assert.LessOrEqual(t, len(cleaned), MaxAnswerChars)
}
