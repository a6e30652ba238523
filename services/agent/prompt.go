// Copyright (C) 2025 Lautan AI (dev@lautan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/LautanAI/LautanCore/services/agent/tools"
)

// Explanation depth levels inferred from the query.
const (
	depthSimple   = "simple"
	depthStandard = "standard"
	depthExpert   = "expert"
)

// forbiddenStubs are openings the model must never produce. Listed in the
// prompt verbatim; the parser strips them anyway as a second line of defense.
var forbiddenStubs = []string{
	"I cannot answer that",
	"As an AI language model",
	"I don't have access to real-time information",
	"Please consult a professional",
}

// expertMarkers suggest the asker already knows the domain.
var expertMarkers = []string{
	"pasal", "pp ", "permen", "oss ", "kbli", "dni", "bkpm",
	"withholding", "pph", "ppn", "vat art", "article",
}

// inferDepth picks an explanation depth from query shape.
//
// Short questions without domain jargon get the simple register; questions
// citing regulation numbers or tax article shorthand get the expert one.
func inferDepth(query string) string {
	lower := strings.ToLower(query)
	for _, marker := range expertMarkers {
		if strings.Contains(lower, marker) {
			return depthExpert
		}
	}
	if len(strings.Fields(query)) <= 8 {
		return depthSimple
	}
	return depthStandard
}

// wantsAlternatives reports whether the query asks for options to compare.
func wantsAlternatives(query string) bool {
	lower := strings.ToLower(query)
	for _, marker := range []string{"alternative", "options", "compare", "versus", " vs ", "which is better"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// buildSystemPrompt assembles the per-query system prompt.
//
// # Description
//
// Assembled once per query, not per step. Sections: identity, language rule,
// depth instruction, alternatives flag, forbidden stubs, tool declarations
// with the ACTION grammar, and the numbered retrieval context.
func buildSystemPrompt(query, contextBlock string, descriptors []tools.Descriptor) string {
	var b strings.Builder

	b.WriteString("You are Lautan, a market-entry consultant for foreign businesses entering Indonesia. ")
	b.WriteString("You advise on company incorporation (PT PMA), licensing, visas, and taxation.\n\n")

	b.WriteString("Answer in the language of the question. Default to English when unsure.\n\n")

	switch inferDepth(query) {
	case depthSimple:
		b.WriteString("Keep the answer short and plain; the asker is new to the topic.\n\n")
	case depthExpert:
		b.WriteString("The asker knows the domain. Cite regulation numbers and skip the basics.\n\n")
	default:
		b.WriteString("Give a complete but focused answer with the key practical steps.\n\n")
	}

	if wantsAlternatives(query) {
		b.WriteString("The asker wants options: present each viable alternative with its trade-offs before recommending one.\n\n")
	}

	b.WriteString("Never respond with any of these stock phrases:\n")
	for _, stub := range forbiddenStubs {
		fmt.Fprintf(&b, "- %q\n", stub)
	}
	b.WriteString("\n")

	if len(descriptors) > 0 {
		b.WriteString("You may use tools. To call one, reply with exactly one line of the form:\n")
		b.WriteString("ACTION: tool_name(argument=value)\n\n")
		b.WriteString("Available tools:\n")
		for _, d := range descriptors {
			fmt.Fprintf(&b, "- %s: %s", d.Name, d.Description)
			names := make([]string, 0, len(d.Parameters))
			for name := range d.Parameters {
				names = append(names, name)
			}
			sort.Strings(names)
			params := make([]string, 0, len(names))
			for _, name := range names {
				if d.Parameters[name].Required {
					params = append(params, name+" (required)")
				} else {
					params = append(params, name)
				}
			}
			if len(params) > 0 {
				fmt.Fprintf(&b, " Arguments: %s.", strings.Join(params, ", "))
			}
			b.WriteString("\n")
		}
		b.WriteString("\nAfter each tool result you will see an OBSERVATION. ")
		b.WriteString("When you can answer, reply with:\nFinal Answer: <your answer>\n")
		b.WriteString("Cite context passages inline with their [n] markers.\n\n")
	}

	if contextBlock != "" {
		b.WriteString("Context passages:\n")
		b.WriteString(contextBlock)
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}
