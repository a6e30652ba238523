// Copyright (C) 2025 Lautan AI (dev@lautan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package parser extracts structured tool calls from raw model output and
// cleans leaked reasoning out of user-facing text.
package parser

import (
	"regexp"
	"strings"

	"github.com/LautanAI/LautanCore/services/agent/datatypes"
)

// actionPattern matches the ACTION marker with a tool name and argument list:
//
//	ACTION: calculator(expression=5+5)
//	ACTION: vector_search("PT PMA capital requirements")
var actionPattern = regexp.MustCompile(`(?m)^\s*ACTION:\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\((.*)\)\s*$`)

// defaultArgNames maps tool names to the argument a bare positional value
// binds to, so the model can write search("foo") instead of
// search(query=foo).
var defaultArgNames = map[string]string{
	"vector_search": "query",
	"web_search":    "query",
	"db_query":      "query",
	"memory":        "key",
	"calculator":    "expression",
	"pricing":       "service_type",
}

// Parse extracts a tool call from model output, or returns nil when the text
// contains no well-formed ACTION marker.
//
// # Description
//
// Recognized forms:
//
//	ACTION: tool(name=value, name2=value2)
//	ACTION: tool("positional value")
//
// A single positional value binds to the tool's default argument name
// ("query" for search tools, "expression" for the calculator). Quotes around
// values are stripped. Malformed syntax yields nil, never an error; the
// caller treats the turn as plain conversation.
func Parse(text string) *datatypes.ToolCall {
	match := actionPattern.FindStringSubmatch(text)
	if match == nil {
		return nil
	}

	toolName := match[1]
	args, ok := parseArguments(toolName, match[2])
	if !ok {
		return nil
	}
	return &datatypes.ToolCall{ToolName: toolName, Arguments: args}
}

// parseArguments splits the parenthesized argument list. Returns ok=false on
// syntax the grammar does not allow.
func parseArguments(toolName, raw string) (map[string]string, bool) {
	args := make(map[string]string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return args, true
	}

	parts := splitArgs(raw)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, false
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			// Positional value: only valid alone, bound to the tool's
			// default argument name.
			if len(parts) > 1 {
				return nil, false
			}
			name, known := defaultArgNames[toolName]
			if !known {
				name = "query"
			}
			args[name] = unquote(part)
			return args, true
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, false
		}
		args[key] = unquote(strings.TrimSpace(value))
	}
	return args, true
}

// splitArgs splits on commas that are not inside quotes.
func splitArgs(raw string) []string {
	var parts []string
	var b strings.Builder
	inQuote := byte(0)
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case inQuote != 0:
			if c == inQuote {
				inQuote = 0
			}
			b.WriteByte(c)
		case c == '"' || c == '\'':
			inQuote = c
			b.WriteByte(c)
		case c == ',':
			parts = append(parts, b.String())
			b.Reset()
		default:
			b.WriteByte(c)
		}
	}
	parts = append(parts, b.String())
	return parts
}

// unquote strips one layer of matching single or double quotes.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
