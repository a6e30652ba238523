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
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// WebSearchTool queries the DuckDuckGo instant answer API for facts outside
// the knowledge base. Always wrapped in a GatedTool.
type WebSearchTool struct {
	baseURL string
	client  *http.Client
}

// NewWebSearchTool creates the web search tool. baseURL defaults to the
// public DuckDuckGo endpoint when empty.
func NewWebSearchTool(baseURL string) *WebSearchTool {
	if baseURL == "" {
		baseURL = "https://api.duckduckgo.com"
	}
	return &WebSearchTool{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Descriptor implements the Tool interface.
func (t *WebSearchTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "web_search",
		Description: "Searches the public web for facts not in the knowledge base, like current exchange rates.",
		Parameters: map[string]ParamDef{
			"query": {
				Description: "Search query",
				Required:    true,
			},
		},
	}
}

type duckDuckGoResponse struct {
	AbstractText  string `json:"AbstractText"`
	AbstractURL   string `json:"AbstractURL"`
	Answer        string `json:"Answer"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

// Execute implements the Tool interface.
func (t *WebSearchTool) Execute(ctx context.Context, args map[string]string) (string, error) {
	endpoint := fmt.Sprintf("%s/?q=%s&format=json&no_html=1",
		t.baseURL, url.QueryEscape(args["query"]))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build search request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("web search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("web search returned status %d", resp.StatusCode)
	}

	var parsed duckDuckGoResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode search response: %w", err)
	}

	var b strings.Builder
	if parsed.Answer != "" {
		fmt.Fprintf(&b, "%s\n", parsed.Answer)
	}
	if parsed.AbstractText != "" {
		fmt.Fprintf(&b, "%s (%s)\n", parsed.AbstractText, parsed.AbstractURL)
	}
	for i, topic := range parsed.RelatedTopics {
		if i >= 3 || topic.Text == "" {
			break
		}
		fmt.Fprintf(&b, "- %s (%s)\n", topic.Text, topic.FirstURL)
	}
	if b.Len() == 0 {
		return "No results found.", nil
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}
