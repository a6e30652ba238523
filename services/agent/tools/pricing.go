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
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// PricingEntry is one service in the pricing catalog file.
type PricingEntry struct {
	ServiceType string `json:"service_type"`
	Description string `json:"description"`
	PriceIDR    int64  `json:"price_idr"`
	PriceUSD    int64  `json:"price_usd"`
	LeadTime    string `json:"lead_time"`
}

// PricingTool looks up consulting service prices from a JSON catalog.
//
// # Description
//
// Lookup is exact on service_type first, then falls back to fuzzy matching
// on token overlap so queries like "company setup" still find
// "company_incorporation". The catalog file is watched with fsnotify and
// reloaded on change, so price updates ship without a restart.
//
// # Thread Safety
//
// Safe for concurrent use; the catalog snapshot is guarded by a mutex.
type PricingTool struct {
	path    string
	watcher *fsnotify.Watcher

	mu      sync.RWMutex
	entries []PricingEntry
}

// NewPricingTool loads the catalog and starts the file watcher. Close
// releases the watcher.
func NewPricingTool(path string) (*PricingTool, error) {
	t := &PricingTool{path: path}
	if err := t.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create pricing watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch pricing catalog: %w", err)
	}
	t.watcher = watcher
	go t.watchLoop()
	return t, nil
}

// Close stops the catalog watcher.
func (t *PricingTool) Close() error {
	if t.watcher != nil {
		return t.watcher.Close()
	}
	return nil
}

func (t *PricingTool) watchLoop() {
	for {
		select {
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := t.reload(); err != nil {
					slog.Warn("Pricing catalog reload failed, keeping previous snapshot",
						"path", t.path, "error", err)
					continue
				}
				slog.Info("Pricing catalog reloaded", "path", t.path)
			}
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Pricing catalog watcher error", "error", err)
		}
	}
}

func (t *PricingTool) reload() error {
	data, err := os.ReadFile(t.path)
	if err != nil {
		return fmt.Errorf("failed to read pricing catalog: %w", err)
	}
	var entries []PricingEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("invalid pricing catalog: %w", err)
	}
	t.mu.Lock()
	t.entries = entries
	t.mu.Unlock()
	return nil
}

// Descriptor implements the Tool interface.
func (t *PricingTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "pricing",
		Description: "Looks up the price and lead time of a consulting service (incorporation, visas, licensing, tax filings).",
		Parameters: map[string]ParamDef{
			"service_type": {
				Description: "Service name, e.g. company_incorporation or kitas_visa",
				Required:    true,
			},
		},
	}
}

// Execute implements the Tool interface.
func (t *PricingTool) Execute(ctx context.Context, args map[string]string) (string, error) {
	query := args["service_type"]

	t.mu.RLock()
	entries := t.entries
	t.mu.RUnlock()

	entry := matchService(entries, query)
	if entry == nil {
		available := make([]string, len(entries))
		for i, e := range entries {
			available[i] = e.ServiceType
		}
		sort.Strings(available)
		return fmt.Sprintf("No pricing found for %q. Available services: %s",
			query, strings.Join(available, ", ")), nil
	}

	return fmt.Sprintf("%s: %s. Price: IDR %d (USD %d). Lead time: %s.",
		entry.ServiceType, entry.Description, entry.PriceIDR, entry.PriceUSD, entry.LeadTime), nil
}

// matchService finds an entry by exact service_type, then by best token
// overlap between the query and the service name plus description.
func matchService(entries []PricingEntry, query string) *PricingEntry {
	normalized := normalizeTokens(query)
	if len(normalized) == 0 {
		return nil
	}

	for i := range entries {
		if strings.EqualFold(entries[i].ServiceType, strings.TrimSpace(query)) {
			return &entries[i]
		}
	}

	var best *PricingEntry
	bestScore := 0
	for i := range entries {
		haystack := normalizeTokens(entries[i].ServiceType + " " + entries[i].Description)
		score := 0
		for tok := range normalized {
			if haystack[tok] {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = &entries[i]
		}
	}
	return best
}

// normalizeTokens lowercases and splits on non-alphanumeric boundaries.
func normalizeTokens(s string) map[string]bool {
	tokens := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	})
	set := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		set[tok] = true
	}
	return set
}
