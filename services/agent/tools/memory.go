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
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// MemoryTool is a persistent key/value scratch space backed by BadgerDB.
//
// # Description
//
// Lets the agent remember facts across sessions (client preferences, prior
// filings) without a round-trip to Weaviate. Keys are namespaced by the
// caller identity so users never see each other's notes. Always wrapped in a
// GatedTool; the namespace is defense in depth, not the access control.
//
// # Thread Safety
//
// Safe for concurrent use; BadgerDB transactions provide isolation.
type MemoryTool struct {
	db *badger.DB
}

// NewMemoryTool opens (or creates) the memory store at path. An empty path
// opens an in-memory store, useful for tests.
func NewMemoryTool(path string) (*MemoryTool, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory store: %w", err)
	}
	return &MemoryTool{db: db}, nil
}

// Close releases the underlying store.
func (t *MemoryTool) Close() error {
	return t.db.Close()
}

// Descriptor implements the Tool interface.
func (t *MemoryTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "memory",
		Description: "Stores and recalls notes across sessions. Provide key alone to recall, key and value to store.",
		Parameters: map[string]ParamDef{
			"key": {
				Description: "Note identifier, e.g. preferred_visa_type",
				Required:    true,
			},
			"value": {
				Description: "Note content; omit to recall the stored value",
				Required:    false,
			},
		},
	}
}

// Execute implements the Tool interface.
func (t *MemoryTool) Execute(ctx context.Context, args map[string]string) (string, error) {
	caller := CallerFrom(ctx)
	if caller == "" {
		return "", fmt.Errorf("memory requires an identified caller")
	}
	key := []byte(caller + "/" + strings.TrimSpace(args["key"]))

	if value, ok := args["value"]; ok && value != "" {
		err := t.db.Update(func(txn *badger.Txn) error {
			return txn.Set(key, []byte(value))
		})
		if err != nil {
			return "", fmt.Errorf("failed to store note: %w", err)
		}
		return fmt.Sprintf("Stored %s.", args["key"]), nil
	}

	var value []byte
	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Sprintf("No note stored under %s.", args["key"]), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to recall note: %w", err)
	}
	return string(value), nil
}
