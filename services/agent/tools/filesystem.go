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
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FilesystemTool reads documents from a sandboxed directory of client
// templates and checklists. Always wrapped in a GatedTool; read-only.
type FilesystemTool struct {
	root string
}

// NewFilesystemTool creates the tool rooted at dir.
func NewFilesystemTool(dir string) (*FilesystemTool, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid document root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("document root unavailable: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("document root %s is not a directory", abs)
	}
	return &FilesystemTool{root: abs}, nil
}

// Descriptor implements the Tool interface.
func (t *FilesystemTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "filesystem",
		Description: "Reads a document from the templates directory. Omit path to list available documents.",
		Parameters: map[string]ParamDef{
			"path": {
				Description: "Relative document path; omit to list",
				Required:    false,
			},
		},
	}
}

// Execute implements the Tool interface.
func (t *FilesystemTool) Execute(ctx context.Context, args map[string]string) (string, error) {
	rel := strings.TrimSpace(args["path"])
	if rel == "" {
		return t.list()
	}

	// Resolve and confine to the document root.
	full := filepath.Join(t.root, filepath.Clean("/"+rel))
	if !strings.HasPrefix(full, t.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the document root", rel)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("cannot read %q: %w", rel, err)
	}
	return string(data), nil
}

func (t *FilesystemTool) list() (string, error) {
	var names []string
	err := filepath.WalkDir(t.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, relErr := filepath.Rel(t.root, path)
		if relErr != nil {
			return relErr
		}
		names = append(names, rel)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to list documents: %w", err)
	}
	if len(names) == 0 {
		return "No documents available.", nil
	}
	sort.Strings(names)
	return "Available documents:\n" + strings.Join(names, "\n"), nil
}
