// Copyright (C) 2025 Lautan AI (dev@lautan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools provides the tool registry and execution framework for the
// agent.
//
// Tools are the agent's only mechanism for acting on the outside world. Each
// tool declares a descriptor used both for the model-facing tool list and
// for runtime argument validation, and implements the Tool interface for
// execution.
//
// Thread Safety:
//
//	All types in this package are designed for concurrent use.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// MaxObservationChars bounds tool output fed back into the reasoning loop.
const MaxObservationChars = 6000

// ParamDef defines a single tool parameter.
type ParamDef struct {
	// Description explains what the parameter is for.
	Description string `json:"description"`

	// Required indicates the parameter must be provided.
	Required bool `json:"required"`
}

// Descriptor describes a tool's interface for the model.
type Descriptor struct {
	// Name is the unique identifier for the tool.
	Name string `json:"name"`

	// Description explains what the tool does and when to use it.
	Description string `json:"description"`

	// Parameters defines the input parameters.
	Parameters map[string]ParamDef `json:"parameters"`
}

// Tool defines the interface for executable capabilities.
//
// Implementations must be safe for concurrent use.
type Tool interface {
	// Descriptor returns the tool's name, description, and parameter schema.
	Descriptor() Descriptor

	// Execute runs the tool. Arguments are validated against the descriptor
	// before this is called.
	Execute(ctx context.Context, args map[string]string) (string, error)
}

// =============================================================================
// Registry
// =============================================================================

// Registry holds the named tools available to the agent.
//
// # Thread Safety
//
// Registration happens at startup; reads afterwards are lock-protected and
// safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(tool Tool) error {
	desc := tool.Descriptor()
	if desc.Name == "" {
		return fmt.Errorf("tool has empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[desc.Name]; exists {
		return fmt.Errorf("tool %q already registered", desc.Name)
	}
	r.tools[desc.Name] = tool
	return nil
}

// Get returns the tool with the given name, or nil.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Descriptors returns all tool descriptors sorted by name, for prompt
// assembly.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.tools))
	for _, tool := range r.tools {
		out = append(out, tool.Descriptor())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// =============================================================================
// Executor
// =============================================================================

// Executor dispatches tool calls and converts every failure into an
// observation string, preserving loop liveness.
//
// # Description
//
// Unknown tools, missing required arguments, execution errors, and panics
// all come back as "ERROR: ..." text rather than Go errors; the agent sees
// the message as an observation and may retry with different arguments.
//
// # Thread Safety
//
// Safe for concurrent use.
type Executor struct {
	registry *Registry
	timeout  time.Duration
}

// NewExecutor creates an executor with the given per-call timeout
// (default 30s when zero).
func NewExecutor(registry *Registry, timeout time.Duration) *Executor {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Executor{registry: registry, timeout: timeout}
}

// Execute runs the named tool and returns its observation text.
func (e *Executor) Execute(ctx context.Context, toolName string, args map[string]string) (result string) {
	tool := e.registry.Get(toolName)
	if tool == nil {
		return fmt.Sprintf("ERROR: unknown tool %q. Available tools: %s",
			toolName, strings.Join(e.toolNames(), ", "))
	}

	if err := validateArgs(tool.Descriptor(), args); err != nil {
		return fmt.Sprintf("ERROR: %v", err)
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Tool panicked", "tool", toolName, "panic", r)
			result = fmt.Sprintf("ERROR: tool %s failed unexpectedly", toolName)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	out, err := tool.Execute(ctx, args)
	if err != nil {
		slog.Warn("Tool execution failed",
			"tool", toolName, "duration", time.Since(start), "error", err)
		return fmt.Sprintf("ERROR: %v", err)
	}

	if len(out) > MaxObservationChars {
		cut := MaxObservationChars
		// Back up to a rune boundary so truncation never emits invalid UTF-8.
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut] + "\n[output truncated]"
	}
	return out
}

func (e *Executor) toolNames() []string {
	descs := e.registry.Descriptors()
	names := make([]string, len(descs))
	for i, d := range descs {
		names[i] = d.Name
	}
	return names
}

// validateArgs checks required parameters and rejects unknown ones.
func validateArgs(desc Descriptor, args map[string]string) error {
	for name, def := range desc.Parameters {
		if def.Required && strings.TrimSpace(args[name]) == "" {
			return fmt.Errorf("tool %s requires argument %q", desc.Name, name)
		}
	}
	for name := range args {
		if _, known := desc.Parameters[name]; !known {
			return fmt.Errorf("tool %s does not accept argument %q", desc.Name, name)
		}
	}
	return nil
}
