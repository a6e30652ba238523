// Copyright (C) 2025 Lautan AI (dev@lautan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the agent service.
//
// This file contains the agent reasoning trace types and the request and
// response types for the query endpoints. For streaming event types, see
// stream.go. For retrieval types, see retrieval.go.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants for Security Compliance
// =============================================================================

const (
	// MaxQueryBytes is the maximum size of a user query.
	// Per SEC-003: Unbounded message input mitigation.
	MaxQueryBytes = 32 * 1024 // 32KB

	// MaxHistoryMessages is the maximum number of conversation history
	// messages accepted per request. Per SEC-004.
	MaxHistoryMessages = 100
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// agentValidate is the validator instance for agent datatypes.
// Initialized in init() with custom validators.
var agentValidate *validator.Validate

func init() {
	agentValidate = validator.New()
	_ = agentValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes enforces the byte-length cap on string fields. Byte length
// is checked rather than rune count to bound memory, not display width.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxQueryBytes
}

// =============================================================================
// Tool Invocation Types
// =============================================================================

// ToolCall is a structured tool invocation extracted from model output.
//
// # Description
//
// Produced by the action parser and consumed by the tool executor. Arguments
// are always string-valued; tools coerce them as needed.
type ToolCall struct {
	ToolName  string            `json:"tool_name"`
	Arguments map[string]string `json:"arguments"`
}

// =============================================================================
// Reasoning Trace Types
// =============================================================================

// AgentStep is a single round of the reasoning loop: the model's thought,
// the tool call it chose (if any), and the observation produced by that call.
type AgentStep struct {
	StepNumber  int       `json:"step_number"`
	Thought     string    `json:"thought"`
	Action      *ToolCall `json:"action,omitempty"`
	Observation string    `json:"observation,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// AgentTrace is the full record of one query through the reasoning loop.
//
// # Description
//
// Created per query and discarded after the response unless persisted by the
// audit sink. Steps are strictly ordered by StepNumber.
//
// # Fields
//
//   - Query: The original user query.
//   - CorrelationID: UUID correlating logs, trace rows, and error messages.
//   - Steps: Ordered reasoning steps.
//   - RetrievedDocs: Source identifiers of passages injected as context.
//   - ConfidenceScores: Retrieval certainty scores, parallel to RetrievedDocs.
//   - FallbacksActivated: Names of secondary model backends that served
//     completions after the primary failed.
//   - FinalAnswer: The cleaned, user-facing answer.
//   - TotalDuration: Wall time from query receipt to final answer.
type AgentTrace struct {
	Query              string        `json:"query"`
	CorrelationID      string        `json:"correlation_id"`
	Steps              []AgentStep   `json:"steps"`
	RetrievedDocs      []string      `json:"retrieved_docs,omitempty"`
	ConfidenceScores   []float64     `json:"confidence_scores,omitempty"`
	FallbacksActivated []string      `json:"fallbacks_activated,omitempty"`
	FinalAnswer        string        `json:"final_answer"`
	TotalDuration      time.Duration `json:"total_duration"`
}

// =============================================================================
// Request / Response Types
// =============================================================================

// Message is a single turn of conversation history in the standard
// role/content format.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system tool"`
	Content string `json:"content" validate:"maxbytes"`
}

// QueryRequest is the inbound payload for both the blocking and streaming
// agent endpoints.
//
// # Validation
//
// Uses go-playground/validator:
//   - Query: required, max 32KB (SEC-003)
//   - ConversationHistory: max 100 messages, each validated (SEC-004)
type QueryRequest struct {
	Query               string    `json:"query" validate:"required,maxbytes"`
	UserID              string    `json:"user_id,omitempty"`
	SessionID           string    `json:"session_id,omitempty"`
	ConversationHistory []Message `json:"conversation_history,omitempty" validate:"max=100,dive"`
}

// Validate checks the request against the declared validation rules.
func (r *QueryRequest) Validate() error {
	return agentValidate.Struct(r)
}

// QueryResponse is the blocking response for a processed query.
type QueryResponse struct {
	Answer        string      `json:"answer"`
	Sources       []string    `json:"sources"`
	TotalSteps    int         `json:"total_steps"`
	ToolsCalled   int         `json:"tools_called"`
	Steps         []AgentStep `json:"steps"`
	CorrelationID string      `json:"correlation_id"`

	// MatchType is set when the answer was served from the golden answer
	// cache: "exact" or "semantic". Empty for answers produced by the loop.
	MatchType string `json:"match_type,omitempty"`
}
