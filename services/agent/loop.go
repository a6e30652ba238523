// Copyright (C) 2025 Lautan AI (dev@lautan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent drives the reasoning loop: the model thinks, optionally
// calls a tool, observes the result, and repeats until it produces a final
// answer or exhausts the step budget.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/LautanAI/LautanCore/services/agent/datatypes"
	"github.com/LautanAI/LautanCore/services/agent/parser"
	"github.com/LautanAI/LautanCore/services/agent/tools"
	"github.com/LautanAI/LautanCore/services/citations"
	"github.com/LautanAI/LautanCore/services/goldens"
	"github.com/LautanAI/LautanCore/services/llm"
	"github.com/LautanAI/LautanCore/services/retrieval"
)

var tracer = otel.Tracer("lautan.agent")

// finalAnswerMarker terminates the loop when present in model output.
const finalAnswerMarker = "final answer:"

// loopState is the explicit reasoning state machine.
type loopState int

const (
	stateThinking loopState = iota
	stateActing
	stateObserving
	stateDone
)

// Config holds loop tuning knobs. Zero values use defaults.
type Config struct {
	// MaxSteps bounds reasoning rounds per query. Default: 6.
	MaxSteps int

	// Temperature for model calls. Default: 0.2.
	Temperature float32

	// MaxTokens per model call. Default: 1024.
	MaxTokens int

	// RetrievalTopK passages injected as context. Default: 5.
	RetrievalTopK int
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.MaxSteps == 0 {
		cfg.MaxSteps = 6
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.RetrievalTopK == 0 {
		cfg.RetrievalTopK = 5
	}
	return cfg
}

// TraceSink receives completed traces for offline evaluation. Appends are
// best-effort; failures are logged and swallowed.
type TraceSink interface {
	Append(ctx context.Context, trace *datatypes.AgentTrace) error
}

// Orchestrator runs queries through the reasoning loop.
//
// # Description
//
// Flow per query: golden answer lookup (hit short-circuits the loop), one
// retrieval round to build citable context, then up to MaxSteps rounds of
// think / act / observe. The final answer is cleaned, citation-enriched, and
// the trace is appended to the audit sink asynchronously.
//
// # Thread Safety
//
// Safe for concurrent use. Each query owns its trace; shared collaborators
// carry their own guarantees.
type Orchestrator struct {
	chain     *llm.FallbackChain
	registry  *tools.Registry
	executor  *tools.Executor
	retriever retrieval.Retriever
	goldens   *goldens.Cache
	citations *citations.Service
	sink      TraceSink
	cfg       Config
}

// NewOrchestrator wires the loop. chain, registry, and executor are
// required; retriever, cache, and sink may be nil and disable their stage.
func NewOrchestrator(chain *llm.FallbackChain, registry *tools.Registry,
	executor *tools.Executor, retriever retrieval.Retriever,
	cache *goldens.Cache, sink TraceSink, cfg Config) (*Orchestrator, error) {
	if chain == nil {
		return nil, fmt.Errorf("orchestrator requires a model chain")
	}
	if registry == nil || executor == nil {
		return nil, fmt.Errorf("orchestrator requires a tool registry and executor")
	}
	return &Orchestrator{
		chain:     chain,
		registry:  registry,
		executor:  executor,
		retriever: retriever,
		goldens:   cache,
		citations: citations.NewService(),
		sink:      sink,
		cfg:       applyConfigDefaults(cfg),
	}, nil
}

// ProcessQuery runs one query to completion and blocks for the result.
func (o *Orchestrator) ProcessQuery(ctx context.Context, req *datatypes.QueryRequest) (*datatypes.QueryResponse, error) {
	return o.run(ctx, req, nil)
}

// StreamQuery runs one query and emits ordered stream events.
//
// # Description
//
// The returned channel closes after the done or error frame. Canceling ctx
// aborts the loop; in-flight tool calls see the cancellation through their
// own contexts.
func (o *Orchestrator) StreamQuery(ctx context.Context, req *datatypes.QueryRequest) <-chan datatypes.StreamEvent {
	emitter := NewEmitter(0)
	go func() {
		defer emitter.Close()
		resp, err := o.run(ctx, req, emitter)
		if err != nil {
			emitter.Emit(ctx, datatypes.StreamEvent{
				Type:  datatypes.EventError,
				Error: "The service is temporarily unavailable. Please try again.",
			})
			return
		}
		emitter.EmitTokens(ctx, resp.Answer)
		if len(resp.Sources) > 0 {
			infos := make([]datatypes.SourceInfo, len(resp.Sources))
			for i, s := range resp.Sources {
				infos[i] = datatypes.SourceInfo{Source: s}
			}
			emitter.Emit(ctx, datatypes.StreamEvent{Type: datatypes.EventSources, Sources: infos})
		}
		emitter.Emit(ctx, datatypes.StreamEvent{Type: datatypes.EventDone, SessionId: req.SessionID})
	}()
	return emitter.Events()
}

// run is the shared loop behind both entry points. emitter may be nil.
func (o *Orchestrator) run(ctx context.Context, req *datatypes.QueryRequest, emitter *Emitter) (*datatypes.QueryResponse, error) {
	ctx, span := tracer.Start(ctx, "agent.run")
	defer span.End()

	start := time.Now()
	trace := &datatypes.AgentTrace{
		Query:         req.Query,
		CorrelationID: uuid.NewString(),
	}
	span.SetAttributes(attribute.String("correlation_id", trace.CorrelationID))
	log := slog.With("correlation_id", trace.CorrelationID)

	emitter.Emit(ctx, datatypes.StreamEvent{
		Type:          datatypes.EventMetadata,
		CorrelationId: trace.CorrelationID,
		SessionId:     req.SessionID,
	})

	// Golden answers short-circuit the whole loop.
	if o.goldens != nil {
		if hit := o.goldens.Lookup(ctx, req.Query); hit != nil {
			log.Info("Golden answer hit",
				"cluster_id", hit.ClusterID, "match_type", hit.MatchType)
			emitter.EmitStatus(ctx, "Found a vetted answer")
			return &datatypes.QueryResponse{
				Answer:        hit.Answer,
				Sources:       hit.Sources,
				CorrelationID: trace.CorrelationID,
				MatchType:     hit.MatchType,
			}, nil
		}
	}

	emitter.EmitStatus(ctx, "Consulting the knowledge base")
	contextBlock, sources := o.retrieveContext(ctx, req.Query, trace, log)

	systemPrompt := buildSystemPrompt(req.Query, contextBlock, o.registry.Descriptors())
	messages := make([]llm.ChatMessage, 0, len(req.ConversationHistory)+2)
	messages = append(messages, llm.ChatMessage{Role: "system", Content: systemPrompt})
	for _, m := range req.ConversationHistory {
		messages = append(messages, llm.ChatMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.ChatMessage{Role: "user", Content: req.Query})

	toolCtx := tools.WithCaller(ctx, req.UserID)

	var rawAnswer string
	var lastObservation string
	toolsCalled := 0
	state := stateThinking

	for step := 1; state != stateDone && step <= o.cfg.MaxSteps; step++ {
		emitter.EmitStatus(ctx, "Thinking")
		result, err := o.completeStep(ctx, llm.CompletionRequest{
			Messages:    messages,
			Temperature: &o.cfg.Temperature,
			MaxTokens:   &o.cfg.MaxTokens,
		})
		if err != nil {
			trace.FallbacksActivated = appendUnique(trace.FallbacksActivated, o.chain.Backends()[1:]...)
			return o.finishDegraded(ctx, trace, start, err, log)
		}
		trace.FallbacksActivated = appendUnique(trace.FallbacksActivated, result.Fallbacks...)

		text := result.Completion.Content
		stepRecord := datatypes.AgentStep{
			StepNumber: step,
			Thought:    extractThought(text),
			Timestamp:  time.Now(),
		}

		if answer, done := extractFinalAnswer(text); done {
			stepRecord.Observation = ""
			trace.Steps = append(trace.Steps, stepRecord)
			rawAnswer = answer
			state = stateDone
			break
		}

		action := parser.Parse(text)
		if action == nil {
			// No action and no final marker: treat as a plain answer.
			trace.Steps = append(trace.Steps, stepRecord)
			rawAnswer = text
			state = stateDone
			break
		}

		state = stateActing
		stepRecord.Action = action
		emitter.Emit(ctx, datatypes.StreamEvent{
			Type: datatypes.EventToolStart, ToolName: action.ToolName,
		})

		toolStart := time.Now()
		observation := o.executor.Execute(toolCtx, action.ToolName, action.Arguments)
		toolsCalled++
		emitter.Emit(ctx, datatypes.StreamEvent{
			Type:       datatypes.EventToolEnd,
			ToolName:   action.ToolName,
			DurationMs: time.Since(toolStart).Milliseconds(),
		})

		state = stateObserving
		stepRecord.Observation = observation
		lastObservation = observation
		trace.Steps = append(trace.Steps, stepRecord)

		messages = append(messages,
			llm.ChatMessage{Role: "assistant", Content: text},
			llm.ChatMessage{Role: "user", Content: "OBSERVATION: " + observation},
		)
		state = stateThinking
	}

	if state != stateDone {
		// Step budget exhausted: synthesize from what we have instead of
		// looping forever.
		log.Warn("Step budget exhausted, synthesizing best-effort answer",
			"steps", len(trace.Steps))
		rawAnswer = synthesizeFromObservation(lastObservation)
	}

	answer := parser.Clean(rawAnswer)
	answer, citedSources := o.citations.Enrich(answer, sources)
	if citedSources == nil {
		citedSources = []string{}
	}

	trace.FinalAnswer = answer
	trace.TotalDuration = time.Since(start)
	o.persistTrace(trace, log)

	log.Info("Query processed",
		"steps", len(trace.Steps),
		"tools_called", toolsCalled,
		"duration", trace.TotalDuration,
		"fallbacks", trace.FallbacksActivated)

	return &datatypes.QueryResponse{
		Answer:        answer,
		Sources:       citedSources,
		TotalSteps:    len(trace.Steps),
		ToolsCalled:   toolsCalled,
		Steps:         trace.Steps,
		CorrelationID: trace.CorrelationID,
	}, nil
}

// completeStep runs one model call through the chain's streaming path,
// cutting generation short once a complete ACTION line has arrived; tokens
// generated past the action line would be discarded anyway. Non-streaming
// backends deliver their content as a single delta, which makes this
// equivalent to a plain Complete.
func (o *Orchestrator) completeStep(ctx context.Context, req llm.CompletionRequest) (*llm.Result, error) {
	var buf strings.Builder
	return o.chain.StreamComplete(ctx, req, func(delta string) error {
		buf.WriteString(delta)
		if hasCompleteActionLine(buf.String()) {
			return llm.ErrStopStreaming
		}
		return nil
	})
}

// hasCompleteActionLine reports whether text contains an ACTION line that
// has been fully generated (closing parenthesis followed by a newline).
func hasCompleteActionLine(text string) bool {
	idx := strings.Index(text, "ACTION:")
	if idx < 0 {
		return false
	}
	rest := text[idx:]
	closeIdx := strings.Index(rest, ")")
	if closeIdx < 0 {
		return false
	}
	return strings.Contains(rest[closeIdx:], "\n")
}

// retrieveContext runs the up-front retrieval round and records sources on
// the trace. Failures degrade to an empty context block.
func (o *Orchestrator) retrieveContext(ctx context.Context, query string,
	trace *datatypes.AgentTrace, log *slog.Logger) (string, []citations.Source) {
	if o.retriever == nil {
		return "", nil
	}
	resp, err := o.retriever.SearchWithReranking(ctx, query,
		retrieval.SearchOptions{TopK: o.cfg.RetrievalTopK})
	if err != nil {
		log.Warn("Context retrieval failed, continuing without context", "error", err)
		return "", nil
	}
	for _, p := range resp.Results {
		trace.RetrievedDocs = append(trace.RetrievedDocs, p.Source)
		trace.ConfidenceScores = append(trace.ConfidenceScores, p.Certainty)
	}
	block, sources := o.citations.BuildContext(resp.Results)
	return block, sources
}

// finishDegraded ends the loop with an honest degraded message after the
// model chain is exhausted.
func (o *Orchestrator) finishDegraded(ctx context.Context, trace *datatypes.AgentTrace,
	start time.Time, err error, log *slog.Logger) (*datatypes.QueryResponse, error) {
	if !errors.Is(err, llm.ErrAllBackendsExhausted) && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	log.Error("All model backends failed", "error", err)

	trace.FinalAnswer = fmt.Sprintf(
		"I could not process your question right now. Please try again shortly. (reference: %s)",
		trace.CorrelationID)
	trace.TotalDuration = time.Since(start)
	o.persistTrace(trace, log)

	return &datatypes.QueryResponse{
		Answer:        trace.FinalAnswer,
		Sources:       []string{},
		TotalSteps:    len(trace.Steps),
		CorrelationID: trace.CorrelationID,
	}, nil
}

// persistTrace appends to the audit sink asynchronously. Best-effort.
func (o *Orchestrator) persistTrace(trace *datatypes.AgentTrace, log *slog.Logger) {
	if o.sink == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := o.sink.Append(ctx, trace); err != nil {
			log.Warn("Failed to persist agent trace", "error", err)
		}
	}()
}

// extractFinalAnswer returns the text after the final-answer marker.
func extractFinalAnswer(text string) (string, bool) {
	idx := strings.Index(strings.ToLower(text), finalAnswerMarker)
	if idx < 0 {
		return "", false
	}
	return strings.TrimSpace(text[idx+len(finalAnswerMarker):]), true
}

// extractThought returns the model's scratch-pad thought line, if present.
func extractThought(text string) string {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		if strings.HasPrefix(lower, "thought:") {
			return strings.TrimSpace(trimmed[len("thought:"):])
		}
	}
	return ""
}

// synthesizeFromObservation builds the degraded answer used when the step
// budget runs out before a final answer appears.
func synthesizeFromObservation(observation string) string {
	observation = strings.TrimSpace(observation)
	if observation == "" || strings.HasPrefix(observation, "ERROR:") {
		return "I could not reach a confident answer within the allotted research steps. Please narrow the question and try again."
	}
	return "I ran out of research steps before reaching a final answer. Here is what I found so far:\n\n" + observation
}

// appendUnique appends names not already present.
func appendUnique(list []string, names ...string) []string {
	for _, name := range names {
		found := false
		for _, existing := range list {
			if existing == name {
				found = true
				break
			}
		}
		if !found {
			list = append(list, name)
		}
	}
	return list
}
