package llm

import "context"

// ChatMessage is a single message in the standard role/content format shared
// by all backends.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest carries one model call's inputs, backend-agnostic.
type CompletionRequest struct {
	Messages    []ChatMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
}

// Completion is the normalized result of a model call.
type Completion struct {
	Content      string `json:"content"`
	ModelName    string `json:"model_name"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	FinishReason string `json:"finish_reason"`
}

// Backend defines the standard interface for any LLM provider.
//
// Implementations must be safe for concurrent use and must honor context
// cancellation and deadlines on every outbound call.
type Backend interface {
	// Name returns the stable backend identifier used in fallback reporting
	// (e.g. "anthropic", "openai", "ollama").
	Name() string

	// Complete performs a blocking chat completion.
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// StreamingBackend is implemented by backends that can deliver incremental
// completion deltas.
//
// # Description
//
// StreamComplete invokes fn once per delta, in order, from a single
// goroutine. A fn return of ErrStopStreaming ends generation early and the
// accumulated completion is returned without error; any other fn error
// aborts the call and is returned. The returned Completion's Content always
// equals the concatenation of the delivered deltas.
//
// Backends without native streaming are still usable through
// FallbackChain.StreamComplete, which serves them via Complete with a
// single delta.
type StreamingBackend interface {
	Backend

	// StreamComplete performs a chat completion, delivering deltas to fn.
	StreamComplete(ctx context.Context, req CompletionRequest, fn func(delta string) error) (*Completion, error)
}
