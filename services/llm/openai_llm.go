package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient is the secondary (cost-efficient) backend in the default
// fallback order.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

func NewOpenAIClient() (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	model := os.Getenv("OPENAI_MODEL") // e.g., "gpt-4o"
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the OpenAI API Key from Podman Secrets")
		} else {
			slog.Warn("OPENAI_API_KEY not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}
	slog.Info("Initializing OpenAI client", "model", model)
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Name implements the Backend interface.
func (o *OpenAIClient) Name() string { return "openai" }

// Complete implements the Backend interface.
func (o *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	slog.Debug("Requesting completion via OpenAI", "model", o.model)

	apiMessages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		apiMessages = append(apiMessages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	apiReq := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: apiMessages,
	}
	if req.Temperature != nil {
		apiReq.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		apiReq.MaxCompletionTokens = *req.MaxTokens
	}
	if len(req.Stop) > 0 {
		apiReq.Stop = req.Stop
	}

	resp, err := o.client.CreateChatCompletion(ctx, apiReq)
	if err != nil {
		statusCode := 0
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			statusCode = apiErr.HTTPStatusCode
		}
		return nil, &BackendError{
			Backend:    o.Name(),
			Kind:       classifyError(statusCode, err),
			StatusCode: statusCode,
			Err:        err,
		}
	}

	if len(resp.Choices) == 0 {
		slog.Warn("OpenAI returned no choices")
		return nil, &BackendError{
			Backend: o.Name(),
			Kind:    KindOther,
			Err:     fmt.Errorf("OpenAI returned no choices"),
		}
	}

	choice := resp.Choices[0]
	slog.Debug("Received response from OpenAI", "finish_reason", choice.FinishReason)
	return &Completion{
		Content:      choice.Message.Content,
		ModelName:    resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		FinishReason: string(choice.FinishReason),
	}, nil
}

// StreamComplete implements the StreamingBackend interface.
func (o *OpenAIClient) StreamComplete(ctx context.Context, req CompletionRequest,
	fn func(delta string) error) (*Completion, error) {
	slog.Debug("Requesting streaming completion via OpenAI", "model", o.model)

	apiMessages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		apiMessages = append(apiMessages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	apiReq := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: apiMessages,
		Stream:   true,
	}
	if req.Temperature != nil {
		apiReq.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		apiReq.MaxCompletionTokens = *req.MaxTokens
	}
	if len(req.Stop) > 0 {
		apiReq.Stop = req.Stop
	}

	stream, err := o.client.CreateChatCompletionStream(ctx, apiReq)
	if err != nil {
		statusCode := 0
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			statusCode = apiErr.HTTPStatusCode
		}
		return nil, &BackendError{
			Backend:    o.Name(),
			Kind:       classifyError(statusCode, err),
			StatusCode: statusCode,
			Err:        err,
		}
	}
	defer stream.Close()

	var content strings.Builder
	completion := &Completion{ModelName: o.model}

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &BackendError{
				Backend: o.Name(),
				Kind:    classifyError(0, err),
				Err:     fmt.Errorf("stream read failed: %w", err),
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			if chunk.Choices[0].FinishReason != "" {
				completion.FinishReason = string(chunk.Choices[0].FinishReason)
			}
			continue
		}
		content.WriteString(delta)
		if err := fn(delta); err != nil {
			if errors.Is(err, ErrStopStreaming) {
				completion.Content = content.String()
				completion.FinishReason = "stop_requested"
				return completion, nil
			}
			return nil, err
		}
	}

	completion.Content = content.String()
	if completion.Content == "" {
		return nil, &BackendError{
			Backend: o.Name(),
			Kind:    KindOther,
			Err:     fmt.Errorf("OpenAI stream produced no content"),
		}
	}
	return completion, nil
}
