package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lautan.llm.ollama") // Specific tracer name

// OllamaClient is the free-tier/local tertiary backend in the default
// fallback order.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

type ollamaChatRequest struct {
	Model    string                 `json:"model"`
	Messages []ChatMessage          `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message         ChatMessage `json:"message"`
	CreatedAt       string      `json:"created_at"`
	Done            bool        `json:"done"`
	DoneReason      string      `json:"done_reason"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

func NewOllamaClient() (*OllamaClient, error) {
	baseURL := os.Getenv("OLLAMA_BASE_URL")
	model := os.Getenv("OLLAMA_MODEL")
	if baseURL == "" {
		return nil, fmt.Errorf("OLLAMA_BASE_URL environment variable not set")
	}
	if model == "" {
		slog.Warn("OLLAMA_MODEL not set, defaulting to gpt-oss")
		model = "gpt-oss"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	slog.Info("Initializing Ollama client", "base_url", baseURL, "default_model", model)
	return &OllamaClient{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    baseURL,
		model:      model,
	}, nil
}

// Name implements the Backend interface.
func (o *OllamaClient) Name() string { return "ollama" }

// Complete implements the Backend interface.
func (o *OllamaClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	ctx, span := tracer.Start(ctx, "OllamaClient.Complete")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model))
	slog.Debug("Requesting completion via Ollama", "model", o.model)

	chatURL := o.baseURL + "/api/chat"
	payload := o.buildChatRequest(req, false)

	reqBodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, chatURL,
		bytes.NewBuffer(reqBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		span.SetStatus(codes.Error, "HTTP request failed")
		return nil, &BackendError{
			Backend: o.Name(),
			Kind:    classifyError(0, err),
			Err:     fmt.Errorf("HTTP request failed: %w", err),
		}
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, "non-200 from Ollama")
		return nil, &BackendError{
			Backend:    o.Name(),
			Kind:       classifyError(resp.StatusCode, nil),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(bodyBytes)),
		}
	}

	var apiResp ollamaChatResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}
	if apiResp.Message.Content == "" {
		return nil, &BackendError{
			Backend: o.Name(),
			Kind:    KindOther,
			Err:     fmt.Errorf("received empty content from Ollama"),
		}
	}

	return &Completion{
		Content:      apiResp.Message.Content,
		ModelName:    o.model,
		InputTokens:  apiResp.PromptEvalCount,
		OutputTokens: apiResp.EvalCount,
		FinishReason: apiResp.DoneReason,
	}, nil
}

// StreamComplete implements the StreamingBackend interface.
//
// Ollama streams newline-delimited JSON chunks; each carries a message
// delta, and the final chunk (done=true) carries token counts.
func (o *OllamaClient) StreamComplete(ctx context.Context, req CompletionRequest,
	fn func(delta string) error) (*Completion, error) {
	ctx, span := tracer.Start(ctx, "OllamaClient.StreamComplete")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model))

	payload := o.buildChatRequest(req, true)
	reqBodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+"/api/chat", bytes.NewBuffer(reqBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		span.SetStatus(codes.Error, "HTTP request failed")
		return nil, &BackendError{
			Backend: o.Name(),
			Kind:    classifyError(0, err),
			Err:     fmt.Errorf("HTTP request failed: %w", err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		span.SetStatus(codes.Error, "non-200 from Ollama")
		return nil, &BackendError{
			Backend:    o.Name(),
			Kind:       classifyError(resp.StatusCode, nil),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(bodyBytes)),
		}
	}

	var content strings.Builder
	completion := &Completion{ModelName: o.model}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaChatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return nil, fmt.Errorf("failed to parse stream chunk: %w", err)
		}
		if chunk.Message.Content != "" {
			content.WriteString(chunk.Message.Content)
			if err := fn(chunk.Message.Content); err != nil {
				if errors.Is(err, ErrStopStreaming) {
					completion.Content = content.String()
					completion.FinishReason = "stop_requested"
					return completion, nil
				}
				return nil, err
			}
		}
		if chunk.Done {
			completion.InputTokens = chunk.PromptEvalCount
			completion.OutputTokens = chunk.EvalCount
			completion.FinishReason = chunk.DoneReason
			break
		}
	}
	if err := scanner.Err(); err != nil {
		span.SetStatus(codes.Error, "stream read failed")
		return nil, &BackendError{
			Backend: o.Name(),
			Kind:    classifyError(0, err),
			Err:     fmt.Errorf("stream read failed: %w", err),
		}
	}

	completion.Content = content.String()
	if completion.Content == "" {
		return nil, &BackendError{
			Backend: o.Name(),
			Kind:    KindOther,
			Err:     fmt.Errorf("received empty content from Ollama"),
		}
	}
	return completion, nil
}

// buildChatRequest assembles the /api/chat payload with option defaults.
func (o *OllamaClient) buildChatRequest(req CompletionRequest, stream bool) ollamaChatRequest {
	options := make(map[string]interface{})
	if req.Temperature != nil {
		options["temperature"] = *req.Temperature
	} else {
		options["temperature"] = float32(0.2)
	}
	if req.MaxTokens != nil {
		options["num_predict"] = *req.MaxTokens
	} else {
		options["num_predict"] = 8192
	}
	if len(req.Stop) > 0 {
		options["stop"] = req.Stop
	}
	return ollamaChatRequest{
		Model:    o.model,
		Messages: req.Messages,
		Stream:   stream,
		Options:  options,
	}
}
