package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// LocalLlamaCppClient talks to a llama.cpp server's /completion endpoint.
// It is the air-gapped last resort: no API keys, no egress, flat prompt.
type LocalLlamaCppClient struct {
	httpClient *http.Client
	baseURL    string
}

type llamaCppPayload struct {
	Prompt      string   `json:"prompt"`
	NPredict    int      `json:"n_predict"`
	Temperature *float32 `json:"temperature,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type llamaCppResp struct {
	Content         string `json:"content"`
	StopType        string `json:"stop_type"`
	TokensEvaluated int    `json:"tokens_evaluated"`
	TokensPredicted int    `json:"tokens_predicted"`
}

func NewLocalLlamaCppClient() (*LocalLlamaCppClient, error) {
	baseURL := os.Getenv("LLM_SERVICE_URL_BASE")
	if baseURL == "" {
		return nil, fmt.Errorf("LLM_SERVICE_URL_BASE environment variable not set")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	slog.Info("Initializing local llama.cpp client", "base_url", baseURL)
	return &LocalLlamaCppClient{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    baseURL,
	}, nil
}

// Name implements the Backend interface.
func (l *LocalLlamaCppClient) Name() string { return "local" }

// Complete implements the Backend interface.
//
// llama.cpp's /completion endpoint takes a flat prompt, so the chat
// messages are rendered role-tagged in order.
func (l *LocalLlamaCppClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	payload := llamaCppPayload{
		Prompt:   flattenMessages(req.Messages),
		NPredict: 1024,
		Stop:     req.Stop,
	}
	if req.MaxTokens != nil {
		payload.NPredict = *req.MaxTokens
	}
	if req.Temperature != nil {
		payload.Temperature = req.Temperature
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal llama.cpp payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		l.baseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build llama.cpp request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(httpReq)
	if err != nil {
		return nil, &BackendError{
			Backend: l.Name(),
			Kind:    classifyError(0, err),
			Err:     fmt.Errorf("HTTP request failed: %w", err),
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read llama.cpp response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &BackendError{
			Backend:    l.Name(),
			Kind:       classifyError(resp.StatusCode, nil),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("llama.cpp returned status %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var parsed llamaCppResp
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse llama.cpp response: %w", err)
	}

	return &Completion{
		Content:      parsed.Content,
		ModelName:    "llama.cpp",
		InputTokens:  parsed.TokensEvaluated,
		OutputTokens: parsed.TokensPredicted,
		FinishReason: parsed.StopType,
	}, nil
}

// flattenMessages renders chat history as a role-tagged prompt ending with
// an assistant cue.
func flattenMessages(messages []ChatMessage) string {
	var b strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			b.WriteString(msg.Content)
			b.WriteString("\n\n")
		case "assistant":
			b.WriteString("Assistant: ")
			b.WriteString(msg.Content)
			b.WriteString("\n")
		default:
			b.WriteString("User: ")
			b.WriteString(msg.Content)
			b.WriteString("\n")
		}
	}
	b.WriteString("Assistant:")
	return b.String()
}
