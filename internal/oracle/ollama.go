package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nweidner/kontoauszug-analyzer/internal/protocol"
)

// ollamaTimeout bounds one chat completion; statement extraction on small
// self-hosted models can take minutes.
const ollamaTimeout = 5 * time.Minute

// OllamaOracle talks to an Ollama server's /api/chat endpoint.
type OllamaOracle struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaOracle creates an oracle for the given Ollama base URL, e.g.
// "http://localhost:11434".
func NewOllamaOracle(baseURL string) *OllamaOracle {
	return &OllamaOracle{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Complete sends the request as a system+user chat with JSON output format
// and returns the model's message content.
func (o *OllamaOracle) Complete(ctx context.Context, req protocol.Request) (string, error) {
	payload := ollamaChatRequest{
		Model: req.ModelID,
		Messages: []ollamaMessage{
			{Role: "system", Content: protocol.SystemInstruction},
			{Role: "user", Content: fmt.Sprintf("Dokument:\n%s\n\nAufgabe:\n%s", req.Context, req.Prompt)},
		},
		Stream: false,
		Format: "json",
		Options: &ollamaOptions{
			Temperature: 0.1,
			NumPredict:  4000,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("Complete: marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, ollamaTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("Complete: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("Complete: ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("Complete: ollama API error: %d - %s", resp.StatusCode, string(msg))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("Complete: decode ollama response: %w", err)
	}
	if chatResp.Message.Content == "" {
		return "", fmt.Errorf("Complete: ollama returned empty response")
	}
	return chatResp.Message.Content, nil
}
