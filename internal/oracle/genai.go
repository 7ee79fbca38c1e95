package oracle

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/nweidner/kontoauszug-analyzer/internal/protocol"
)

// GeminiOracle sends extraction requests to a Gemini model. Credentials
// come from the environment (GOOGLE_API_KEY or application default
// credentials).
type GeminiOracle struct{}

// NewGeminiOracle creates a Gemini-backed oracle.
func NewGeminiOracle() *GeminiOracle {
	return &GeminiOracle{}
}

// Complete sends the prompt and document context to the configured model
// and returns the raw response text.
func (o *GeminiOracle) Complete(ctx context.Context, req protocol.Request) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return "", fmt.Errorf("Complete: create genai client: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: protocol.SystemInstruction},
				{Text: fmt.Sprintf("Dokument:\n%s\n\nAufgabe:\n%s", req.Context, req.Prompt)},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, req.ModelID, contents, nil)
	if err != nil {
		return "", fmt.Errorf("Complete: generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("Complete: empty response from model %s", req.ModelID)
	}
	return text, nil
}
