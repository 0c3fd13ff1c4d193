package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiClient generates text with Google Gemini.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini client for apiKey.
func NewGemini(ctx context.Context, apiKey, modelName string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("initialize Gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: modelName}, nil
}

func (g *GeminiClient) GenerateText(ctx context.Context, prompt string, cfg GenConfig) (string, error) {
	m := g.client.GenerativeModel(g.model)
	m.SetTemperature(cfg.Temperature)
	if cfg.MaxTokens > 0 {
		m.SetMaxOutputTokens(int32(cfg.MaxTokens))
	}
	if cfg.JSON {
		m.ResponseMIMEType = "application/json"
	}

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("Gemini API call: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("Gemini returned no content")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	slog.Debug("Gemini response", "model", g.model, "raw", sb.String())
	return sb.String(), nil
}

// Ping sends a tiny prompt to confirm the key is accepted.
func (g *GeminiClient) Ping(ctx context.Context) error {
	_, err := g.GenerateText(ctx, "Reply with OK.", GenConfig{MaxTokens: 10})
	return err
}

func (g *GeminiClient) Close() error {
	return g.client.Close()
}
