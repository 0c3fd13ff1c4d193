package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pavelanni/studytool/internal/llm/prompts"
)

// ErrNoCredential is returned when no API key is available for a provider
// that needs one.
var ErrNoCredential = errors.New("no LLM credential")

// Provider names.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// GenConfig tunes a single text generation call.
type GenConfig struct {
	Temperature float32
	MaxTokens   int
	// JSON asks the model to answer with a single JSON object.
	JSON bool
}

// Generator produces text from a prompt.
type Generator interface {
	GenerateText(ctx context.Context, prompt string, cfg GenConfig) (string, error)
	// Ping checks that the endpoint and credential work.
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures the LLM backend.
type Config struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	Variant  prompts.Variant
}

// DefaultModel returns the model used when none is configured.
func (c Config) DefaultModel() string {
	if c.Model != "" {
		return c.Model
	}
	if c.Provider == ProviderGemini {
		return "gemini-1.5-flash"
	}
	return "gpt-4o-mini"
}

// NewGenerator builds a Generator for the configured provider. A non-empty
// apiKey overrides the configured one. OpenAI-compatible endpoints with a
// custom base URL may run without a key.
func (c Config) NewGenerator(ctx context.Context, apiKey string) (Generator, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		key = c.APIKey
	}
	switch c.Provider {
	case ProviderOpenAI, "":
		if key == "" && c.BaseURL == "" {
			return nil, ErrNoCredential
		}
		return New(c.BaseURL, key, c.DefaultModel()), nil
	case ProviderGemini:
		if key == "" {
			return nil, ErrNoCredential
		}
		return NewGemini(ctx, key, c.DefaultModel())
	}
	return nil, fmt.Errorf("unknown LLM provider %q", c.Provider)
}

// NewOracle builds an Oracle backed by a fresh Generator. The caller must
// Close it.
func (c Config) NewOracle(ctx context.Context, apiKey string) (*Oracle, error) {
	gen, err := c.NewGenerator(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	variant := c.Variant
	if variant == "" {
		variant = prompts.Standard
	}
	return NewOracle(gen, variant), nil
}
