// Package llm provides the answer generators used to turn a question and its
// retrieved context into an answer.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Generator produces an answer to question using only context.
type Generator interface {
	Generate(ctx context.Context, question, docContext string) (string, error)

	// Name identifies the provider and model, e.g. "openai:gpt-4o-mini".
	Name() string
}

// Provider names accepted by New.
const (
	ProviderExtractive = "extractive"
	ProviderOpenAI     = "openai"
	ProviderOllama     = "ollama"
)

// Config selects and configures a generator.
type Config struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	MaxTokens int
}

// New builds the generator described by cfg. An empty provider selects the
// local extractive generator.
func New(cfg Config) (Generator, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderExtractive:
		return NewExtractiveGenerator(nil, 0), nil
	case ProviderOpenAI:
		return NewOpenAIGenerator(OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Timeout:   cfg.Timeout,
			MaxTokens: cfg.MaxTokens,
		})
	case ProviderOllama:
		return NewOllamaGenerator(OllamaConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Timeout:   cfg.Timeout,
			MaxTokens: cfg.MaxTokens,
		}), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
