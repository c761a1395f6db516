// Package embedding provides the text embedding providers used to build and
// query document indexes.
package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Embedder converts text to vectors.
type Embedder interface {
	// Embed converts texts to vectors (batched for efficiency).
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimensionality.
	Dimensions() int

	// Name identifies the embedder. Indexes record it so that a provider or
	// model change invalidates them.
	Name() string
}

// Provider names accepted by New.
const (
	ProviderHashing = "hashing"
	ProviderOpenAI  = "openai"
	ProviderOllama  = "ollama"
)

// Config selects and configures an embedding provider.
type Config struct {
	Provider   string
	Model      string
	Dimensions int
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
}

// New builds the embedder described by cfg. An empty provider selects the
// local hashing embedder.
func New(cfg Config) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderHashing:
		return NewHashingEmbedder(cfg.Dimensions), nil
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedding: openai provider requires an API key")
		}
		e := NewOpenAIEmbedder(cfg.APIKey, cfg.Model, cfg.Dimensions)
		if cfg.BaseURL != "" {
			e.baseURL = strings.TrimRight(cfg.BaseURL, "/") + "/embeddings"
		}
		if cfg.Timeout > 0 {
			e.client.Timeout = cfg.Timeout
		}
		return e, nil
	case ProviderOllama:
		return NewOllamaEmbedder(OllamaConfig{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
}
