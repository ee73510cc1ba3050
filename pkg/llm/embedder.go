package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/xhad/reviewground/pkg/telemetry"
)

type EmbedderConfig struct {
	Provider  string // ollama or openai
	Model     string
	BaseURL   string
	APIKey    string
	BatchSize int
	Metrics   *telemetry.Metrics
}

// embeddingClient is satisfied by both langchaingo ollama and openai models.
type embeddingClient interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedder maps text to dense vectors; output order follows input order.
type Embedder struct {
	config EmbedderConfig
	client embeddingClient
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	applyEmbedderDefaults(&config)

	var (
		client embeddingClient
		err    error
	)
	switch config.Provider {
	case "ollama":
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434"
		}
		client, err = ollama.New(ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL))
	case "openai":
		opts := []openai.Option{
			openai.WithToken(config.APIKey),
			openai.WithEmbeddingModel(config.Model),
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		client, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return &Embedder{config: config, client: client}, nil
}

// NewEmbedderWithClient wraps any CreateEmbedding implementation.
func NewEmbedderWithClient(client embeddingClient, config EmbedderConfig) *Embedder {
	applyEmbedderDefaults(&config)
	return &Embedder{config: config, client: client}
}

func applyEmbedderDefaults(config *EmbedderConfig) {
	if config.Provider == "" {
		config.Provider = "openai"
	}
	if config.Model == "" {
		if config.Provider == "ollama" {
			config.Model = "nomic-embed-text:latest"
		} else {
			config.Model = "text-embedding-3-small"
		}
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := min(start+e.config.BatchSize, len(texts))

		begin := time.Now()
		batch, err := e.client.CreateEmbedding(ctx, texts[start:end])
		if err != nil {
			e.config.Metrics.ObserveOracle("embedding", "error", time.Since(begin))
			return nil, fmt.Errorf("failed to create embeddings: %w", err)
		}
		if len(batch) != end-start {
			e.config.Metrics.ObserveOracle("embedding", "error", time.Since(begin))
			return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(batch), end-start)
		}
		e.config.Metrics.ObserveOracle("embedding", "ok", time.Since(begin))
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}
