package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/xhad/reviewground/pkg/telemetry"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Provider    string // ollama or openai
	Model       string
	Temperature float64
	MaxTokens   int
	BaseURL     string
	APIKey      string
	Metrics     *telemetry.Metrics
	Logger      *slog.Logger
}

// ChatEngine produces free-form review text.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
	logger *slog.Logger
}

func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	if err := applyChatDefaults(&config); err != nil {
		return nil, err
	}

	var (
		model llms.Model
		err   error
	)
	switch config.Provider {
	case "ollama":
		model, err = ollama.New(ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL))
	case "openai":
		opts := []openai.Option{openai.WithModel(config.Model), openai.WithToken(config.APIKey)}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		model, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return NewWithModel(model, config)
}

// NewWithModel wraps an already constructed model.
func NewWithModel(model llms.Model, config ChatConfig) (*ChatEngine, error) {
	if err := applyChatDefaults(&config); err != nil {
		return nil, err
	}
	return &ChatEngine{
		config: config,
		llm:    model,
		logger: config.Logger.With("component", "chat", "model", config.Model),
	}, nil
}

func applyChatDefaults(config *ChatConfig) error {
	if config.Provider == "" {
		config.Provider = "ollama"
	}
	if config.Model == "" {
		config.Model = "mistral" // Default Ollama model
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.BaseURL == "" && config.Provider == "ollama" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return nil
}

// Generate returns the model's completion of prompt under systemPrompt.
func (ce *ChatEngine) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	start := time.Now()
	response, err := ce.llm.GenerateContent(ctx, content,
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	)
	if err != nil {
		ce.config.Metrics.ObserveOracle("generation", "error", time.Since(start))
		return "", fmt.Errorf("generation error: %w", err)
	}

	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil {
		ce.config.Metrics.ObserveOracle("generation", "error", time.Since(start))
		return "", fmt.Errorf("generation error: no response from LLM")
	}

	ce.config.Metrics.ObserveOracle("generation", "ok", time.Since(start))
	text := strings.TrimSpace(response.Choices[0].Content)
	ce.logger.Debug("generated text", "chars", len(text), "elapsed", time.Since(start))
	return text, nil
}
