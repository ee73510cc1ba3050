package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/xhad/reviewground/internal/types"
	"github.com/xhad/reviewground/pkg/telemetry"
	"golang.org/x/time/rate"
)

// ErrMalformedOutput marks a response that could not be decoded into the
// requested shape. Callers degrade to an empty or default result on it;
// any other error is a transport failure and should propagate.
var ErrMalformedOutput = errors.New("malformed structured output")

type StructuredConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	RateLimit float64 // requests per second, 0 disables
	Timeout   time.Duration
	Metrics   *telemetry.Metrics
	Logger    *slog.Logger
}

// StructuredClient asks an OpenAI-compatible endpoint for JSON matching a
// schema derived from the output type.
type StructuredClient struct {
	config  StructuredConfig
	client  *openai.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewStructuredClient(config StructuredConfig) (*StructuredClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	return &StructuredClient{
		config:  config,
		client:  openai.NewClientWithConfig(clientConfig),
		limiter: limiter,
		logger:  config.Logger.With("component", "structured"),
	}, nil
}

// GenerateStructured fills out, which must be a non-nil pointer to a struct.
func (c *StructuredClient) GenerateStructured(ctx context.Context, req types.StructuredRequest, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("structured output target must be a non-nil pointer, got %T", out)
	}

	schema, err := jsonschema.GenerateSchemaForType(rv.Elem().Interface())
	if err != nil {
		return fmt.Errorf("failed to derive schema for %T: %w", out, err)
	}

	model := req.Model
	if model == "" {
		model = c.config.Model
	}
	name := req.Name
	if name == "" {
		name = "output"
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	chatReq := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   name,
				Schema: schema,
				Strict: false,
			},
		},
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctxWithTimeout, chatReq)
	if err != nil {
		c.config.Metrics.ObserveOracle("structured", "error", time.Since(start))
		return fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		c.config.Metrics.ObserveOracle("structured", "malformed", time.Since(start))
		return fmt.Errorf("%w: no choices returned", ErrMalformedOutput)
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonLength {
		c.config.Metrics.ObserveOracle("structured", "malformed", time.Since(start))
		return fmt.Errorf("%w: response truncated", ErrMalformedOutput)
	}

	if err := decodeJSON(choice.Message.Content, out); err != nil {
		c.config.Metrics.ObserveOracle("structured", "malformed", time.Since(start))
		c.logger.Warn("could not decode structured output", "name", name, "model", model, "error", err)
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	c.config.Metrics.ObserveOracle("structured", "ok", time.Since(start))
	c.logger.Debug("structured output", "name", name, "model", model, "tokens", resp.Usage.TotalTokens)
	return nil
}

// decodeJSON tolerates a markdown fence around the payload.
func decodeJSON(content string, out any) error {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}
	if content == "" {
		return errors.New("empty content")
	}
	return json.Unmarshal([]byte(content), out)
}
