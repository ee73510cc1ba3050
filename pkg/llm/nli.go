package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/xhad/reviewground/internal/types"
	"github.com/xhad/reviewground/pkg/telemetry"
	"golang.org/x/time/rate"
)

// PairSeparator joins premise and hypothesis for cross-encoder NLI models.
const PairSeparator = "</s></s>"

type NLIConfig struct {
	BaseURL   string
	Model     string
	APIKey    string
	RateLimit float64
	Timeout   time.Duration
	Metrics   *telemetry.Metrics
	Logger    *slog.Logger
}

// NLIClient calls a Hugging Face style text-classification endpoint.
type NLIClient struct {
	config     NLIConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

type nliRequest struct {
	Inputs  string         `json:"inputs"`
	Options map[string]any `json:"options,omitempty"`
}

func NewNLIClient(config NLIConfig) *NLIClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://api-inference.huggingface.co"
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	if config.Model == "" {
		config.Model = "cross-encoder/nli-deberta-v3-small"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	return &NLIClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    limiter,
		logger:     config.Logger.With("component", "nli", "model", config.Model),
	}
}

// Classify scores the pair (premise, hypothesis). Labels are returned as the
// model names them.
func (c *NLIClient) Classify(ctx context.Context, premise, hypothesis string) ([]types.LabelScore, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	payload := nliRequest{
		Inputs:  premise + PairSeparator + hypothesis,
		Options: map[string]any{"wait_for_model": true},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal NLI request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s", c.config.BaseURL, c.config.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create NLI request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.config.Metrics.ObserveOracle("nli", "error", time.Since(start))
		return nil, fmt.Errorf("NLI request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.config.Metrics.ObserveOracle("nli", "error", time.Since(start))
		return nil, fmt.Errorf("failed to read NLI response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.config.Metrics.ObserveOracle("nli", "error", time.Since(start))
		return nil, fmt.Errorf("NLI endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	scores, err := parseLabelScores(raw)
	if err != nil {
		c.config.Metrics.ObserveOracle("nli", "malformed", time.Since(start))
		return nil, err
	}

	c.config.Metrics.ObserveOracle("nli", "ok", time.Since(start))
	c.logger.Debug("classified pair", "labels", len(scores), "elapsed", time.Since(start))
	return scores, nil
}

// parseLabelScores accepts both [[{label,score}]] and [{label,score}].
func parseLabelScores(raw []byte) ([]types.LabelScore, error) {
	var nested [][]types.LabelScore
	if err := json.Unmarshal(raw, &nested); err == nil {
		if len(nested) == 0 {
			return nil, fmt.Errorf("%w: empty NLI response", ErrMalformedOutput)
		}
		return nested[0], nil
	}

	var flat []types.LabelScore
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return flat, nil
}
