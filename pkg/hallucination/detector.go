package hallucination

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/xhad/reviewground/internal/models"
	"github.com/xhad/reviewground/internal/types"
	"github.com/xhad/reviewground/pkg/telemetry"
)

var ErrUnknownMethod = errors.New("unknown detection method")

// Detector maps a (claim, paper) pair to a verdict backed by evidence from
// the paper's indexed chunks.
type Detector interface {
	Method() models.Method
	Detect(ctx context.Context, claim, paperID string) (models.Verdict, error)
	DetectBatch(ctx context.Context, claims []string, paperID string) ([]models.Verdict, error)
}

type Config struct {
	Embedder types.Embedder
	Index    types.VectorIndex
	NLI      types.NLIClassifier
	Judge    types.StructuredGenerator

	JudgeModel string
	// Nil thresholds fall back to 0.75 and 0.5. Zero is a valid setting.
	SimilarityThreshold *float64
	NLIThreshold        *float64
	SimilarityK         int
	EvidenceK           int

	Metrics *telemetry.Metrics
	Logger  *slog.Logger

	similarityThreshold float64
	nliThreshold        float64
}

func (c *Config) applyDefaults() error {
	if c.Embedder == nil || c.Index == nil {
		return fmt.Errorf("detector requires an embedder and an index")
	}
	c.similarityThreshold = 0.75
	if c.SimilarityThreshold != nil {
		c.similarityThreshold = *c.SimilarityThreshold
	}
	c.nliThreshold = 0.5
	if c.NLIThreshold != nil {
		c.nliThreshold = *c.NLIThreshold
	}
	if c.SimilarityK <= 0 {
		c.SimilarityK = 1
	}
	if c.EvidenceK <= 0 {
		c.EvidenceK = 5
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

func ParseMethod(s string) (models.Method, error) {
	m := models.Method(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range models.Methods {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

// evidenceFinder is the retrieval step every detector shares.
type evidenceFinder struct {
	embedder types.Embedder
	index    types.VectorIndex
}

func (f evidenceFinder) find(ctx context.Context, claim, paperID string, k int) ([]models.SearchResult, error) {
	vec, err := f.embedder.Embed(ctx, claim)
	if err != nil {
		return nil, fmt.Errorf("failed to embed claim: %w", err)
	}
	results, err := f.index.Search(ctx, vec, paperID, k)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve evidence: %w", err)
	}
	return results, nil
}

// runBatch processes claims one at a time, in order.
func runBatch[T any](ctx context.Context, claims []string, paperID string, detect func(context.Context, string, string) (T, error), logResult func(string, T)) ([]T, error) {
	results := make([]T, 0, len(claims))
	for _, claim := range claims {
		r, err := detect(ctx, claim, paperID)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
		logResult(claim, r)
	}
	return results, nil
}

func toVerdicts[T models.Verdict](results []T) []models.Verdict {
	out := make([]models.Verdict, len(results))
	for i, r := range results {
		out[i] = r
	}
	return out
}

// preview shortens a claim for log lines.
func preview(claim string) string {
	r := []rune(claim)
	if len(r) <= 50 {
		return claim
	}
	return string(r[:50]) + "..."
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
