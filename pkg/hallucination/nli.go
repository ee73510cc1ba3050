package hallucination

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xhad/reviewground/internal/models"
	"github.com/xhad/reviewground/internal/types"
)

// NLIDetector runs premise(chunk)/hypothesis(claim) entailment over the
// top evidence chunks and keeps the most entailing one.
type NLIDetector struct {
	config   Config
	evidence evidenceFinder
	logger   *slog.Logger
}

func NewNLIDetector(config Config) (*NLIDetector, error) {
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}
	if config.NLI == nil {
		return nil, fmt.Errorf("NLI detector requires a classifier")
	}
	return &NLIDetector{
		config:   config,
		evidence: evidenceFinder{embedder: config.Embedder, index: config.Index},
		logger:   config.Logger.With("component", "nli"),
	}, nil
}

func (d *NLIDetector) Method() models.Method { return models.MethodNLI }

var neutralScores = models.NLIScores{Entailment: 0, Neutral: 1, Contradiction: 0}

// ScoresFromLabels maps model labels onto the three NLI classes by
// case-insensitive substring. Unrecognised labels are ignored.
func ScoresFromLabels(labels []types.LabelScore) models.NLIScores {
	var s models.NLIScores
	for _, l := range labels {
		label := strings.ToLower(l.Label)
		switch {
		case strings.Contains(label, "entail"):
			s.Entailment = l.Score
		case strings.Contains(label, "neutral"):
			s.Neutral = l.Score
		case strings.Contains(label, "contradict"):
			s.Contradiction = l.Score
		}
	}
	return s
}

// ClassifyScores applies the strict-majority rule at threshold.
func ClassifyScores(s models.NLIScores, threshold float64) models.NLILabel {
	switch {
	case s.Entailment > threshold && s.Entailment > s.Contradiction:
		return models.NLISupported
	case s.Contradiction > threshold && s.Contradiction > s.Entailment:
		return models.NLIContradicted
	default:
		return models.NLIUnverifiable
	}
}

// better reports whether candidate beats current: higher entailment, or equal
// entailment and higher contradiction.
func better(candidate, current models.NLIScores) bool {
	if candidate.Entailment != current.Entailment {
		return candidate.Entailment > current.Entailment
	}
	return candidate.Contradiction > current.Contradiction
}

func (d *NLIDetector) DetectHallucination(ctx context.Context, claim, paperID string) (models.NLIResult, error) {
	chunks, err := d.evidence.find(ctx, claim, paperID, d.config.EvidenceK)
	if err != nil {
		return models.NLIResult{}, err
	}

	if len(chunks) == 0 {
		d.config.Metrics.RecordVerdict(string(models.MethodNLI), string(models.NLIUnverifiable))
		return models.NLIResult{
			Claim:           claim,
			Verdict:         models.NLIUnverifiable,
			Scores:          neutralScores,
			IsHallucination: true,
		}, nil
	}

	bestScores := neutralScores
	bestChunk := ""
	for _, chunk := range chunks {
		labels, err := d.config.NLI.Classify(ctx, chunk.Content, claim)
		if err != nil {
			return models.NLIResult{}, fmt.Errorf("NLI classification failed: %w", err)
		}
		scores := ScoresFromLabels(labels)
		if better(scores, bestScores) {
			bestScores = scores
			bestChunk = chunk.Content
		}
	}

	verdict := ClassifyScores(bestScores, d.config.nliThreshold)
	d.config.Metrics.RecordVerdict(string(models.MethodNLI), string(verdict))

	return models.NLIResult{
		Claim:           claim,
		Verdict:         verdict,
		Scores:          bestScores,
		EvidenceChunk:   bestChunk,
		IsHallucination: verdict != models.NLISupported,
	}, nil
}

func (d *NLIDetector) DetectHallucinationsBatch(ctx context.Context, claims []string, paperID string) ([]models.NLIResult, error) {
	return runBatch(ctx, claims, paperID, d.DetectHallucination, func(claim string, r models.NLIResult) {
		d.logger.Info("nli", "claim", preview(claim), "verdict", r.Verdict, "entailment", r.Scores.Entailment)
	})
}

func (d *NLIDetector) Detect(ctx context.Context, claim, paperID string) (models.Verdict, error) {
	r, err := d.DetectHallucination(ctx, claim, paperID)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (d *NLIDetector) DetectBatch(ctx context.Context, claims []string, paperID string) ([]models.Verdict, error) {
	rs, err := d.DetectHallucinationsBatch(ctx, claims, paperID)
	if err != nil {
		return nil, err
	}
	return toVerdicts(rs), nil
}
