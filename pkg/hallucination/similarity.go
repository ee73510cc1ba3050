package hallucination

import (
	"context"
	"log/slog"

	"github.com/xhad/reviewground/internal/models"
)

// SimilarityDetector calls a claim grounded when its nearest chunk is at
// least Threshold cosine-similar. It measures topicality, not entailment.
type SimilarityDetector struct {
	config   Config
	evidence evidenceFinder
	logger   *slog.Logger
}

func NewSimilarityDetector(config Config) (*SimilarityDetector, error) {
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}
	return &SimilarityDetector{
		config:   config,
		evidence: evidenceFinder{embedder: config.Embedder, index: config.Index},
		logger:   config.Logger.With("component", "similarity"),
	}, nil
}

func (d *SimilarityDetector) Method() models.Method { return models.MethodSimilarity }

func (d *SimilarityDetector) DetectHallucination(ctx context.Context, claim, paperID string) (models.SimilarityResult, error) {
	chunks, err := d.evidence.find(ctx, claim, paperID, d.config.SimilarityK)
	if err != nil {
		return models.SimilarityResult{}, err
	}

	if len(chunks) == 0 {
		d.config.Metrics.RecordVerdict(string(models.MethodSimilarity), string(models.Ungrounded))
		return models.SimilarityResult{
			Claim:           claim,
			Verdict:         models.Ungrounded,
			MaxSimilarity:   0,
			Threshold:       d.config.similarityThreshold,
			IsHallucination: true,
		}, nil
	}

	best := chunks[0]
	verdict := models.Ungrounded
	if best.Score >= d.config.similarityThreshold {
		verdict = models.Grounded
	}
	d.config.Metrics.RecordVerdict(string(models.MethodSimilarity), string(verdict))

	return models.SimilarityResult{
		Claim:            claim,
		Verdict:          verdict,
		MaxSimilarity:    round(best.Score, 3),
		Threshold:        d.config.similarityThreshold,
		MostSimilarChunk: best.Content,
		IsHallucination:  verdict == models.Ungrounded,
	}, nil
}

func (d *SimilarityDetector) DetectHallucinationsBatch(ctx context.Context, claims []string, paperID string) ([]models.SimilarityResult, error) {
	return runBatch(ctx, claims, paperID, d.DetectHallucination, func(claim string, r models.SimilarityResult) {
		d.logger.Info("embedding similarity", "claim", preview(claim), "verdict", r.Verdict, "similarity", r.MaxSimilarity)
	})
}

func (d *SimilarityDetector) Detect(ctx context.Context, claim, paperID string) (models.Verdict, error) {
	r, err := d.DetectHallucination(ctx, claim, paperID)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (d *SimilarityDetector) DetectBatch(ctx context.Context, claims []string, paperID string) ([]models.Verdict, error) {
	rs, err := d.DetectHallucinationsBatch(ctx, claims, paperID)
	if err != nil {
		return nil, err
	}
	return toVerdicts(rs), nil
}
