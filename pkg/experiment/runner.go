// Package experiment runs the RAG versus no-RAG comparison for one paper or
// a batch of papers.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/xhad/reviewground/internal/models"
	"github.com/xhad/reviewground/pkg/claims"
	"github.com/xhad/reviewground/pkg/evaluation"
	"github.com/xhad/reviewground/pkg/hallucination"
	"github.com/xhad/reviewground/pkg/rag"
	"github.com/xhad/reviewground/pkg/telemetry"
	"golang.org/x/sync/errgroup"
)

// PaperSet is where the runner looks papers up by position.
type PaperSet interface {
	Paper(ctx context.Context, index int) (models.Paper, error)
	Papers(ctx context.Context) ([]models.Paper, error)
}

// ResultStore persists finished batches.
type ResultStore interface {
	Save(ctx context.Context, exp models.BatchExperimentResult) error
}

type Config struct {
	Papers    PaperSet
	Indexer   *rag.Indexer
	Reviewer  *rag.Reviewer
	Extractor *claims.Extractor
	// Detector scores claims for the metrics. The LLM judge is the usual choice.
	Detector hallucination.Detector

	ValidateClaims bool
	Concurrency    int

	Results    ResultStore
	OnProgress func(ProgressEvent)
	Metrics    *telemetry.Metrics
	Logger     *slog.Logger
}

type Runner struct {
	config Config
	logger *slog.Logger
}

func NewRunner(config Config) (*Runner, error) {
	if config.Papers == nil || config.Indexer == nil || config.Reviewer == nil ||
		config.Extractor == nil || config.Detector == nil {
		return nil, errors.New("runner requires papers, indexer, reviewer, extractor and detector")
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 2
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Runner{config: config, logger: config.Logger.With("component", "experiment")}, nil
}

// WithProgress returns a runner that reports to fn instead.
func (r *Runner) WithProgress(fn func(ProgressEvent)) *Runner {
	cfg := r.config
	cfg.OnProgress = fn
	return &Runner{config: cfg, logger: r.logger}
}

func (r *Runner) Method() models.Method {
	return r.config.Detector.Method()
}

// RunPaper compares the RAG and no-RAG reviews of the paper at index.
func (r *Runner) RunPaper(ctx context.Context, index int) (models.PaperExperimentResult, error) {
	paper, err := r.config.Papers.Paper(ctx, index)
	if err != nil {
		return models.PaperExperimentResult{}, err
	}
	result, err := r.runPaper(ctx, index, paper)
	if err != nil {
		r.config.Metrics.RecordExperiment("error")
		return models.PaperExperimentResult{}, err
	}
	r.config.Metrics.RecordExperiment("ok")
	return result, nil
}

func (r *Runner) runPaper(ctx context.Context, index int, paper models.Paper) (models.PaperExperimentResult, error) {
	logger := r.logger.With("paper", paper.ID)
	r.emit(ProgressEvent{Stage: StageIndexing, PaperID: paper.ID, Index: index})

	if _, err := r.config.Indexer.IndexPaper(ctx, paper); err != nil {
		return models.PaperExperimentResult{}, err
	}

	var ragArm, noRAGArm models.ReviewAnalysis
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ragArm, err = r.analyze(gctx, index, paper, true)
		return err
	})
	g.Go(func() error {
		var err error
		noRAGArm, err = r.analyze(gctx, index, paper, false)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.PaperExperimentResult{}, err
	}

	comparison := evaluation.CompareMetrics(ragArm.Metrics, noRAGArm.Metrics)
	logger.Info("experiment complete",
		"hallucination_delta", comparison.HallucinationDelta,
		"grounding_delta", comparison.GroundingDelta)

	return models.PaperExperimentResult{
		PaperID:    paper.ID,
		PaperTitle: paper.Title,
		Timestamp:  time.Now().UTC(),
		Method:     r.Method(),
		RAG:        ragArm,
		NoRAG:      noRAGArm,
		Comparison: comparison,
	}, nil
}

// analyze runs one arm: generate, extract, optionally validate, detect, score.
func (r *Runner) analyze(ctx context.Context, index int, paper models.Paper, useRAG bool) (models.ReviewAnalysis, error) {
	arm := ArmNoRAG
	if useRAG {
		arm = ArmRAG
	}
	event := func(stage Stage) {
		r.emit(ProgressEvent{Stage: stage, PaperID: paper.ID, Index: index, Arm: arm})
	}

	event(StageReviewing)
	var (
		review string
		err    error
	)
	if useRAG {
		review, err = r.config.Reviewer.GenerateWithRAG(ctx, paper)
	} else {
		review, err = r.config.Reviewer.GenerateWithoutRAG(ctx, paper)
	}
	if err != nil {
		return models.ReviewAnalysis{}, err
	}

	event(StageExtracting)
	extracted, err := r.config.Extractor.ExtractClaims(ctx, review)
	if err != nil {
		return models.ReviewAnalysis{}, err
	}
	if r.config.ValidateClaims && len(extracted) > 0 {
		validated, err := r.config.Extractor.ValidateClaims(ctx, extracted)
		if err != nil {
			return models.ReviewAnalysis{}, err
		}
		extracted = claims.Usable(validated)
	}

	event(StageDetecting)
	verdicts, err := r.config.Detector.DetectBatch(ctx, claims.Texts(extracted), paper.ID)
	if err != nil {
		return models.ReviewAnalysis{}, err
	}

	analyses := make([]models.ClaimAnalysis, len(verdicts))
	for i, v := range verdicts {
		scored := v.Canonical()
		analyses[i] = models.ClaimAnalysis{
			Text:        extracted[i].Text,
			Category:    extracted[i].Category,
			Verdict:     nativeVerdict(v),
			Confidence:  scored.Confidence,
			Explanation: explain(v),
		}
	}

	return models.ReviewAnalysis{
		Review:  review,
		Claims:  analyses,
		Metrics: evaluation.CalculateMetrics(verdicts, review),
	}, nil
}

// RunBatch runs the first count papers (all of them when count <= 0) with
// bounded concurrency. A paper that fails is logged and left out.
func (r *Runner) RunBatch(ctx context.Context, count int) (models.BatchExperimentResult, error) {
	if err := ctx.Err(); err != nil {
		return models.BatchExperimentResult{}, err
	}
	papers, err := r.config.Papers.Papers(ctx)
	if err != nil {
		return models.BatchExperimentResult{}, err
	}
	if count <= 0 || count > len(papers) {
		count = len(papers)
	}

	experimentID := uuid.New().String()
	logger := r.logger.With("experiment", experimentID)
	logger.Info("starting batch", "papers", count, "concurrency", r.config.Concurrency)

	slots := make([]*models.PaperExperimentResult, count)
	var done atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Concurrency)
	for i := 0; i < count; i++ {
		paper := papers[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result, err := r.runPaper(gctx, i, paper)
			n := int(done.Add(1))
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.config.Metrics.RecordExperiment("error")
				logger.Error("paper failed", "paper", paper.ID, "error", err)
				r.emit(ProgressEvent{Stage: StagePaperFailed, PaperID: paper.ID, Index: i, Done: n, Total: count, Error: err.Error()})
				return nil
			}
			r.config.Metrics.RecordExperiment("ok")
			slots[i] = &result
			r.emit(ProgressEvent{Stage: StagePaperDone, PaperID: paper.ID, Index: i, Done: n, Total: count})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.BatchExperimentResult{}, err
	}

	results := make([]models.PaperExperimentResult, 0, count)
	for _, s := range slots {
		if s != nil {
			results = append(results, *s)
		}
	}

	batch := models.BatchExperimentResult{
		ExperimentID: experimentID,
		Timestamp:    time.Now().UTC(),
		TotalPapers:  len(results),
		Results:      results,
		Aggregated:   evaluation.Aggregate(results),
	}

	if r.config.Results != nil {
		if err := r.config.Results.Save(ctx, batch); err != nil {
			return models.BatchExperimentResult{}, fmt.Errorf("failed to save experiment %s: %w", experimentID, err)
		}
	}

	r.emit(ProgressEvent{Stage: StageBatchDone, ExperimentID: experimentID, Done: count, Total: count})
	logger.Info("batch complete",
		"succeeded", len(results),
		"hallucination_delta", batch.Aggregated.Deltas.HallucinationDelta,
		"grounding_delta", batch.Aggregated.Deltas.GroundingDelta)
	return batch, nil
}

func (r *Runner) emit(e ProgressEvent) {
	if r.config.OnProgress != nil {
		r.config.OnProgress(e)
	}
}

func nativeVerdict(v models.Verdict) string {
	switch res := v.(type) {
	case models.SimilarityResult:
		return string(res.Verdict)
	case models.NLIResult:
		return string(res.Verdict)
	case models.JudgeResult:
		return string(res.Verdict)
	default:
		return string(v.Canonical().Verdict)
	}
}

func explain(v models.Verdict) string {
	switch res := v.(type) {
	case models.SimilarityResult:
		return fmt.Sprintf("max similarity %.3f against threshold %.2f", res.MaxSimilarity, res.Threshold)
	case models.NLIResult:
		return fmt.Sprintf("entailment %.3f, neutral %.3f, contradiction %.3f",
			res.Scores.Entailment, res.Scores.Neutral, res.Scores.Contradiction)
	case models.JudgeResult:
		return res.Explanation
	default:
		return ""
	}
}
