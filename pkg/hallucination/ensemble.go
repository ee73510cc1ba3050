package hallucination

import (
	"context"
	"fmt"

	"github.com/xhad/reviewground/internal/models"
	"golang.org/x/sync/errgroup"
)

// Ensemble holds the three detectors. It never fuses their verdicts.
type Ensemble struct {
	Similarity *SimilarityDetector
	NLI        *NLIDetector
	Judge      *JudgeDetector
}

func NewEnsemble(config Config) (*Ensemble, error) {
	sim, err := NewSimilarityDetector(config)
	if err != nil {
		return nil, err
	}
	nli, err := NewNLIDetector(config)
	if err != nil {
		return nil, err
	}
	judge, err := NewJudgeDetector(config)
	if err != nil {
		return nil, err
	}
	return &Ensemble{Similarity: sim, NLI: nli, Judge: judge}, nil
}

func (e *Ensemble) Detector(method models.Method) (Detector, error) {
	switch method {
	case models.MethodSimilarity:
		return e.Similarity, nil
	case models.MethodNLI:
		return e.NLI, nil
	case models.MethodJudge:
		return e.Judge, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}

// CompareAll runs the three detectors concurrently on one claim.
func (e *Ensemble) CompareAll(ctx context.Context, claim, paperID string) (models.MethodComparison, error) {
	cmp := models.MethodComparison{Claim: claim, PaperID: paperID}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := e.Similarity.DetectHallucination(gctx, claim, paperID)
		cmp.Similarity = r
		return err
	})
	g.Go(func() error {
		r, err := e.NLI.DetectHallucination(gctx, claim, paperID)
		cmp.NLI = r
		return err
	})
	g.Go(func() error {
		r, err := e.Judge.DetectHallucination(gctx, claim, paperID)
		cmp.Judge = r
		return err
	})

	if err := g.Wait(); err != nil {
		return models.MethodComparison{}, err
	}
	return cmp, nil
}
