package hallucination

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/xhad/reviewground/internal/models"
	"github.com/xhad/reviewground/internal/types"
	"github.com/xhad/reviewground/pkg/llm"
)

var verdictValidate = validator.New()

// judgeVerdict is the structured oracle's answer.
type judgeVerdict struct {
	Verdict       string  `json:"verdict" enum:"SUPPORTED,PARTIALLY_SUPPORTED,NOT_SUPPORTED,CONTRADICTED" validate:"required,oneof=SUPPORTED PARTIALLY_SUPPORTED NOT_SUPPORTED CONTRADICTED"`
	Confidence    float64 `json:"confidence" description:"Confidence score from 0 to 1" validate:"gte=0,lte=1"`
	Explanation   string  `json:"explanation" description:"Brief explanation for the verdict"`
	RelevantQuote string  `json:"relevantQuote,omitempty" description:"Quote from evidence that supports the verdict"`
}

// JudgeDetector asks a structured-generation oracle to classify the claim
// against labeled evidence blocks.
type JudgeDetector struct {
	config   Config
	evidence evidenceFinder
	logger   *slog.Logger
}

func NewJudgeDetector(config Config) (*JudgeDetector, error) {
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}
	if config.Judge == nil {
		return nil, fmt.Errorf("judge detector requires a structured generator")
	}
	return &JudgeDetector{
		config:   config,
		evidence: evidenceFinder{embedder: config.Embedder, index: config.Index},
		logger:   config.Logger.With("component", "judge"),
	}, nil
}

func (d *JudgeDetector) Method() models.Method { return models.MethodJudge }

// JudgeClaimAgainstEvidence asks the oracle for a verdict on claim given the
// evidence. An answer that cannot be decoded becomes NOT_SUPPORTED with zero
// confidence.
func (d *JudgeDetector) JudgeClaimAgainstEvidence(ctx context.Context, claim string, evidence []string) (models.JudgeResult, error) {
	var out judgeVerdict
	err := d.config.Judge.GenerateStructured(ctx, types.StructuredRequest{
		Name:         "judge_verdict",
		SystemPrompt: llm.JudgeSystemPrompt,
		Prompt:       llm.JudgePrompt(claim, evidence),
		Model:        d.config.JudgeModel,
	}, &out)
	if err == nil {
		err = verdictValidate.Struct(out)
		if err != nil {
			err = fmt.Errorf("%w: %v", llm.ErrMalformedOutput, err)
		}
	}
	if errors.Is(err, llm.ErrMalformedOutput) {
		d.logger.Warn("failed to get verdict from LLM judge", "claim", preview(claim), "error", err)
		return models.JudgeResult{
			Claim:           claim,
			Verdict:         models.NotSupported,
			Explanation:     "Failed to evaluate claim",
			EvidenceChunks:  evidence,
			IsHallucination: true,
		}, nil
	}
	if err != nil {
		return models.JudgeResult{}, fmt.Errorf("judge request failed: %w", err)
	}

	verdict := models.JudgeLabel(out.Verdict)
	return models.JudgeResult{
		Claim:           claim,
		Verdict:         verdict,
		Confidence:      out.Confidence,
		Explanation:     out.Explanation,
		RelevantQuote:   out.RelevantQuote,
		EvidenceChunks:  evidence,
		IsHallucination: verdict == models.NotSupported || verdict == models.Contradicted,
	}, nil
}

func (d *JudgeDetector) DetectHallucination(ctx context.Context, claim, paperID string) (models.JudgeResult, error) {
	chunks, err := d.evidence.find(ctx, claim, paperID, d.config.EvidenceK)
	if err != nil {
		return models.JudgeResult{}, err
	}

	if len(chunks) == 0 {
		d.config.Metrics.RecordVerdict(string(models.MethodJudge), string(models.NotSupported))
		return models.JudgeResult{
			Claim:           claim,
			Verdict:         models.NotSupported,
			Confidence:      1,
			Explanation:     "No relevant evidence found in the paper",
			EvidenceChunks:  []string{},
			IsHallucination: true,
		}, nil
	}

	evidence := make([]string, len(chunks))
	for i, c := range chunks {
		evidence[i] = c.Content
	}

	r, err := d.JudgeClaimAgainstEvidence(ctx, claim, evidence)
	if err != nil {
		return models.JudgeResult{}, err
	}
	d.config.Metrics.RecordVerdict(string(models.MethodJudge), string(r.Verdict))
	return r, nil
}

func (d *JudgeDetector) DetectHallucinationsBatch(ctx context.Context, claims []string, paperID string) ([]models.JudgeResult, error) {
	return runBatch(ctx, claims, paperID, d.DetectHallucination, func(claim string, r models.JudgeResult) {
		d.logger.Info("judged claim", "claim", preview(claim), "verdict", r.Verdict)
	})
}

func (d *JudgeDetector) Detect(ctx context.Context, claim, paperID string) (models.Verdict, error) {
	r, err := d.DetectHallucination(ctx, claim, paperID)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (d *JudgeDetector) DetectBatch(ctx context.Context, claims []string, paperID string) ([]models.Verdict, error) {
	rs, err := d.DetectHallucinationsBatch(ctx, claims, paperID)
	if err != nil {
		return nil, err
	}
	return toVerdicts(rs), nil
}
