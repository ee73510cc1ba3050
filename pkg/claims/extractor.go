package claims

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xhad/reviewground/internal/models"
	"github.com/xhad/reviewground/internal/types"
	"github.com/xhad/reviewground/pkg/llm"
)

type Config struct {
	Generator       types.StructuredGenerator
	ExtractionModel string
	ValidationModel string
	Logger          *slog.Logger
}

// Extractor turns review prose into atomic claims and scores their quality.
// Both steps degrade to an empty result when the oracle output cannot be
// decoded.
type Extractor struct {
	config Config
	logger *slog.Logger
}

func NewExtractor(config Config) (*Extractor, error) {
	if config.Generator == nil {
		return nil, fmt.Errorf("claim extractor requires a structured generator")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Extractor{
		config: config,
		logger: config.Logger.With("component", "claims"),
	}, nil
}

func (e *Extractor) ExtractClaims(ctx context.Context, reviewText string) ([]models.ExtractedClaim, error) {
	if strings.TrimSpace(reviewText) == "" {
		return []models.ExtractedClaim{}, nil
	}

	var out extractionOutput
	err := e.config.Generator.GenerateStructured(ctx, types.StructuredRequest{
		Name:         "extracted_claims",
		SystemPrompt: llm.ClaimExtractorSystemPrompt,
		Prompt:       reviewText,
		Model:        e.config.ExtractionModel,
	}, &out)
	if errors.Is(err, llm.ErrMalformedOutput) {
		e.logger.Warn("failed to extract claims, returning empty list", "error", err)
		return []models.ExtractedClaim{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim extraction failed: %w", err)
	}

	claims := make([]models.ExtractedClaim, 0, len(out.Claims))
	for i, w := range out.Claims {
		c := w.toModel()
		if err := claimValidate.Struct(c); err != nil {
			e.logger.Warn("dropping malformed claim", "position", i, "error", err)
			continue
		}
		claims = append(claims, c)
	}

	e.logger.Info("extracted claims", "count", len(claims), "dropped", len(out.Claims)-len(claims))
	return claims, nil
}

func (e *Extractor) ValidateClaims(ctx context.Context, claims []models.ExtractedClaim) ([]models.ValidatedClaim, error) {
	if len(claims) == 0 {
		return []models.ValidatedClaim{}, nil
	}

	claimsJSON, err := json.MarshalIndent(claims, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode claims: %w", err)
	}

	var out validationOutput
	err = e.config.Generator.GenerateStructured(ctx, types.StructuredRequest{
		Name:         "validated_claims",
		SystemPrompt: llm.ClaimValidatorSystemPrompt,
		Prompt:       string(claimsJSON),
		Model:        e.config.ValidationModel,
	}, &out)
	if errors.Is(err, llm.ErrMalformedOutput) {
		e.logger.Warn("failed to validate claims, returning empty list", "error", err)
		return []models.ValidatedClaim{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim validation failed: %w", err)
	}

	validated := make([]models.ValidatedClaim, 0, len(out.ValidatedClaims))
	validCount := 0
	for i, w := range out.ValidatedClaims {
		vc := w.toModel()
		if err := claimValidate.Struct(vc); err != nil {
			e.logger.Warn("dropping malformed validation", "position", i, "error", err)
			continue
		}
		if vc.Validation.IsValid {
			validCount++
		}
		validated = append(validated, vc)
	}

	e.logger.Info("validated claims", "count", len(validated), "valid", validCount)
	return validated, nil
}

// Usable keeps the claims judged valid, substituting corrected text.
func Usable(validated []models.ValidatedClaim) []models.ExtractedClaim {
	out := make([]models.ExtractedClaim, 0, len(validated))
	for _, vc := range validated {
		if !vc.Validation.IsValid {
			continue
		}
		c := vc.ExtractedClaim
		c.Text = vc.ScoredText()
		out = append(out, c)
	}
	return out
}

// Texts returns the claim texts in order.
func Texts(claims []models.ExtractedClaim) []string {
	out := make([]string, len(claims))
	for i, c := range claims {
		out[i] = c.Text
	}
	return out
}
