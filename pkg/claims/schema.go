package claims

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xhad/reviewground/internal/models"
)

// claimValidate checks oracle payloads against the claim contract.
var claimValidate = validator.New()

// The wire types describe the JSON schema sent to the structured oracle.

type claimWire struct {
	Text             string `json:"text" description:"The atomic, verifiable claim"`
	Category         string `json:"category" enum:"factual,methodological,attribution,comparative"`
	OriginalSentence string `json:"originalSentence" description:"The sentence from the review this claim was extracted from"`
}

type extractionOutput struct {
	Claims []claimWire `json:"claims"`
}

type validationWire struct {
	IsValid       bool     `json:"isValid" description:"Whether the claim is well-formed and verifiable"`
	Score         float64  `json:"score" description:"Confidence score from 0 to 1"`
	Issues        []string `json:"issues" description:"List of issues: not_atomic, subjective, ambiguous, incomplete"`
	CorrectedText string   `json:"correctedText,omitempty" description:"Corrected claim text if issues were found"`
}

type validatedWire struct {
	Text             string         `json:"text" description:"The original claim text"`
	Category         string         `json:"category" enum:"factual,methodological,attribution,comparative"`
	OriginalSentence string         `json:"originalSentence" description:"The original sentence from the review"`
	Validation       validationWire `json:"validation"`
}

type validationOutput struct {
	ValidatedClaims []validatedWire `json:"validatedClaims"`
}

func (w claimWire) toModel() models.ExtractedClaim {
	return models.ExtractedClaim{
		Text:             strings.TrimSpace(w.Text),
		Category:         models.ClaimCategory(strings.ToLower(strings.TrimSpace(w.Category))),
		OriginalSentence: strings.TrimSpace(w.OriginalSentence),
	}
}

func (w validatedWire) toModel() models.ValidatedClaim {
	issues := w.Validation.Issues
	if issues == nil {
		issues = []string{}
	}
	return models.ValidatedClaim{
		ExtractedClaim: claimWire{
			Text:             w.Text,
			Category:         w.Category,
			OriginalSentence: w.OriginalSentence,
		}.toModel(),
		Validation: models.ClaimValidation{
			IsValid:       w.Validation.IsValid,
			Score:         w.Validation.Score,
			Issues:        issues,
			CorrectedText: strings.TrimSpace(w.Validation.CorrectedText),
		},
	}
}
