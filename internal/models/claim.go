package models

type ClaimCategory string

const (
	CategoryFactual        ClaimCategory = "factual"
	CategoryMethodological ClaimCategory = "methodological"
	CategoryAttribution    ClaimCategory = "attribution"
	CategoryComparative    ClaimCategory = "comparative"
)

// ExtractedClaim is one atomic, verifiable assertion taken from a review.
type ExtractedClaim struct {
	Text             string        `json:"text" validate:"required"`
	Category         ClaimCategory `json:"category" validate:"required,oneof=factual methodological attribution comparative"`
	OriginalSentence string        `json:"originalSentence"`
}

type ClaimValidation struct {
	IsValid       bool     `json:"isValid"`
	Score         float64  `json:"score" validate:"gte=0,lte=1"`
	Issues        []string `json:"issues"`
	CorrectedText string   `json:"correctedText,omitempty"`
}

type ValidatedClaim struct {
	ExtractedClaim
	Validation ClaimValidation `json:"validation"`
}

// ScoredText is the claim text to verify: the correction when one was
// offered, the original otherwise.
func (c ValidatedClaim) ScoredText() string {
	if c.Validation.CorrectedText != "" {
		return c.Validation.CorrectedText
	}
	return c.Text
}
