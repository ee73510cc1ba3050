package models

type Method string

const (
	MethodSimilarity Method = "similarity"
	MethodNLI        Method = "nli"
	MethodJudge      Method = "judge"
)

var Methods = []Method{MethodSimilarity, MethodNLI, MethodJudge}

type SimilarityLabel string

const (
	Grounded   SimilarityLabel = "GROUNDED"
	Ungrounded SimilarityLabel = "UNGROUNDED"
)

type NLILabel string

const (
	NLISupported    NLILabel = "SUPPORTED"
	NLIContradicted NLILabel = "CONTRADICTED"
	NLIUnverifiable NLILabel = "UNVERIFIABLE"
)

type JudgeLabel string

const (
	Supported          JudgeLabel = "SUPPORTED"
	PartiallySupported JudgeLabel = "PARTIALLY_SUPPORTED"
	NotSupported       JudgeLabel = "NOT_SUPPORTED"
	Contradicted       JudgeLabel = "CONTRADICTED"
)

// Verdict is the common shape of every detector result. The detector
// vocabularies stay distinct; Canonical projects a result onto the judge
// taxonomy only for metric computation.
type Verdict interface {
	DetectionMethod() Method
	ClaimText() string
	Hallucination() bool
	Canonical() ScoredVerdict
}

type ScoredVerdict struct {
	Verdict    JudgeLabel `json:"verdict"`
	Confidence float64    `json:"confidence"`
}

type SimilarityResult struct {
	Claim            string          `json:"claim"`
	Verdict          SimilarityLabel `json:"verdict"`
	MaxSimilarity    float64         `json:"maxSimilarity"`
	Threshold        float64         `json:"threshold"`
	MostSimilarChunk string          `json:"mostSimilarChunk"`
	IsHallucination  bool            `json:"isHallucination"`
}

func (r SimilarityResult) DetectionMethod() Method { return MethodSimilarity }
func (r SimilarityResult) ClaimText() string       { return r.Claim }
func (r SimilarityResult) Hallucination() bool     { return r.IsHallucination }

func (r SimilarityResult) Canonical() ScoredVerdict {
	if r.Verdict == Grounded {
		return ScoredVerdict{Verdict: Supported, Confidence: r.MaxSimilarity}
	}
	return ScoredVerdict{Verdict: NotSupported, Confidence: 1 - r.MaxSimilarity}
}

type NLIScores struct {
	Entailment    float64 `json:"entailment"`
	Neutral       float64 `json:"neutral"`
	Contradiction float64 `json:"contradiction"`
}

type NLIResult struct {
	Claim           string    `json:"claim"`
	Verdict         NLILabel  `json:"verdict"`
	Scores          NLIScores `json:"scores"`
	EvidenceChunk   string    `json:"evidenceChunk"`
	IsHallucination bool      `json:"isHallucination"`
}

func (r NLIResult) DetectionMethod() Method { return MethodNLI }
func (r NLIResult) ClaimText() string       { return r.Claim }
func (r NLIResult) Hallucination() bool     { return r.IsHallucination }

func (r NLIResult) Canonical() ScoredVerdict {
	switch r.Verdict {
	case NLISupported:
		return ScoredVerdict{Verdict: Supported, Confidence: r.Scores.Entailment}
	case NLIContradicted:
		return ScoredVerdict{Verdict: Contradicted, Confidence: r.Scores.Contradiction}
	default:
		return ScoredVerdict{Verdict: NotSupported, Confidence: r.Scores.Neutral}
	}
}

type JudgeResult struct {
	Claim           string     `json:"claim"`
	Verdict         JudgeLabel `json:"verdict"`
	Confidence      float64    `json:"confidence"`
	Explanation     string     `json:"explanation"`
	RelevantQuote   string     `json:"relevantQuote,omitempty"`
	EvidenceChunks  []string   `json:"evidenceChunks"`
	IsHallucination bool       `json:"isHallucination"`
}

func (r JudgeResult) DetectionMethod() Method { return MethodJudge }
func (r JudgeResult) ClaimText() string       { return r.Claim }
func (r JudgeResult) Hallucination() bool     { return r.IsHallucination }

func (r JudgeResult) Canonical() ScoredVerdict {
	return ScoredVerdict{Verdict: r.Verdict, Confidence: r.Confidence}
}

// MethodComparison holds all three detectors' results for one claim.
type MethodComparison struct {
	Claim      string           `json:"claim"`
	PaperID    string           `json:"paperId"`
	Similarity SimilarityResult `json:"embeddingSimilarity"`
	NLI        NLIResult        `json:"nli"`
	Judge      JudgeResult      `json:"llmJudge"`
}
