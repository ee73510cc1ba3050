package models

import "time"

type VerdictCounts struct {
	Supported          int `json:"supported"`
	PartiallySupported int `json:"partiallySupported"`
	NotSupported       int `json:"notSupported"`
	Contradicted       int `json:"contradicted"`
}

func (c VerdictCounts) Total() int {
	return c.Supported + c.PartiallySupported + c.NotSupported + c.Contradicted
}

type ReviewMetrics struct {
	HallucinationRate float64       `json:"hallucinationRate"`
	GroundingScore    float64       `json:"groundingScore"`
	ClaimDensity      float64       `json:"claimDensity"`
	AvgConfidence     float64       `json:"avgConfidence"`
	TotalClaims       int           `json:"totalClaims"`
	ReviewWordCount   int           `json:"reviewWordCount"`
	VerdictCounts     VerdictCounts `json:"verdictCounts"`
}

// MetricsComparison deltas are rag - noRag.
type MetricsComparison struct {
	HallucinationDelta float64 `json:"hallucinationDelta"`
	GroundingDelta     float64 `json:"groundingDelta"`
	ClaimDensityDelta  float64 `json:"claimDensityDelta"`
	ConfidenceDelta    float64 `json:"confidenceDelta"`
}

type AggregateMetrics struct {
	AvgHallucinationRate float64 `json:"avgHallucinationRate"`
	AvgGroundingScore    float64 `json:"avgGroundingScore"`
	AvgClaimDensity      float64 `json:"avgClaimDensity"`
	AvgConfidence        float64 `json:"avgConfidence"`
}

type ClaimAnalysis struct {
	Text        string        `json:"text"`
	Category    ClaimCategory `json:"category"`
	Verdict     string        `json:"verdict"`
	Confidence  float64       `json:"confidence"`
	Explanation string        `json:"explanation"`
}

type ReviewAnalysis struct {
	Review  string          `json:"review"`
	Claims  []ClaimAnalysis `json:"claims"`
	Metrics ReviewMetrics   `json:"metrics"`
}

type PaperExperimentResult struct {
	PaperID    string            `json:"paperId"`
	PaperTitle string            `json:"paperTitle"`
	Timestamp  time.Time         `json:"timestamp"`
	Method     Method            `json:"method"`
	RAG        ReviewAnalysis    `json:"rag"`
	NoRAG      ReviewAnalysis    `json:"noRag"`
	Comparison MetricsComparison `json:"comparison"`
}

type BatchAggregate struct {
	RAG    AggregateMetrics  `json:"rag"`
	NoRAG  AggregateMetrics  `json:"noRag"`
	Deltas MetricsComparison `json:"deltas"`
}

type BatchExperimentResult struct {
	ExperimentID string                  `json:"experimentId"`
	Timestamp    time.Time               `json:"timestamp"`
	TotalPapers  int                     `json:"totalPapers"`
	Results      []PaperExperimentResult `json:"results"`
	Aggregated   BatchAggregate          `json:"aggregated"`
}
