package evaluation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xhad/reviewground/internal/models"
)

func judged(labels ...models.JudgeLabel) []models.Verdict {
	out := make([]models.Verdict, len(labels))
	for i, l := range labels {
		out[i] = models.JudgeResult{Claim: "c", Verdict: l, Confidence: 0.8}
	}
	return out
}

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func TestCalculateMetrics(t *testing.T) {
	m := CalculateMetrics(judged(models.Supported, models.Supported, models.NotSupported, models.Contradicted), words(100))

	assert.Equal(t, 0.5, m.HallucinationRate)
	assert.Equal(t, 0.5, m.GroundingScore)
	assert.Equal(t, 0.04, m.ClaimDensity)
	assert.Equal(t, 0.8, m.AvgConfidence)
	assert.Equal(t, 4, m.TotalClaims)
	assert.Equal(t, 100, m.ReviewWordCount)
	assert.Equal(t, models.VerdictCounts{Supported: 2, NotSupported: 1, Contradicted: 1}, m.VerdictCounts)
}

func TestCalculateMetrics_PartialCountsHalf(t *testing.T) {
	m := CalculateMetrics(judged(models.PartiallySupported, models.Supported, models.NotSupported), words(7))

	assert.Equal(t, 0.5, m.GroundingScore)
	assert.Equal(t, 0.333, m.HallucinationRate)
	assert.Equal(t, 0.4286, m.ClaimDensity)
}

func TestCalculateMetrics_NoClaims(t *testing.T) {
	m := CalculateMetrics(nil, "  a review   with\tseven\nwords in it ")

	assert.Zero(t, m.HallucinationRate)
	assert.Zero(t, m.GroundingScore)
	assert.Zero(t, m.ClaimDensity)
	assert.Zero(t, m.AvgConfidence)
	assert.Zero(t, m.TotalClaims)
	assert.Equal(t, 7, m.ReviewWordCount)
}

func TestCalculateMetrics_EmptyReviewWithClaims(t *testing.T) {
	m := CalculateMetrics(judged(models.Supported), "   ")
	assert.Zero(t, m.ClaimDensity)
	assert.Equal(t, 1.0, m.GroundingScore)
}

func TestCalculateMetrics_CountsSumToTotal(t *testing.T) {
	verdicts := []models.Verdict{
		models.JudgeResult{Verdict: models.Supported, Confidence: 1},
		models.SimilarityResult{Verdict: models.Ungrounded, MaxSimilarity: 0.2},
		models.NLIResult{Verdict: models.NLIContradicted, Scores: models.NLIScores{Contradiction: 0.9}},
		models.NLIResult{Verdict: models.NLIUnverifiable, Scores: models.NLIScores{Neutral: 0.7}},
		models.SimilarityResult{Verdict: models.Grounded, MaxSimilarity: 0.9},
	}
	m := CalculateMetrics(verdicts, words(50))

	assert.Equal(t, m.TotalClaims, m.VerdictCounts.Total())
	assert.Equal(t, models.VerdictCounts{Supported: 2, NotSupported: 2, Contradicted: 1}, m.VerdictCounts)
	assert.Equal(t, 0.6, m.HallucinationRate)
	assert.Equal(t, 0.86, m.AvgConfidence)
}

func TestCompareMetrics(t *testing.T) {
	rag := models.ReviewMetrics{HallucinationRate: 0.2, GroundingScore: 0.7, ClaimDensity: 0.05, AvgConfidence: 0.9}
	noRAG := models.ReviewMetrics{HallucinationRate: 0.5, GroundingScore: 0.4, ClaimDensity: 0.03, AvgConfidence: 0.75}

	d := CompareMetrics(rag, noRAG)
	assert.Equal(t, -0.3, d.HallucinationDelta)
	assert.Equal(t, 0.3, d.GroundingDelta)
	assert.Equal(t, 0.02, d.ClaimDensityDelta)
	assert.Equal(t, 0.15, d.ConfidenceDelta)

	r := CompareMetrics(noRAG, rag)
	assert.Equal(t, d.HallucinationDelta, -r.HallucinationDelta)
	assert.Equal(t, d.GroundingDelta, -r.GroundingDelta)
	assert.Equal(t, d.ClaimDensityDelta, -r.ClaimDensityDelta)
	assert.Equal(t, d.ConfidenceDelta, -r.ConfidenceDelta)
}

func TestAggregateMetrics(t *testing.T) {
	assert.Equal(t, models.AggregateMetrics{}, AggregateMetrics(nil))

	agg := AggregateMetrics([]models.ReviewMetrics{
		{HallucinationRate: 0.5, GroundingScore: 0.5, ClaimDensity: 0.04, AvgConfidence: 0.8},
		{HallucinationRate: 0.25, GroundingScore: 0.6, ClaimDensity: 0.02, AvgConfidence: 0.6},
	})
	assert.Equal(t, 0.375, agg.AvgHallucinationRate)
	assert.Equal(t, 0.55, agg.AvgGroundingScore)
	assert.Equal(t, 0.03, agg.AvgClaimDensity)
	assert.Equal(t, 0.7, agg.AvgConfidence)
}

func TestAggregate(t *testing.T) {
	results := []models.PaperExperimentResult{
		{
			RAG:   models.ReviewAnalysis{Metrics: models.ReviewMetrics{HallucinationRate: 0.2, GroundingScore: 0.8}},
			NoRAG: models.ReviewAnalysis{Metrics: models.ReviewMetrics{HallucinationRate: 0.6, GroundingScore: 0.4}},
		},
		{
			RAG:   models.ReviewAnalysis{Metrics: models.ReviewMetrics{HallucinationRate: 0.4, GroundingScore: 0.6}},
			NoRAG: models.ReviewAnalysis{Metrics: models.ReviewMetrics{HallucinationRate: 0.4, GroundingScore: 0.6}},
		},
	}

	agg := Aggregate(results)
	assert.Equal(t, 0.3, agg.RAG.AvgHallucinationRate)
	assert.Equal(t, 0.5, agg.NoRAG.AvgHallucinationRate)
	assert.Equal(t, -0.2, agg.Deltas.HallucinationDelta)
	assert.Equal(t, 0.2, agg.Deltas.GroundingDelta)

	empty := Aggregate(nil)
	assert.Equal(t, models.BatchAggregate{}, empty)
}

func TestCountWords(t *testing.T) {
	assert.Zero(t, CountWords(""))
	assert.Zero(t, CountWords(" \n\t "))
	assert.Equal(t, 3, CountWords("one\ttwo\n\nthree"))
}
