// Package evaluation turns per-claim verdicts into review-level metrics and
// compares RAG against no-RAG reviews.
package evaluation

import (
	"math"
	"strings"

	"github.com/xhad/reviewground/internal/models"
)

// CalculateMetrics scores one review. Verdicts from any detector are
// projected onto the judge taxonomy first.
func CalculateMetrics(verdicts []models.Verdict, reviewText string) models.ReviewMetrics {
	scored := make([]models.ScoredVerdict, len(verdicts))
	for i, v := range verdicts {
		scored[i] = v.Canonical()
	}
	return CalculateScoredMetrics(scored, reviewText)
}

func CalculateScoredMetrics(verdicts []models.ScoredVerdict, reviewText string) models.ReviewMetrics {
	total := len(verdicts)
	words := CountWords(reviewText)
	counts := CountVerdicts(verdicts)

	if total == 0 {
		return models.ReviewMetrics{
			ReviewWordCount: words,
			VerdictCounts:   counts,
		}
	}

	hallucinationRate := float64(counts.NotSupported+counts.Contradicted) / float64(total)
	groundingScore := (float64(counts.Supported) + 0.5*float64(counts.PartiallySupported)) / float64(total)

	var claimDensity float64
	if words > 0 {
		claimDensity = float64(total) / float64(words)
	}

	var confidence float64
	for _, v := range verdicts {
		confidence += v.Confidence
	}

	return models.ReviewMetrics{
		HallucinationRate: round(hallucinationRate, 3),
		GroundingScore:    round(groundingScore, 3),
		ClaimDensity:      round(claimDensity, 4),
		AvgConfidence:     round(confidence/float64(total), 3),
		TotalClaims:       total,
		ReviewWordCount:   words,
		VerdictCounts:     counts,
	}
}

func CountVerdicts(verdicts []models.ScoredVerdict) models.VerdictCounts {
	var c models.VerdictCounts
	for _, v := range verdicts {
		switch v.Verdict {
		case models.Supported:
			c.Supported++
		case models.PartiallySupported:
			c.PartiallySupported++
		case models.NotSupported:
			c.NotSupported++
		case models.Contradicted:
			c.Contradicted++
		}
	}
	return c
}

// CountWords counts maximal runs of non-whitespace.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// CompareMetrics returns rag - noRag for each core metric. A negative
// hallucination delta and a positive grounding delta favor RAG.
func CompareMetrics(rag, noRAG models.ReviewMetrics) models.MetricsComparison {
	return models.MetricsComparison{
		HallucinationDelta: round(rag.HallucinationRate-noRAG.HallucinationRate, 3),
		GroundingDelta:     round(rag.GroundingScore-noRAG.GroundingScore, 3),
		ClaimDensityDelta:  round(rag.ClaimDensity-noRAG.ClaimDensity, 4),
		ConfidenceDelta:    round(rag.AvgConfidence-noRAG.AvgConfidence, 3),
	}
}

// AggregateMetrics is the unweighted mean across papers.
func AggregateMetrics(metrics []models.ReviewMetrics) models.AggregateMetrics {
	if len(metrics) == 0 {
		return models.AggregateMetrics{}
	}

	var sum models.AggregateMetrics
	for _, m := range metrics {
		sum.AvgHallucinationRate += m.HallucinationRate
		sum.AvgGroundingScore += m.GroundingScore
		sum.AvgClaimDensity += m.ClaimDensity
		sum.AvgConfidence += m.AvgConfidence
	}

	n := float64(len(metrics))
	return models.AggregateMetrics{
		AvgHallucinationRate: round(sum.AvgHallucinationRate/n, 3),
		AvgGroundingScore:    round(sum.AvgGroundingScore/n, 3),
		AvgClaimDensity:      round(sum.AvgClaimDensity/n, 4),
		AvgConfidence:        round(sum.AvgConfidence/n, 3),
	}
}

// CompareAggregates returns rag - noRag over the batch means.
func CompareAggregates(rag, noRAG models.AggregateMetrics) models.MetricsComparison {
	return models.MetricsComparison{
		HallucinationDelta: round(rag.AvgHallucinationRate-noRAG.AvgHallucinationRate, 3),
		GroundingDelta:     round(rag.AvgGroundingScore-noRAG.AvgGroundingScore, 3),
		ClaimDensityDelta:  round(rag.AvgClaimDensity-noRAG.AvgClaimDensity, 4),
		ConfidenceDelta:    round(rag.AvgConfidence-noRAG.AvgConfidence, 3),
	}
}

// Aggregate summarizes a batch of paper results.
func Aggregate(results []models.PaperExperimentResult) models.BatchAggregate {
	rag := make([]models.ReviewMetrics, len(results))
	noRAG := make([]models.ReviewMetrics, len(results))
	for i, r := range results {
		rag[i] = r.RAG.Metrics
		noRAG[i] = r.NoRAG.Metrics
	}

	agg := models.BatchAggregate{
		RAG:   AggregateMetrics(rag),
		NoRAG: AggregateMetrics(noRAG),
	}
	agg.Deltas = CompareAggregates(agg.RAG, agg.NoRAG)
	return agg
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
