package hallucination_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/reviewground/internal/fakes"
	"github.com/xhad/reviewground/internal/models"
	"github.com/xhad/reviewground/internal/types"
	"github.com/xhad/reviewground/pkg/hallucination"
	"github.com/xhad/reviewground/pkg/store"
	"github.com/xhad/reviewground/pkg/telemetry"
)

const paperID = "paper-7"

// fixedIndex returns the same results for every query.
type fixedIndex struct {
	results []models.SearchResult
	mu      sync.Mutex
	limits  []int
}

func (f *fixedIndex) EnsureCollection(ctx context.Context) error { return nil }
func (f *fixedIndex) CountByPaperID(ctx context.Context, id string) (int, error) {
	return len(f.results), nil
}
func (f *fixedIndex) UpsertBatch(ctx context.Context, points []models.IndexedPoint) error {
	return nil
}
func (f *fixedIndex) Search(ctx context.Context, vec []float32, id string, limit int) ([]models.SearchResult, error) {
	f.mu.Lock()
	f.limits = append(f.limits, limit)
	f.mu.Unlock()
	if limit < len(f.results) {
		return f.results[:limit], nil
	}
	return f.results, nil
}

func seededStore(t *testing.T, texts ...string) *store.MemoryStore {
	t.Helper()
	idx := store.NewMemoryStore(fakes.EmbeddingDim)
	points := make([]models.IndexedPoint, len(texts))
	for i, text := range texts {
		c := models.Chunk{ID: text, PaperID: paperID, Text: text, Section: "Body", Index: i}
		points[i] = c.Point(fakes.HashVector(text))
	}
	require.NoError(t, idx.UpsertBatch(context.Background(), points))
	return idx
}

func baseConfig(idx types.VectorIndex) hallucination.Config {
	return hallucination.Config{
		Embedder: &fakes.HashEmbedder{},
		Index:    idx,
		NLI:      &fakes.NLIClassifier{},
		Judge:    &fakes.StructuredGenerator{},
	}
}

func TestSimilarity_NoEvidence(t *testing.T) {
	d, err := hallucination.NewSimilarityDetector(baseConfig(store.NewMemoryStore(fakes.EmbeddingDim)))
	require.NoError(t, err)

	r, err := d.DetectHallucination(context.Background(), "The model beats all baselines.", paperID)
	require.NoError(t, err)
	assert.Equal(t, models.Ungrounded, r.Verdict)
	assert.Zero(t, r.MaxSimilarity)
	assert.Equal(t, 0.75, r.Threshold)
	assert.Empty(t, r.MostSimilarChunk)
	assert.True(t, r.IsHallucination)
}

func TestSimilarity_Grounded(t *testing.T) {
	claim := "block sparse attention improves accuracy"
	idx := seededStore(t, claim, "zebra quokka")
	d, err := hallucination.NewSimilarityDetector(baseConfig(idx))
	require.NoError(t, err)

	r, err := d.DetectHallucination(context.Background(), claim, paperID)
	require.NoError(t, err)
	assert.Equal(t, models.Grounded, r.Verdict)
	assert.InDelta(t, 1.0, r.MaxSimilarity, 1e-9)
	assert.Equal(t, claim, r.MostSimilarChunk)
	assert.False(t, r.IsHallucination)

	r, err = d.DetectHallucination(context.Background(), "zebra quokka", "other-paper")
	require.NoError(t, err)
	assert.Equal(t, models.Ungrounded, r.Verdict, "evidence is scoped to the paper")
}

func TestSimilarity_ThresholdUsesRawScore(t *testing.T) {
	tests := []struct {
		name    string
		score   float64
		verdict models.SimilarityLabel
		rounded float64
	}{
		{name: "exactly at threshold", score: 0.75, verdict: models.Grounded, rounded: 0.75},
		{name: "rounds up but below", score: 0.7496, verdict: models.Ungrounded, rounded: 0.75},
		{name: "well above", score: 0.91234, verdict: models.Grounded, rounded: 0.912},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := &fixedIndex{results: []models.SearchResult{{ID: "c", Score: tt.score, Content: "chunk", PaperID: paperID}}}
			d, err := hallucination.NewSimilarityDetector(baseConfig(idx))
			require.NoError(t, err)

			r, err := d.DetectHallucination(context.Background(), "claim", paperID)
			require.NoError(t, err)
			assert.Equal(t, tt.verdict, r.Verdict)
			assert.Equal(t, tt.rounded, r.MaxSimilarity)
			assert.Equal(t, r.Verdict == models.Ungrounded, r.IsHallucination)
			assert.Equal(t, []int{1}, idx.limits, "similarity uses the single nearest chunk")
		})
	}
}

func TestSimilarity_ConfigurableThreshold(t *testing.T) {
	idx := &fixedIndex{results: []models.SearchResult{{Score: 0.6, Content: "chunk"}}}
	cfg := baseConfig(idx)
	threshold := 0.5
	cfg.SimilarityThreshold = &threshold
	d, err := hallucination.NewSimilarityDetector(cfg)
	require.NoError(t, err)

	r, err := d.DetectHallucination(context.Background(), "claim", paperID)
	require.NoError(t, err)
	assert.Equal(t, models.Grounded, r.Verdict)
	assert.Equal(t, 0.5, r.Threshold)
}

func TestSimilarity_ZeroThreshold(t *testing.T) {
	idx := &fixedIndex{results: []models.SearchResult{{Score: 0.1, Content: "chunk"}}}
	cfg := baseConfig(idx)
	zero := 0.0
	cfg.SimilarityThreshold = &zero
	d, err := hallucination.NewSimilarityDetector(cfg)
	require.NoError(t, err)

	r, err := d.DetectHallucination(context.Background(), "claim", paperID)
	require.NoError(t, err)
	assert.Equal(t, models.Grounded, r.Verdict)
	assert.Zero(t, r.Threshold)
}

func TestSimilarity_EmbedErrorPropagates(t *testing.T) {
	cfg := baseConfig(store.NewMemoryStore(fakes.EmbeddingDim))
	cfg.Embedder = &fakes.HashEmbedder{Err: fakes.ErrUnavailable}
	d, err := hallucination.NewSimilarityDetector(cfg)
	require.NoError(t, err)

	_, err = d.DetectHallucination(context.Background(), "claim", paperID)
	assert.ErrorIs(t, err, fakes.ErrUnavailable)
}

func TestScoresFromLabels(t *testing.T) {
	s := hallucination.ScoresFromLabels([]types.LabelScore{
		{Label: "entailment", Score: 0.7},
		{Label: "Neutral", Score: 0.2},
		{Label: "CONTRADICTION", Score: 0.1},
		{Label: "LABEL_3", Score: 0.9},
	})
	assert.Equal(t, models.NLIScores{Entailment: 0.7, Neutral: 0.2, Contradiction: 0.1}, s)
}

func TestClassifyScores(t *testing.T) {
	tests := []struct {
		name   string
		scores models.NLIScores
		want   models.NLILabel
	}{
		{"entailed", models.NLIScores{Entailment: 0.8, Contradiction: 0.1}, models.NLISupported},
		{"contradicted", models.NLIScores{Entailment: 0.1, Contradiction: 0.7}, models.NLIContradicted},
		{"entailment at threshold", models.NLIScores{Entailment: 0.5, Contradiction: 0.1}, models.NLIUnverifiable},
		{"neutral", models.NLIScores{Entailment: 0.2, Neutral: 0.7, Contradiction: 0.1}, models.NLIUnverifiable},
		{"tie above threshold", models.NLIScores{Entailment: 0.6, Contradiction: 0.6}, models.NLIUnverifiable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hallucination.ClassifyScores(tt.scores, 0.5))
		})
	}
}

func TestNLI_NoEvidence(t *testing.T) {
	d, err := hallucination.NewNLIDetector(baseConfig(store.NewMemoryStore(fakes.EmbeddingDim)))
	require.NoError(t, err)

	r, err := d.DetectHallucination(context.Background(), "claim", paperID)
	require.NoError(t, err)
	assert.Equal(t, models.NLIUnverifiable, r.Verdict)
	assert.Equal(t, models.NLIScores{Neutral: 1}, r.Scores)
	assert.Empty(t, r.EvidenceChunk)
	assert.True(t, r.IsHallucination)
}

func TestNLI_PicksMostEntailingChunk(t *testing.T) {
	idx := &fixedIndex{results: []models.SearchResult{
		{Content: "chunk a"}, {Content: "chunk b"}, {Content: "chunk c"},
	}}
	scores := map[string][]types.LabelScore{
		"chunk a": fakes.Labels(0.6, 0.3, 0.1),
		"chunk b": fakes.Labels(0.6, 0.1, 0.3),
		"chunk c": fakes.Labels(0.2, 0.7, 0.1),
	}
	var pairs []string
	cfg := baseConfig(idx)
	cfg.NLI = &fakes.NLIClassifier{Score: func(premise, hypothesis string) []types.LabelScore {
		pairs = append(pairs, premise+"|"+hypothesis)
		return scores[premise]
	}}
	d, err := hallucination.NewNLIDetector(cfg)
	require.NoError(t, err)

	r, err := d.DetectHallucination(context.Background(), "the claim", paperID)
	require.NoError(t, err)
	assert.Equal(t, "chunk b", r.EvidenceChunk, "equal entailment breaks ties on contradiction")
	assert.Equal(t, models.NLISupported, r.Verdict)
	assert.False(t, r.IsHallucination)
	assert.Equal(t, []string{"chunk a|the claim", "chunk b|the claim", "chunk c|the claim"}, pairs)
	assert.Equal(t, []int{5}, idx.limits)
}

func TestNLI_AllNeutralKeepsEmptyEvidence(t *testing.T) {
	idx := &fixedIndex{results: []models.SearchResult{{Content: "chunk a"}}}
	d, err := hallucination.NewNLIDetector(baseConfig(idx))
	require.NoError(t, err)

	r, err := d.DetectHallucination(context.Background(), "claim", paperID)
	require.NoError(t, err)
	assert.Equal(t, models.NLIUnverifiable, r.Verdict)
	assert.Empty(t, r.EvidenceChunk)
}

func TestNLI_Contradicted(t *testing.T) {
	idx := &fixedIndex{results: []models.SearchResult{{Content: "chunk a"}}}
	cfg := baseConfig(idx)
	cfg.NLI = &fakes.NLIClassifier{Score: func(p, h string) []types.LabelScore {
		return fakes.Labels(0.05, 0.15, 0.8)
	}}
	d, err := hallucination.NewNLIDetector(cfg)
	require.NoError(t, err)

	r, err := d.DetectHallucination(context.Background(), "claim", paperID)
	require.NoError(t, err)
	assert.Equal(t, models.NLIContradicted, r.Verdict)
	assert.Equal(t, "chunk a", r.EvidenceChunk)
	assert.True(t, r.IsHallucination)
}

func TestNLI_ZeroThreshold(t *testing.T) {
	idx := &fixedIndex{results: []models.SearchResult{{Content: "chunk a"}}}
	weak := &fakes.NLIClassifier{Score: func(p, h string) []types.LabelScore {
		return fakes.Labels(0.3, 0.6, 0.1)
	}}

	cfg := baseConfig(idx)
	cfg.NLI = weak
	d, err := hallucination.NewNLIDetector(cfg)
	require.NoError(t, err)
	r, err := d.DetectHallucination(context.Background(), "claim", paperID)
	require.NoError(t, err)
	assert.Equal(t, models.NLIUnverifiable, r.Verdict, "default threshold is 0.5")

	zero := 0.0
	cfg.NLIThreshold = &zero
	d, err = hallucination.NewNLIDetector(cfg)
	require.NoError(t, err)
	r, err = d.DetectHallucination(context.Background(), "claim", paperID)
	require.NoError(t, err)
	assert.Equal(t, models.NLISupported, r.Verdict)
}

func TestNLI_ClassifierErrorPropagates(t *testing.T) {
	idx := &fixedIndex{results: []models.SearchResult{{Content: "chunk a"}}}
	cfg := baseConfig(idx)
	cfg.NLI = &fakes.NLIClassifier{Err: fakes.ErrUnavailable}
	d, err := hallucination.NewNLIDetector(cfg)
	require.NoError(t, err)

	_, err = d.DetectHallucination(context.Background(), "claim", paperID)
	assert.ErrorIs(t, err, fakes.ErrUnavailable)
}

func TestJudge_NoEvidence(t *testing.T) {
	gen := &fakes.StructuredGenerator{}
	cfg := baseConfig(store.NewMemoryStore(fakes.EmbeddingDim))
	cfg.Judge = gen
	d, err := hallucination.NewJudgeDetector(cfg)
	require.NoError(t, err)

	r, err := d.DetectHallucination(context.Background(), "claim", paperID)
	require.NoError(t, err)
	assert.Equal(t, models.NotSupported, r.Verdict)
	assert.Equal(t, 1.0, r.Confidence)
	assert.Equal(t, "No relevant evidence found in the paper", r.Explanation)
	assert.NotNil(t, r.EvidenceChunks)
	assert.Empty(t, r.EvidenceChunks)
	assert.True(t, r.IsHallucination)
	assert.Empty(t, gen.Calls(), "no oracle call without evidence")
}

func TestJudge_Verdicts(t *testing.T) {
	tests := []struct {
		reply         string
		verdict       models.JudgeLabel
		hallucination bool
	}{
		{`{"verdict":"SUPPORTED","confidence":0.9,"explanation":"stated in results","relevantQuote":"accuracy improves"}`, models.Supported, false},
		{`{"verdict":"PARTIALLY_SUPPORTED","confidence":0.6,"explanation":"only one dataset"}`, models.PartiallySupported, false},
		{`{"verdict":"NOT_SUPPORTED","confidence":0.8,"explanation":"not mentioned"}`, models.NotSupported, true},
		{`{"verdict":"CONTRADICTED","confidence":0.7,"explanation":"paper says the opposite"}`, models.Contradicted, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.verdict), func(t *testing.T) {
			idx := &fixedIndex{results: []models.SearchResult{{Content: "accuracy improves by four points"}, {Content: "eight GPUs"}}}
			gen := &fakes.StructuredGenerator{Responses: map[string]string{"judge_verdict": tt.reply}}
			cfg := baseConfig(idx)
			cfg.Judge = gen
			cfg.JudgeModel = "gpt-4o"
			d, err := hallucination.NewJudgeDetector(cfg)
			require.NoError(t, err)

			r, err := d.DetectHallucination(context.Background(), "Accuracy improves.", paperID)
			require.NoError(t, err)
			assert.Equal(t, tt.verdict, r.Verdict)
			assert.Equal(t, tt.hallucination, r.IsHallucination)
			assert.Equal(t, []string{"accuracy improves by four points", "eight GPUs"}, r.EvidenceChunks)

			calls := gen.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, "gpt-4o", calls[0].Model)
			assert.Contains(t, calls[0].Prompt, "[Evidence 1]:\naccuracy improves by four points")
			assert.Contains(t, calls[0].Prompt, "[Evidence 2]:\neight GPUs")
			assert.Contains(t, calls[0].Prompt, "Accuracy improves.")
		})
	}
}

func TestJudge_MalformedDegrades(t *testing.T) {
	for name, reply := range map[string]string{
		"undecodable":    "MALFORMED",
		"unknown label":  `{"verdict":"MAYBE","confidence":0.5,"explanation":"?"}`,
		"bad confidence": `{"verdict":"SUPPORTED","confidence":3,"explanation":"?"}`,
	} {
		t.Run(name, func(t *testing.T) {
			idx := &fixedIndex{results: []models.SearchResult{{Content: "evidence"}}}
			cfg := baseConfig(idx)
			cfg.Judge = &fakes.StructuredGenerator{Responses: map[string]string{"judge_verdict": reply}}
			d, err := hallucination.NewJudgeDetector(cfg)
			require.NoError(t, err)

			r, err := d.DetectHallucination(context.Background(), "claim", paperID)
			require.NoError(t, err)
			assert.Equal(t, models.NotSupported, r.Verdict)
			assert.Zero(t, r.Confidence)
			assert.Equal(t, "Failed to evaluate claim", r.Explanation)
			assert.True(t, r.IsHallucination)
		})
	}
}

func TestJudgeClaimAgainstEvidence(t *testing.T) {
	cfg := baseConfig(store.NewMemoryStore(fakes.EmbeddingDim))
	cfg.Judge = &fakes.StructuredGenerator{Responses: map[string]string{
		"judge_verdict": `{"verdict":"CONTRADICTED","confidence":0.7,"explanation":"paper says the opposite","relevantQuote":"accuracy drops"}`,
	}}
	d, err := hallucination.NewJudgeDetector(cfg)
	require.NoError(t, err)

	evidence := []string{"accuracy drops on long inputs"}
	r, err := d.JudgeClaimAgainstEvidence(context.Background(), "Accuracy improves.", evidence)
	require.NoError(t, err)
	assert.Equal(t, models.JudgeResult{
		Claim:           "Accuracy improves.",
		Verdict:         models.Contradicted,
		Confidence:      0.7,
		Explanation:     "paper says the opposite",
		RelevantQuote:   "accuracy drops",
		EvidenceChunks:  evidence,
		IsHallucination: true,
	}, r)
}

func TestJudge_TransportErrorPropagates(t *testing.T) {
	idx := &fixedIndex{results: []models.SearchResult{{Content: "evidence"}}}
	cfg := baseConfig(idx)
	cfg.Judge = &fakes.StructuredGenerator{Respond: func(types.StructuredRequest) (string, error) {
		return "", fakes.ErrUnavailable
	}}
	d, err := hallucination.NewJudgeDetector(cfg)
	require.NoError(t, err)

	_, err = d.DetectHallucination(context.Background(), "claim", paperID)
	assert.ErrorIs(t, err, fakes.ErrUnavailable)
}

func TestDetectBatch_PreservesOrder(t *testing.T) {
	idx := seededStore(t, "sparse attention reduces memory")
	metrics := telemetry.NewMetrics()
	cfg := baseConfig(idx)
	cfg.Metrics = metrics
	ens, err := hallucination.NewEnsemble(cfg)
	require.NoError(t, err)

	det, err := ens.Detector(models.MethodSimilarity)
	require.NoError(t, err)

	claims := []string{"sparse attention reduces memory", "zebra quokka", "sparse attention reduces memory"}
	verdicts, err := det.DetectBatch(context.Background(), claims, paperID)
	require.NoError(t, err)
	require.Len(t, verdicts, 3)
	for i, v := range verdicts {
		assert.Equal(t, claims[i], v.ClaimText())
		assert.Equal(t, models.MethodSimilarity, v.DetectionMethod())
	}
	assert.False(t, verdicts[0].Hallucination())
	assert.True(t, verdicts[1].Hallucination())

	expected := `
# HELP reviewground_detection_verdicts_total Detector verdicts by method and label
# TYPE reviewground_detection_verdicts_total counter
reviewground_detection_verdicts_total{method="similarity",verdict="GROUNDED"} 2
reviewground_detection_verdicts_total{method="similarity",verdict="UNGROUNDED"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(expected), "reviewground_detection_verdicts_total"))
}

func TestDetectBatch_Empty(t *testing.T) {
	d, err := hallucination.NewJudgeDetector(baseConfig(store.NewMemoryStore(fakes.EmbeddingDim)))
	require.NoError(t, err)

	rs, err := d.DetectHallucinationsBatch(context.Background(), nil, paperID)
	require.NoError(t, err)
	assert.Empty(t, rs)
}

func TestParseMethod(t *testing.T) {
	m, err := hallucination.ParseMethod(" NLI ")
	require.NoError(t, err)
	assert.Equal(t, models.MethodNLI, m)

	_, err = hallucination.ParseMethod("vibes")
	assert.ErrorIs(t, err, hallucination.ErrUnknownMethod)

	ens, err := hallucination.NewEnsemble(baseConfig(store.NewMemoryStore(fakes.EmbeddingDim)))
	require.NoError(t, err)
	_, err = ens.Detector(models.Method("vibes"))
	assert.ErrorIs(t, err, hallucination.ErrUnknownMethod)
}

func TestCompareAll(t *testing.T) {
	claim := "sparse attention reduces memory"
	idx := seededStore(t, claim)
	cfg := baseConfig(idx)
	cfg.NLI = &fakes.NLIClassifier{Score: func(p, h string) []types.LabelScore {
		return fakes.Labels(0.9, 0.05, 0.05)
	}}
	cfg.Judge = &fakes.StructuredGenerator{Responses: map[string]string{
		"judge_verdict": `{"verdict":"PARTIALLY_SUPPORTED","confidence":0.6,"explanation":"partly"}`,
	}}
	ens, err := hallucination.NewEnsemble(cfg)
	require.NoError(t, err)

	cmp, err := ens.CompareAll(context.Background(), claim, paperID)
	require.NoError(t, err)
	assert.Equal(t, claim, cmp.Claim)
	assert.Equal(t, paperID, cmp.PaperID)
	assert.Equal(t, models.Grounded, cmp.Similarity.Verdict)
	assert.Equal(t, models.NLISupported, cmp.NLI.Verdict)
	assert.Equal(t, models.PartiallySupported, cmp.Judge.Verdict)
}

func TestCompareAll_FailsWhenOneDetectorFails(t *testing.T) {
	idx := seededStore(t, "evidence text")
	cfg := baseConfig(idx)
	cfg.NLI = &fakes.NLIClassifier{Err: errors.New("nli down")}
	cfg.Judge = &fakes.StructuredGenerator{Responses: map[string]string{
		"judge_verdict": `{"verdict":"SUPPORTED","confidence":0.9,"explanation":"ok"}`,
	}}
	ens, err := hallucination.NewEnsemble(cfg)
	require.NoError(t, err)

	_, err = ens.CompareAll(context.Background(), "evidence text", paperID)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "nli down"))
}

func TestNewDetectorRequiresOracles(t *testing.T) {
	_, err := hallucination.NewSimilarityDetector(hallucination.Config{})
	assert.Error(t, err)

	cfg := baseConfig(store.NewMemoryStore(fakes.EmbeddingDim))
	cfg.NLI = nil
	_, err = hallucination.NewNLIDetector(cfg)
	assert.Error(t, err)

	cfg = baseConfig(store.NewMemoryStore(fakes.EmbeddingDim))
	cfg.Judge = nil
	_, err = hallucination.NewJudgeDetector(cfg)
	assert.Error(t, err)
}
