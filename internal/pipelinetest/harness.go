// Package pipelinetest builds a fully wired pipeline over deterministic
// fakes, with a scripted reviewer and judge whose outcomes are known.
package pipelinetest

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xhad/reviewground/internal/fakes"
	"github.com/xhad/reviewground/internal/models"
	"github.com/xhad/reviewground/internal/types"
	"github.com/xhad/reviewground/pkg/config"
	"github.com/xhad/reviewground/pkg/pipeline"
	"github.com/xhad/reviewground/pkg/results"
	"github.com/xhad/reviewground/pkg/store"
	"github.com/xhad/reviewground/pkg/telemetry"
)

const (
	// RAGReview mentions only what the paper says.
	RAGReview = "The paper uses block sparse attention on eight GPUs and the evaluation is careful."

	// NoRAGReview adds an exaggerated claim the judge contradicts.
	NoRAGReview = "The paper uses block sparse attention on eight GPUs and accuracy doubles on every benchmark."

	GroundedClaim     = "The method uses block sparse attention on eight GPUs."
	ContradictedClaim = "Accuracy doubles on every benchmark."
)

func SamplePaper(id string) models.Paper {
	return models.Paper{
		ID:       id,
		Title:    "Sparse Attention for Long Documents",
		Abstract: "We propose a sparse attention mechanism for long documents.",
		FullText: "full text",
		Sections: []models.Section{
			{Heading: "Introduction", Content: "The main contributions and novelty of this research are a sparse attention mechanism."},
			{Heading: "Method", Content: "The methodology uses block sparse attention on eight GPUs."},
			{Heading: "Results", Content: "Results and findings show accuracy improves by four points on two benchmarks."},
			{Heading: "Limitations", Content: "Limitations and weaknesses include memory use on short inputs."},
		},
		HumanReviews: []models.Review{{ID: "r1", PaperSummary: "A sparse attention paper."}},
	}
}

// ArmGenerator answers RAG prompts with RAGReview and full-text prompts with
// NoRAGReview.
type ArmGenerator struct {
	mu    sync.Mutex
	Calls int
	Err   error
}

func (g *ArmGenerator) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	g.mu.Lock()
	g.Calls++
	g.mu.Unlock()
	if g.Err != nil {
		return "", g.Err
	}
	if strings.Contains(prompt, "KEY EXCERPTS") {
		return RAGReview, nil
	}
	return NoRAGReview, nil
}

// Respond scripts the structured oracle for extraction, validation and judging.
func Respond(req types.StructuredRequest) (string, error) {
	switch req.Name {
	case "extracted_claims":
		claims := []map[string]string{
			{"text": GroundedClaim, "category": "methodological", "originalSentence": "The paper uses block sparse attention on eight GPUs."},
		}
		if strings.Contains(req.Prompt, "doubles") {
			claims = append(claims, map[string]string{
				"text": ContradictedClaim, "category": "factual", "originalSentence": "accuracy doubles on every benchmark",
			})
		}
		return marshal(map[string]any{"claims": claims})

	case "validated_claims":
		var in []models.ExtractedClaim
		if err := json.Unmarshal([]byte(req.Prompt), &in); err != nil {
			return "MALFORMED", nil
		}
		out := make([]map[string]any, len(in))
		for i, c := range in {
			valid := !strings.Contains(c.Text, "every benchmark")
			issues := []string{}
			if !valid {
				issues = append(issues, "ambiguous")
			}
			out[i] = map[string]any{
				"text": c.Text, "category": c.Category, "originalSentence": c.OriginalSentence,
				"validation": map[string]any{"isValid": valid, "score": 0.9, "issues": issues},
			}
		}
		return marshal(map[string]any{"validatedClaims": out})

	case "judge_verdict":
		if strings.Contains(req.Prompt, "Accuracy doubles") {
			return `{"verdict":"CONTRADICTED","confidence":0.8,"explanation":"The paper reports four points, not doubling."}`, nil
		}
		return `{"verdict":"SUPPORTED","confidence":0.9,"explanation":"The method section states this.","relevantQuote":"block sparse attention on eight GPUs"}`, nil
	}
	return "MALFORMED", nil
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

func Config() *config.Config {
	cfg := &config.Config{}
	cfg.Chunking = config.ChunkingConfig{ChunkSize: 512, ChunkOverlap: 64}
	cfg.RAG = config.RAGConfig{TopK: 3}
	cfg.OpenAI = config.OpenAIConfig{ClaimModel: "claim-model", ValidationModel: "claim-model", JudgeModel: "judge-model"}
	cfg.Detection = config.DetectionConfig{
		SimilarityThreshold: 0.75,
		NLIThreshold:        0.5,
		SimilarityK:         1,
		EvidenceK:           5,
		ScoringMethod:       "judge",
	}
	cfg.Experiment = config.ExperimentConfig{Concurrency: 2}
	return cfg
}

type staticSource []models.Paper

func (s staticSource) LoadPapers(ctx context.Context) ([]models.Paper, error) {
	return s, nil
}

type Harness struct {
	Pipeline   *pipeline.Pipeline
	Embedder   *fakes.HashEmbedder
	Index      *store.MemoryStore
	Generator  *ArmGenerator
	Structured *fakes.StructuredGenerator
	NLI        *fakes.NLIClassifier
	Results    *results.Store
	Metrics    *telemetry.Metrics
}

// New wires a pipeline over papers. Pass nil cfg for Config().
func New(t testing.TB, cfg *config.Config, papers ...models.Paper) *Harness {
	t.Helper()
	if cfg == nil {
		cfg = Config()
	}

	rs, err := results.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { rs.Close() })

	h := &Harness{
		Embedder:   &fakes.HashEmbedder{},
		Index:      store.NewMemoryStore(fakes.EmbeddingDim),
		Generator:  &ArmGenerator{},
		Structured: &fakes.StructuredGenerator{Respond: Respond},
		NLI: &fakes.NLIClassifier{Score: func(premise, hypothesis string) []types.LabelScore {
			if strings.Contains(premise, "eight GPUs") {
				return fakes.Labels(0.9, 0.05, 0.05)
			}
			return fakes.Labels(0.1, 0.8, 0.1)
		}},
		Results: rs,
		Metrics: telemetry.NewMetrics(),
	}

	p, err := pipeline.Assemble(cfg, pipeline.Deps{
		Embedder:   h.Embedder,
		Index:      h.Index,
		Generator:  h.Generator,
		Structured: h.Structured,
		NLI:        h.NLI,
		Papers:     staticSource(papers),
		Results:    rs,
		Metrics:    h.Metrics,
	})
	require.NoError(t, err)
	h.Pipeline = p
	return h
}
