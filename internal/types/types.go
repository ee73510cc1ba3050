package types

import (
	"context"

	"github.com/xhad/reviewground/internal/models"
)

// Core interfaces
type VectorIndex interface {
	EnsureCollection(ctx context.Context) error
	CountByPaperID(ctx context.Context, paperID string) (int, error)
	UpsertBatch(ctx context.Context, points []models.IndexedPoint) error
	Search(ctx context.Context, vector []float32, paperID string, limit int) ([]models.SearchResult, error)
}

// Embedder returns vectors in input order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// StructuredGenerator decodes a schema-constrained response into out. An
// unparseable response is reported as llm.ErrMalformedOutput.
type StructuredGenerator interface {
	GenerateStructured(ctx context.Context, req StructuredRequest, out any) error
}

type StructuredRequest struct {
	Name         string
	SystemPrompt string
	Prompt       string
	Model        string
}

type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type NLIClassifier interface {
	Classify(ctx context.Context, premise, hypothesis string) ([]LabelScore, error)
}

type PaperSource interface {
	LoadPapers(ctx context.Context) ([]models.Paper, error)
}
