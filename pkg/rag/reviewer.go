package rag

import (
	"context"
	"fmt"

	"github.com/xhad/reviewground/internal/models"
	"github.com/xhad/reviewground/internal/types"
	"github.com/xhad/reviewground/pkg/llm"
)

// Reviewer generates peer reviews with or without retrieved context.
type Reviewer struct {
	retriever *Retriever
	generator types.Generator
}

func NewReviewer(retriever *Retriever, generator types.Generator) *Reviewer {
	return &Reviewer{retriever: retriever, generator: generator}
}

// GenerateWithRAG assumes the paper is already indexed.
func (rv *Reviewer) GenerateWithRAG(ctx context.Context, paper models.Paper) (string, error) {
	excerpts, err := rv.retriever.RetrieveContext(ctx, paper.ID)
	if err != nil {
		return "", err
	}

	review, err := rv.generator.Generate(ctx, llm.ReviewWithContextPrompt(paper.Title, paper.Abstract, excerpts), llm.ReviewerSystemPrompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate RAG review for paper %s: %w", paper.ID, err)
	}
	return review, nil
}

func (rv *Reviewer) GenerateWithoutRAG(ctx context.Context, paper models.Paper) (string, error) {
	review, err := rv.generator.Generate(ctx, llm.ReviewFullTextPrompt(paper.Title, paper.Abstract, paper.FullText), llm.ReviewerSystemPrompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate review for paper %s: %w", paper.ID, err)
	}
	return review, nil
}
