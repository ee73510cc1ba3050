package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xhad/reviewground/internal/types"
)

// RetrievalQueries run in this order; the context keeps the first
// occurrence of each chunk.
var RetrievalQueries = []string{
	"main contributions and novelty of this research",
	"methodology and experimental setup",
	"results, findings and evaluation",
	"limitations and weaknesses",
}

const ContextSeparator = "\n\n---\n\n"

type RetrieverConfig struct {
	Embedder types.Embedder
	Index    types.VectorIndex
	TopK     int
	Logger   *slog.Logger
}

type Retriever struct {
	config RetrieverConfig
	logger *slog.Logger
}

func NewRetriever(config RetrieverConfig) (*Retriever, error) {
	if config.Embedder == nil || config.Index == nil {
		return nil, fmt.Errorf("retriever requires an embedder and an index")
	}
	if config.TopK <= 0 {
		config.TopK = 5
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Retriever{
		config: config,
		logger: config.Logger.With("component", "retriever"),
	}, nil
}

// RetrieveContext joins the deduplicated chunks returned for every
// retrieval query.
func (r *Retriever) RetrieveContext(ctx context.Context, paperID string) (string, error) {
	vectors, err := r.config.Embedder.EmbedBatch(ctx, RetrievalQueries)
	if err != nil {
		return "", fmt.Errorf("failed to embed retrieval queries: %w", err)
	}

	var all []string
	for i, vec := range vectors {
		results, err := r.config.Index.Search(ctx, vec, paperID, r.config.TopK)
		if err != nil {
			return "", fmt.Errorf("retrieval query %q failed: %w", RetrievalQueries[i], err)
		}
		for _, res := range results {
			all = append(all, res.Content)
		}
	}

	unique := dedupe(all)
	r.logger.Debug("retrieved context", "paper_id", paperID, "chunks", len(all), "unique", len(unique))
	return strings.Join(unique, ContextSeparator), nil
}

func dedupe(texts []string) []string {
	seen := make(map[string]bool, len(texts))
	out := make([]string, 0, len(texts))
	for _, t := range texts {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
