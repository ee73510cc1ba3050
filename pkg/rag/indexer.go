package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xhad/reviewground/internal/models"
	"github.com/xhad/reviewground/internal/types"
	"github.com/xhad/reviewground/pkg/processor"
	"github.com/xhad/reviewground/pkg/telemetry"
)

type IndexerConfig struct {
	Chunker  *processor.Processor
	Embedder types.Embedder
	Index    types.VectorIndex
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger
}

// Indexer writes a paper's chunks to the vector index at most once.
type Indexer struct {
	config IndexerConfig
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewIndexer(config IndexerConfig) (*Indexer, error) {
	if config.Chunker == nil || config.Embedder == nil || config.Index == nil {
		return nil, fmt.Errorf("indexer requires a chunker, an embedder and an index")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Indexer{
		config: config,
		logger: config.Logger.With("component", "indexer"),
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

func (ix *Indexer) paperLock(paperID string) *sync.Mutex {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	l, ok := ix.locks[paperID]
	if !ok {
		l = &sync.Mutex{}
		ix.locks[paperID] = l
	}
	return l
}

// IndexPaper chunks, embeds and upserts the paper unless any chunk for it is
// already stored. It returns the number of chunks written, 0 when skipped.
func (ix *Indexer) IndexPaper(ctx context.Context, paper models.Paper) (int, error) {
	lock := ix.paperLock(paper.ID)
	lock.Lock()
	defer lock.Unlock()

	ix.logger.Info("indexing paper", "paper_id", paper.ID)

	existing, err := ix.config.Index.CountByPaperID(ctx, paper.ID)
	if err != nil {
		return 0, err
	}
	if existing > 0 {
		ix.config.Metrics.RecordIndexSkip()
		ix.logger.Info("paper already indexed, skipping", "paper_id", paper.ID, "chunks", existing)
		return 0, nil
	}

	chunks := ix.config.Chunker.ChunkPaper(paper.ID, processor.SectionsOf(paper))
	if len(chunks) == 0 {
		ix.logger.Warn("paper has no chunkable text", "paper_id", paper.ID)
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := ix.config.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed chunks for paper %s: %w", paper.ID, err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	points := make([]models.IndexedPoint, len(chunks))
	for i, c := range chunks {
		points[i] = c.Point(vectors[i])
	}

	if err := ix.config.Index.UpsertBatch(ctx, points); err != nil {
		return 0, fmt.Errorf("failed to store chunks for paper %s: %w", paper.ID, err)
	}

	ix.config.Metrics.RecordIndexed(len(points))
	ix.logger.Info("indexed paper", "paper_id", paper.ID, "chunks", len(points))
	return len(points), nil
}
