// Package pipeline wires the grounding-verification components together
// from configuration. The CLI and the HTTP server both start here.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/xhad/reviewground/internal/models"
	"github.com/xhad/reviewground/internal/types"
	"github.com/xhad/reviewground/pkg/claims"
	"github.com/xhad/reviewground/pkg/config"
	"github.com/xhad/reviewground/pkg/experiment"
	"github.com/xhad/reviewground/pkg/hallucination"
	"github.com/xhad/reviewground/pkg/llm"
	"github.com/xhad/reviewground/pkg/loader"
	"github.com/xhad/reviewground/pkg/processor"
	"github.com/xhad/reviewground/pkg/rag"
	"github.com/xhad/reviewground/pkg/results"
	"github.com/xhad/reviewground/pkg/store"
	"github.com/xhad/reviewground/pkg/telemetry"
)

// ResultRepository is the read/write view of stored experiments.
type ResultRepository interface {
	Save(ctx context.Context, exp models.BatchExperimentResult) error
	Get(ctx context.Context, experimentID string) (models.BatchExperimentResult, error)
	List(ctx context.Context) ([]results.Summary, error)
}

// Deps are the external collaborators: model oracles, the vector index, the
// paper source and result storage.
type Deps struct {
	Embedder   types.Embedder
	Index      types.VectorIndex
	Generator  types.Generator
	Structured types.StructuredGenerator
	NLI        types.NLIClassifier
	Papers     types.PaperSource
	Results    ResultRepository // optional
	Metrics    *telemetry.Metrics
	Logger     *slog.Logger
}

type Pipeline struct {
	Config    *config.Config
	Papers    *loader.Cache
	Index     types.VectorIndex
	Indexer   *rag.Indexer
	Retriever *rag.Retriever
	Reviewer  *rag.Reviewer
	Extractor *claims.Extractor
	Detectors *hallucination.Ensemble
	Runner    *experiment.Runner
	Results   ResultRepository
	Metrics   *telemetry.Metrics
	Logger    *slog.Logger

	closers []func() error
}

// Assemble builds the pipeline over already-constructed collaborators.
func Assemble(cfg *config.Config, deps Deps) (*Pipeline, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	chunker, err := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    cfg.Chunking.ChunkSize,
		ChunkOverlap: cfg.Chunking.ChunkOverlap,
	})
	if err != nil {
		return nil, err
	}

	indexer, err := rag.NewIndexer(rag.IndexerConfig{
		Chunker:  chunker,
		Embedder: deps.Embedder,
		Index:    deps.Index,
		Metrics:  deps.Metrics,
		Logger:   deps.Logger,
	})
	if err != nil {
		return nil, err
	}

	retriever, err := rag.NewRetriever(rag.RetrieverConfig{
		Embedder: deps.Embedder,
		Index:    deps.Index,
		TopK:     cfg.RAG.TopK,
		Logger:   deps.Logger,
	})
	if err != nil {
		return nil, err
	}

	extractor, err := claims.NewExtractor(claims.Config{
		Generator:       deps.Structured,
		ExtractionModel: cfg.OpenAI.ClaimModel,
		ValidationModel: cfg.OpenAI.ValidationModel,
		Logger:          deps.Logger,
	})
	if err != nil {
		return nil, err
	}

	similarityThreshold, nliThreshold := cfg.Detection.SimilarityThreshold, cfg.Detection.NLIThreshold
	detectors, err := hallucination.NewEnsemble(hallucination.Config{
		Embedder:            deps.Embedder,
		Index:               deps.Index,
		NLI:                 deps.NLI,
		Judge:               deps.Structured,
		JudgeModel:          cfg.OpenAI.JudgeModel,
		SimilarityThreshold: &similarityThreshold,
		NLIThreshold:        &nliThreshold,
		SimilarityK:         cfg.Detection.SimilarityK,
		EvidenceK:           cfg.Detection.EvidenceK,
		Metrics:             deps.Metrics,
		Logger:              deps.Logger,
	})
	if err != nil {
		return nil, err
	}

	method, err := hallucination.ParseMethod(cfg.Detection.ScoringMethod)
	if err != nil {
		return nil, err
	}
	scorer, err := detectors.Detector(method)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		Config:    cfg,
		Papers:    loader.NewCache(deps.Papers),
		Index:     deps.Index,
		Indexer:   indexer,
		Retriever: retriever,
		Reviewer:  rag.NewReviewer(retriever, deps.Generator),
		Extractor: extractor,
		Detectors: detectors,
		Results:   deps.Results,
		Metrics:   deps.Metrics,
		Logger:    deps.Logger,
	}

	runnerCfg := experiment.Config{
		Papers:         p.Papers,
		Indexer:        indexer,
		Reviewer:       p.Reviewer,
		Extractor:      extractor,
		Detector:       scorer,
		ValidateClaims: cfg.Experiment.ValidateClaims,
		Concurrency:    cfg.Experiment.Concurrency,
		Metrics:        deps.Metrics,
		Logger:         deps.Logger,
	}
	if deps.Results != nil {
		runnerCfg.Results = deps.Results
	}
	if p.Runner, err = experiment.NewRunner(runnerCfg); err != nil {
		return nil, err
	}
	return p, nil
}

// New connects to the configured services. Without a database URL the
// vector index lives in memory for the life of the process.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := telemetry.NewMetrics()
	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		BaseURL:  cfg.Embedding.BaseURL,
		APIKey:   cfg.OpenAI.APIKey,
		Metrics:  metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	generator, err := llm.NewWithConfig(llm.ChatConfig{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.OpenAI.APIKey,
		Metrics:     metrics,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	structured, err := llm.NewStructuredClient(llm.StructuredConfig{
		APIKey:    cfg.OpenAI.APIKey,
		BaseURL:   cfg.OpenAI.BaseURL,
		Model:     cfg.OpenAI.ClaimModel,
		RateLimit: cfg.OpenAI.RateLimit,
		Timeout:   time.Duration(cfg.OpenAI.TimeoutSeconds) * time.Second,
		Metrics:   metrics,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize structured client: %w", err)
	}

	nli := llm.NewNLIClient(llm.NLIConfig{
		BaseURL:   cfg.NLI.BaseURL,
		Model:     cfg.NLI.Model,
		APIKey:    cfg.NLI.APIKey,
		RateLimit: cfg.NLI.RateLimit,
		Timeout:   time.Duration(cfg.NLI.TimeoutSeconds) * time.Second,
		Metrics:   metrics,
		Logger:    logger,
	})

	var index types.VectorIndex
	if cfg.Database.URL != "" {
		vs, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
			ConnString: cfg.Database.URL,
			TableName:  cfg.Database.TableName,
			VectorDim:  cfg.Database.VectorDim,
			BatchSize:  cfg.Database.BatchSize,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector store: %w", err)
		}
		closers = append(closers, func() error { vs.Close(); return nil })
		index = vs
	} else {
		logger.Warn("no database url configured, using in-memory vector index")
		index = store.NewMemoryStore(cfg.Database.VectorDim)
	}
	if err := index.EnsureCollection(ctx); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to prepare vector collection: %w", err)
	}

	papers, err := paperSource(cfg, logger)
	if err != nil {
		closeAll()
		return nil, err
	}

	var repo ResultRepository
	if cfg.Output.ResultsPath != "" {
		rs, err := results.New(cfg.Output.ResultsPath)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to open results store: %w", err)
		}
		closers = append(closers, rs.Close)
		repo = rs
	}

	p, err := Assemble(cfg, Deps{
		Embedder:   embedder,
		Index:      index,
		Generator:  generator,
		Structured: structured,
		NLI:        nli,
		Papers:     papers,
		Results:    repo,
		Metrics:    metrics,
		Logger:     logger,
	})
	if err != nil {
		closeAll()
		return nil, err
	}
	p.closers = closers
	return p, nil
}

// paperSource reads the dataset directory when it exists and fetches any
// configured paper URLs after it.
func paperSource(cfg *config.Config, logger *slog.Logger) (types.PaperSource, error) {
	var sources loader.Sources

	if info, err := os.Stat(cfg.Dataset.Path); err == nil && info.IsDir() {
		ds, err := loader.NewDataset(loader.DatasetConfig{
			Path:      cfg.Dataset.Path,
			MaxPapers: cfg.Dataset.MaxPapers,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		sources = append(sources, ds)
	} else {
		logger.Warn("dataset directory not found", "path", cfg.Dataset.Path)
	}

	if len(cfg.Dataset.URLs) > 0 {
		fetcher, err := loader.NewFetcher(loader.FetcherConfig{
			URLs:      cfg.Dataset.URLs,
			RateLimit: cfg.Dataset.RateLimit,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		sources = append(sources, fetcher)
	}

	if len(sources) == 0 {
		return nil, errors.New("no paper source: set dataset.path to an existing directory or list dataset.urls")
	}
	return sources, nil
}

func (p *Pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			p.Logger.Warn("close failed", "error", err)
		}
	}
}
