package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var scoringMethods = map[string]bool{"judge": true, "nli": true, "similarity": true}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	if c.LLM.BaseURL == "" && c.LLM.Provider == "ollama" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "generation base URL is required",
		})
	} else if c.LLM.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.LLM.BaseURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "llm.base_url",
				Message: "invalid generation base URL",
			})
		}
	}

	if c.LLM.Provider != "ollama" && c.LLM.Provider != "openai" {
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unsupported provider: %s", c.LLM.Provider),
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 16384 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 16384",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.Embedding.Provider != "ollama" && c.Embedding.Provider != "openai" {
		errors = append(errors, ValidationError{
			Field:   "embedding.provider",
			Message: fmt.Sprintf("unsupported provider: %s", c.Embedding.Provider),
		})
	}

	// Validate Database config
	if c.Database.URL != "" {
		if u, err := url.Parse(c.Database.URL); err != nil || u.Scheme == "" {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.Database.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Validate Chunking config
	if c.Chunking.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "chunking.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "chunking.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	if c.RAG.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "rag.top_k",
			Message: "top_k must be positive",
		})
	}

	// Validate Detection config
	if c.Detection.SimilarityThreshold < 0 || c.Detection.SimilarityThreshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "detection.similarity_threshold",
			Message: "similarity_threshold must be between 0 and 1",
		})
	}

	if c.Detection.NLIThreshold < 0 || c.Detection.NLIThreshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "detection.nli_threshold",
			Message: "nli_threshold must be between 0 and 1",
		})
	}

	if c.Detection.SimilarityK < 1 || c.Detection.EvidenceK < 1 {
		errors = append(errors, ValidationError{
			Field:   "detection.evidence_k",
			Message: "similarity_k and evidence_k must be positive",
		})
	}

	if !scoringMethods[c.Detection.ScoringMethod] {
		errors = append(errors, ValidationError{
			Field:   "detection.scoring_method",
			Message: fmt.Sprintf("unknown scoring method: %s", c.Detection.ScoringMethod),
		})
	}

	if c.Experiment.Concurrency < 1 {
		errors = append(errors, ValidationError{
			Field:   "experiment.concurrency",
			Message: "concurrency must be positive",
		})
	}

	return errors
}
