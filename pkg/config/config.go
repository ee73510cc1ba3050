package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	NLI        NLIConfig        `yaml:"nli"`
	Database   DatabaseConfig   `yaml:"database"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	RAG        RAGConfig        `yaml:"rag"`
	Detection  DetectionConfig  `yaml:"detection"`
	Dataset    DatasetConfig    `yaml:"dataset"`
	Output     OutputConfig     `yaml:"output"`
	Experiment ExperimentConfig `yaml:"experiment"`
	Server     ServerConfig     `yaml:"server"`
}

// LLMConfig drives review generation.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// OpenAIConfig drives the structured oracle (claims and judge).
type OpenAIConfig struct {
	APIKey          string  `yaml:"api_key"`
	BaseURL         string  `yaml:"base_url"`
	ClaimModel      string  `yaml:"claim_model"`
	ValidationModel string  `yaml:"validation_model"`
	JudgeModel      string  `yaml:"judge_model"`
	RateLimit       float64 `yaml:"rate_limit"`
	TimeoutSeconds  int     `yaml:"timeout_seconds"`
}

type EmbeddingConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
}

type NLIConfig struct {
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	APIKey         string  `yaml:"api_key"`
	RateLimit      float64 `yaml:"rate_limit"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

type DatabaseConfig struct {
	URL       string `yaml:"url"`
	TableName string `yaml:"table_name"`
	VectorDim int    `yaml:"vector_dim"`
	BatchSize int    `yaml:"batch_size"`
}

type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

type RAGConfig struct {
	TopK int `yaml:"top_k"`
}

type DetectionConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	NLIThreshold        float64 `yaml:"nli_threshold"`
	SimilarityK         int     `yaml:"similarity_k"`
	EvidenceK           int     `yaml:"evidence_k"`
	ScoringMethod       string  `yaml:"scoring_method"`
}

type DatasetConfig struct {
	Path      string   `yaml:"path"`
	MaxPapers int      `yaml:"max_papers"`
	URLs      []string `yaml:"urls"`
	RateLimit float64  `yaml:"rate_limit"`
}

type OutputConfig struct {
	ResultsPath string `yaml:"results_path"`
}

type ExperimentConfig struct {
	Concurrency    int  `yaml:"concurrency"`
	ValidateClaims bool `yaml:"validate_claims"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/reviewground/config.yaml"),
			"/etc/reviewground/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := newConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := newConfig()
	mergeWithEnv(&config)
	applyDefaults(&config)
	return &config, nil
}

// newConfig seeds the settings for which zero is a valid choice. The file
// is decoded over it, so an explicit zero in YAML survives.
func newConfig() Config {
	return Config{
		LLM:      LLMConfig{Temperature: 0.7},
		Chunking: ChunkingConfig{ChunkOverlap: 64},
		Detection: DetectionConfig{
			SimilarityThreshold: 0.75,
			NLIThreshold:        0.5,
		},
		Dataset:    DatasetConfig{MaxPapers: 50},
		Experiment: ExperimentConfig{ValidateClaims: true},
	}
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = "ollama"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "mistral"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.BaseURL == "" && config.LLM.Provider == "ollama" {
		config.LLM.BaseURL = "http://localhost:11434"
	}

	if config.OpenAI.ClaimModel == "" {
		config.OpenAI.ClaimModel = "gpt-4o-mini"
	}
	if config.OpenAI.ValidationModel == "" {
		config.OpenAI.ValidationModel = config.OpenAI.ClaimModel
	}
	if config.OpenAI.JudgeModel == "" {
		config.OpenAI.JudgeModel = "gpt-4o"
	}
	if config.OpenAI.RateLimit == 0 {
		config.OpenAI.RateLimit = 5
	}
	if config.OpenAI.TimeoutSeconds == 0 {
		config.OpenAI.TimeoutSeconds = 120
	}

	if config.Embedding.Provider == "" {
		config.Embedding.Provider = "openai"
	}
	if config.Embedding.Model == "" {
		config.Embedding.Model = "text-embedding-3-small"
	}

	if config.NLI.BaseURL == "" {
		config.NLI.BaseURL = "https://api-inference.huggingface.co"
	}
	if config.NLI.Model == "" {
		config.NLI.Model = "cross-encoder/nli-deberta-v3-small"
	}
	if config.NLI.RateLimit == 0 {
		config.NLI.RateLimit = 10
	}
	if config.NLI.TimeoutSeconds == 0 {
		config.NLI.TimeoutSeconds = 30
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "paper_chunks"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 1536
	}
	if config.Database.BatchSize == 0 {
		config.Database.BatchSize = 100
	}

	if config.Chunking.ChunkSize == 0 {
		config.Chunking.ChunkSize = 512
	}

	if config.RAG.TopK == 0 {
		config.RAG.TopK = 5
	}

	if config.Detection.SimilarityK == 0 {
		config.Detection.SimilarityK = 1
	}
	if config.Detection.EvidenceK == 0 {
		config.Detection.EvidenceK = 5
	}
	if config.Detection.ScoringMethod == "" {
		config.Detection.ScoringMethod = "judge"
	}

	if config.Dataset.Path == "" {
		config.Dataset.Path = "./data/nlpeer/arr_emnlp"
	}
	if config.Dataset.RateLimit == 0 {
		config.Dataset.RateLimit = 2.0
	}

	if config.Output.ResultsPath == "" {
		config.Output.ResultsPath = "./data/results/results.db"
	}

	if config.Experiment.Concurrency == 0 {
		config.Experiment.Concurrency = 2
	}

	if config.Server.Port == "" {
		config.Server.Port = "8080"
	}
}

func mergeWithEnv(config *Config) {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString(&config.LLM.BaseURL, "OLLAMA_BASE_URL")
	setString(&config.LLM.Model, "GENERATION_MODEL")
	setString(&config.Database.URL, "DATABASE_URL")
	setString(&config.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&config.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&config.OpenAI.ClaimModel, "CLAIM_EXTRACTION_MODEL")
	setString(&config.OpenAI.JudgeModel, "JUDGE_MODEL")
	setString(&config.Embedding.Model, "EMBEDDING_MODEL")
	setString(&config.NLI.APIKey, "HF_TOKEN")
	setString(&config.NLI.Model, "NLI_MODEL")
	setString(&config.Dataset.Path, "DATASET_PATH")
	setString(&config.Output.ResultsPath, "RESULTS_PATH")
	setInt(&config.Chunking.ChunkSize, "CHUNK_SIZE")
	setInt(&config.Chunking.ChunkOverlap, "CHUNK_OVERLAP")
	setInt(&config.RAG.TopK, "TOP_K")
	setInt(&config.Dataset.MaxPapers, "MAX_PAPERS")
}
