package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultChunkSize       = 500
	defaultChunkOverlap    = 50
	defaultTopK            = 4
	defaultMaxContextChars = 6000
	defaultBatchSize       = 16
	defaultTemperature     = 0.3
	defaultVectorStorePath = "vector_store/index.gob"
	defaultIndexName       = "smartdoc"
)

// LLMConfig selects a provider and model for generation or embeddings.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	Key         string  `yaml:"key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
}

type RAGConfig struct {
	ChunkSize       int    `yaml:"chunk_size"`
	ChunkOverlap    int    `yaml:"chunk_overlap"`
	Splitter        string `yaml:"splitter"`
	TopK            int    `yaml:"top_k"`
	MaxContextChars int    `yaml:"max_context_chars"`
	BatchSize       int    `yaml:"batch_size"`
	VectorStore     string `yaml:"vector_store"`
	VectorStorePath string `yaml:"vector_store_path"`
	Compress        bool   `yaml:"compress"`
	EncryptionKey   string `yaml:"encryption_key"`
}

type DatabaseConfig struct {
	Driver    string `yaml:"driver"`
	DSN       string `yaml:"dsn"`
	Password  string `yaml:"password"`
	IndexName string `yaml:"index_name"`
	Debug     bool   `yaml:"debug"`
}

type Config struct {
	LogLevel string         `yaml:"log_level"`
	LLM      LLMConfig      `yaml:"llm"`
	EmbedLLM LLMConfig      `yaml:"embed_llm"`
	RAG      RAGConfig      `yaml:"rag"`
	Database DatabaseConfig `yaml:"database"`
}

// LoadConfig reads the YAML config at path. A missing file yields the defaults.
// Variables from a .env file in the working directory are loaded first and
// ${VAR} references in the YAML are expanded.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(expandEnv(data), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{
		LogLevel: "info",
		LLM: LLMConfig{
			Provider:    "googleai",
			Model:       "gemini-2.5-flash",
			Temperature: defaultTemperature,
		},
		EmbedLLM: LLMConfig{
			Provider: "googleai",
			Model:    "embedding-001",
		},
		RAG: RAGConfig{
			ChunkSize:       defaultChunkSize,
			ChunkOverlap:    defaultChunkOverlap,
			Splitter:        "window",
			TopK:            defaultTopK,
			MaxContextChars: defaultMaxContextChars,
			BatchSize:       defaultBatchSize,
			VectorStore:     "chromem",
			VectorStorePath: defaultVectorStorePath,
		},
		Database: DatabaseConfig{
			Driver:    "pgdriver",
			IndexName: defaultIndexName,
		},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = defaultChunkSize
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = defaultTopK
	}
	if cfg.RAG.MaxContextChars == 0 {
		cfg.RAG.MaxContextChars = defaultMaxContextChars
	}
	if cfg.RAG.BatchSize == 0 {
		cfg.RAG.BatchSize = defaultBatchSize
	}
	if cfg.RAG.Splitter == "" {
		cfg.RAG.Splitter = "window"
	}
	if cfg.RAG.VectorStore == "" {
		cfg.RAG.VectorStore = "chromem"
	}
	if cfg.RAG.VectorStorePath == "" {
		cfg.RAG.VectorStorePath = defaultVectorStorePath
	}
	if cfg.Database.IndexName == "" {
		cfg.Database.IndexName = defaultIndexName
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "pgdriver"
	}
	cfg.LLM.Key = resolveKey(cfg.LLM)
	cfg.EmbedLLM.Key = resolveKey(cfg.EmbedLLM)
}

// resolveKey falls back to the provider's conventional environment variable.
func resolveKey(c LLMConfig) string {
	if c.Key != "" {
		return c.Key
	}
	switch strings.ToLower(c.Provider) {
	case "googleai":
		return os.Getenv("GOOGLE_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}

// Validate rejects settings the pipeline cannot honour.
func (c *Config) Validate() error {
	r := c.RAG
	switch {
	case r.ChunkSize <= 0:
		return fmt.Errorf("chunk_size must be positive, got %d", r.ChunkSize)
	case r.ChunkOverlap < 0:
		return fmt.Errorf("chunk_overlap must not be negative, got %d", r.ChunkOverlap)
	case r.ChunkOverlap >= r.ChunkSize:
		return fmt.Errorf("chunk_overlap (%d) must be smaller than chunk_size (%d)", r.ChunkOverlap, r.ChunkSize)
	case r.TopK <= 0:
		return fmt.Errorf("top_k must be positive, got %d", r.TopK)
	case r.EncryptionKey != "" && len(r.EncryptionKey) != 32:
		return fmt.Errorf("encryption_key must be 32 bytes, got %d", len(r.EncryptionKey))
	}
	switch r.Splitter {
	case "window", "recursive":
	default:
		return fmt.Errorf("unknown splitter %q", r.Splitter)
	}
	switch r.VectorStore {
	case "chromem", "pgvector":
	default:
		return fmt.Errorf("unknown vector store %q", r.VectorStore)
	}
	switch c.Database.Driver {
	case "pgdriver", "pq", "postgres", "pgx":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	return nil
}

var envRef = regexp.MustCompile(`\$\{(\w+)\}`)

// expandEnv replaces ${VAR} references only, so a bare $ in a password or
// DSN is kept as written.
func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		return []byte(os.Getenv(string(ref[2 : len(ref)-1])))
	})
}
