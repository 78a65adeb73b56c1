// Package config provides configuration loading and structs for the Grain server and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Vector     VectorConfig     `yaml:"vector"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Generation GenerationConfig `yaml:"generation"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Watch reloads the corpus snapshot when its files change on disk.
	Watch *bool `yaml:"watch"`
}

// WatchOrDefault returns whether to hot-reload snapshots; defaults to true when unset.
func (s *ServerConfig) WatchOrDefault() bool {
	if s.Watch != nil {
		return *s.Watch
	}
	return true
}

// StorageConfig holds the snapshot directory.
type StorageConfig struct {
	EmbeddingsDir string `yaml:"embeddings_dir"`
}

// EmbeddingConfig selects and configures the embedding model.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"` // onnx, openai, gemini, mock
	Model      string        `yaml:"model"`
	ModelPath  string        `yaml:"model_path"`
	VocabPath  string        `yaml:"vocab_path"`
	Dimensions int           `yaml:"dimensions"`
	MaxTokens  int           `yaml:"max_tokens"`
	BatchSize  int           `yaml:"batch_size"`
	CacheSize  int           `yaml:"cache_size"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	APIKey     string        `yaml:"api_key,omitempty"`
	BaseURL    string        `yaml:"base_url,omitempty"`
}

// VectorConfig selects the vector index implementation.
type VectorConfig struct {
	IndexType string `yaml:"index_type"` // memory or faiss
}

// RetrievalConfig holds search and relevance settings.
type RetrievalConfig struct {
	CorpusName         string  `yaml:"corpus_name"`
	RelevanceThreshold float64 `yaml:"relevance_threshold"`
	DefaultK           int     `yaml:"default_k"`
	FilteredK          int     `yaml:"filtered_k"`
	FilteredLimit      int     `yaml:"filtered_limit"`
	HighRelevance      float64 `yaml:"high_relevance"`
	MediumRelevance    float64 `yaml:"medium_relevance"`
}

// PDFSource is a directory of PDFs chunked with its own size and overlap.
type PDFSource struct {
	Name         string `yaml:"name"`
	Dir          string `yaml:"dir"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
}

// WebConfig holds scraper settings.
type WebConfig struct {
	ChunkSize    int           `yaml:"chunk_size"`
	ChunkOverlap int           `yaml:"chunk_overlap"`
	Workers      int           `yaml:"workers"`
	Delay        time.Duration `yaml:"delay"`
	Timeout      time.Duration `yaml:"timeout"`
	UserAgent    string        `yaml:"user_agent"`
}

// IngestConfig lists the document sources used to build the corpus.
type IngestConfig struct {
	PDFSources []PDFSource `yaml:"pdf_sources"`
	LinksFile  string      `yaml:"links_file"`
	Web        WebConfig   `yaml:"web"`
}

// GenerationConfig configures the answer generator.
type GenerationConfig struct {
	Provider        string  `yaml:"provider"` // gemini or none
	Model           string  `yaml:"model"`
	APIKey          string  `yaml:"api_key,omitempty"`
	Temperature     float32 `yaml:"temperature"`
	TopP            float32 `yaml:"top_p"`
	TopK            float32 `yaml:"top_k"`
	MaxOutputTokens int32   `yaml:"max_output_tokens"`
	MaxRetries      int     `yaml:"max_retries"`
}

// Load reads and parses the config file at path, expands paths, applies env overrides and defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)
	cfg.expandPaths(filepath.Dir(path))
	return &cfg, nil
}

// Default returns the default configuration with paths relative to dir, for running without a config file.
func Default(dir string) *Config {
	var cfg Config
	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)
	cfg.expandPaths(dir)
	return &cfg
}

func (c *Config) expandPaths(configDir string) {
	c.Storage.EmbeddingsDir = expandPath(c.Storage.EmbeddingsDir, configDir)
	c.Embedding.ModelPath = expandPath(c.Embedding.ModelPath, configDir)
	c.Embedding.VocabPath = expandPath(c.Embedding.VocabPath, configDir)
	c.Ingest.LinksFile = expandPath(c.Ingest.LinksFile, configDir)
	for i := range c.Ingest.PDFSources {
		c.Ingest.PDFSources[i].Dir = expandPath(c.Ingest.PDFSources[i].Dir, configDir)
	}
}

// Save writes the config to path. Secrets are not written.
func Save(path string, cfg *Config) error {
	out := *cfg
	out.Embedding.APIKey = ""
	out.Generation.APIKey = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// LoadDotEnv loads variables from a .env file into the process environment.
// Variables already set are kept; a missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides secrets and flags from the environment.
// GOOGLE_API_KEY feeds the Gemini generator (and the Gemini embedder when selected);
// OPENAI_API_KEY feeds the OpenAI embedder.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("GRAIN_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
	google := os.Getenv("GOOGLE_API_KEY")
	if google != "" && cfg.Generation.APIKey == "" {
		cfg.Generation.APIKey = google
	}
	if cfg.Embedding.APIKey == "" {
		switch cfg.Embedding.Provider {
		case "openai":
			cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
		case "gemini":
			cfg.Embedding.APIKey = google
		}
	}
	if v := os.Getenv("GRAIN_EMBEDDINGS_DIR"); v != "" {
		cfg.Storage.EmbeddingsDir = v
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return filepath.Join(configDir, path)
}
