// Package config provides configuration loading and structs for kbase.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	OCR        OCRConfig        `yaml:"ocr"`
	Search     SearchConfig     `yaml:"search"`
	Generation GenerationConfig `yaml:"generation"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the location of the knowledge-base artifact.
type StorageConfig struct {
	IndexPath string `yaml:"index_path"`
}

// IngestConfig controls which files an ingestion run picks up.
type IngestConfig struct {
	DocumentsDir string   `yaml:"documents_dir"`
	Patterns     []string `yaml:"patterns"`
	Excludes     []string `yaml:"excludes"`
	Workers      int      `yaml:"workers"`
	// SourceLabel, when set, replaces the relative path as every entry's source.
	SourceLabel string `yaml:"source_label"`
}

// ChunkingConfig holds chunk sizes in characters.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	ModelPath  string `yaml:"model_path"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// OCRConfig selects the engine used for images embedded in PDFs.
type OCRConfig struct {
	Engine    string   `yaml:"engine"`
	Languages []string `yaml:"languages"`
	Model     string   `yaml:"model"`
	BaseURL   string   `yaml:"base_url"`
}

// SearchConfig holds retrieval settings.
type SearchConfig struct {
	DefaultTopK int     `yaml:"default_top_k"`
	MaxTopK     int     `yaml:"max_top_k"`
	MinScore    float64 `yaml:"min_score"`
}

// GenerationConfig points at the Ollama-compatible generation backend.
type GenerationConfig struct {
	BaseURL      string  `yaml:"base_url"`
	Model        string  `yaml:"model"`
	Temperature  float64 `yaml:"temperature"`
	NumPredict   int     `yaml:"num_predict"`
	SystemPrompt string  `yaml:"system_prompt"`
}

// WatchConfig controls reloading of the artifact when it changes on disk.
type WatchConfig struct {
	Enabled    bool `yaml:"enabled"`
	DebounceMs int  `yaml:"debounce_ms"`
}

// Load reads and parses the config file at path, loads an optional .env next to it,
// applies environment overrides and defaults, and expands paths.
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

	configDir := filepath.Dir(path)
	if err := loadDotEnv(filepath.Join(configDir, ".env")); err != nil {
		return nil, err
	}
	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)
	expandPaths(&cfg, configDir)

	return &cfg, nil
}

// Default returns a config built only from defaults and the environment, with
// relative paths resolved against dir.
func Default(dir string) (*Config, error) {
	var cfg Config
	if err := loadDotEnv(filepath.Join(dir, ".env")); err != nil {
		return nil, err
	}
	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)
	expandPaths(&cfg, dir)
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func expandPaths(cfg *Config, configDir string) {
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)
	cfg.Ingest.DocumentsDir = expandPath(cfg.Ingest.DocumentsDir, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// "~/" and other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	path = strings.TrimPrefix(path, "~/")
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
