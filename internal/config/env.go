package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment variables that override file settings.
const (
	EnvOllamaURL         = "KBASE_OLLAMA_URL"
	EnvChatModel         = "KBASE_CHAT_MODEL"
	EnvIndexPath         = "KBASE_INDEX_PATH"
	EnvEmbeddingProvider = "KBASE_EMBEDDING_PROVIDER"
	EnvOCREngine         = "KBASE_OCR_ENGINE"
	EnvDebug             = "KBASE_DEBUG"
	EnvOpenAIKey         = "OPENAI_API_KEY"
)

// ApplyEnv overwrites cfg fields with any of the KBASE_* variables that are set.
func ApplyEnv(cfg *Config) {
	if v := getEnv(EnvOllamaURL); v != "" {
		cfg.Generation.BaseURL = v
	}
	if v := getEnv(EnvChatModel); v != "" {
		cfg.Generation.Model = v
	}
	if v := getEnv(EnvIndexPath); v != "" {
		cfg.Storage.IndexPath = v
	}
	if v := getEnv(EnvEmbeddingProvider); v != "" {
		cfg.Embedding.Provider = strings.ToLower(v)
	}
	if v := getEnv(EnvOCREngine); v != "" {
		cfg.OCR.Engine = strings.ToLower(v)
	}
	if v := getEnv(EnvOpenAIKey); v != "" && cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = v
	}
	if v := getEnv(EnvDebug); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
