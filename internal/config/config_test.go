package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvOllamaURL, EnvChatModel, EnvIndexPath, EnvEmbeddingProvider, EnvOCREngine, EnvDebug, EnvOpenAIKey} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeConfig(t, dir, `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  index_path: "./kb.json"
chunking:
  chunk_size: 300
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.IndexPath != filepath.Join(dir, "kb.json") {
		t.Errorf("IndexPath = %q", cfg.Storage.IndexPath)
	}
	if cfg.Chunking.ChunkSize != 300 || cfg.Chunking.ChunkOverlap != 50 {
		t.Errorf("unexpected chunking: %+v", cfg.Chunking)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_defaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	cfg, err := Load(writeConfig(t, dir, "debug: true\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
	if cfg.Search.DefaultTopK != 3 || cfg.Search.MaxTopK != 100 || cfg.Search.MinScore != 0.5 {
		t.Errorf("unexpected search defaults: %+v", cfg.Search)
	}
	if cfg.Chunking.ChunkSize != 500 {
		t.Errorf("ChunkSize = %d, want 500", cfg.Chunking.ChunkSize)
	}
	if cfg.Embedding.Dimensions != 384 || cfg.Embedding.Provider != "onnx" {
		t.Errorf("unexpected embedding defaults: %+v", cfg.Embedding)
	}
	if len(cfg.Ingest.Patterns) != 4 || cfg.Ingest.Workers != 1 {
		t.Errorf("unexpected ingest defaults: %+v", cfg.Ingest)
	}
	if cfg.Generation.BaseURL != "http://localhost:11434" {
		t.Errorf("Generation.BaseURL = %q", cfg.Generation.BaseURL)
	}
	if cfg.OCR.Model != cfg.Generation.Model {
		t.Errorf("OCR model should follow generation model, got %q", cfg.OCR.Model)
	}
	if cfg.Storage.IndexPath != filepath.Join(dir, "data", "knowledge_base.json") {
		t.Errorf("IndexPath = %q", cfg.Storage.IndexPath)
	}
}

func TestLoad_envOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvChatModel, "llama3")
	t.Setenv(EnvEmbeddingProvider, "MOCK")
	t.Setenv(EnvDebug, "true")
	dir := t.TempDir()
	cfg, err := Load(writeConfig(t, dir, "generation:\n  model: deepseek-r1\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Generation.Model != "llama3" {
		t.Errorf("Generation.Model = %q, want llama3", cfg.Generation.Model)
	}
	if cfg.Embedding.Provider != "mock" {
		t.Errorf("Embedding.Provider = %q, want mock", cfg.Embedding.Provider)
	}
	if !cfg.Debug {
		t.Error("KBASE_DEBUG=true should enable debug")
	}
}

func TestLoad_dotEnv(t *testing.T) {
	clearEnv(t)
	// godotenv never overrides a variable that is already present, even if empty.
	os.Unsetenv(EnvOllamaURL)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("KBASE_OLLAMA_URL=http://gpu-box:11434\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(writeConfig(t, dir, "{}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Generation.BaseURL != "http://gpu-box:11434" {
		t.Errorf("Generation.BaseURL = %q", cfg.Generation.BaseURL)
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config")
	}
}

func TestLoad_invalidYAML(t *testing.T) {
	clearEnv(t)
	if _, err := Load(writeConfig(t, t.TempDir(), "server: [")); err == nil {
		t.Error("expected parse error")
	}
}

func TestDefault(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	cfg, err := Default(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Ingest.DocumentsDir != filepath.Join(dir, "docs") {
		t.Errorf("DocumentsDir = %q", cfg.Ingest.DocumentsDir)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"/abs/kb.json", "/abs/kb.json"},
		{"./kb.json", "/etc/kbase/kb.json"},
		{"~/kb.json", filepath.Join(home, "kb.json")},
		{"kb.json", filepath.Join(home, "kb.json")},
	}
	for _, tt := range tests {
		if got := expandPath(tt.in, "/etc/kbase"); got != tt.want {
			t.Errorf("expandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSave(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Storage.IndexPath = filepath.Join(dir, "kb.json")
	path := filepath.Join(dir, "saved.yaml")
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Storage.IndexPath != cfg.Storage.IndexPath {
		t.Errorf("IndexPath = %q, want %q", loaded.Storage.IndexPath, cfg.Storage.IndexPath)
	}
}
