package config

const (
	defaultOllamaURL = "http://localhost:11434"
	defaultChatModel = "qwen3-vl:8b"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "./data/knowledge_base.json"
	}
	if cfg.Ingest.DocumentsDir == "" {
		cfg.Ingest.DocumentsDir = "./docs"
	}
	if cfg.Ingest.Patterns == nil {
		cfg.Ingest.Patterns = []string{"*.md", "*.txt", "*.docx", "*.pdf"}
	}
	if cfg.Ingest.Workers <= 0 {
		cfg.Ingest.Workers = 1
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 500
	}
	if cfg.Chunking.ChunkOverlap == 0 {
		cfg.Chunking.ChunkOverlap = 50
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.ModelPath == "" && cfg.Embedding.Provider == "onnx" {
		cfg.Embedding.ModelPath = "./models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Model == "" {
		switch cfg.Embedding.Provider {
		case "ollama":
			cfg.Embedding.Model = "all-minilm"
		case "openai":
			cfg.Embedding.Model = "text-embedding-3-small"
		}
	}
	if cfg.Embedding.BaseURL == "" && cfg.Embedding.Provider == "ollama" {
		cfg.Embedding.BaseURL = defaultOllamaURL
	}
	if cfg.OCR.Engine == "" {
		cfg.OCR.Engine = "tesseract"
	}
	if cfg.OCR.Languages == nil {
		cfg.OCR.Languages = []string{"eng", "chi_sim"}
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 3
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 100
	}
	if cfg.Search.MinScore == 0 {
		cfg.Search.MinScore = 0.5
	}
	if cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = defaultOllamaURL
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = defaultChatModel
	}
	if cfg.Generation.Temperature == 0 {
		cfg.Generation.Temperature = 0.1
	}
	if cfg.OCR.BaseURL == "" {
		cfg.OCR.BaseURL = cfg.Generation.BaseURL
	}
	if cfg.OCR.Model == "" {
		cfg.OCR.Model = cfg.Generation.Model
	}
	if cfg.Watch.DebounceMs == 0 {
		cfg.Watch.DebounceMs = 500
	}
}
