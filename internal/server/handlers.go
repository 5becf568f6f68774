package server

import (
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"strings"

	"github.com/hyperjump/kbase/internal/models"
	"github.com/hyperjump/kbase/internal/search"
	"github.com/hyperjump/kbase/internal/stream"
	"go.uber.org/zap"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.Query
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if query.TopK == 0 {
		query.TopK = s.config.Search.DefaultTopK
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("top_k", query.TopK))
	response, err := s.retriever.Query(r.Context(), &query)
	if err != nil {
		if errors.Is(err, search.ErrEmptyQuery) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

type chatRequest struct {
	Model        string           `json:"model,omitempty"`
	Messages     []models.Message `json:"messages"`
	UseKnowledge *bool            `json:"use_knowledge,omitempty"`
	TopK         int              `json:"top_k,omitempty"`
}

type generateRequest struct {
	Model        string   `json:"model,omitempty"`
	Prompt       string   `json:"prompt"`
	Temperature  *float64 `json:"temperature,omitempty"`
	NumPredict   int      `json:"num_predict,omitempty"`
	UseKnowledge bool     `json:"use_knowledge,omitempty"`
	TopK         int      `json:"top_k,omitempty"`
}

// streamLine is one NDJSON line of a relayed answer.
type streamLine struct {
	Content    string             `json:"content,omitempty"`
	Done       bool               `json:"done,omitempty"`
	References []search.Reference `json:"references,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		s.respondError(w, http.StatusBadRequest, "messages are required")
		return
	}
	last := len(req.Messages) - 1
	if req.Messages[last].Role != models.RoleUser || strings.TrimSpace(req.Messages[last].Content) == "" {
		s.respondError(w, http.StatusBadRequest, "last message must be a non-empty user message")
		return
	}

	messages := make([]models.Message, 0, len(req.Messages)+1)
	if sp := s.config.Generation.SystemPrompt; sp != "" && req.Messages[0].Role != models.RoleSystem {
		messages = append(messages, models.Message{Role: models.RoleSystem, Content: sp})
	}
	messages = append(messages, req.Messages...)

	var refs []search.Reference
	if req.UseKnowledge == nil || *req.UseKnowledge {
		question := req.Messages[last].Content
		results, err := s.retrieve(r, question, req.TopK)
		if err != nil {
			s.logger.Error("chat retrieval failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		messages[len(messages)-1].Content = search.AugmentPrompt(question, results)
		refs = search.References(results)
	}

	model := s.model(req.Model)
	s.logger.Debug("chat request", zap.String("model", model), zap.Int("messages", len(messages)), zap.Int("references", len(refs)))
	s.relay(w, s.proxy.Stream(r.Context(), model, messages), refs)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		s.respondError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	prompt := req.Prompt
	var refs []search.Reference
	if req.UseKnowledge {
		results, err := s.retrieve(r, req.Prompt, req.TopK)
		if err != nil {
			s.logger.Error("generate retrieval failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		prompt = search.AugmentPrompt(req.Prompt, results)
		refs = search.References(results)
	}

	opts := &stream.GenerateOptions{
		Temperature: s.config.Generation.Temperature,
		NumPredict:  s.config.Generation.NumPredict,
	}
	if req.Temperature != nil {
		opts.Temperature = *req.Temperature
	}
	if req.NumPredict > 0 {
		opts.NumPredict = req.NumPredict
	}
	s.relay(w, s.proxy.StreamPrompt(r.Context(), s.model(req.Model), prompt, opts), refs)
}

func (s *Server) retrieve(r *http.Request, question string, topK int) ([]models.ScoredResult, error) {
	if topK <= 0 {
		topK = s.config.Search.DefaultTopK
	}
	if maxK := s.config.Search.MaxTopK; maxK > 0 && topK > maxK {
		topK = maxK
	}
	return s.retriever.Search(r.Context(), question, topK)
}

func (s *Server) model(requested string) string {
	if requested != "" {
		return requested
	}
	return s.config.Generation.Model
}

// relay writes each fragment as an NDJSON line as soon as it arrives, then a
// final done line carrying the references.
func (s *Server) relay(w http.ResponseWriter, fragments iter.Seq[string], refs []search.Reference) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	for fragment := range fragments {
		if err := enc.Encode(streamLine{Content: fragment}); err != nil {
			s.logger.Debug("client went away", zap.Error(err))
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	_ = enc.Encode(streamLine{Done: true, References: refs})
	if flusher != nil {
		flusher.Flush()
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.Load()
	if err != nil {
		s.logger.Error("status: load knowledge base failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"entries":    len(entries),
		"dimensions": s.store.Dimensions(),
		"index_path": s.store.Path(),
	}
	if info, err := s.store.Info(); err == nil && info.Exists {
		resp["index_size_bytes"] = info.SizeBytes
		resp["index_modified"] = info.ModTime
	}
	resp["config"] = map[string]interface{}{
		"embedding_provider": s.config.Embedding.Provider,
		"embedding_model":    s.embeddingModel(),
		"chat_model":         s.config.Generation.Model,
		"generation_url":     s.proxy.BaseURL(),
		"ocr_engine":         s.config.OCR.Engine,
		"chunk_size":         s.config.Chunking.ChunkSize,
		"chunk_overlap":      s.config.Chunking.ChunkOverlap,
		"min_score":          s.config.Search.MinScore,
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) embeddingModel() string {
	if s.config.Embedding.Provider == "onnx" || s.config.Embedding.Provider == "" {
		return s.config.Embedding.ModelPath
	}
	return s.config.Embedding.Model
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Reload(); err != nil {
		s.logger.Error("reload failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "reloaded",
		"entries": len(s.store.Entries()),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
