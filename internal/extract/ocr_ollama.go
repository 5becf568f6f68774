package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// transcribePrompt asks a vision model for a plain transcription.
const transcribePrompt = "Transcribe all text visible in this image exactly as written. Output only the text, with no commentary."

// OllamaVisionOCR sends images to an Ollama vision model via /api/generate.
type OllamaVisionOCR struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// OllamaOCROption configures an OllamaVisionOCR.
type OllamaOCROption func(*OllamaVisionOCR)

// WithOCRLogger sets the logger. A nil logger disables logging.
func WithOCRLogger(logger *zap.Logger) OllamaOCROption {
	return func(o *OllamaVisionOCR) {
		o.logger = logger
	}
}

// WithOCRHTTPClient replaces the HTTP client.
func WithOCRHTTPClient(client *http.Client) OllamaOCROption {
	return func(o *OllamaVisionOCR) {
		o.client = client
	}
}

// NewOllamaVisionOCR creates a client for the vision model at baseURL.
func NewOllamaVisionOCR(baseURL, model string, opts ...OllamaOCROption) *OllamaVisionOCR {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	o := &OllamaVisionOCR{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

type visionRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	Stream bool     `json:"stream"`
}

type visionResponse struct {
	Response string `json:"response"`
}

// Recognize returns the model's transcription of image.
func (o *OllamaVisionOCR) Recognize(ctx context.Context, image []byte) (string, error) {
	body, err := json.Marshal(visionRequest{
		Model:  o.model,
		Prompt: transcribePrompt,
		Images: []string{base64.StdEncoding.EncodeToString(image)},
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	o.logger.Debug("vision ocr request", zap.String("model", o.model), zap.Int("image_bytes", len(image)))
	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling Ollama: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	var out visionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return strings.TrimSpace(out.Response), nil
}
