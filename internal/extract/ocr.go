package extract

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// OCR engine names accepted by NewOCR.
const (
	EngineTesseract = "tesseract"
	EngineOllama    = "ollama"
	EngineNone      = "none"
)

// OCR recognizes text in an encoded image (PNG, JPEG, JPEG 2000).
type OCR interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// OCROptions configures the engine built by NewOCR.
type OCROptions struct {
	Languages []string
	Model     string
	BaseURL   string
	Logger    *zap.Logger
}

// NewOCR builds the named engine. EngineNone returns a nil OCR and no error.
// EngineTesseract returns ErrOCRUnavailable unless built with the tesseract tag.
func NewOCR(engine string, opts OCROptions) (OCR, error) {
	switch engine {
	case EngineNone, "":
		return nil, nil
	case EngineTesseract:
		t, err := NewTesseractOCR(opts.Languages...)
		if err != nil {
			return nil, err
		}
		return t, nil
	case EngineOllama:
		return NewOllamaVisionOCR(opts.BaseURL, opts.Model, WithOCRLogger(opts.Logger)), nil
	default:
		return nil, fmt.Errorf("unknown ocr engine %q", engine)
	}
}

// ImageMarkerOpen is the line that precedes recognized image text on page.
func ImageMarkerOpen(page int) string {
	return fmt.Sprintf("[page %d image text]", page)
}

// ImageMarkerClose is the line that follows recognized image text on page.
func ImageMarkerClose(page int) string {
	return fmt.Sprintf("[/page %d image text]", page)
}

// imageBlock wraps recognized text in its page markers.
func imageBlock(page int, text string) string {
	return "\n" + ImageMarkerOpen(page) + "\n" + text + "\n" + ImageMarkerClose(page) + "\n"
}
