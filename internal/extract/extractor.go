// Package extract converts documents of the supported formats to plain text.
package extract

import (
	"context"
	"fmt"
	"os"

	"github.com/hyperjump/kbase/internal/models"
	"go.uber.org/zap"
)

// Observer receives per-item outcomes (such as skipped images) during extraction.
// A nil Observer discards them.
type Observer func(models.Outcome)

func (o Observer) emit(out models.Outcome) {
	if o != nil {
		o(out)
	}
}

// FormatExtractor turns the raw bytes of one format into text.
// path is used for error reporting and outcomes only.
type FormatExtractor interface {
	Extract(ctx context.Context, path string, content []byte, observe Observer) (string, error)
}

// Extractor dispatches files to the FormatExtractor registered for their format.
type Extractor struct {
	extractors map[models.Format]FormatExtractor
	logger     *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// WithOCR sets the engine used for images embedded in PDFs. Without it images are skipped.
func WithOCR(ocr OCR) Option {
	return func(e *Extractor) {
		e.Register(models.FormatPDF, &pdfExtractor{ocr: ocr})
	}
}

// NewExtractor returns an Extractor for every supported format.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{extractors: make(map[models.Format]FormatExtractor)}
	e.Register(models.FormatPlainText, plainExtractor{})
	e.Register(models.FormatMarkdown, plainExtractor{})
	e.Register(models.FormatWord, docxExtractor{})
	e.Register(models.FormatPDF, &pdfExtractor{})
	e.Register(models.FormatSpreadsheet, xlsxExtractor{})
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

// Register replaces the extractor for format.
func (e *Extractor) Register(format models.Format, fe FormatExtractor) {
	e.extractors[format] = fe
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	return e.ExtractFile(ctx, path, nil)
}

// ExtractFile reads the file at path and returns its text, reporting skipped
// images to observe. Any failure is returned as *ExtractionError.
func (e *Extractor) ExtractFile(ctx context.Context, path string, observe Observer) (string, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return "", &ExtractionError{Path: path, Err: err}
	}
	return e.ExtractDocument(ctx, models.Document{Path: path, Format: format}, observe)
}

// ExtractDocument reads doc.Path and extracts it as doc.Format, which the
// caller has already detected. Any failure is returned as *ExtractionError.
func (e *Extractor) ExtractDocument(ctx context.Context, doc models.Document, observe Observer) (string, error) {
	content, err := os.ReadFile(doc.Path)
	if err != nil {
		return "", &ExtractionError{Path: doc.Path, Err: fmt.Errorf("read file: %w", err)}
	}
	text, err := e.extract(ctx, doc.Path, content, doc.Format, observe)
	if err != nil {
		return "", &ExtractionError{Path: doc.Path, Err: err}
	}
	return text, nil
}

// ExtractBytes extracts text from content of the given format.
func (e *Extractor) ExtractBytes(ctx context.Context, content []byte, format models.Format) (string, error) {
	return e.extract(ctx, "", content, format, nil)
}

func (e *Extractor) extract(ctx context.Context, path string, content []byte, format models.Format, observe Observer) (string, error) {
	fe, ok := e.extractors[format]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	logged := func(out models.Outcome) {
		e.logger.Warn("image skipped",
			zap.String("path", out.Path),
			zap.Int("page", out.Page),
			zap.String("image", out.Image),
			zap.String("reason", out.Reason),
		)
		observe.emit(out)
	}
	e.logger.Debug("extracting", zap.String("path", path), zap.String("format", format.String()))
	return fe.Extract(ctx, path, content, logged)
}
