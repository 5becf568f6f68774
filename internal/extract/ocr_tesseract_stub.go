//go:build !tesseract
// +build !tesseract

package extract

import (
	"context"
	"fmt"
)

// TesseractOCR stub type when built without the tesseract tag (see ocr_tesseract.go).
type TesseractOCR struct{}

// NewTesseractOCR returns ErrOCRUnavailable when built without the tesseract tag.
func NewTesseractOCR(_ ...string) (*TesseractOCR, error) {
	return nil, fmt.Errorf("%w: rebuild with -tags tesseract and libtesseract installed", ErrOCRUnavailable)
}

// Recognize always fails in builds without the tesseract tag.
func (t *TesseractOCR) Recognize(_ context.Context, _ []byte) (string, error) {
	return "", ErrOCRUnavailable
}

// Close is a no-op.
func (t *TesseractOCR) Close() error { return nil }
