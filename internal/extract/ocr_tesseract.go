//go:build tesseract
// +build tesseract

package extract

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// TesseractOCR runs the local Tesseract engine through gosseract. It is built with -tags tesseract and needs libtesseract.
type TesseractOCR struct {
	client *gosseract.Client
	mu     sync.Mutex
}

// NewTesseractOCR creates a Tesseract client for the given languages (e.g. "eng", "chi_sim").
func NewTesseractOCR(languages ...string) (*TesseractOCR, error) {
	client := gosseract.NewClient()
	if len(languages) > 0 {
		if err := client.SetLanguage(languages...); err != nil {
			client.Close()
			return nil, fmt.Errorf("set tesseract languages: %w", err)
		}
	}
	return &TesseractOCR{client: client}, nil
}

// Recognize returns the text Tesseract finds in image.
func (t *TesseractOCR) Recognize(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("tesseract load image: %w", err)
	}
	text, err := t.client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract recognize: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Close releases the Tesseract client.
func (t *TesseractOCR) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}
