package extract

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat is returned for files whose extension has no extractor.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrOCRUnavailable is returned when the configured OCR engine cannot run in this build.
	ErrOCRUnavailable = errors.New("ocr engine unavailable")
	// ErrOCRDisabled marks images skipped because no OCR engine is configured.
	ErrOCRDisabled = errors.New("ocr disabled")
)

// ExtractionError reports a file that could not be converted to text.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// OCRError reports an embedded image that could not be decoded or recognized.
type OCRError struct {
	Path  string
	Page  int
	Image string
	Err   error
}

func (e *OCRError) Error() string {
	return fmt.Sprintf("ocr %s page %d image %s: %v", e.Path, e.Page, e.Image, e.Err)
}

func (e *OCRError) Unwrap() error { return e.Err }
