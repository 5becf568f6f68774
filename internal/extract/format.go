package extract

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kbase/internal/models"
)

var formatsByExt = map[string]models.Format{
	".txt":      models.FormatPlainText,
	".md":       models.FormatMarkdown,
	".markdown": models.FormatMarkdown,
	".docx":     models.FormatWord,
	".pdf":      models.FormatPDF,
	".xlsx":     models.FormatSpreadsheet,
}

// DetectFormat returns the format implied by the file extension.
// Returns ErrUnsupportedFormat for any other extension.
func DetectFormat(path string) (models.Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if f, ok := formatsByExt[ext]; ok {
		return f, nil
	}
	return models.FormatUnknown, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

// Supported reports whether path has an extension DetectFormat accepts.
func Supported(path string) bool {
	_, ok := formatsByExt[strings.ToLower(filepath.Ext(path))]
	return ok
}
