package extract

import (
	"context"
	"strings"
	"unicode/utf8"
)

// plainExtractor handles PlainText and Markdown, which are taken verbatim.
type plainExtractor struct{}

// Extract returns content as string. Invalid UTF-8 sequences are replaced with U+FFFD.
func (plainExtractor) Extract(_ context.Context, _ string, content []byte, _ Observer) (string, error) {
	if !utf8.Valid(content) {
		return strings.ToValidUTF8(string(content), "\ufffd"), nil
	}
	return string(content), nil
}
