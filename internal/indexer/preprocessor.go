package indexer

import "strings"

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\x00", "")

// Preprocess normalizes extracted text before chunking: strips a leading BOM,
// converts CRLF and CR line endings to LF and drops NUL bytes. Line structure
// is kept since the chunker splits on it.
func Preprocess(text string) string {
	text = strings.TrimPrefix(text, "\ufeff")
	return lineEndings.Replace(text)
}
