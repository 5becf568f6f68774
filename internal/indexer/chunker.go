// Package indexer splits extracted text into chunks and builds the knowledge-base artifact.
package indexer

import (
	"strings"

	"github.com/hyperjump/kbase/internal/models"
)

const (
	// DefaultChunkSize is the maximum chunk length in characters.
	DefaultChunkSize = 500
	// DefaultChunkOverlap is the number of characters a chunk repeats from its predecessor.
	DefaultChunkOverlap = 50
)

// separator is a split point. Pieces end after it, or before it when before is set.
type separator struct {
	text   []rune
	before bool
}

// defaultSeparators run from coarsest to finest.
var defaultSeparators = []separator{
	{text: []rune("\n\n")},
	{text: []rune("\n")},
	{text: []rune("[/page "), before: true},
	{text: []rune("[page "), before: true},
	{text: []rune("。")},
	{text: []rune("！")},
	{text: []rune("？")},
	{text: []rune(". ")},
	{text: []rune("! ")},
	{text: []rune("? ")},
	{text: []rune(";")},
	{text: []rune(" ")},
}

// Span locates one chunk in the source text, in rune offsets. The chunk's
// content is [OverlapStart, End); [Start, End) is the part no earlier chunk holds.
type Span struct {
	Start        int
	End          int
	OverlapStart int
}

// Chunker splits text into overlapping, separator-aligned chunks.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	separators   []separator
}

// NewChunker creates a chunker with the given size and overlap (in characters).
// Non-positive sizes fall back to the defaults; an overlap not smaller than the
// size is halved.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 2
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   defaultSeparators,
	}
}

// Split returns the non-blank chunks of text in order, indexed from 0.
func (c *Chunker) Split(text, source string) []models.Chunk {
	runes := []rune(text)
	var chunks []models.Chunk
	for _, s := range c.spans(runes) {
		content := string(runes[s.OverlapStart:s.End])
		if strings.TrimSpace(content) == "" {
			continue
		}
		chunks = append(chunks, models.Chunk{
			Index:   len(chunks),
			Content: content,
			Source:  source,
		})
	}
	return chunks
}

// Spans returns every chunk span of text, blank ones included. The unique
// parts of consecutive spans tile the text exactly.
func (c *Chunker) Spans(text string) []Span {
	return c.spans([]rune(text))
}

func (c *Chunker) spans(runes []rune) []Span {
	pieces := c.split(runes, 0, len(runes), 0, nil)
	var spans []Span
	for i := 0; i < len(pieces); {
		start := pieces[i].start
		end := pieces[i].end
		overlapStart := start
		if len(spans) > 0 && c.chunkOverlap > 0 {
			overlapStart = max(start-c.chunkOverlap, spans[len(spans)-1].OverlapStart)
		}
		switch {
		case end-start > c.chunkSize:
			// oversized atomic piece: emitted alone, without overlap
			overlapStart = start
		case end-overlapStart > c.chunkSize:
			overlapStart = end - c.chunkSize
		}
		i++
		for i < len(pieces) && pieces[i].end-overlapStart <= c.chunkSize {
			end = pieces[i].end
			i++
		}
		spans = append(spans, Span{Start: start, End: end, OverlapStart: overlapStart})
	}
	return spans
}

type piece struct {
	start, end int
}

// split cuts runes[start:end] into pieces no longer than the chunk size, trying
// separators from level onward. A piece with no separator left stays whole.
func (c *Chunker) split(runes []rune, start, end, level int, out []piece) []piece {
	if start == end {
		return out
	}
	if end-start <= c.chunkSize || level >= len(c.separators) {
		return append(out, piece{start, end})
	}
	cuts := cutPoints(runes, start, end, c.separators[level])
	if len(cuts) == 0 {
		return c.split(runes, start, end, level+1, out)
	}
	prev := start
	for _, cut := range append(cuts, end) {
		if cut <= prev {
			continue
		}
		if cut-prev <= c.chunkSize {
			out = append(out, piece{prev, cut})
		} else {
			out = c.split(runes, prev, cut, level+1, out)
		}
		prev = cut
	}
	return out
}

// cutPoints returns the offsets inside (start, end) where sep splits the range.
func cutPoints(runes []rune, start, end int, sep separator) []int {
	var cuts []int
	n := len(sep.text)
	for i := start; i+n <= end; i++ {
		if !hasPrefix(runes[i:], sep.text) {
			continue
		}
		cut := i + n
		if sep.before {
			cut = i
		}
		if cut > start && cut < end {
			cuts = append(cuts, cut)
		}
		i += n - 1
	}
	return cuts
}

func hasPrefix(runes, prefix []rune) bool {
	if len(runes) < len(prefix) {
		return false
	}
	for i, r := range prefix {
		if runes[i] != r {
			return false
		}
	}
	return true
}
