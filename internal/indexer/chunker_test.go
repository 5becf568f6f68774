package indexer

import (
	"strings"
	"testing"
	"unicode/utf8"
)

const sampleText = "Install Go 1.24 first. Then clone the repository.\n\n" +
	"Run make setup to fetch dependencies; it also installs the linters.\n" +
	"配置开发环境。请先安装依赖！完成了吗？\n\n" +
	"The server listens on port 8080 by default. Change it in config.yaml if needed."

func checkTiling(t *testing.T, text string, spans []Span) {
	t.Helper()
	runes := []rune(text)
	var b strings.Builder
	prevEnd := 0
	for i, s := range spans {
		if s.Start != prevEnd {
			t.Fatalf("span %d starts at %d, previous ended at %d", i, s.Start, prevEnd)
		}
		if s.OverlapStart > s.Start || s.End < s.Start {
			t.Fatalf("span %d malformed: %+v", i, s)
		}
		b.WriteString(string(runes[s.Start:s.End]))
		prevEnd = s.End
	}
	if b.String() != text {
		t.Errorf("unique spans do not reproduce the text:\n got %q\nwant %q", b.String(), text)
	}
}

func TestChunker_lossless(t *testing.T) {
	for _, size := range []int{10, 25, 60, 500} {
		c := NewChunker(size, size/5)
		checkTiling(t, sampleText, c.Spans(sampleText))
	}
}

func TestChunker_maxSize(t *testing.T) {
	c := NewChunker(40, 8)
	for i, ch := range c.Split(sampleText, "s.md") {
		if n := utf8.RuneCountInString(ch.Content); n > 40 {
			t.Errorf("chunk %d has %d characters: %q", i, n, ch.Content)
		}
	}
}

func TestChunker_overlap(t *testing.T) {
	c := NewChunker(20, 5)
	text := "one two three four five six seven eight nine ten eleven twelve"
	spans := c.Spans(text)
	if len(spans) < 3 {
		t.Fatalf("expected several spans, got %+v", spans)
	}
	for i := 1; i < len(spans); i++ {
		if shared := spans[i].Start - spans[i].OverlapStart; shared < 5 {
			t.Errorf("span %d shares %d characters, want >= 5", i, shared)
		}
	}
	chunks := c.Split(text, "")
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1].Content
		tail := prev[len(prev)-5:]
		if !strings.HasPrefix(chunks[i].Content, tail) {
			t.Errorf("chunk %d %q does not start with %q", i, chunks[i].Content, tail)
		}
	}
}

func TestChunker_firstExample(t *testing.T) {
	c := NewChunker(20, 5)
	spans := c.Spans("one two three four five six seven eight")
	if spans[0] != (Span{Start: 0, End: 19, OverlapStart: 0}) {
		t.Errorf("first span = %+v", spans[0])
	}
	if spans[1] != (Span{Start: 19, End: 34, OverlapStart: 14}) {
		t.Errorf("second span = %+v", spans[1])
	}
}

func TestChunker_separatorStaysWithPrecedingPiece(t *testing.T) {
	c := NewChunker(12, 0)
	chunks := c.Split("第一句话。第二句话。第三句话。", "")
	want := []string{"第一句话。第二句话。", "第三句话。"}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks: %+v", len(chunks), chunks)
	}
	for i := range want {
		if chunks[i].Content != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, chunks[i].Content, want[i])
		}
	}
}

func TestChunker_oversizedAtomic(t *testing.T) {
	c := NewChunker(10, 3)
	long := strings.Repeat("x", 25)
	text := "ab cd\n" + long + "\nef gh"
	spans := c.Spans(text)
	checkTiling(t, text, spans)
	found := false
	for _, ch := range c.Split(text, "") {
		if strings.Contains(ch.Content, long) {
			found = true
			if ch.Content != long+"\n" {
				t.Errorf("oversized piece should be emitted alone, got %q", ch.Content)
			}
		}
	}
	if !found {
		t.Error("oversized piece missing from chunks")
	}
}

func TestChunker_imageMarkersStartPieces(t *testing.T) {
	c := NewChunker(30, 0)
	text := "page text[page 1 image text]ocr words[/page 1 image text]"
	chunks := c.Split(text, "")
	if len(chunks) < 2 {
		t.Fatalf("expected split at markers, got %+v", chunks)
	}
	if !strings.HasPrefix(chunks[1].Content, "[page 1 image text]") && !strings.HasPrefix(chunks[1].Content, "[/page 1") {
		t.Errorf("second chunk should begin at a marker, got %q", chunks[1].Content)
	}
}

func TestChunker_Split(t *testing.T) {
	c := NewChunker(30, 5)
	chunks := c.Split(sampleText, "guide.md")
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.Index != i {
			t.Errorf("chunk %d Index=%d", i, ch.Index)
		}
		if ch.Source != "guide.md" {
			t.Errorf("chunk %d Source=%q", i, ch.Source)
		}
		if strings.TrimSpace(ch.Content) == "" {
			t.Errorf("chunk %d is blank", i)
		}
	}
}

func TestChunker_deterministic(t *testing.T) {
	c := NewChunker(30, 5)
	a := c.Split(sampleText, "x")
	b := c.Split(sampleText, "x")
	if len(a) != len(b) {
		t.Fatal("chunk counts differ")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("chunk %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestChunker_SplitEmpty(t *testing.T) {
	c := NewChunker(5, 1)
	if chunks := c.Split("   \n\t  ", "d"); chunks != nil {
		t.Errorf("blank text should return nil, got %v", chunks)
	}
	if spans := c.Spans(""); len(spans) != 0 {
		t.Errorf("empty text should have no spans, got %v", spans)
	}
}

func TestChunker_shortText(t *testing.T) {
	chunks := NewChunker(500, 50).Split("short note", "n.txt")
	if len(chunks) != 1 || chunks[0].Content != "short note" {
		t.Errorf("got %+v", chunks)
	}
}

func TestNewChunker_clamps(t *testing.T) {
	c := NewChunker(0, -1)
	if c.chunkSize != DefaultChunkSize || c.chunkOverlap != 0 {
		t.Errorf("got size=%d overlap=%d", c.chunkSize, c.chunkOverlap)
	}
	c = NewChunker(10, 10)
	if c.chunkOverlap != 5 {
		t.Errorf("overlap = %d, want 5", c.chunkOverlap)
	}
}

func TestPreprocess(t *testing.T) {
	got := Preprocess("\ufeffline one\r\nline two\rline\x00 three")
	if got != "line one\nline two\nline three" {
		t.Errorf("got %q", got)
	}
}
