package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/kbase/internal/embedding"
	"github.com/hyperjump/kbase/internal/extract"
	"github.com/hyperjump/kbase/internal/models"
	"github.com/hyperjump/kbase/internal/storage"
	"github.com/xuri/excelize/v2"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
}

func testIndexer(t *testing.T, opts ...IndexerOption) (*Indexer, *storage.IndexStore) {
	t.Helper()
	store := storage.NewIndexStore(filepath.Join(t.TempDir(), "kb.json"), nil)
	embedder := embedding.NewMockEmbedder(4)
	t.Cleanup(func() { _ = embedder.Close() })
	return NewIndexer(extract.NewExtractor(), NewChunker(10, 2), embedder, store, opts...), store
}

func contents(entries []models.IndexEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Content
	}
	return out
}

func TestRun_corpus(t *testing.T) {
	docs := t.TempDir()
	writeFiles(t, docs, map[string]string{
		"a.txt": "Hello world. Foo bar.",
		"b.txt": "Baz qux.",
	})
	idx, store := testIndexer(t)

	report, err := idx.Run(context.Background(), docs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	entries, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) == 0 || report.Entries != len(entries) {
		t.Fatalf("report.Entries = %d, stored %d", report.Entries, len(entries))
	}
	for i, e := range entries {
		if e.ID != i {
			t.Errorf("entry %d has id %d", i, e.ID)
		}
		if len([]rune(e.Content)) > 10 {
			t.Errorf("entry %d exceeds chunk size: %q", i, e.Content)
		}
		if len(e.Vector) != 4 {
			t.Errorf("entry %d vector length %d", i, len(e.Vector))
		}
	}
	if entries[0].Source != "a.txt" || entries[len(entries)-1].Source != "b.txt" {
		t.Errorf("entries out of listing order: first %q, last %q", entries[0].Source, entries[len(entries)-1].Source)
	}
	if report.Files != 2 || report.FilesIndexed != 2 || !report.Clean() {
		t.Errorf("unexpected report: %+v", report)
	}
	if report.RunID == "" || report.Dimensions != 4 {
		t.Errorf("report missing run id or dimensions: %+v", report)
	}
}

func TestRun_corruptDocxSkipped(t *testing.T) {
	docs := t.TempDir()
	writeFiles(t, docs, map[string]string{
		"broken.docx": "PK not really a zip",
		"one.txt":     "First valid file.",
		"two.txt":     "Second valid file.",
	})
	idx, store := testIndexer(t)

	report, err := idx.Run(context.Background(), docs)
	if err != nil {
		t.Fatalf("run should not abort: %v", err)
	}
	entries, _ := store.Load()
	for _, e := range entries {
		if e.Source != "one.txt" && e.Source != "two.txt" {
			t.Errorf("unexpected source %q", e.Source)
		}
	}
	if len(entries) == 0 {
		t.Fatal("expected chunks from the valid files")
	}
	if report.Count(models.SkipFile) != 1 {
		t.Fatalf("expected one skipped file, got %+v", report.Outcomes)
	}
	if o := report.Outcomes[0]; o.Path != "broken.docx" || o.Reason == "" {
		t.Errorf("unexpected outcome: %+v", o)
	}
	if report.FilesIndexed != 2 {
		t.Errorf("FilesIndexed = %d", report.FilesIndexed)
	}
}

func TestRun_deterministic(t *testing.T) {
	docs := t.TempDir()
	writeFiles(t, docs, map[string]string{
		"guide.md":      "# Setup\n\nInstall the tools. Then run the build.\n\nDone!",
		"notes.txt":     "配置开发环境。运行测试。",
		"z/ignored.txt": "not top level",
	})

	var runs [][]models.IndexEntry
	for _, workers := range []int{1, 1, 4} {
		idx, store := testIndexer(t, WithWorkers(workers))
		if _, err := idx.Run(context.Background(), docs); err != nil {
			t.Fatal(err)
		}
		entries, _ := store.Load()
		runs = append(runs, entries)
	}
	for i := 1; i < len(runs); i++ {
		if !reflect.DeepEqual(runs[0], runs[i]) {
			t.Errorf("run %d differs:\n%q\n%q", i, contents(runs[0]), contents(runs[i]))
		}
	}
	for _, e := range runs[0] {
		if e.Source == "z/ignored.txt" {
			t.Error("default patterns should only match top-level files")
		}
	}
}

func TestRun_patternsAndExcludes(t *testing.T) {
	docs := t.TempDir()
	writeFiles(t, docs, map[string]string{
		"top.md":           "top",
		"sub/deep.md":      "deep",
		"drafts/wip.md":    "wip",
		"sub/skip.txt":     "skipped",
		"sub/private.md":   "private",
		"sub/also/more.md": "more",
	})
	idx, store := testIndexer(t, WithPatterns([]string{"**/*.md"}, []string{"drafts/**", "**/private.md"}))

	if _, err := idx.Run(context.Background(), docs); err != nil {
		t.Fatal(err)
	}
	entries, _ := store.Load()
	var sources []string
	for _, e := range entries {
		sources = append(sources, e.Source)
	}
	want := []string{"sub/also/more.md", "sub/deep.md", "top.md"}
	if !reflect.DeepEqual(sources, want) {
		t.Errorf("sources = %v, want %v", sources, want)
	}
}

func TestRun_sourceLabel(t *testing.T) {
	docs := t.TempDir()
	writeFiles(t, docs, map[string]string{"a.md": "alpha", "b.md": "beta"})
	idx, store := testIndexer(t, WithSourceLabel("开发手册库"))

	if _, err := idx.Run(context.Background(), docs); err != nil {
		t.Fatal(err)
	}
	entries, _ := store.Load()
	for _, e := range entries {
		if e.Source != "开发手册库" {
			t.Errorf("source = %q", e.Source)
		}
	}
}

func TestRun_emptyFileSkipped(t *testing.T) {
	docs := t.TempDir()
	writeFiles(t, docs, map[string]string{"blank.txt": " \n\n ", "ok.txt": "fine"})
	idx, _ := testIndexer(t)

	report, err := idx.Run(context.Background(), docs)
	if err != nil {
		t.Fatal(err)
	}
	if report.Count(models.SkipFile) != 1 || report.Outcomes[0].Path != "blank.txt" {
		t.Errorf("unexpected outcomes: %+v", report.Outcomes)
	}
	if report.Entries != 1 {
		t.Errorf("Entries = %d", report.Entries)
	}
}

func TestRun_spreadsheet(t *testing.T) {
	docs := t.TempDir()
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "Quarterly")
	if err := f.SaveAs(filepath.Join(docs, "data.xlsx")); err != nil {
		t.Fatal(err)
	}
	f.Close()
	idx, store := testIndexer(t, WithPatterns([]string{"*.xlsx"}, nil))

	if _, err := idx.Run(context.Background(), docs); err != nil {
		t.Fatal(err)
	}
	entries, _ := store.Load()
	if len(entries) != 1 || entries[0].Content != "Quarterly" {
		t.Errorf("got %q", contents(entries))
	}
}

// flakyEmbedder fails every chunk containing "FAIL".
type flakyEmbedder struct {
	*embedding.MockEmbedder
	batchCalls int
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(text, "FAIL") {
		return nil, errors.New("model rejected input")
	}
	return f.MockEmbedder.Embed(ctx, text)
}

func (f *flakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.batchCalls++
	for _, t := range texts {
		if strings.Contains(t, "FAIL") {
			return nil, errors.New("batch rejected")
		}
	}
	return f.MockEmbedder.EmbedBatch(ctx, texts)
}

func TestRun_embeddingFailureSkipsChunk(t *testing.T) {
	docs := t.TempDir()
	writeFiles(t, docs, map[string]string{"mixed.txt": "good one\n\nFAIL here\n\nalso good"})
	store := storage.NewIndexStore(filepath.Join(t.TempDir(), "kb.json"), nil)
	emb := &flakyEmbedder{MockEmbedder: embedding.NewMockEmbedder(4)}
	idx := NewIndexer(extract.NewExtractor(), NewChunker(12, 0), emb, store)

	report, err := idx.Run(context.Background(), docs)
	if err != nil {
		t.Fatal(err)
	}
	entries, _ := store.Load()
	for i, e := range entries {
		if strings.Contains(e.Content, "FAIL") {
			t.Errorf("failed chunk stored: %q", e.Content)
		}
		if e.ID != i {
			t.Errorf("ids must stay contiguous, entry %d has id %d", i, e.ID)
		}
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries, got %q", contents(entries))
	}
	if report.Count(models.SkipChunk) != 1 {
		t.Fatalf("expected one skipped chunk, got %+v", report.Outcomes)
	}
	if o := report.Outcomes[0]; o.Path != "mixed.txt" || o.Chunk != 1 || !strings.Contains(o.Reason, "model rejected input") {
		t.Errorf("unexpected outcome: %+v", o)
	}
}

func TestRun_writeFailureIsFatal(t *testing.T) {
	docs := t.TempDir()
	writeFiles(t, docs, map[string]string{"a.txt": "alpha"})
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	store := storage.NewIndexStore(filepath.Join(blocker, "kb.json"), nil)
	idx := NewIndexer(extract.NewExtractor(), nil, embedding.NewMockEmbedder(4), store)

	_, err := idx.Run(context.Background(), docs)
	var writeErr *storage.IndexWriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("expected *storage.IndexWriteError, got %v", err)
	}
}

func TestRun_missingDirectory(t *testing.T) {
	idx, store := testIndexer(t)
	if err := store.Write([]models.IndexEntry{{ID: 0, Content: "keep", Vector: []float32{1, 0, 0, 0}}}); err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Run(context.Background(), filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing directory")
	}
	entries, _ := storage.NewIndexStore(store.Path(), nil).Load()
	if len(entries) != 1 {
		t.Error("previous knowledge base should be kept")
	}
}

func TestRun_cancelled(t *testing.T) {
	docs := t.TempDir()
	writeFiles(t, docs, map[string]string{"a.txt": "alpha"})
	idx, store := testIndexer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := idx.Run(ctx, docs); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := os.Stat(store.Path()); !os.IsNotExist(err) {
		t.Error("cancelled run should not write an artifact")
	}
}

func TestRun_progress(t *testing.T) {
	docs := t.TempDir()
	writeFiles(t, docs, map[string]string{"a.txt": "a", "b.docx": "corrupt", "c.txt": "c"})
	var seen []string
	idx, _ := testIndexer(t, WithProgress(func(done, total int, path string) {
		if total != 3 {
			t.Errorf("total = %d", total)
		}
		if done != len(seen)+1 {
			t.Errorf("done = %d after %d calls", done, len(seen))
		}
		seen = append(seen, path)
	}))
	if _, err := idx.Run(context.Background(), docs); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(seen, []string{"a.txt", "b.docx", "c.txt"}) {
		t.Errorf("progress order = %v", seen)
	}
}

// imageSkipper stands in for a PDF extractor that drops one image.
type imageSkipper struct{}

func (imageSkipper) Extract(_ context.Context, path string, content []byte, observe extract.Observer) (string, error) {
	observe(models.Outcome{Kind: models.SkipImage, Path: path, Page: 2, Image: "Im1", Reason: "ocr failed"})
	return string(content), nil
}

func TestRun_imageOutcomesReported(t *testing.T) {
	docs := t.TempDir()
	writeFiles(t, docs, map[string]string{"scan.md": "page text"})
	ex := extract.NewExtractor()
	ex.Register(models.FormatMarkdown, imageSkipper{})
	store := storage.NewIndexStore(filepath.Join(t.TempDir(), "kb.json"), nil)
	idx := NewIndexer(ex, nil, embedding.NewMockEmbedder(4), store)

	report, err := idx.Run(context.Background(), docs)
	if err != nil {
		t.Fatal(err)
	}
	if report.Count(models.SkipImage) != 1 {
		t.Fatalf("expected one skipped image, got %+v", report.Outcomes)
	}
	if o := report.Outcomes[0]; o.Path != "scan.md" || o.Page != 2 || o.Image != "Im1" {
		t.Errorf("unexpected outcome: %+v", o)
	}
	if report.Entries != 1 {
		t.Errorf("page text should still be indexed, Entries = %d", report.Entries)
	}
}

func TestIndexer_document(t *testing.T) {
	dir := t.TempDir()
	idx, _ := testIndexer(t)

	doc, err := idx.document(dir, "guides/Setup.PDF")
	if err != nil {
		t.Fatalf("document: %v", err)
	}
	want := models.Document{Path: filepath.Join(dir, "guides", "Setup.PDF"), Source: "guides/Setup.PDF", Format: models.FormatPDF}
	if doc != want {
		t.Errorf("document = %+v, want %+v", doc, want)
	}

	labeled, _ := testIndexer(t, WithSourceLabel("开发手册库"))
	if doc, _ := labeled.document(dir, "a.md"); doc.Source != "开发手册库" || doc.Format != models.FormatMarkdown {
		t.Errorf("labeled document = %+v", doc)
	}

	_, err = idx.document(dir, "deck.pptx")
	var extErr *extract.ExtractionError
	if !errors.As(err, &extErr) || !errors.Is(err, extract.ErrUnsupportedFormat) {
		t.Errorf("err = %v, want *ExtractionError wrapping ErrUnsupportedFormat", err)
	}
}

func TestRun_unsupportedPatternMatchSkipped(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.txt": "hello", "deck.pptx": "binary"})
	idx, store := testIndexer(t, WithPatterns([]string{"*"}, nil))

	report, err := idx.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Count(models.SkipFile) != 1 || report.FilesIndexed != 1 {
		t.Errorf("report = %+v, want one skipped file and one indexed", report)
	}
	if got := contents(store.Entries()); !reflect.DeepEqual(got, []string{"hello"}) {
		t.Errorf("entries = %q", got)
	}
}

func TestListFiles(t *testing.T) {
	docs := t.TempDir()
	writeFiles(t, docs, map[string]string{
		"b.md": "b", "a.txt": "a", "c.pdf": "c", "d.docx": "d", "e.go": "e", "sub/f.md": "f",
	})
	got, err := ListFiles(docs, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a.txt", "b.md", "c.pdf", "d.docx"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ListFiles = %v, want %v", got, want)
	}

	if _, err := ListFiles(filepath.Join(docs, "a.txt"), nil, nil); err == nil {
		t.Error("expected error for a file path")
	}
}
