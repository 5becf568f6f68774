package indexer

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/kbase/internal/embedding"
	"github.com/hyperjump/kbase/internal/extract"
	"github.com/hyperjump/kbase/internal/models"
	"github.com/hyperjump/kbase/internal/storage"
	"go.uber.org/zap"
)

// ProgressFunc is called after each file is processed, in listing order.
type ProgressFunc func(done, total int, path string)

// Indexer rebuilds the knowledge base from a directory of documents.
type Indexer struct {
	extractor   *extract.Extractor
	chunker     *Chunker
	embedder    embedding.Embedder
	store       storage.Writer
	patterns    []string
	excludes    []string
	workers     int
	sourceLabel string
	progress    ProgressFunc
	logger      *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithPatterns sets the doublestar include and exclude patterns used to select files.
func WithPatterns(patterns, excludes []string) IndexerOption {
	return func(idx *Indexer) {
		if len(patterns) > 0 {
			idx.patterns = patterns
		}
		idx.excludes = excludes
	}
}

// WithWorkers sets how many files are extracted concurrently.
func WithWorkers(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.workers = n
		}
	}
}

// WithSourceLabel records label as the source of every entry instead of the file path.
func WithSourceLabel(label string) IndexerOption {
	return func(idx *Indexer) { idx.sourceLabel = label }
}

// WithProgress sets a callback invoked as files complete.
func WithProgress(fn ProgressFunc) IndexerOption {
	return func(idx *Indexer) { idx.progress = fn }
}

// NewIndexer creates an indexer with the given dependencies.
// A nil chunker uses the default size and overlap.
func NewIndexer(
	extractor *extract.Extractor,
	chunker *Chunker,
	embedder embedding.Embedder,
	store storage.Writer,
	opts ...IndexerOption,
) *Indexer {
	if chunker == nil {
		chunker = NewChunker(DefaultChunkSize, DefaultChunkOverlap)
	}
	idx := &Indexer{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		patterns:  DefaultPatterns,
		workers:   1,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// extraction is the result of reading one file.
type extraction struct {
	doc      models.Document
	text     string
	outcomes []models.Outcome
	err      error
}

// Run extracts, chunks and embeds every matching file under dir and replaces
// the knowledge base with the result. Files, images and chunks that fail are
// skipped and recorded in the report. Listing, cancellation and write failures
// are returned as errors, in which case the previous knowledge base is kept.
func (idx *Indexer) Run(ctx context.Context, dir string) (*Report, error) {
	report := &Report{
		RunID:     uuid.New().String(),
		Dir:       dir,
		StartedAt: time.Now(),
		Outcomes:  []models.Outcome{},
	}
	logger := idx.logger.With(zap.String("run_id", report.RunID))
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	files, err := ListFiles(dir, idx.patterns, idx.excludes)
	if err != nil {
		return report, err
	}
	report.Files = len(files)
	logger.Info("ingestion started", zap.String("dir", dir), zap.Int("files", len(files)))

	extracted := idx.extractAll(ctx, dir, files)

	entries := make([]models.IndexEntry, 0)
	for i, rel := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res := extracted[i]
		for _, o := range res.outcomes {
			report.add(o)
		}
		if res.err != nil {
			if errors.Is(res.err, context.Canceled) || errors.Is(res.err, context.DeadlineExceeded) {
				return report, res.err
			}
			logger.Warn("skipping file", zap.String("path", rel), zap.Error(res.err))
			report.add(models.Outcome{Kind: models.SkipFile, Path: rel, Reason: res.err.Error()})
			idx.reportProgress(i+1, len(files), rel)
			continue
		}

		chunks := idx.chunker.Split(Preprocess(res.text), res.doc.Source)
		if len(chunks) == 0 {
			logger.Warn("skipping file without text", zap.String("path", rel))
			report.add(models.Outcome{Kind: models.SkipFile, Path: rel, Reason: "no text extracted"})
			idx.reportProgress(i+1, len(files), rel)
			continue
		}
		report.Chunks += len(chunks)

		vectors, failures, err := idx.embedChunks(ctx, chunks)
		if err != nil {
			return report, err
		}
		added := 0
		for j, c := range chunks {
			if vectors[j] == nil {
				continue
			}
			entries = append(entries, models.IndexEntry{
				ID:      len(entries),
				Content: c.Content,
				Vector:  vectors[j],
				Source:  c.Source,
			})
			added++
		}
		for _, embErr := range failures {
			logger.Warn("skipping chunk", zap.String("path", rel), zap.Int("chunk", embErr.Index), zap.Error(embErr.Err))
			report.add(models.Outcome{Kind: models.SkipChunk, Path: rel, Chunk: embErr.Index, Reason: embErr.Error()})
		}
		if added > 0 {
			report.FilesIndexed++
		}
		logger.Debug("file indexed", zap.String("path", rel), zap.Int("chunks", len(chunks)), zap.Int("entries", added))
		idx.reportProgress(i+1, len(files), rel)
	}

	if err := idx.store.Write(entries); err != nil {
		logger.Error("failed to write knowledge base", zap.Error(err))
		return report, err
	}
	report.Entries = len(entries)
	if len(entries) > 0 {
		report.Dimensions = len(entries[0].Vector)
	}
	logger.Info("ingestion finished",
		zap.Int("files_indexed", report.FilesIndexed),
		zap.Int("entries", report.Entries),
		zap.Int("skipped", len(report.Outcomes)))
	return report, nil
}

// extractAll reads files on up to idx.workers goroutines. Results are indexed
// by position so the caller consumes them in listing order.
func (idx *Indexer) extractAll(ctx context.Context, dir string, files []string) []extraction {
	results := make([]extraction, len(files))
	workers := idx.workers
	if workers > len(files) {
		workers = len(files)
	}
	if workers <= 1 {
		for i, rel := range files {
			results[i] = idx.extractOne(ctx, dir, rel)
		}
		return results
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = idx.extractOne(ctx, dir, files[i])
			}
		}()
	}
	for i := range files {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

func (idx *Indexer) extractOne(ctx context.Context, dir, rel string) extraction {
	if err := ctx.Err(); err != nil {
		return extraction{err: err}
	}
	var res extraction
	res.doc, res.err = idx.document(dir, rel)
	if res.err != nil {
		return res
	}
	observe := func(o models.Outcome) {
		o.Path = rel
		res.outcomes = append(res.outcomes, o)
	}
	res.text, res.err = idx.extractor.ExtractDocument(ctx, res.doc, observe)
	return res
}

// document describes the listed file rel, detecting its format once.
func (idx *Indexer) document(dir, rel string) (models.Document, error) {
	doc := models.Document{
		Path:   filepath.Join(dir, filepath.FromSlash(rel)),
		Source: idx.sourceFor(rel),
	}
	format, err := extract.DetectFormat(rel)
	if err != nil {
		return doc, &extract.ExtractionError{Path: doc.Path, Err: err}
	}
	doc.Format = format
	return doc, nil
}

// embedChunks vectorizes chunks in one batch. If the batch fails, each chunk is
// retried alone; chunks that still fail are left nil and returned as errors.
func (idx *Indexer) embedChunks(ctx context.Context, chunks []models.Chunk) ([][]float32, []*EmbeddingError, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := idx.embedder.EmbedBatch(ctx, texts)
	if err == nil && len(vectors) == len(chunks) {
		return vectors, nil, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, nil, ctxErr
	}
	idx.logger.Debug("batch embedding failed, embedding chunks one by one", zap.Error(err))

	var failures []*EmbeddingError
	vectors = make([][]float32, len(chunks))
	for i, text := range texts {
		v, err := idx.embedder.Embed(ctx, text)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, ctxErr
			}
			failures = append(failures, &EmbeddingError{Source: chunks[i].Source, Index: chunks[i].Index, Err: err})
			continue
		}
		vectors[i] = v
	}
	return vectors, failures, nil
}

func (idx *Indexer) sourceFor(rel string) string {
	if idx.sourceLabel != "" {
		return idx.sourceLabel
	}
	return rel
}

func (idx *Indexer) reportProgress(done, total int, path string) {
	if idx.progress != nil {
		idx.progress(done, total, path)
	}
}
