package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/hyperjump/kbase/internal/models"
	"go.uber.org/zap"
)

// IndexStore owns the knowledge-base artifact. Writes replace the file
// atomically; reads are served from an in-memory copy that only changes on
// Write or an explicit Reload. Returned slices must not be modified.
type IndexStore struct {
	path   string
	logger *zap.Logger

	loadMu  sync.Mutex // serializes disk reads
	mu      sync.RWMutex
	entries []models.IndexEntry
	loaded  bool
}

// NewIndexStore creates a store for the artifact at path. A nil logger disables logging.
func NewIndexStore(path string, logger *zap.Logger) *IndexStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IndexStore{path: path, logger: logger}
}

// Path returns the artifact path.
func (s *IndexStore) Path() string {
	return s.path
}

// Write validates entries and atomically replaces the artifact with them. On
// success the cached copy becomes entries. Any failure is an *IndexWriteError
// and leaves both the previous artifact and the cache as they were.
func (s *IndexStore) Write(entries []models.IndexEntry) error {
	if err := Validate(entries); err != nil {
		return &IndexWriteError{Path: s.path, Err: err}
	}
	if entries == nil {
		entries = []models.IndexEntry{}
	}
	if err := writeAtomic(s.path, entries); err != nil {
		return &IndexWriteError{Path: s.path, Err: err}
	}

	s.mu.Lock()
	s.entries = entries
	s.loaded = true
	s.mu.Unlock()

	s.logger.Info("knowledge base written", zap.String("path", s.path), zap.Int("entries", len(entries)))
	return nil
}

func writeAtomic(path string, entries []models.IndexEntry) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// Load returns the knowledge base, reading the artifact only on the first
// successful call. A missing artifact yields an empty knowledge base. An
// unreadable or corrupt artifact yields an *IndexLoadError and is retried on
// the next call.
func (s *IndexStore) Load() ([]models.IndexEntry, error) {
	s.mu.RLock()
	if s.loaded {
		entries := s.entries
		s.mu.RUnlock()
		return entries, nil
	}
	s.mu.RUnlock()

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	s.mu.RLock()
	if s.loaded {
		entries := s.entries
		s.mu.RUnlock()
		return entries, nil
	}
	s.mu.RUnlock()

	entries, err := s.read()
	if err != nil {
		return nil, err
	}
	s.swap(entries)
	return entries, nil
}

// Reload re-reads the artifact. On success the cached copy is replaced; on
// failure the previous copy stays in place and the error is returned.
func (s *IndexStore) Reload() error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	entries, err := s.read()
	if err != nil {
		s.logger.Warn("knowledge base reload failed, keeping previous copy", zap.String("path", s.path), zap.Error(err))
		return err
	}
	s.swap(entries)
	s.logger.Info("knowledge base reloaded", zap.String("path", s.path), zap.Int("entries", len(entries)))
	return nil
}

// Entries returns the cached knowledge base, or nil if nothing has been loaded yet.
func (s *IndexStore) Entries() []models.IndexEntry {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries
}

// Dimensions returns the vector length of the cached entries, or 0 when empty.
func (s *IndexStore) Dimensions() int {
	entries := s.Entries()
	if len(entries) == 0 {
		return 0
	}
	return len(entries[0].Vector)
}

// Info reports the artifact's presence and size on disk.
func (s *IndexStore) Info() (ArtifactInfo, error) {
	return statArtifact(s.path)
}

func (s *IndexStore) swap(entries []models.IndexEntry) {
	s.mu.Lock()
	s.entries = entries
	s.loaded = true
	s.mu.Unlock()
}

func (s *IndexStore) read() ([]models.IndexEntry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Info("knowledge base not found, starting empty", zap.String("path", s.path))
			return []models.IndexEntry{}, nil
		}
		return nil, &IndexLoadError{Path: s.path, Err: err}
	}
	var entries []models.IndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &IndexLoadError{Path: s.path, Err: fmt.Errorf("parse: %w", err)}
	}
	if err := Validate(entries); err != nil {
		return nil, &IndexLoadError{Path: s.path, Err: err}
	}
	if entries == nil {
		entries = []models.IndexEntry{}
	}
	return entries, nil
}

// Validate checks the knowledge-base invariants: non-blank content, one
// vector length across all entries, and strictly increasing ids.
func Validate(entries []models.IndexEntry) error {
	dim := -1
	for i := range entries {
		e := &entries[i]
		if e.Empty() {
			return fmt.Errorf("entry %d (id %d): empty content", i, e.ID)
		}
		if len(e.Vector) == 0 {
			return fmt.Errorf("entry %d (id %d): empty vector", i, e.ID)
		}
		if dim == -1 {
			dim = len(e.Vector)
		} else if len(e.Vector) != dim {
			return fmt.Errorf("entry %d (id %d): vector has %d dimensions, want %d", i, e.ID, len(e.Vector), dim)
		}
		if i > 0 && e.ID <= entries[i-1].ID {
			return fmt.Errorf("entry %d: id %d not greater than previous id %d", i, e.ID, entries[i-1].ID)
		}
	}
	return nil
}
