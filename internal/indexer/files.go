package indexer

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPatterns select the top-level documents of the supported formats.
var DefaultPatterns = []string{"*.md", "*.txt", "*.docx", "*.pdf"}

// ListFiles returns the regular files under dir whose slash-separated relative
// path matches an include pattern and no exclude pattern, sorted.
func ListFiles(dir string, patterns, excludes []string) ([]string, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && matchAny(excludes, rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !matchAny(patterns, rel) || matchAny(excludes, rel) {
			return nil
		}
		// Resolve symlinks so only regular files are read.
		finfo, err := os.Stat(path)
		if err != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

func matchAny(patterns []string, path string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, path); err == nil && ok {
			return true
		}
	}
	return false
}
