package storage

import "fmt"

// IndexWriteError reports a failure to persist the artifact. The previous
// artifact, if any, is left untouched.
type IndexWriteError struct {
	Path string
	Err  error
}

func (e *IndexWriteError) Error() string {
	return fmt.Sprintf("write index %s: %v", e.Path, e.Err)
}

func (e *IndexWriteError) Unwrap() error { return e.Err }

// IndexLoadError reports an artifact that exists but cannot be read or parsed.
type IndexLoadError struct {
	Path string
	Err  error
}

func (e *IndexLoadError) Error() string {
	return fmt.Sprintf("load index %s: %v", e.Path, e.Err)
}

func (e *IndexLoadError) Unwrap() error { return e.Err }
