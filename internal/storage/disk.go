package storage

import (
	"errors"
	"io/fs"
	"os"
	"time"
)

// ArtifactInfo describes the artifact file on disk.
type ArtifactInfo struct {
	Path      string    `json:"path"`
	Exists    bool      `json:"exists"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time,omitempty"`
}

// statArtifact returns size and modification time of path. A missing file is
// reported with Exists false and no error.
func statArtifact(path string) (ArtifactInfo, error) {
	info := ArtifactInfo{Path: path}
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return info, nil
		}
		return info, err
	}
	if st.IsDir() {
		return info, errors.New("artifact path is a directory")
	}
	info.Exists = true
	info.SizeBytes = st.Size()
	info.ModTime = st.ModTime()
	return info, nil
}
