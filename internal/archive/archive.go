// Package archive keeps snappy-compressed copies of ingested source files.
//
// Archiving is a best-effort post-ingest step: callers log failures and move
// on, the run never fails because an archive write did.
package archive

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
)

// Archiver writes compressed copies of source files under a root directory,
// preserving the file identifier's path structure.
type Archiver struct {
	dir string
}

// New returns an archiver rooted at dir. The directory is created lazily on
// the first store.
func New(dir string) *Archiver {
	return &Archiver{dir: dir}
}

// Store compresses content and writes it to <dir>/<fileID>.snappy.
func (a *Archiver) Store(fileID string, content []byte) error {
	path := filepath.Join(a.dir, filepath.FromSlash(fileID)+".snappy")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("archive: failed to create directory for %s: %w", fileID, err)
	}

	compressed := snappy.Encode(nil, content)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o644); err != nil {
		return fmt.Errorf("archive: failed to write %s: %w", fileID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("archive: failed to finalize %s: %w", fileID, err)
	}
	return nil
}

// Load decompresses a previously archived file.
func (a *Archiver) Load(fileID string) ([]byte, error) {
	path := filepath.Join(a.dir, filepath.FromSlash(fileID)+".snappy")
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("archive: failed to read %s: %w", fileID, err)
	}
	content, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("archive: failed to decompress %s: %w", fileID, err)
	}
	return content, nil
}
