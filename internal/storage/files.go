package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileStore keeps the original uploaded bytes on disk, keyed by content
// hash so byte-identical uploads share one file.
type FileStore struct {
	dir string
}

// NewFileStore creates (if needed) and wraps the blob directory.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating file store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Save writes the stream under the given hash. Saving an existing hash is
// a no-op.
func (f *FileStore) Save(hash string, r io.Reader) error {
	path := f.path(hash)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	tmp, err := os.CreateTemp(f.dir, "upload-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("writing blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("storing blob: %w", err)
	}
	return nil
}

// Open returns a reader over the stored bytes for hash.
func (f *FileStore) Open(hash string) (io.ReadCloser, error) {
	file, err := os.Open(f.path(hash))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return file, err
}

// Remove deletes the stored bytes for hash. Removing a missing blob is not
// an error.
func (f *FileStore) Remove(hash string) error {
	err := os.Remove(f.path(hash))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (f *FileStore) path(hash string) string {
	return filepath.Join(f.dir, hash)
}
