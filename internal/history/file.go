package history

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// DefaultPath is where the file backend keeps history unless configured.
const DefaultPath = "performance-results/performance-history.json"

const lockRetryDelay = 50 * time.Millisecond

// FileBackend stores the document as a JSON file. Writes go through a
// temporary file and a rename, so readers only ever see complete documents.
// A sibling ".lock" file serializes writers across processes.
type FileBackend struct {
	Path string
}

// NewFileBackend returns a backend for path, or DefaultPath when empty.
func NewFileBackend(path string) *FileBackend {
	if path == "" {
		path = DefaultPath
	}
	return &FileBackend{Path: path}
}

func (f *FileBackend) Read(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return data, nil
}

func (f *FileBackend) Write(ctx context.Context, data []byte) error {
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp history file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close history: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod history: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}

// Lock takes an exclusive advisory lock on Path + ".lock".
func (f *FileBackend) Lock(ctx context.Context) (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	fl := flock.New(f.Path + ".lock")
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("lock history: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("lock history: %s is held by another process", fl.Path())
	}
	return fl.Unlock, nil
}

// Quarantine renames an unreadable document out of the way and returns its
// new location.
func (f *FileBackend) Quarantine(ctx context.Context) (string, error) {
	dest := fmt.Sprintf("%s.corrupt-%s", f.Path, time.Now().UTC().Format("20060102T150405.000000000"))
	if err := os.Rename(f.Path, dest); err != nil {
		return "", fmt.Errorf("quarantine history: %w", err)
	}
	return dest, nil
}
