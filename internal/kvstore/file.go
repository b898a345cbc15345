package kvstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// File stores each key as a file under a directory. Writes go to a temporary
// file in the same directory and are renamed into place.
type File struct {
	dir string
}

// NewFile creates a file store rooted at dir, creating the directory if needed.
func NewFile(dir string) (*File, error) {
	if dir == "" {
		return nil, errors.New("kvstore: file directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("kvstore: create directory %s: %w", dir, err)
	}
	return &File{dir: dir}, nil
}

// Dir returns the root directory.
func (f *File) Dir() string {
	return f.dir
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, url.PathEscape(key)+".json")
}

// Get implements Store.
func (f *File) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kvstore: read %s: %w", key, err)
	}
	return string(data), true, nil
}

// Set implements Store.
func (f *File) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp := filepath.Join(f.dir, ".tmp-"+uuid.NewString())
	if err := writeSynced(tmp, value); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("kvstore: write %s: %w", key, err)
	}
	if err := os.Rename(tmp, f.path(key)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("kvstore: rename %s: %w", key, err)
	}
	return nil
}

// writeSynced writes value to a new file at path and flushes it to disk
// before closing, so a rename never exposes a partially written file.
func writeSynced(path, value string) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := file.WriteString(value); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// HealthCheck verifies the directory is still present.
func (f *File) HealthCheck(context.Context) error {
	info, err := os.Stat(f.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("kvstore: %s is not a directory", f.dir)
	}
	return nil
}
