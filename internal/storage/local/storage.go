package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// Storage keeps variants on the local filesystem under a root directory.
// Relative directories are cleaned against the root, so ".." segments can
// never reach outside of it.
type Storage struct {
	root string
}

// NewStorage creates the root directory if needed and returns a Storage
// rooted at it.
func NewStorage(root string) (*Storage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	return &Storage{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *Storage) Root() string {
	return s.root
}

// Save writes data to dir/name, creating dir if it does not exist.
// The file is written to a hidden temporary name first and renamed into
// place, so concurrent listers never observe a partial variant.
// It returns the absolute path of the written file.
func (s *Storage) Save(_ context.Context, dir, name string, data []byte) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}

	target := s.resolve(dir)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(target, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("failed to chmod file: %w", err)
	}

	dst := filepath.Join(target, name)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	return dst, nil
}

// List returns the names of the regular files directly inside dir.
// A missing directory lists as empty.
func (s *Storage) List(_ context.Context, dir string) ([]string, error) {
	entries, err := os.ReadDir(s.resolve(dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}

	return names, nil
}

// Delete removes dir/name. A file that is already gone is not an error.
func (s *Storage) Delete(_ context.Context, dir, name string) error {
	if err := checkName(name); err != nil {
		return err
	}

	err := os.Remove(filepath.Join(s.resolve(dir), name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

func (s *Storage) resolve(dir string) string {
	return filepath.Join(s.root, filepath.FromSlash(path.Clean("/"+filepath.ToSlash(dir))))
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return fmt.Errorf("invalid file name %q", name)
	}
	return nil
}
