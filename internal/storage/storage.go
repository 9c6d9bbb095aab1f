package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/spf13/afero"
)

var (
	// ErrNotFound indicates the requested config file does not exist in the storage.
	ErrNotFound = errors.New("file not found")
	// ErrInvalidName indicates a file name that escapes the storage root or is empty.
	ErrInvalidName = errors.New("file name must be a non-empty relative path")
)

// Storage provides read access to release image config files by name.
type Storage interface {
	ReadFile(name string) ([]byte, error)
}

// DirStorage reads config files from a repository directory on disk.
type DirStorage struct {
	root string
	fs   afero.Fs
}

// NewDirStorage returns a read-only storage rooted at dir.
func NewDirStorage(dir string) *DirStorage {
	return &DirStorage{
		root: dir,
		fs:   afero.NewReadOnlyFs(afero.NewBasePathFs(afero.NewOsFs(), dir)),
	}
}

// Root returns the directory the storage reads from.
func (s *DirStorage) Root() string {
	return s.root
}

// ReadFile returns the contents of name relative to the storage root.
func (s *DirStorage) ReadFile(name string) ([]byte, error) {
	return readFile(s.fs, name)
}

// MemoryStorage keeps config files in memory. It backs validation requests
// that carry file contents inline and is safe for concurrent use.
type MemoryStorage struct {
	fs afero.Fs
}

// NewMemoryStorage returns an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{fs: afero.NewMemMapFs()}
}

// SetFile stores data under name, replacing any previous content.
func (s *MemoryStorage) SetFile(name string, data []byte) error {
	clean, err := cleanName(name)
	if err != nil {
		return err
	}
	if err := afero.WriteFile(s.fs, clean, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", clean, err)
	}
	return nil
}

// ReadFile returns a copy of the content stored under name.
func (s *MemoryStorage) ReadFile(name string) ([]byte, error) {
	return readFile(s.fs, name)
}

func readFile(fsys afero.Fs, name string) ([]byte, error) {
	clean, err := cleanName(name)
	if err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(fsys, clean)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, clean)
		}
		return nil, fmt.Errorf("read %s: %w", clean, err)
	}
	return data, nil
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || path.IsAbs(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	clean := path.Clean(name)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return clean, nil
}
