// Package storage keeps the files referenced by file and image fields.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// DefaultRoot is the directory files are stored under when none is configured
const DefaultRoot = "media"

// ErrInvalidPath is returned for paths escaping the storage root
var ErrInvalidPath = errors.New("invalid storage path")

// Storage stores file contents and hands back their relative paths
type Storage interface {
	Save(folder, name string, data []byte) (string, error)
	Delete(relPath string) error
	Exists(relPath string) (bool, error)
	URL(relPath string) string
}

// Local stores files on a filesystem below a root directory
type Local struct {
	fs      afero.Fs
	root    string
	baseURL string
}

// Option configures Local
type Option func(*Local)

// WithFs replaces the filesystem, typically with afero.NewMemMapFs in tests
func WithFs(fs afero.Fs) Option {
	return func(l *Local) {
		l.fs = fs
	}
}

// WithBaseURL sets the prefix URL returns
func WithBaseURL(base string) Option {
	return func(l *Local) {
		l.baseURL = strings.TrimSuffix(base, "/")
	}
}

// NewLocal creates a local storage rooted at root
func NewLocal(root string, opts ...Option) *Local {
	if root == "" {
		root = DefaultRoot
	}
	l := &Local{fs: afero.NewOsFs(), root: root, baseURL: "/" + strings.Trim(filepath.ToSlash(root), "/")}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Root returns the storage root
func (l *Local) Root() string {
	return l.root
}

// Save writes data under folder with a fresh name keeping the extension of
// name, and returns the path relative to the root.
func (l *Local) Save(folder, name string, data []byte) (string, error) {
	folder = strings.Trim(path.Clean("/"+filepath.ToSlash(folder)), "/")
	ext := strings.ToLower(path.Ext(name))
	rel := path.Join(folder, strings.ReplaceAll(uuid.NewString(), "-", "")+ext)

	full, err := l.resolve(rel)
	if err != nil {
		return "", err
	}
	if err := l.fs.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", folder, err)
	}
	if err := afero.WriteFile(l.fs, full, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return rel, nil
}

// Delete removes a stored file. Deleting a missing file is not an error.
func (l *Local) Delete(relPath string) error {
	full, err := l.resolve(relPath)
	if err != nil {
		return err
	}
	if err := l.fs.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", relPath, err)
	}
	return nil
}

// Exists reports whether a stored file exists
func (l *Local) Exists(relPath string) (bool, error) {
	full, err := l.resolve(relPath)
	if err != nil {
		return false, err
	}
	return afero.Exists(l.fs, full)
}

// Open reads a stored file
func (l *Local) Open(relPath string) ([]byte, error) {
	full, err := l.resolve(relPath)
	if err != nil {
		return nil, err
	}
	return afero.ReadFile(l.fs, full)
}

// URL returns the public URL of a stored file
func (l *Local) URL(relPath string) string {
	return l.baseURL + "/" + strings.TrimPrefix(filepath.ToSlash(relPath), "/")
}

func (l *Local) resolve(relPath string) (string, error) {
	clean := path.Clean("/" + filepath.ToSlash(relPath))
	if clean == "/" || strings.Contains(relPath, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, relPath)
	}
	return filepath.Join(l.root, filepath.FromSlash(clean[1:])), nil
}
