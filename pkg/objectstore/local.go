package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/forecastkit/forecastkit/pkg/identity"
)

// LocalStore serves uploads from a local directory. It backs development
// runs and the upload watcher; keys are paths relative to the root.
type LocalStore struct {
	root string
}

// NewLocalStore creates a store rooted at dir.
func NewLocalStore(dir string) (*LocalStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", abs)
	}
	return &LocalStore{root: abs}, nil
}

// Root returns the absolute root directory of the store.
func (s *LocalStore) Root() string {
	return s.root
}

// Open returns a reader over the file at key.
func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", key, err)
	}
	return f, nil
}

// Fingerprint streams the file through the content hash.
func (s *LocalStore) Fingerprint(ctx context.Context, key string) (string, error) {
	f, err := s.Open(ctx, key)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	fp, err := identity.Fingerprint(f)
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint %s: %w", key, err)
	}
	return fp, nil
}

// URI returns the absolute file path of key.
func (s *LocalStore) URI(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// ExportPrefix returns the directory under which an execution's forecast
// results are written.
func (s *LocalStore) ExportPrefix(datasetGroup, executionID string) string {
	return filepath.Join(s.root, "exports", datasetGroup, executionID) + string(os.PathSeparator)
}
