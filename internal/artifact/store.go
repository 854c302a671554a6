// Package artifact names and locates the versioned flat files every stage
// reads and writes under the data root.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/artharvest/internal/record"
)

// BatchesDir is the subdirectory holding partial batch files.
const BatchesDir = "data_batches"

// ServiceDataDir is the subdirectory receiving published artifacts.
const ServiceDataDir = "service_data"

// Config captures the parameters for the artifact store.
type Config struct {
	// RootDir is the base directory for every artifact.
	RootDir string
	// Version prefixes every artifact file name.
	Version string
}

// Store resolves artifact names to paths under a root directory.
type Store struct {
	root    string
	version string
}

// New creates a store rooted at cfg.RootDir, creating the directory and
// verifying it is writable.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.RootDir) == "" {
		return nil, fmt.Errorf("root directory is required")
	}
	if strings.TrimSpace(cfg.Version) == "" {
		return nil, fmt.Errorf("data version is required")
	}

	info, err := os.Stat(cfg.RootDir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if mkErr := os.MkdirAll(cfg.RootDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create root directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat root directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("root directory path is not a directory")
	}

	testFile := filepath.Join(cfg.RootDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("root directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("clean up test file: %w", err)
	}

	return &Store{root: cfg.RootDir, version: cfg.Version}, nil
}

// Root returns the base directory.
func (s *Store) Root() string {
	return s.root
}

// Version returns the data version prefix.
func (s *Store) Version() string {
	return s.version
}

// FileName returns "{version}_{logical}".
func (s *Store) FileName(logical string) string {
	return s.version + "_" + logical
}

// Path returns the absolute location of a logical artifact.
func (s *Store) Path(logical string) (string, error) {
	return s.within(s.root, s.FileName(logical))
}

// MustPath is Path for names known to be safe at compile time.
func (s *Store) MustPath(logical string) string {
	p, err := s.Path(logical)
	if err != nil {
		panic(err)
	}
	return p
}

// BatchDir returns the directory holding batch files for one crawl.
func (s *Store) BatchDir(crawl string) (string, error) {
	return s.within(filepath.Join(s.root, BatchesDir), s.FileName(crawl))
}

// ServiceDir returns the service-data publication directory.
func (s *Store) ServiceDir() string {
	return filepath.Join(s.root, ServiceDataDir)
}

// Exists reports whether the logical artifact is present on disk.
func (s *Store) Exists(logical string) (bool, error) {
	p, err := s.Path(logical)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat %s: %w", p, err)
	}
}

// Read loads a logical artifact as a table.
func (s *Store) Read(logical string) (*record.Table, error) {
	p, err := s.Path(logical)
	if err != nil {
		return nil, err
	}
	return record.ReadCSV(p)
}

// Write stores a table as a logical artifact.
func (s *Store) Write(logical string, t *record.Table) (string, error) {
	p, err := s.Path(logical)
	if err != nil {
		return "", err
	}
	if err := t.WriteCSV(p); err != nil {
		return "", err
	}
	return p, nil
}

func (s *Store) within(base, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("artifact name is required")
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("path traversal detected in %q", name)
	}
	full := filepath.Join(base, name)
	cleanBase := filepath.Clean(base)
	if !strings.HasPrefix(filepath.Clean(full), cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected in %q", name)
	}
	return full, nil
}
