// Package storage provides object storage for offloaded query results.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	// ErrForeignURL indicates a URL that was not produced by the store.
	ErrForeignURL = errors.New("url does not belong to this store")

	// ErrInvalidName indicates an object name that is empty or escapes its folder.
	ErrInvalidName = errors.New("invalid object name")
)

// Store uploads artifacts and answers liveness probes for the URLs it returned.
type Store interface {
	// Upload writes content under name and returns its retrieval URL.
	Upload(ctx context.Context, name string, content []byte, contentType string) (string, error)
	// Exists reports whether the object behind a previously returned URL is still present.
	Exists(ctx context.Context, objectURL string) (bool, error)
	// Delete removes the object behind a URL. Missing objects are not an error.
	Delete(ctx context.Context, objectURL string) error
}

func validateName(name string) error {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "..") || strings.Contains(name, "\\") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	return nil
}

func keyFromURL(base, objectURL string) (string, error) {
	prefix := strings.TrimSuffix(base, "/") + "/"
	if !strings.HasPrefix(objectURL, prefix) {
		return "", fmt.Errorf("%w: %s", ErrForeignURL, objectURL)
	}

	key := strings.TrimPrefix(objectURL, prefix)
	if err := validateName(key); err != nil {
		return "", err
	}

	return key, nil
}

// FileStore keeps artifacts on the local filesystem. Objects are addressed by
// publicURL + "/" + name; without a public URL a file:// URL is used.
type FileStore struct {
	baseDir   string
	publicURL string
	mu        sync.RWMutex
}

// NewFileStore creates a filesystem-backed store rooted at baseDir.
func NewFileStore(baseDir, publicURL string) (*FileStore, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve artifact dir: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure artifact dir: %w", err)
	}

	if publicURL == "" {
		publicURL = (&url.URL{Scheme: "file", Path: abs}).String()
	}

	return &FileStore{baseDir: abs, publicURL: strings.TrimSuffix(publicURL, "/")}, nil
}

// Dir returns the directory objects are written to.
func (s *FileStore) Dir() string {
	return s.baseDir
}

// Path maps a URL returned by Upload to its file path.
func (s *FileStore) Path(objectURL string) (string, error) {
	key, err := keyFromURL(s.publicURL, objectURL)
	if err != nil {
		return "", err
	}

	return filepath.Join(s.baseDir, filepath.FromSlash(key)), nil
}

func (s *FileStore) Upload(_ context.Context, name string, content []byte, _ string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.baseDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact folder: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("failed to commit artifact: %w", err)
	}

	return s.publicURL + "/" + name, nil
}

func (s *FileStore) Exists(_ context.Context, objectURL string) (bool, error) {
	path, err := s.Path(objectURL)
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to stat artifact: %w", err)
	}

	return true, nil
}

func (s *FileStore) Delete(_ context.Context, objectURL string) error {
	path, err := s.Path(objectURL)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}

	return nil
}
