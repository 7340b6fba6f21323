// Package scripts stores uploaded script artifacts on local disk.
package scripts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	// DefaultMaxSize is the largest script accepted by Save.
	DefaultMaxSize = 1 << 20

	// Extension is the only accepted script extension.
	Extension = ".js"
)

var (
	ErrScriptNotFound   = errors.New("script file not found")
	ErrInvalidExtension = errors.New("only .js scripts are accepted")
	ErrScriptTooLarge   = errors.New("script exceeds maximum size")
	ErrEmptyScript      = errors.New("script is empty")
	ErrInvalidReference = errors.New("invalid script reference")
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// Store keeps scripts under a single directory. References are file names
// relative to that directory.
type Store struct {
	root    string
	maxSize int64
}

// NewStore creates the directory when missing.
func NewStore(root string, maxSize int64) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scripts dir: %w", err)
	}

	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create scripts dir: %w", err)
	}

	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	return &Store{root: abs, maxSize: maxSize}, nil
}

// Save validates and writes an uploaded script, returning its reference.
func (s *Store) Save(filename string, content []byte) (string, error) {
	if !strings.EqualFold(filepath.Ext(filename), Extension) {
		return "", fmt.Errorf("%w: %s", ErrInvalidExtension, filename)
	}

	if len(content) == 0 {
		return "", ErrEmptyScript
	}

	if int64(len(content)) > s.maxSize {
		return "", fmt.Errorf("%w: %d bytes", ErrScriptTooLarge, s.maxSize)
	}

	base := unsafeNameChars.ReplaceAllString(strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)), "_")
	ref := uuid.NewString() + "_" + base + Extension

	if err := os.WriteFile(filepath.Join(s.root, ref), content, 0o640); err != nil {
		return "", fmt.Errorf("failed to write script: %w", err)
	}

	return ref, nil
}

// Path resolves a reference to a file path inside the store.
func (s *Store) Path(ref string) (string, error) {
	if ref == "" || ref != filepath.Base(ref) || strings.Contains(ref, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}

	return filepath.Join(s.root, ref), nil
}

// Exists reports whether ref points to a stored script.
func (s *Store) Exists(ref string) bool {
	path, err := s.Path(ref)
	if err != nil {
		return false
	}

	info, err := os.Stat(path)

	return err == nil && info.Mode().IsRegular()
}

// Read returns the script source.
func (s *Store) Read(ref string) ([]byte, error) {
	path, err := s.Path(ref)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrScriptNotFound
		}

		return nil, fmt.Errorf("failed to read script: %w", err)
	}

	return data, nil
}
