// Package file provides file-based persistence for requests and executions.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/dukex/querygate/pkg/persistence"
)

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var errInvalidID = errors.New("invalid identifier")

// Persistence implements persistence.Persistence with one JSON file per record.
type Persistence struct {
	root          string
	mu            sync.Mutex
	requestRepo   *RequestRepository
	executionRepo *ExecutionRepository
}

// NewPersistence creates a file persistence rooted at root. A file:// prefix is accepted.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	for _, dir := range []string{requestsDir, executionsDir} {
		if err := os.MkdirAll(filepath.Join(cleanRoot, dir), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}

	p := &Persistence{root: cleanRoot}
	p.requestRepo = &RequestRepository{p: p}
	p.executionRepo = &ExecutionRepository{p: p}

	return p, nil
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) RequestRepository() persistence.RequestRepository {
	return fp.requestRepo
}

func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

func (fp *Persistence) path(dir, id string) (string, error) {
	if !validID.MatchString(id) {
		return "", fmt.Errorf("%w: %q", errInvalidID, id)
	}

	return filepath.Join(fp.root, dir, id+".json"), nil
}

func (fp *Persistence) read(dir, id string, target any) (bool, error) {
	path, err := fp.path(dir, id)
	if err != nil {
		return false, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return true, nil
}

func (fp *Persistence) write(dir, id string, value any) error {
	path, err := fp.path(dir, id)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", id, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return os.Rename(tmp, path)
}

func (fp *Persistence) ids(dir string) ([]string, error) {
	files, err := fs.Glob(os.DirFS(filepath.Join(fp.root, dir)), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s files: %w", dir, err)
	}

	ids := make([]string, 0, len(files))
	for _, f := range files {
		ids = append(ids, strings.TrimSuffix(f, ".json"))
	}

	return ids, nil
}
