package cmd

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/dukex/querygate/pkg/storage"
)

// StorageConfig selects and configures the artifact store.
type StorageConfig struct {
	// URL is file:///dir, s3://bucket/prefix or gs://bucket/prefix. A bare path is a directory.
	URL        string
	PublicURL  string
	S3Region   string
	S3Endpoint string
}

// NewStore builds the artifact store. The returned close function releases
// backend clients and is never nil.
func NewStore(ctx context.Context, cfg StorageConfig) (storage.Store, func() error, error) {
	noop := func() error { return nil }

	if !strings.Contains(cfg.URL, "://") {
		return newFileStore(cfg.URL, cfg.PublicURL)
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, noop, fmt.Errorf("invalid storage url: %w", err)
	}

	prefix := strings.Trim(u.Path, "/")

	switch u.Scheme {
	case "file":
		return newFileStore(u.Path, cfg.PublicURL)
	case "s3":
		store, err := storage.NewS3Store(ctx, storage.S3StoreConfig{
			Bucket:    u.Host,
			Prefix:    prefix,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PublicURL: cfg.PublicURL,
		})
		if err != nil {
			return nil, noop, err
		}

		return store, noop, nil
	case "gs":
		store, err := storage.NewGCSStore(ctx, storage.GCSStoreConfig{
			Bucket:    u.Host,
			Prefix:    prefix,
			PublicURL: cfg.PublicURL,
		})
		if err != nil {
			return nil, noop, err
		}

		return store, store.Close, nil
	default:
		return nil, noop, fmt.Errorf("unsupported storage scheme %q", u.Scheme)
	}
}

func newFileStore(dir, publicURL string) (storage.Store, func() error, error) {
	noop := func() error { return nil }

	store, err := storage.NewFileStore(dir, publicURL)
	if err != nil {
		return nil, noop, err
	}

	return store, noop, nil
}

// LocalFileStore returns store as a *storage.FileStore when its URLs are file:// URLs.
func LocalFileStore(store storage.Store) (*storage.FileStore, bool) {
	fileStore, ok := store.(*storage.FileStore)

	return fileStore, ok
}
