package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// GCSStore keeps artifacts in a Google Cloud Storage bucket.
type GCSStore struct {
	client    *gcs.Client
	bucket    string
	prefix    string
	publicURL string
}

// GCSStoreConfig holds configuration for GCSStore.
type GCSStoreConfig struct {
	Bucket    string
	Prefix    string
	PublicURL string
}

// NewGCSStore creates a GCS-backed store using application default credentials.
func NewGCSStore(ctx context.Context, cfg GCSStoreConfig) (*GCSStore, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	publicURL := cfg.PublicURL
	if publicURL == "" {
		publicURL = "https://storage.googleapis.com/" + cfg.Bucket
	}

	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}

	return &GCSStore{
		client:    client,
		bucket:    cfg.Bucket,
		prefix:    prefix,
		publicURL: strings.TrimSuffix(publicURL, "/"),
	}, nil
}

func (s *GCSStore) Upload(ctx context.Context, name string, content []byte, contentType string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}

	key := s.prefix + name

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(content); err != nil {
		_ = w.Close()

		return "", fmt.Errorf("gcs write failed: %w", err)
	}

	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close failed: %w", err)
	}

	return s.publicURL + "/" + key, nil
}

func (s *GCSStore) Exists(ctx context.Context, objectURL string) (bool, error) {
	key, err := keyFromURL(s.publicURL, objectURL)
	if err != nil {
		return false, err
	}

	_, err = s.client.Bucket(s.bucket).Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("gcs attrs failed: %w", err)
	}

	return true, nil
}

func (s *GCSStore) Delete(ctx context.Context, objectURL string) error {
	key, err := keyFromURL(s.publicURL, objectURL)
	if err != nil {
		return err
	}

	err = s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete failed: %w", err)
	}

	return nil
}

// Close closes the GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
