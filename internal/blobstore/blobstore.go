// Package blobstore stores uploaded files and product snapshots either on
// local disk or in an S3-compatible bucket.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"shoe-store/config"
)

// Backend names
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// ErrInvalidKey is returned for keys that are empty or escape the store root.
var ErrInvalidKey = errors.New("invalid object key")

// Store puts objects and returns their public URL.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Backend() string
}

// cleanKey normalizes a slash-separated key and rejects traversal.
func cleanKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	cleaned := path.Clean("/" + key)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned != strings.TrimPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig, baseURL string) (Store, error) {
	switch cfg.Backend {
	case BackendLocal, "":
		return NewLocalStore(cfg.UploadDir, baseURL+"/uploads")
	case BackendS3:
		return NewS3Store(ctx, cfg)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}
