// Package objectstore persists training artifacts either on local disk or in
// a MinIO/S3 bucket.
package objectstore

import (
	"context"
	"fmt"

	"landreg/internal/platform/config"
)

// Store is the minimal object API the classifier job needs.
type Store interface {
	EnsureBucket(ctx context.Context) error
	PutObject(ctx context.Context, key, contentType string, data []byte) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	// Location renders key as a human-readable URI for logs and reports.
	Location(key string) string
}

// New builds the backend selected by cfg.
func New(cfg config.ObjectStore) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStore(cfg.LocalDir, cfg.Bucket), nil
	case "s3":
		return NewS3Client(cfg)
	default:
		return nil, fmt.Errorf("unknown object store backend %q", cfg.Backend)
	}
}
