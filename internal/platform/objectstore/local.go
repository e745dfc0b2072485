package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"landreg/pkg/platform/sentinel"
)

// LocalStore keeps objects as files under root/bucket.
type LocalStore struct {
	root   string
	bucket string
}

func NewLocalStore(root, bucket string) *LocalStore {
	if root == "" {
		root = filepath.Join(os.TempDir(), "landreg-artifacts")
	}
	if bucket == "" {
		bucket = "landreg"
	}
	return &LocalStore{root: root, bucket: bucket}
}

func (s *LocalStore) EnsureBucket(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.MkdirAll(s.bucketPath(), 0o755)
}

func (s *LocalStore) PutObject(ctx context.Context, key, _ string, data []byte) error {
	full, err := s.objectPath(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}
	// Write then rename so readers never see a partial artifact.
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write object %s: %w", key, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit object %s: %w", key, err)
	}
	return nil
}

func (s *LocalStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	full, err := s.objectPath(key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

func (s *LocalStore) Location(key string) string {
	return "file://" + filepath.ToSlash(filepath.Join(s.bucketPath(), filepath.FromSlash(key)))
}

func (s *LocalStore) bucketPath() string {
	return filepath.Join(s.root, s.bucket)
}

func (s *LocalStore) objectPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(key, "/")))
	if key == "" || clean == "." || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.bucketPath(), clean), nil
}
