// Package extraction turns uploaded documents into plain text for content
// comparison. Only text-bearing formats are read; scanned images and other
// binary formats are reported as unsupported and skipped by callers.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrUnsupported is returned for formats that carry no extractable text.
var ErrUnsupported = errors.New("unsupported document format")

const defaultMaxBytes = 4 << 20

// FileExtractor reads documents from the upload directory.
type FileExtractor struct {
	root     string
	maxBytes int64
}

type FileOption func(*FileExtractor)

// WithMaxBytes caps how much of a file is read.
func WithMaxBytes(n int64) FileOption {
	return func(e *FileExtractor) {
		if n > 0 {
			e.maxBytes = n
		}
	}
}

// NewFileExtractor resolves relative document paths against root.
func NewFileExtractor(root string, opts ...FileOption) *FileExtractor {
	e := &FileExtractor{root: root, maxBytes: defaultMaxBytes}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *FileExtractor) Extract(ctx context.Context, path, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !textual(path, mimeType) {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, mimeType)
	}

	full := path
	if !filepath.IsAbs(full) && e.root != "" {
		full = filepath.Join(e.root, filepath.Clean(string(filepath.Separator)+path))
	}
	f, err := os.Open(full)
	if err != nil {
		return "", fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, e.maxBytes))
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: not valid UTF-8 text", ErrUnsupported)
	}
	return strings.Join(strings.Fields(string(raw)), " "), nil
}

func textual(path, mimeType string) bool {
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(path))
	}
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "text/")
}
