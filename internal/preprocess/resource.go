package preprocess

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Resource is an opaque handle to image bytes.
type Resource interface {
	// ID identifies the resource in logs and seeds the fallback classifier.
	ID() string
	Open(ctx context.Context) (io.ReadCloser, error)
}

// SupportedImageExtensions lists file extensions the decoder understands.
var SupportedImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp"}

// IsSupportedImage reports whether the path has a supported image extension.
func IsSupportedImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedImageExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// FileResource reads an image from the local filesystem.
type FileResource string

// ID returns the file path.
func (f FileResource) ID() string { return string(f) }

// Open opens the file.
func (f FileResource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f == "" {
		return nil, errors.New("empty path")
	}
	return os.Open(string(f)) //nolint:gosec // G304: reading a user-provided image path is expected
}

// BytesResource serves an in-memory image, e.g. an upload.
type BytesResource struct {
	Name string
	Data []byte
}

// NewBytesResource wraps data under the given id.
func NewBytesResource(id string, data []byte) *BytesResource {
	return &BytesResource{Name: id, Data: data}
}

// ID returns the resource name.
func (b *BytesResource) ID() string { return b.Name }

// Open returns a reader over the bytes.
func (b *BytesResource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(b.Data)), nil
}

// IsEmpty reports whether res cannot possibly name an image: nil, a nil
// pointer, or an empty identifier. It does no I/O.
func IsEmpty(res Resource) bool {
	if res == nil {
		return true
	}
	switch r := res.(type) {
	case *BytesResource:
		return r == nil || len(r.Data) == 0
	case FileResource:
		return r == ""
	}
	return strings.TrimSpace(res.ID()) == ""
}
