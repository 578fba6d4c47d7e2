package core

import (
	"context"
	"io"
)

// FileStore stores uploaded files (study materials) by key.
type FileStore interface {
	// Put stores the content of r under key and returns the number of bytes written.
	Put(ctx context.Context, key string, r io.Reader, contentType string) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// URL returns the public URL of key.
	URL(key string) string
}
