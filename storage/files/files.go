// Package files implements core.FileStore on the local disk and on Google Cloud Storage.
package files

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
)

// errors
var (
	ErrNotFound   = core.NewNotFoundError("file not found")
	errInvalidKey = errors.New("invalid file key")
)

// NewStore returns the store selected by conf.Storage.Backend.
func NewStore(ctx context.Context, conf *core.Config) (core.FileStore, error) {
	switch conf.Storage.Backend {
	case "gcs":
		return NewGCSStore(ctx, conf)
	case "local", "":
		return NewLocalStore(conf)
	}
	return nil, errors.Errorf("unknown storage backend %q", conf.Storage.Backend)
}
