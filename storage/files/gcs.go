package files

import (
	"context"
	"io"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/trezcool/darasa/core"
)

const gcsPublicURL = "https://storage.googleapis.com"

// GCSStore keeps files in a Cloud Storage bucket.
// Credentials come from the environment (GOOGLE_APPLICATION_CREDENTIALS or the metadata server).
type GCSStore struct {
	bucket  *storage.BucketHandle
	name    string
	baseURL string
}

var _ core.FileStore = (*GCSStore)(nil)

func NewGCSStore(ctx context.Context, conf *core.Config) (*GCSStore, error) {
	if conf.Storage.Bucket == "" {
		return nil, errors.New("storage.bucket is not set")
	}
	client, err := storage.NewClient(ctx, option.WithUserAgent(conf.AppName))
	if err != nil {
		return nil, errors.Wrap(err, "creating storage client")
	}
	return &GCSStore{
		bucket:  client.Bucket(conf.Storage.Bucket),
		name:    conf.Storage.Bucket,
		baseURL: conf.Storage.BaseURL,
	}, nil
}

func (s *GCSStore) Put(ctx context.Context, key string, r io.Reader, contentType string) (int64, error) {
	if key == "" {
		return 0, errInvalidKey
	}
	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{"downloadToken": uuid.NewString()}

	n, err := io.Copy(w, r)
	if err != nil {
		_ = w.Close()
		return 0, errors.Wrap(err, "uploading object")
	}
	return n, errors.Wrap(w.Close(), "finalizing object")
}

func (s *GCSStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := s.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	return rc, errors.Wrap(err, "opening object")
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	err := s.bucket.Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return errors.Wrap(err, "deleting object")
	}
	return nil
}

func (s *GCSStore) URL(key string) string {
	key = strings.TrimPrefix(key, "/")
	if s.baseURL != "" {
		return s.baseURL + "/" + key
	}
	return gcsPublicURL + "/" + s.name + "/" + (&url.URL{Path: key}).EscapedPath()
}
