package state

import (
	"context"
	stderrors "errors"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/bronto-tap/pkg/errors"
)

// GCSBucket stores objects in a Google Cloud Storage bucket.
type GCSBucket struct {
	client *storage.Client
	bucket *storage.BucketHandle
}

// NewGCSBucket opens a client with application default credentials, or with
// credentialsFile when given.
func NewGCSBucket(ctx context.Context, bucket, credentialsFile string, extra ...option.ClientOption) (*GCSBucket, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	opts = append(opts, extra...)

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create GCS client")
	}

	return &GCSBucket{client: client, bucket: client.Bucket(bucket)}, nil
}

// ReadObject implements Bucket.
func (b *GCSBucket) ReadObject(ctx context.Context, key string) ([]byte, error) {
	r, err := b.bucket.Object(key).NewReader(ctx)
	if stderrors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}

// WriteObject implements Bucket.
func (b *GCSBucket) WriteObject(ctx context.Context, key string, data []byte) error {
	w := b.bucket.Object(key).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		w.Close() //nolint:errcheck
		return err
	}
	return w.Close()
}

// Close implements Bucket.
func (b *GCSBucket) Close() error {
	return b.client.Close()
}
