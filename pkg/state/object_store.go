package state

import (
	"context"
	stderrors "errors"

	"github.com/ajitpratap0/bronto-tap/pkg/errors"
	"github.com/ajitpratap0/bronto-tap/pkg/json"
)

// ErrObjectNotFound is returned by a Bucket when the object does not exist.
var ErrObjectNotFound = stderrors.New("object not found")

// Bucket is the slice of an object storage API the state store needs.
type Bucket interface {
	ReadObject(ctx context.Context, key string) ([]byte, error)
	WriteObject(ctx context.Context, key string, data []byte) error
	Close() error
}

// ObjectStore keeps bookmarks in a single object of a bucket.
type ObjectStore struct {
	bucket Bucket
	key    string
}

// NewObjectStore creates a store writing to key in bucket.
func NewObjectStore(bucket Bucket, key string) *ObjectStore {
	return &ObjectStore{bucket: bucket, key: key}
}

// Load implements Store.
func (s *ObjectStore) Load(ctx context.Context) (Bookmarks, error) {
	data, err := s.bucket.ReadObject(ctx, s.key)
	if stderrors.Is(err, ErrObjectNotFound) {
		return New(), nil
	}
	if err != nil {
		return New(), errors.Wrap(err, errors.ErrorTypeFile, "failed to read state object").
			WithDetail("key", s.key)
	}
	return Parse(data)
}

// Save implements Store.
func (s *ObjectStore) Save(ctx context.Context, b Bookmarks) error {
	data, err := json.Marshal(b)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode state")
	}
	if err := s.bucket.WriteObject(ctx, s.key, data); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write state object").
			WithDetail("key", s.key)
	}
	return nil
}

// Close implements Store.
func (s *ObjectStore) Close() error {
	return s.bucket.Close()
}
