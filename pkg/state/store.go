package state

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ajitpratap0/bronto-tap/pkg/config"
	"github.com/ajitpratap0/bronto-tap/pkg/errors"
	"github.com/ajitpratap0/bronto-tap/pkg/json"
)

// Store persists bookmarks between runs.
type Store interface {
	// Load returns the stored bookmarks, or empty bookmarks when nothing has
	// been stored yet.
	Load(ctx context.Context) (Bookmarks, error)
	// Save replaces the stored bookmarks.
	Save(ctx context.Context, b Bookmarks) error
	Close() error
}

// NewStore opens the store selected by cfg. It returns nil when no backend is
// configured.
func NewStore(ctx context.Context, cfg config.StateStoreConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("state_backend", cfg.Backend))

	switch cfg.Backend {
	case "":
		return nil, nil
	case "file":
		return NewFileStore(cfg.Path), nil
	case "s3":
		bucket, err := NewS3Bucket(ctx, cfg.Bucket, cfg.Region)
		if err != nil {
			return nil, err
		}
		logger.Info("using s3 state store", zap.String("bucket", cfg.Bucket), zap.String("key", cfg.Key))
		return NewObjectStore(bucket, objectKey(cfg)), nil
	case "gcs":
		bucket, err := NewGCSBucket(ctx, cfg.Bucket, cfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		logger.Info("using gcs state store", zap.String("bucket", cfg.Bucket), zap.String("key", cfg.Key))
		return NewObjectStore(bucket, objectKey(cfg)), nil
	case "postgres":
		store, err := NewPostgresStore(ctx, cfg.DSN, cfg.Table, cfg.Name)
		if err != nil {
			return nil, err
		}
		logger.Info("using postgres state store", zap.String("table", cfg.Table), zap.String("name", cfg.Name))
		return store, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown state store backend %q", cfg.Backend)
	}
}

func objectKey(cfg config.StateStoreConfig) string {
	if cfg.Key != "" {
		return cfg.Key
	}
	return cfg.Name + "/state.json"
}

// FileStore keeps bookmarks in a local JSON file. Writes go to a temporary
// file first and are renamed into place, so a crash never leaves a torn file.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context) (Bookmarks, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return New(), errors.Wrap(err, errors.ErrorTypeFile, "failed to read state").
			WithDetail("path", s.path)
	}
	return Parse(data)
}

// Save implements Store.
func (s *FileStore) Save(_ context.Context, b Bookmarks) error {
	data, err := json.Marshal(b)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode state")
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create temp state file").
			WithDetail("dir", dir)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write state")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write state")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to replace state file").
			WithDetail("path", s.path)
	}
	return nil
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}
