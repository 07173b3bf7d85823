package state

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/bronto-tap/pkg/config"
	"github.com/ajitpratap0/bronto-tap/pkg/errors"
)

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewFileStore(path)
	defer store.Close()

	b, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, b.IsEmpty())

	want := New().Set("contact", "modified", "2020-01-01T06:00:00Z")
	require.NoError(t, store.Save(ctx, want))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".state-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

type memoryBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	closed  bool
}

func (m *memoryBucket) ReadObject(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return data, nil
}

func (m *memoryBucket) WriteObject(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *memoryBucket) Close() error {
	m.closed = true
	return nil
}

func TestObjectStore(t *testing.T) {
	ctx := context.Background()
	bucket := &memoryBucket{}
	store := NewObjectStore(bucket, "taps/bronto/state.json")

	b, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, b.IsEmpty())

	want := New().Set("unsubscribe", "start_date", "2020-02-01T00:00:00Z")
	require.NoError(t, store.Save(ctx, want))
	assert.JSONEq(t, `{"bookmarks":{"unsubscribe":{"start_date":"2020-02-01T00:00:00Z"}}}`,
		string(bucket.objects["taps/bronto/state.json"]))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, store.Close())
	assert.True(t, bucket.closed)
}

func newTestS3Client(url string) *s3.Client {
	return s3.New(s3.Options{
		Region:                     "us-east-1",
		BaseEndpoint:               aws.String(url),
		UsePathStyle:               true,
		Credentials:                aws.AnonymousCredentials{},
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	})
}

func TestS3Bucket(t *testing.T) {
	var mu sync.Mutex
	objects := map[string][]byte{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		switch r.Method {
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			objects[r.URL.Path] = body
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			data, ok := objects[r.URL.Path]
			if !ok {
				w.Header().Set("Content-Type", "application/xml")
				w.WriteHeader(http.StatusNotFound)
				_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>`+
					`<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
				return
			}
			_, _ = w.Write(data)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	bucket := NewS3BucketFromClient(newTestS3Client(srv.URL), "tap-state")

	_, err := bucket.ReadObject(ctx, "state.json")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	require.NoError(t, bucket.WriteObject(ctx, "state.json", []byte(`{"bookmarks":{}}`)))
	assert.Equal(t, []byte(`{"bookmarks":{}}`), objects["/tap-state/state.json"])

	data, err := bucket.ReadObject(ctx, "state.json")
	require.NoError(t, err)
	assert.Equal(t, `{"bookmarks":{}}`, string(data))
}

type fakeRow struct {
	data []byte
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*[]byte)) = r.data
	return nil
}

type fakePG struct {
	rows   map[string][]byte
	execs  []string
	closed bool
}

func (f *fakePG) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	if len(args) == 2 {
		f.rows[args[0].(string)] = []byte(args[1].(string))
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakePG) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	data, ok := f.rows[args[0].(string)]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{data: data}
}

func (f *fakePG) Close() { f.closed = true }

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()
	db := &fakePG{rows: map[string][]byte{}}
	store := newPostgresStore(db, "tap_state", "bronto")

	require.NoError(t, store.ensureTable(ctx))
	assert.Contains(t, db.execs[0], `CREATE TABLE IF NOT EXISTS "tap_state"`)

	b, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, b.IsEmpty())

	want := New().Set("contact", "modified", "2020-01-01T06:00:00Z")
	require.NoError(t, store.Save(ctx, want))
	assert.Contains(t, db.execs[1], "ON CONFLICT (name)")

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, store.Close())
	assert.True(t, db.closed)
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	store, err := NewStore(ctx, config.StateStoreConfig{}, log)
	require.NoError(t, err)
	assert.Nil(t, store)

	path := filepath.Join(t.TempDir(), "state.json")
	store, err = NewStore(ctx, config.StateStoreConfig{Backend: "file", Path: path}, log)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	_, err = NewStore(ctx, config.StateStoreConfig{Backend: "redis"}, log)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
