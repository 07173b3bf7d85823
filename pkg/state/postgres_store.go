package state

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ajitpratap0/bronto-tap/pkg/errors"
	"github.com/ajitpratap0/bronto-tap/pkg/json"
)

// pgQuerier is the subset of *pgxpool.Pool the store uses.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore keeps bookmarks in one JSONB row per tap name.
type PostgresStore struct {
	db    pgQuerier
	table string
	name  string
}

// NewPostgresStore connects to dsn and creates table when missing.
func NewPostgresStore(ctx context.Context, dsn, table, name string) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid postgres dsn")
	}
	poolConfig.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to postgres")
	}

	s := newPostgresStore(pool, table, name)
	if err := s.ensureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func newPostgresStore(db pgQuerier, table, name string) *PostgresStore {
	return &PostgresStore{
		db:    db,
		table: pgx.Identifier{table}.Sanitize(),
		name:  name,
	}
}

func (s *PostgresStore) ensureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	name TEXT PRIMARY KEY,
	state JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)

	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to create state table").
			WithDetail("table", s.table)
	}
	return nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context) (Bookmarks, error) {
	var data []byte
	err := s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT state FROM %s WHERE name = $1`, s.table), s.name).Scan(&data)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return New(), nil
	}
	if err != nil {
		return New(), errors.Wrap(err, errors.ErrorTypeConnection, "failed to read state row").
			WithDetail("name", s.name)
	}
	return Parse(data)
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, b Bookmarks) error {
	data, err := json.Marshal(b)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode state")
	}

	_, err = s.db.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (name, state, updated_at) VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`, s.table),
		s.name, string(data))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to write state row").
			WithDetail("name", s.name)
	}
	return nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
