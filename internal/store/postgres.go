package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
)

// Postgres stores values in a single kv_store table using pgx.
type Postgres struct {
	Client *sql.DB
}

// NewPostgres opens a pooled connection and creates the table if needed.
func NewPostgres(connString string) (*Postgres, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kv_store (
			key        TEXT PRIMARY KEY,
			value      JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrate postgres")
	}
	return &Postgres{Client: db}, nil
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := p.Client.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", key)
	}
	return v, nil
}

func (p *Postgres) Put(ctx context.Context, key string, value []byte) error {
	_, err := p.Client.ExecContext(ctx, `
		INSERT INTO kv_store (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	return errors.Wrapf(err, "put %s", key)
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.Client.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (p *Postgres) Close() error {
	if p == nil || p.Client == nil {
		return nil
	}
	return p.Client.Close()
}
