// Package store holds the key-value backends the ledger snapshot is
// persisted to.
package store

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("store: key not found")

// KV is a durable key-value store.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Ping(ctx context.Context) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend     string
	SQLitePath  string
	DatabaseURL string
	RedisAddr   string
}

// Open builds the backend named by opts.Backend.
func Open(opts Options) (KV, error) {
	switch strings.ToLower(opts.Backend) {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return NewSQLite(opts.SQLitePath)
	case "postgres":
		return NewPostgres(opts.DatabaseURL)
	case "redis":
		return NewRedis(opts.RedisAddr), nil
	default:
		return nil, errors.Errorf("store: unknown backend %q", opts.Backend)
	}
}
