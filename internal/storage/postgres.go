package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rickgao/quotedesk/internal/config"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore persists values in a quotedesk_kv table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects a pool and ensures the kv table exists.
func OpenPostgres(ctx context.Context, cfg config.DBConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(BuildConnString(cfg))
	if err != nil {
		return nil, &Error{Op: "open", Err: fmt.Errorf("parse connection string: %w", err)}
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, &Error{Op: "open", Err: fmt.Errorf("create pool: %w", err)}
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &Error{Op: "open", Err: fmt.Errorf("ping database: %w", err)}
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS quotedesk_kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, &Error{Op: "open", Err: fmt.Errorf("create kv table: %w", err)}
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := p.pool.QueryRow(ctx, "SELECT value FROM quotedesk_kv WHERE key = $1", key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &Error{Op: "get", Key: key, Err: err}
	}
	return value, true, nil
}

func (p *PostgresStore) Set(ctx context.Context, key, value string) error {
	const upsert = `
		INSERT INTO quotedesk_kv (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	if _, err := p.pool.Exec(ctx, upsert, key, value); err != nil {
		return &Error{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := p.pool.Exec(ctx, "DELETE FROM quotedesk_kv WHERE key = ANY($1)", keys); err != nil {
		return &Error{Op: "delete", Err: err}
	}
	return nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
