package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore persists values in a single-table sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database file at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}

	// One writer; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &Error{Op: "open", Err: fmt.Errorf("ping sqlite: %w", err)}
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		db.Close()
		return nil, &Error{Op: "open", Err: fmt.Errorf("set WAL mode: %w", err)}
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, &Error{Op: "open", Err: fmt.Errorf("create kv table: %w", err)}
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &Error{Op: "get", Key: key, Err: err}
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	const upsert = `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := s.db.ExecContext(ctx, upsert, key, value); err != nil {
		return &Error{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
			return &Error{Op: "delete", Key: key, Err: err}
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
