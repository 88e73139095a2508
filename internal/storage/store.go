// Package storage provides the persisted key-value store shared by the
// session, catalog and subscription components.
//
// Values are plain strings; lists are stored as JSON. Writes are last-write-wins
// per key and no multi-key atomicity is offered.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/rickgao/quotedesk/internal/config"
)

// Persisted keys.
const (
	KeyToken          = "acsToken"
	KeyTokenExpire    = "acsTokenExpire"
	KeySecondaryToken = "utipToken"
	KeyCatalog        = "symbols-list"
	KeySubscriptions  = "subscribed-symbols"
)

// SessionKeys are every key scoped to a logged-in session. Logout deletes all of them.
var SessionKeys = []string{KeyToken, KeyTokenExpire, KeySecondaryToken, KeyCatalog, KeySubscriptions}

// Store is a string key-value store.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key.
	Set(ctx context.Context, key, value string) error

	// Delete removes keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// Close releases the underlying connection.
	Close() error
}

// Error is returned by every backend operation that fails.
type Error struct {
	Op  string // "get", "set", "delete", "open"
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// GetJSON decodes the JSON value stored under key into v.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, &Error{Op: "get", Key: key, Err: fmt.Errorf("decode json: %w", err)}
	}
	return true, nil
}

// SetJSON encodes v as JSON and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &Error{Op: "set", Key: key, Err: fmt.Errorf("encode json: %w", err)}
	}
	return s.Set(ctx, key, string(data))
}

// Open creates the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Driver {
	case config.DriverSQLite:
		logger.Info("opening sqlite storage", "path", cfg.Path)
		return OpenSQLite(ctx, cfg.Path)

	case config.DriverRedis:
		logger.Info("connecting to redis storage", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, &Error{Op: "open", Err: fmt.Errorf("ping redis: %w", err)}
		}
		return NewRedisStore(client, cfg.Redis.Prefix), nil

	case config.DriverPostgres:
		logger.Info("connecting to postgres storage",
			"host", cfg.Postgres.Host,
			"port", cfg.Postgres.Port,
			"database", cfg.Postgres.Name,
		)
		return OpenPostgres(ctx, cfg.Postgres)

	case config.DriverMemory:
		logger.Warn("using in-memory storage, nothing survives a restart")
		return NewMemoryStore(), nil

	default:
		return nil, &Error{Op: "open", Err: fmt.Errorf("unknown driver %q", cfg.Driver)}
	}
}
