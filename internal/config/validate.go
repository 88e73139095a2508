package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.API.LoginURL == "" {
		return errors.New("api.login_url is required")
	}
	if !strings.Contains(c.API.CatalogURL, "{token}") {
		return fmt.Errorf("api.catalog_url must contain {token}, got %q", c.API.CatalogURL)
	}
	if c.API.QuotesURL == "" {
		return errors.New("api.quotes_url is required")
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	if c.Streams.BufferSize < 1 {
		return errors.New("streams.buffer_size must be >= 1")
	}
	if c.Streams.PingTimeout < c.Streams.PingInterval {
		return fmt.Errorf("streams.ping_timeout (%s) cannot be shorter than ping_interval (%s)",
			c.Streams.PingTimeout, c.Streams.PingInterval)
	}

	if c.Catalog.DefaultSubscriptions < 1 {
		return errors.New("catalog.default_subscriptions must be >= 1")
	}

	if c.Quotes.ReconnectBaseDelay > 0 && c.Quotes.ReconnectMaxDelay < c.Quotes.ReconnectBaseDelay {
		return fmt.Errorf("quotes.reconnect_max_delay (%s) cannot be shorter than reconnect_base_delay (%s)",
			c.Quotes.ReconnectMaxDelay, c.Quotes.ReconnectBaseDelay)
	}

	if err := c.Storage.validate(); err != nil {
		return err
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}

	if (c.Login.Email == "") != (c.Login.Password == "") {
		return errors.New("login.email and login.password must be set together")
	}

	return nil
}

func (s *StorageConfig) validate() error {
	switch s.Driver {
	case DriverSQLite:
		if s.Path == "" {
			return errors.New("storage.path is required for sqlite")
		}
	case DriverRedis:
		if s.Redis.Addr == "" {
			return errors.New("storage.redis.addr is required for redis")
		}
	case DriverPostgres:
		return s.Postgres.validate("storage.postgres")
	case DriverMemory:
	default:
		return fmt.Errorf("storage.driver must be one of sqlite, redis, postgres, memory, got %q", s.Driver)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

// SlogLevel parses the configured log level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
