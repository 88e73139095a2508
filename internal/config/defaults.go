package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultLoginURL           = "https://dev-virt-point.utip.work/v3/login"
	DefaultCatalogURL         = "wss://dev-virt-point.utip.work/session/{token}?fragment=1"
	DefaultQuotesURL          = "wss://dev-virt-point.utip.work/session"
	DefaultAPITimeout         = 30 * time.Second
	DefaultMaxRetries         = 3
	DefaultRetryBackoff       = 1 * time.Second
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultPingInterval       = 30 * time.Second
	DefaultPingTimeout        = 90 * time.Second
	DefaultStreamBufferSize   = 1000
	DefaultSubscriptions      = 5
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultStorageDriver      = DriverSQLite
	DefaultStoragePath        = "quotedesk.db"
	DefaultRedisAddr          = "localhost:6379"
	DefaultRedisPrefix        = "quotedesk:"
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 4
	DefaultMinConns           = 1
	DefaultLogLevel           = "info"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

func (c *Config) applyDefaults() {
	// API defaults
	if c.API.LoginURL == "" {
		c.API.LoginURL = DefaultLoginURL
	}
	if c.API.CatalogURL == "" {
		c.API.CatalogURL = DefaultCatalogURL
	}
	if c.API.QuotesURL == "" {
		c.API.QuotesURL = DefaultQuotesURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.RetryBackoff == 0 {
		c.API.RetryBackoff = DefaultRetryBackoff
	}

	// Stream defaults
	if c.Streams.HandshakeTimeout == 0 {
		c.Streams.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Streams.WriteTimeout == 0 {
		c.Streams.WriteTimeout = DefaultWriteTimeout
	}
	if c.Streams.PingInterval == 0 {
		c.Streams.PingInterval = DefaultPingInterval
	}
	if c.Streams.PingTimeout == 0 {
		c.Streams.PingTimeout = DefaultPingTimeout
	}
	if c.Streams.BufferSize == 0 {
		c.Streams.BufferSize = DefaultStreamBufferSize
	}

	if c.Catalog.DefaultSubscriptions == 0 {
		c.Catalog.DefaultSubscriptions = DefaultSubscriptions
	}

	// Reconnect is opt-out via a negative base delay
	if c.Quotes.ReconnectBaseDelay == 0 {
		c.Quotes.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Quotes.ReconnectMaxDelay == 0 {
		c.Quotes.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}

	// Storage defaults
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultStorageDriver
	}
	if c.Storage.Path == "" {
		c.Storage.Path = DefaultStoragePath
	}
	if c.Storage.Redis.Addr == "" {
		c.Storage.Redis.Addr = DefaultRedisAddr
	}
	if c.Storage.Redis.Prefix == "" {
		c.Storage.Redis.Prefix = DefaultRedisPrefix
	}
	applyDBDefaults(&c.Storage.Postgres)

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
