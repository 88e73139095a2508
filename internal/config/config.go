package config

import "time"

// Config is the root configuration for a quotedesk instance.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Streams StreamsConfig `yaml:"streams"`
	Catalog CatalogConfig `yaml:"catalog"`
	Quotes  QuotesConfig  `yaml:"quotes"`
	Storage StorageConfig `yaml:"storage"`
	Server  ServerConfig  `yaml:"server"`
	Login   LoginConfig   `yaml:"login"`
	Log     LogConfig     `yaml:"log"`
}

// APIConfig holds trading-platform endpoints.
type APIConfig struct {
	LoginURL     string        `yaml:"login_url"`
	CatalogURL   string        `yaml:"catalog_url"` // Must contain {token}
	QuotesURL    string        `yaml:"quotes_url"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// StreamsConfig holds WebSocket settings shared by the catalog and quote streams.
type StreamsConfig struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
	BufferSize       int           `yaml:"buffer_size"`
}

// CatalogConfig holds catalog synchronizer settings.
type CatalogConfig struct {
	DefaultSubscriptions int `yaml:"default_subscriptions"`
}

// QuotesConfig holds quote synchronizer settings.
// A negative ReconnectBaseDelay disables reconnection.
type QuotesConfig struct {
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
}

// StorageConfig selects the persisted key-value backend.
type StorageConfig struct {
	Driver   string      `yaml:"driver"` // sqlite, redis, postgres, memory
	Path     string      `yaml:"path"`   // sqlite database file
	Redis    RedisConfig `yaml:"redis"`
	Postgres DBConfig    `yaml:"postgres"`
}

// RedisConfig holds the redis connection for the redis driver.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// ServerConfig holds the local HTTP facade settings. Empty Addr disables it.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoginConfig holds optional startup credentials, usually ${VAR} references.
type LoginConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}
