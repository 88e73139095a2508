package connection

import (
	"errors"
	"time"

	"github.com/rickgao/quotedesk/internal/config"
	"github.com/rickgao/quotedesk/internal/version"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no traffic)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrAlreadyOpened   = errors.New("stream already opened")
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // WebSocket URL, token already substituted
	UserAgent        string        // Sent on the handshake; defaults to version.UserAgent()
	HandshakeTimeout time.Duration // Dial + upgrade deadline
	WriteTimeout     time.Duration // Write deadline for sends
	PingInterval     time.Duration // How often we ping the server (0 = never)
	PingTimeout      time.Duration // Max time without any inbound frame before the link is stale (0 = never)
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		UserAgent:        version.UserAgent(),
		HandshakeTimeout: config.DefaultHandshakeTimeout,
		WriteTimeout:     config.DefaultWriteTimeout,
		PingInterval:     config.DefaultPingInterval,
		PingTimeout:      config.DefaultPingTimeout,
		BufferSize:       config.DefaultStreamBufferSize,
	}
}

// ClientConfigFor builds a ClientConfig for url from the shared stream settings.
func ClientConfigFor(url string, sc config.StreamsConfig) ClientConfig {
	return ClientConfig{
		URL:              url,
		UserAgent:        version.UserAgent(),
		HandshakeTimeout: sc.HandshakeTimeout,
		WriteTimeout:     sc.WriteTimeout,
		PingInterval:     sc.PingInterval,
		PingTimeout:      sc.PingTimeout,
		BufferSize:       sc.BufferSize,
	}
}

// State is the lifecycle of a Stream.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handlers receive Stream events. Nil handlers are skipped.
type Handlers struct {
	OnOpen    func()
	OnMessage func(TimestampedMessage)
	OnError   func(error)
	OnClose   func()
}

// Dispatcher runs closures serially. *eventloop.Loop satisfies it.
type Dispatcher interface {
	Post(fn func()) bool
}
