package connection

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rickgao/quotedesk/internal/version"
)

// Client represents a single WebSocket connection.
type Client interface {
	// Connect establishes the WebSocket connection.
	Connect(ctx context.Context) error

	// Close gracefully closes the connection.
	Close() error

	// Send writes raw bytes to the connection.
	Send(data []byte) error

	// Messages returns a channel of raw inbound messages.
	// Each message includes a local timestamp for when it was received.
	Messages() <-chan TimestampedMessage

	// Errors returns a channel carrying the error that ended the connection.
	Errors() <-chan error

	// IsConnected returns current connection state.
	IsConnected() bool
}

// client implements the Client interface.
type client struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn

	// Output channels
	messages chan TimestampedMessage
	errors   chan error
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu         sync.RWMutex
	connected  bool
	lastSeenAt time.Time
	closed     bool
}

// NewClient creates a new WebSocket client.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultClientConfig().BufferSize
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = version.UserAgent()
	}

	return &client{
		cfg:      cfg,
		logger:   logger,
		messages: make(chan TimestampedMessage, cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	header := http.Header{}
	header.Set("User-Agent", c.cfg.UserAgent)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrAlreadyClosed
	}
	c.conn = conn
	c.connected = true
	c.lastSeenAt = time.Now()
	c.mu.Unlock()

	conn.SetPingHandler(func(data string) error {
		c.touch()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})
	conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	go c.readLoop()
	if c.cfg.PingInterval > 0 {
		go c.heartbeatLoop()
	}

	c.logger.Debug("websocket connected", "url", redactURL(c.cfg.URL))

	return nil
}

// Close gracefully closes the connection.
func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	// Signal goroutines to stop
	close(c.done)

	if conn != nil {
		c.writeMu.Lock()
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		return conn.Close()
	}

	return nil
}

// Send writes raw bytes to the connection.
func (c *client) Send(data []byte) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(c.writeDeadline())
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Messages returns the messages channel.
func (c *client) Messages() <-chan TimestampedMessage {
	return c.messages
}

// Errors returns the errors channel.
func (c *client) Errors() <-chan error {
	return c.errors
}

// IsConnected returns the current connection state.
func (c *client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// writeDeadline returns the zero time (no deadline) when WriteTimeout is unset.
func (c *client) writeDeadline() time.Time {
	if c.cfg.WriteTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.cfg.WriteTimeout)
}

func (c *client) touch() {
	c.mu.Lock()
	c.lastSeenAt = time.Now()
	c.mu.Unlock()
}

func (c *client) fail(err error) {
	select {
	case c.errors <- err:
	default:
	}
}

// readLoop reads messages from the WebSocket and sends them to the messages channel.
func (c *client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now() // Capture timestamp immediately

		if err != nil {
			// Ignore errors after Close() is called
			select {
			case <-c.done:
			default:
				c.fail(err)
			}
			return
		}

		c.touch()

		select {
		case c.messages <- TimestampedMessage{Data: data, ReceivedAt: receivedAt}:
		case <-c.done:
			return
		}
	}
}

// heartbeatLoop pings the server and watches for stale connections.
func (c *client) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.RLock()
			lastSeen := c.lastSeenAt
			c.mu.RUnlock()

			if c.cfg.PingTimeout > 0 && time.Since(lastSeen) > c.cfg.PingTimeout {
				c.logger.Warn("no traffic received, connection stale",
					"last_seen", lastSeen,
					"timeout", c.cfg.PingTimeout,
				)
				c.fail(ErrStaleConnection)
				// Unblocks readLoop; its own error is dropped since ours is queued.
				c.conn.Close()
				return
			}

			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, c.writeDeadline())
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("ping failed", "error", err)
			}
		}
	}
}

// redactURL drops path and query, which carry the session token on the catalog feed.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	return u.Scheme + "://" + u.Host
}
