package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Stream is a single-use WebSocket session with a tracked lifecycle.
//
// Open dials in the background. Every event after that is posted to the
// Dispatcher: OnOpen once the link is up, OnMessage per inbound frame,
// OnError followed by OnClose when the link fails, and OnClose alone when
// the server closes normally. Close detaches the handlers, so when Close is
// called from the dispatcher's goroutine no handler runs afterwards.
type Stream struct {
	id     string
	cfg    ClientConfig
	h      Handlers
	d      Dispatcher
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	detached bool
	client   Client
	cancel   context.CancelFunc
}

// NewStream creates an idle stream.
func NewStream(cfg ClientConfig, h Handlers, d Dispatcher, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()

	return &Stream{
		id:     id,
		cfg:    cfg,
		h:      h,
		d:      d,
		logger: logger.With("stream", id, "url", redactURL(cfg.URL)),
		state:  StateIdle,
	}
}

// ID returns the stream's unique identifier.
func (s *Stream) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Open starts dialing and returns immediately.
func (s *Stream) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return ErrAlreadyOpened
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = StateConnecting
	s.client = NewClient(s.cfg, s.logger)

	go s.run(ctx, s.client)

	return nil
}

// Send encodes v as JSON and writes it as a text frame.
func (s *Stream) Send(v any) error {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return ErrNotConnected
	}
	c := s.client
	s.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return c.Send(data)
}

// Close tears the stream down without firing any handler.
// Closing a closed stream is a no-op.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.detached {
		s.mu.Unlock()
		return nil
	}
	s.detached = true
	s.state = StateClosed
	cancel := s.cancel
	c := s.client
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		return c.Close()
	}
	return nil
}

func (s *Stream) run(ctx context.Context, c Client) {
	if err := c.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("stream dial failed", "error", err)
		c.Close()
		s.post(c, func() { s.fail(err) })
		return
	}

	s.logger.Debug("stream open")
	s.post(c, func() {
		if !s.transition(StateOpen) {
			return
		}
		if s.h.OnOpen != nil {
			s.h.OnOpen()
		}
	})

	s.pump(ctx, c)
}

// pump forwards client events to the dispatcher until the link ends.
func (s *Stream) pump(ctx context.Context, c Client) {
	for {
		select {
		case <-ctx.Done():
			c.Close()
			return

		case msg := <-c.Messages():
			s.deliver(c, msg)

		case err := <-c.Errors():
			// readLoop has exited; flush what it queued before the error.
			for drained := false; !drained; {
				select {
				case msg := <-c.Messages():
					s.deliver(c, msg)
				default:
					drained = true
				}
			}
			c.Close()

			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info("stream closed by server")
				s.post(c, s.closed)
			} else {
				s.logger.Warn("stream failed", "error", err)
				s.post(c, func() { s.fail(err) })
			}
			return
		}
	}
}

func (s *Stream) deliver(c Client, msg TimestampedMessage) {
	s.post(c, func() {
		if s.h.OnMessage != nil {
			s.h.OnMessage(msg)
		}
	})
}

// fail runs on the dispatcher. OnError may itself Close the stream.
func (s *Stream) fail(err error) {
	if s.h.OnError != nil {
		s.h.OnError(err)
	}
	s.closed()
}

func (s *Stream) closed() {
	if !s.transition(StateClosed) {
		return
	}
	if s.h.OnClose != nil {
		s.h.OnClose()
	}
}

// transition moves to state unless the stream was detached.
func (s *Stream) transition(state State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detached {
		return false
	}
	s.state = state
	return true
}

func (s *Stream) isDetached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detached
}

func (s *Stream) post(c Client, fn func()) {
	ok := s.d.Post(func() {
		if s.isDetached() {
			return
		}
		fn()
	})
	if !ok {
		c.Close()
	}
}
