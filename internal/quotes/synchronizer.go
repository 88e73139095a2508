// Package quotes keeps live bid/ask prices for exactly the subscribed symbols.
//
// Every subscription change goes through Resync, which replaces the quote
// stream. The quote table never holds a symbol outside the current set.
package quotes

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/rickgao/quotedesk/internal/config"
	"github.com/rickgao/quotedesk/internal/connection"
	"github.com/rickgao/quotedesk/internal/model"
	"github.com/rickgao/quotedesk/internal/router"
)

// tickersRequest subscribes the stream to a symbol set.
type tickersRequest struct {
	RequestType string   `json:"requestType"`
	Symbols     []string `json:"symbols"`
}

// Synchronizer owns the quote stream and table. Resync and Teardown must run
// on the dispatcher's goroutine; accessors are safe from anywhere.
type Synchronizer struct {
	url     string
	streams config.StreamsConfig
	backoff config.QuotesConfig
	d       connection.Dispatcher
	router  *router.Router
	logger  *slog.Logger

	mu      sync.RWMutex
	quotes  map[string]model.Quote
	symbols []string
	err     error
	stream  *connection.Stream

	// Owned by the dispatcher goroutine.
	ctx       context.Context
	timer     *time.Timer
	gen       uint64 // bumped on every teardown; stale reconnect timers compare against it
	attempt   int
	connected bool // the current stream reached Open at least once
}

// New creates a quote synchronizer.
func New(
	url string,
	streams config.StreamsConfig,
	backoff config.QuotesConfig,
	d connection.Dispatcher,
	logger *slog.Logger,
) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		url:     url,
		streams: streams,
		backoff: backoff,
		d:       d,
		router:  router.New(logger),
		logger:  logger,
		quotes:  make(map[string]model.Quote),
		ctx:     context.Background(),
	}
}

// Resync aligns the stream with symbols. An empty set tears everything down
// and clears the table. An unchanged set with a live stream is a no-op.
// Otherwise the stream is replaced and quotes for dropped symbols are removed.
func (s *Synchronizer) Resync(ctx context.Context, symbols []string) {
	s.ctx = ctx
	next := normalize(symbols)

	if len(next) == 0 {
		s.Teardown()
		s.mu.Lock()
		s.symbols = nil
		clear(s.quotes)
		s.mu.Unlock()
		s.logger.Info("quote stream stopped, no subscriptions")
		return
	}

	if s.sameSet(next) {
		switch s.State() {
		case connection.StateConnecting, connection.StateOpen:
			return
		}
	}

	s.Teardown()

	s.mu.Lock()
	s.symbols = next
	for sym := range s.quotes {
		if !slices.Contains(next, sym) {
			delete(s.quotes, sym)
		}
	}
	s.err = nil
	s.mu.Unlock()

	s.attempt = 0
	s.connect()
}

// Teardown closes the stream (if connecting or open) and cancels any
// pending reconnect. The quote table is left as is.
func (s *Synchronizer) Teardown() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	if stream == nil {
		return
	}
	switch stream.State() {
	case connection.StateConnecting, connection.StateOpen:
		s.logger.Debug("closing quote stream", "stream", stream.ID())
		stream.Close()
	}
}

func (s *Synchronizer) connect() {
	symbols := s.Symbols()

	var stream *connection.Stream
	stream = connection.NewStream(
		connection.ClientConfigFor(s.url, s.streams),
		connection.Handlers{
			OnOpen:    func() { s.onOpen(stream, symbols) },
			OnMessage: s.onMessage,
			OnError:   s.onError,
			OnClose:   s.onClose,
		},
		s.d,
		s.logger.With("feed", "quotes"),
	)

	s.mu.Lock()
	s.stream = stream
	s.mu.Unlock()
	s.connected = false

	s.logger.Info("opening quote stream", "symbols", symbols)
	if err := stream.Open(s.ctx); err != nil {
		s.logger.Error("failed to open quote stream", "error", err)
	}
}

func (s *Synchronizer) onOpen(stream *connection.Stream, symbols []string) {
	s.connected = true
	s.attempt = 0

	if err := stream.Send(tickersRequest{RequestType: "tickers", Symbols: symbols}); err != nil {
		s.logger.Warn("failed to send quote subscription", "error", err)
		s.setErr(err)
	}
}

func (s *Synchronizer) onMessage(raw connection.TimestampedMessage) {
	msg, err := s.router.Route(raw.Data, raw.ReceivedAt)
	if err != nil {
		s.logger.Warn("ignoring malformed quote message", "error", err)
		return
	}
	if msg.Kind != router.KindQuote {
		s.logger.Debug("ignoring non-quote message", "type", msg.Type)
		return
	}

	q := msg.Quote

	s.mu.Lock()
	defer s.mu.Unlock()

	if !slices.Contains(s.symbols, q.Symbol) {
		s.logger.Debug("dropping quote for unsubscribed symbol", "symbol", q.Symbol)
		return
	}
	s.quotes[q.Symbol] = q
}

func (s *Synchronizer) onError(err error) {
	s.logger.Warn("quote stream error", "error", err)
	s.setErr(err)
}

func (s *Synchronizer) onClose() {
	s.mu.Lock()
	s.stream = nil
	empty := len(s.symbols) == 0
	s.mu.Unlock()

	if empty || s.backoff.ReconnectBaseDelay <= 0 {
		s.logger.Info("quote stream closed")
		return
	}
	s.scheduleReconnect()
}

// scheduleReconnect reopens the stream for the current set after an
// exponential delay, mirroring the connection manager's reconnect loop.
func (s *Synchronizer) scheduleReconnect() {
	if s.connected {
		s.attempt = 0
	}
	wait := s.delay(s.attempt)
	s.attempt++

	gen := s.gen
	s.logger.Info("quote stream closed, reconnecting", "wait", wait, "attempt", s.attempt)

	s.timer = time.AfterFunc(wait, func() {
		s.d.Post(func() {
			if gen != s.gen {
				return
			}
			s.timer = nil
			s.connect()
		})
	})
}

func (s *Synchronizer) delay(attempt int) time.Duration {
	wait := s.backoff.ReconnectBaseDelay
	maxWait := s.backoff.ReconnectMaxDelay
	for i := 0; i < attempt; i++ {
		wait *= 2
		if maxWait > 0 && wait >= maxWait {
			return maxWait
		}
	}
	return wait
}

func (s *Synchronizer) sameSet(next []string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(next) != len(s.symbols) {
		return false
	}
	for _, sym := range next {
		if !slices.Contains(s.symbols, sym) {
			return false
		}
	}
	return true
}

func (s *Synchronizer) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Quote returns the latest quote for symbol.
func (s *Synchronizer) Quote(symbol string) (model.Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[symbol]
	return q, ok
}

// Quotes returns a copy of the quote table.
func (s *Synchronizer) Quotes() map[string]model.Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]model.Quote, len(s.quotes))
	for k, v := range s.quotes {
		out[k] = v
	}
	return out
}

// Symbols returns the set the stream is subscribed to.
func (s *Synchronizer) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.symbols)
}

// Err returns the last stream error, cleared on every Resync.
func (s *Synchronizer) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// State reports the quote stream lifecycle, or Idle when there is none.
func (s *Synchronizer) State() connection.State {
	s.mu.RLock()
	stream := s.stream
	s.mu.RUnlock()

	if stream == nil {
		return connection.StateIdle
	}
	return stream.State()
}

// RouterStats exposes frame decoding counters for the quote stream.
func (s *Synchronizer) RouterStats() router.Stats {
	return s.router.Stats()
}

// normalize drops empty and duplicate symbols, keeping first occurrences.
func normalize(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if sym == "" || slices.Contains(out, sym) {
			continue
		}
		out = append(out, sym)
	}
	return out
}
