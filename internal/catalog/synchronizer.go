// Package catalog keeps the instrument catalog current.
//
// The catalog comes from, in order of preference: a snapshot on the catalog
// stream, the persisted cache, or a built-in mock list. A stream error never
// discards data already loaded.
package catalog

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/rickgao/quotedesk/internal/config"
	"github.com/rickgao/quotedesk/internal/connection"
	"github.com/rickgao/quotedesk/internal/model"
	"github.com/rickgao/quotedesk/internal/router"
	"github.com/rickgao/quotedesk/internal/storage"
)

// User-facing error messages.
const (
	ErrMockFallback = "Could not fetch symbols. Using mock data."
	ErrConnection   = "Symbol connection error."
	ErrParse        = "Failed to parse symbol data."
)

// TokenPlaceholder is replaced by the active token in the catalog URL.
const TokenPlaceholder = "{token}"

// handshake asks the server for the symbol list without quotes.
var handshake = map[string]string{
	"commandCode":   "2088",
	"notSendQuotes": "1",
}

// Defaulter applies default subscriptions once a catalog is known.
// *subscription.Manager satisfies it.
type Defaulter interface {
	EnsureDefault(ctx context.Context, symbols []string) (bool, error)
}

// Synchronizer owns the catalog. Init, Start, Teardown and Clear must run on
// the dispatcher's goroutine; accessors are safe from anywhere.
type Synchronizer struct {
	urlTemplate string
	streams     config.StreamsConfig
	kv          storage.Store
	subs        Defaulter
	d           connection.Dispatcher
	router      *router.Router
	logger      *slog.Logger

	state  *catalogState
	stream atomic.Pointer[connection.Stream]

	// Owned by the dispatcher goroutine.
	ctx         context.Context
	gotSnapshot bool
}

// New creates a catalog synchronizer.
func New(
	urlTemplate string,
	streams config.StreamsConfig,
	kv storage.Store,
	subs Defaulter,
	d connection.Dispatcher,
	logger *slog.Logger,
) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		urlTemplate: urlTemplate,
		streams:     streams,
		kv:          kv,
		subs:        subs,
		d:           d,
		router:      router.New(logger),
		logger:      logger,
		state:       newState(),
		ctx:         context.Background(),
	}
}

// Init loads the persisted catalog, if any.
func (s *Synchronizer) Init(ctx context.Context) {
	var cached []model.Instrument
	ok, err := storage.GetJSON(ctx, s.kv, storage.KeyCatalog, &cached)
	if err != nil {
		s.logger.Warn("failed to read catalog cache", "error", err)
		return
	}
	if !ok || len(cached) == 0 {
		return
	}

	s.state.replace(cached)
	s.state.setLoading(false)
	s.logger.Info("catalog loaded from cache", "instruments", len(cached))

	s.applyDefaults(ctx)
}

// Start (re)connects the catalog stream for cred. Without a credential the
// mock catalog is loaded when nothing else is.
func (s *Synchronizer) Start(ctx context.Context, cred *model.Credential) {
	s.Teardown()
	s.ctx = ctx

	if cred == nil || cred.ActiveToken() == "" {
		if s.state.len() == 0 {
			s.logger.Warn("no token available for catalog stream, loading mock catalog")
			s.loadMock(ctx, "")
		}
		s.state.setLoading(false)
		return
	}

	streamURL := strings.ReplaceAll(s.urlTemplate, TokenPlaceholder, url.PathEscape(cred.ActiveToken()))

	var stream *connection.Stream
	stream = connection.NewStream(
		connection.ClientConfigFor(streamURL, s.streams),
		connection.Handlers{
			OnOpen:    func() { s.onOpen(stream) },
			OnMessage: s.onMessage,
			OnError:   s.onError,
			OnClose:   s.onClose,
		},
		s.d,
		s.logger.With("feed", "catalog"),
	)

	s.stream.Store(stream)
	s.gotSnapshot = false

	if err := stream.Open(ctx); err != nil {
		s.logger.Error("failed to open catalog stream", "error", err)
	}
}

// Teardown closes the catalog stream if it is connecting or open.
func (s *Synchronizer) Teardown() {
	stream := s.stream.Swap(nil)
	if stream == nil {
		return
	}
	switch stream.State() {
	case connection.StateConnecting, connection.StateOpen:
		s.logger.Debug("closing catalog stream", "stream", stream.ID())
		stream.Close()
	}
}

// Clear drops the in-memory catalog and error. The persisted cache is not touched.
func (s *Synchronizer) Clear() {
	s.state.replace(nil)
	s.state.setErr("")
	s.state.setLoading(false)
}

// StreamState reports the catalog stream lifecycle, or Idle when there is none.
func (s *Synchronizer) StreamState() connection.State {
	stream := s.stream.Load()
	if stream == nil {
		return connection.StateIdle
	}
	return stream.State()
}

func (s *Synchronizer) onOpen(stream *connection.Stream) {
	if err := stream.Send(handshake); err != nil {
		s.logger.Warn("failed to send catalog handshake", "error", err)
	}
}

func (s *Synchronizer) onMessage(raw connection.TimestampedMessage) {
	msg, err := s.router.Route(raw.Data, raw.ReceivedAt)
	if err != nil {
		s.logger.Warn("failed to parse catalog message", "error", err)
		s.state.setErr(ErrParse)
		s.state.setLoading(false)
		return
	}
	if msg.Kind != router.KindSymbols {
		return
	}

	s.gotSnapshot = true
	s.state.replace(msg.Instruments)
	s.state.setErr("")
	s.state.setLoading(false)
	s.logger.Info("catalog snapshot received", "instruments", len(msg.Instruments))

	s.persist(s.ctx, msg.Instruments)
	s.applyDefaults(s.ctx)
}

func (s *Synchronizer) onError(err error) {
	s.logger.Warn("catalog stream error", "error", err)
	s.state.setErr(ErrConnection)
}

func (s *Synchronizer) onClose() {
	s.stream.Store(nil)
	if !s.gotSnapshot && s.state.len() == 0 {
		s.logger.Warn("catalog stream closed without a snapshot, loading mock catalog")
		s.loadMock(s.ctx, ErrMockFallback)
	}
	s.state.setLoading(false)
}

func (s *Synchronizer) loadMock(ctx context.Context, errMsg string) {
	mock := MockInstruments()
	s.state.replace(mock)
	s.state.setErr(errMsg)
	s.persist(ctx, mock)
	s.applyDefaults(ctx)
}

func (s *Synchronizer) persist(ctx context.Context, instruments []model.Instrument) {
	if instruments == nil {
		instruments = []model.Instrument{}
	}
	if err := storage.SetJSON(ctx, s.kv, storage.KeyCatalog, instruments); err != nil {
		s.logger.Error("failed to persist catalog", "error", err)
	}
}

func (s *Synchronizer) applyDefaults(ctx context.Context) {
	if s.subs == nil {
		return
	}
	if _, err := s.subs.EnsureDefault(ctx, s.state.symbols()); err != nil {
		s.logger.Warn("failed to apply default subscriptions", "error", err)
	}
}

// Instruments returns a copy of the catalog in snapshot order.
func (s *Synchronizer) Instruments() []model.Instrument {
	return s.state.all()
}

// Instrument looks up one instrument by symbol.
func (s *Synchronizer) Instrument(symbol string) (model.Instrument, bool) {
	return s.state.get(symbol)
}

// Filter returns catalog entries for symbols whose symbol or description
// contains query, ignoring case.
func (s *Synchronizer) Filter(symbols []string, query string) []model.Instrument {
	return s.state.filter(symbols, query)
}

// Err returns the current user-facing error, or "".
func (s *Synchronizer) Err() string {
	return s.state.getErr()
}

// DismissError clears the current error.
func (s *Synchronizer) DismissError() {
	s.state.setErr("")
}

// Loading reports whether the catalog is still being fetched.
func (s *Synchronizer) Loading() bool {
	return s.state.isLoading()
}

// RouterStats exposes frame decoding counters for the catalog stream.
func (s *Synchronizer) RouterStats() router.Stats {
	return s.router.Stats()
}
