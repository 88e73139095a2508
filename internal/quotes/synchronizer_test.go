package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rickgao/quotedesk/internal/config"
	"github.com/rickgao/quotedesk/internal/connection"
	"github.com/rickgao/quotedesk/internal/eventloop"
)

type harness struct {
	t        *testing.T
	loop     *eventloop.Loop
	sync     *Synchronizer
	requests chan tickersRequest
	dials    atomic.Int32
}

// newHarness starts a quote server. handler runs per connection after the
// subscription request has been read; n is the 1-based connection number.
func newHarness(t *testing.T, reconnect time.Duration, handler func(conn *websocket.Conn, n int32, req tickersRequest)) *harness {
	t.Helper()

	h := &harness{t: t, requests: make(chan tickersRequest, 16)}

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := h.dials.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req tickersRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		h.requests <- req
		handler(conn, n, req)
	}))
	t.Cleanup(server.Close)

	h.loop = eventloop.New(64, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.loop.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.loop.Done()
	})

	streams := config.StreamsConfig{HandshakeTimeout: time.Second, WriteTimeout: time.Second, BufferSize: 16}
	backoff := config.QuotesConfig{ReconnectBaseDelay: reconnect, ReconnectMaxDelay: time.Second}
	h.sync = New("ws"+strings.TrimPrefix(server.URL, "http"), streams, backoff, h.loop, nil)
	t.Cleanup(func() {
		h.loop.Do(context.Background(), h.sync.Teardown)
	})
	return h
}

func (h *harness) resync(symbols ...string) {
	h.t.Helper()
	if err := h.loop.Do(context.Background(), func() { h.sync.Resync(context.Background(), symbols) }); err != nil {
		h.t.Fatalf("loop.Do failed: %v", err)
	}
}

func (h *harness) nextRequest() tickersRequest {
	h.t.Helper()
	select {
	case req := <-h.requests:
		return req
	case <-time.After(2 * time.Second):
		h.t.Fatal("timeout waiting for subscription request")
		return tickersRequest{}
	}
}

func (h *harness) eventually(what string, cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ok := false
		h.loop.Do(context.Background(), func() { ok = cond() })
		if ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.t.Fatalf("timeout waiting for %s", what)
}

func quoteFrame(symbol, bid, ask string) []byte {
	return []byte(fmt.Sprintf(
		`{"msgType":"quote","quoteDetails":{"symbol":%q,"bid":%q,"ask":%q,"date":"1700000000","ExchangeName":"FX"}}`,
		symbol, bid, ask,
	))
}

func holdOpen(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestResync_SubscribesAndUpdates(t *testing.T) {
	h := newHarness(t, -1, func(conn *websocket.Conn, n int32, req tickersRequest) {
		for _, sym := range req.Symbols {
			conn.WriteMessage(websocket.TextMessage, quoteFrame(sym, "1.0", "1.1"))
		}
		conn.WriteMessage(websocket.TextMessage, quoteFrame("GBPUSD", "9", "9"))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"msgType":"heartbeat"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		conn.WriteMessage(websocket.TextMessage, quoteFrame("EURUSD", "1.2", "1.3"))
		holdOpen(conn)
	})

	h.resync("EURUSD", "USDJPY")

	req := h.nextRequest()
	if req.RequestType != "tickers" {
		t.Errorf("requestType = %q, want tickers", req.RequestType)
	}
	if !slices.Equal(req.Symbols, []string{"EURUSD", "USDJPY"}) {
		t.Errorf("symbols = %v, want [EURUSD USDJPY]", req.Symbols)
	}

	h.eventually("latest EURUSD quote", func() bool {
		q, ok := h.sync.Quote("EURUSD")
		return ok && q.Bid == "1.2"
	})

	quotes := h.sync.Quotes()
	if len(quotes) != 2 {
		t.Errorf("table has %d entries, want 2: %v", len(quotes), quotes)
	}
	if _, ok := quotes["GBPUSD"]; ok {
		t.Error("quote for unsubscribed GBPUSD kept")
	}
	if h.sync.State() != connection.StateOpen {
		t.Errorf("State = %v, want open", h.sync.State())
	}
}

func TestResync_ChangeDropsRemovedSymbols(t *testing.T) {
	h := newHarness(t, -1, func(conn *websocket.Conn, n int32, req tickersRequest) {
		if n == 1 {
			for _, sym := range req.Symbols {
				conn.WriteMessage(websocket.TextMessage, quoteFrame(sym, "1", "2"))
			}
		}
		holdOpen(conn)
	})

	h.resync("EURUSD", "USDJPY")
	h.nextRequest()
	h.eventually("both quotes", func() bool { return len(h.sync.Quotes()) == 2 })

	var afterResync map[string]bool
	h.loop.Do(context.Background(), func() {
		h.sync.Resync(context.Background(), []string{"EURUSD"})
		afterResync = map[string]bool{}
		for sym := range h.sync.Quotes() {
			afterResync[sym] = true
		}
	})

	if afterResync["USDJPY"] {
		t.Error("USDJPY quote survived the resync that removed it")
	}
	if !afterResync["EURUSD"] {
		t.Error("EURUSD quote dropped although still subscribed")
	}

	req := h.nextRequest()
	if !slices.Equal(req.Symbols, []string{"EURUSD"}) {
		t.Errorf("second request symbols = %v, want [EURUSD]", req.Symbols)
	}
	if got := h.dials.Load(); got != 2 {
		t.Errorf("dials = %d, want 2", got)
	}
}

func TestResync_UnchangedSetIsNoop(t *testing.T) {
	h := newHarness(t, -1, func(conn *websocket.Conn, n int32, req tickersRequest) {
		holdOpen(conn)
	})

	h.resync("EURUSD", "USDJPY")
	h.nextRequest()
	h.eventually("open stream", func() bool { return h.sync.State() == connection.StateOpen })

	h.resync("USDJPY", "EURUSD")

	time.Sleep(50 * time.Millisecond)
	if got := h.dials.Load(); got != 1 {
		t.Errorf("dials = %d, want 1", got)
	}
}

func TestResync_EmptyClearsEverything(t *testing.T) {
	h := newHarness(t, -1, func(conn *websocket.Conn, n int32, req tickersRequest) {
		conn.WriteMessage(websocket.TextMessage, quoteFrame("EURUSD", "1", "2"))
		holdOpen(conn)
	})

	h.resync("EURUSD")
	h.nextRequest()
	h.eventually("quote", func() bool { return len(h.sync.Quotes()) == 1 })

	h.resync()

	if n := len(h.sync.Quotes()); n != 0 {
		t.Errorf("table has %d entries after empty resync, want 0", n)
	}
	if h.sync.State() != connection.StateIdle {
		t.Errorf("State = %v, want idle", h.sync.State())
	}
	if len(h.sync.Symbols()) != 0 {
		t.Errorf("Symbols = %v, want empty", h.sync.Symbols())
	}
}

func TestReconnect(t *testing.T) {
	h := newHarness(t, 10*time.Millisecond, func(conn *websocket.Conn, n int32, req tickersRequest) {
		if n == 1 {
			conn.UnderlyingConn().Close()
			return
		}
		holdOpen(conn)
	})

	h.resync("EURUSD")
	h.nextRequest()

	req := h.nextRequest()
	if !slices.Equal(req.Symbols, []string{"EURUSD"}) {
		t.Errorf("reconnect symbols = %v, want [EURUSD]", req.Symbols)
	}
	h.eventually("reopened stream", func() bool { return h.sync.State() == connection.StateOpen })

	if h.sync.Err() == nil {
		t.Error("Err = nil, want the stream error recorded")
	}
}

func TestTeardown_CancelsReconnect(t *testing.T) {
	h := newHarness(t, 200*time.Millisecond, func(conn *websocket.Conn, n int32, req tickersRequest) {
		conn.UnderlyingConn().Close()
	})

	h.resync("EURUSD")
	h.nextRequest()
	h.eventually("closed stream", func() bool { return h.sync.State() == connection.StateIdle })

	h.loop.Do(context.Background(), h.sync.Teardown)

	time.Sleep(400 * time.Millisecond)
	if got := h.dials.Load(); got != 1 {
		t.Errorf("dials = %d, want 1 (reconnect should be cancelled)", got)
	}
}

func TestReconnectDisabled(t *testing.T) {
	h := newHarness(t, -1, func(conn *websocket.Conn, n int32, req tickersRequest) {
		conn.UnderlyingConn().Close()
	})

	h.resync("EURUSD")
	h.nextRequest()

	time.Sleep(100 * time.Millisecond)
	if got := h.dials.Load(); got != 1 {
		t.Errorf("dials = %d, want 1", got)
	}
}

func TestDelay(t *testing.T) {
	s := &Synchronizer{backoff: config.QuotesConfig{
		ReconnectBaseDelay: time.Second,
		ReconnectMaxDelay:  5 * time.Second,
	}}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for attempt, w := range want {
		if got := s.delay(attempt); got != w {
			t.Errorf("delay(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestTickersRequestWireFormat(t *testing.T) {
	data, err := json.Marshal(tickersRequest{RequestType: "tickers", Symbols: []string{"EURUSD"}})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"requestType":"tickers","symbols":["EURUSD"]}` {
		t.Errorf("wire = %s", data)
	}
}
