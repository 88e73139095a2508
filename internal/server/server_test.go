package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/quotedesk/internal/model"
	"github.com/rickgao/quotedesk/internal/session"
	"github.com/rickgao/quotedesk/internal/terminal"
)

type fakeTerminal struct {
	cred      *model.Credential
	symbols   []string
	dismissed bool
	logoutErr error
	filter    string
}

func (f *fakeTerminal) Login(_ context.Context, identifier, secret string) (model.Credential, error) {
	if secret != "secret" {
		return model.Credential{}, &session.AuthError{Reason: "Invalid password"}
	}
	f.cred = &model.Credential{Token: "T1", Expiry: "2030-01-01"}
	return *f.cred, nil
}

func (f *fakeTerminal) Logout(context.Context) error {
	f.cred = nil
	return f.logoutErr
}

func (f *fakeTerminal) Toggle(_ context.Context, symbol string) ([]string, error) {
	if i := slices.Index(f.symbols, symbol); i >= 0 {
		f.symbols = slices.Delete(f.symbols, i, i+1)
	} else {
		f.symbols = append(f.symbols, symbol)
	}
	return slices.Clone(f.symbols), nil
}

func (f *fakeTerminal) DismissCatalogError() { f.dismissed = true }

func (f *fakeTerminal) Credential() (model.Credential, bool) {
	if f.cred == nil {
		return model.Credential{}, false
	}
	return *f.cred, true
}

func (f *fakeTerminal) SessionLoading() bool { return false }

func (f *fakeTerminal) Instruments() []model.Instrument {
	return []model.Instrument{{Symbol: "EURUSD"}, {Symbol: "BTCUSD"}}
}

func (f *fakeTerminal) Subscriptions() []string { return slices.Clone(f.symbols) }

func (f *fakeTerminal) SubscribedInstruments(filter string) []terminal.Row {
	f.filter = filter
	return []terminal.Row{{
		Instrument: model.Instrument{Symbol: "EURUSD"},
		Quote:      &model.Quote{Symbol: "EURUSD", Bid: "1.1", Ask: "1.2"},
		Spread:     "0.1",
	}}
}

func (f *fakeTerminal) Status() terminal.Status {
	return terminal.Status{LoggedIn: f.cred != nil, Subscriptions: len(f.symbols)}
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	term := &fakeTerminal{symbols: []string{"EURUSD"}}
	s := New(":0", term, nil, false)

	rec := do(t, s, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	st := decode[terminal.Status](t, rec)
	if st.Subscriptions != 1 || st.LoggedIn {
		t.Errorf("status = %+v", st)
	}
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantMsg    string
	}{
		{"ok", `{"email":"a@b.com","password":"secret"}`, http.StatusOK, ""},
		{"rejected", `{"email":"a@b.com","password":"nope"}`, http.StatusUnauthorized, "Invalid password"},
		{"missing password", `{"email":"a@b.com"}`, http.StatusBadRequest, "email and password are required"},
		{"not json", `email=a`, http.StatusBadRequest, "email and password are required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(":0", &fakeTerminal{}, nil, false)
			rec := do(t, s, http.MethodPost, "/api/login", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantMsg == "" {
				resp := decode[sessionResponse](t, rec)
				if !resp.LoggedIn || resp.Expiry != "2030-01-01" {
					t.Errorf("response = %+v", resp)
				}
				return
			}
			if got := decode[apiError](t, rec).Message; got != tt.wantMsg {
				t.Errorf("message = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestSession(t *testing.T) {
	term := &fakeTerminal{}
	s := New(":0", term, nil, false)

	if resp := decode[sessionResponse](t, do(t, s, http.MethodGet, "/api/session", "")); resp.LoggedIn {
		t.Errorf("logged out session = %+v", resp)
	}

	term.cred = &model.Credential{Token: "T", Expiry: "E"}
	resp := decode[sessionResponse](t, do(t, s, http.MethodGet, "/api/session", ""))
	if !resp.LoggedIn || resp.Expiry != "E" {
		t.Errorf("logged in session = %+v", resp)
	}
}

func TestLogout(t *testing.T) {
	term := &fakeTerminal{}
	s := New(":0", term, nil, false)

	if rec := do(t, s, http.MethodPost, "/api/logout", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("logged out: status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	term.cred = &model.Credential{Token: "T"}
	if rec := do(t, s, http.MethodPost, "/api/logout", ""); rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if term.cred != nil {
		t.Error("credential still set after logout")
	}

	term.cred = &model.Credential{Token: "T"}
	term.logoutErr = errors.New("storage down")
	if rec := do(t, s, http.MethodPost, "/api/logout", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("failing logout: status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestToggle(t *testing.T) {
	term := &fakeTerminal{symbols: []string{"EURUSD", "USDJPY"}}
	s := New(":0", term, nil, false)

	rec := do(t, s, http.MethodPost, "/api/subscriptions/USDJPY/toggle", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	got := decode[struct{ Symbols []string }](t, rec).Symbols
	if !slices.Equal(got, []string{"EURUSD"}) {
		t.Errorf("symbols = %v, want [EURUSD]", got)
	}

	got = decode[struct{ Symbols []string }](t, do(t, s, http.MethodGet, "/api/subscriptions", "")).Symbols
	if !slices.Equal(got, []string{"EURUSD"}) {
		t.Errorf("GET subscriptions = %v, want [EURUSD]", got)
	}
}

func TestQuotes(t *testing.T) {
	term := &fakeTerminal{}
	s := New(":0", term, nil, false)

	rec := do(t, s, http.MethodGet, "/api/quotes?filter=eur", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if term.filter != "eur" {
		t.Errorf("filter = %q, want %q", term.filter, "eur")
	}
	rows := decode[struct{ Rows []terminal.Row }](t, rec).Rows
	if len(rows) != 1 || rows[0].Symbol != "EURUSD" || rows[0].Spread != "0.1" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestSymbolsAndDismiss(t *testing.T) {
	term := &fakeTerminal{}
	s := New(":0", term, nil, false)

	rec := do(t, s, http.MethodGet, "/api/symbols", "")
	syms := decode[struct{ Symbols []model.Instrument }](t, rec).Symbols
	if len(syms) != 2 {
		t.Errorf("len(symbols) = %d, want 2", len(syms))
	}

	if rec := do(t, s, http.MethodDelete, "/api/errors/catalog", ""); rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if !term.dismissed {
		t.Error("DismissCatalogError not called")
	}
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	s := New("127.0.0.1:0", &fakeTerminal{}, nil, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
