// Package subscription maintains the persisted set of subscribed symbols.
//
// The set is ordered by insertion and may name symbols the catalog has not
// loaded yet. Every change is persisted before observers are notified.
package subscription

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/rickgao/quotedesk/internal/storage"
)

// Manager owns the subscription set. Mutations are expected to come from a
// single goroutine; accessors are safe from any goroutine.
type Manager struct {
	kv           storage.Store
	defaultCount int
	logger       *slog.Logger

	mu        sync.RWMutex
	symbols   []string
	defaulted bool
	observers []func([]string)
}

// New creates a manager that defaults to the first defaultCount catalog symbols.
func New(kv storage.Store, defaultCount int, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		kv:           kv,
		defaultCount: defaultCount,
		logger:       logger,
	}
}

// OnChange registers fn to receive the new set after every change.
func (m *Manager) OnChange(fn func(symbols []string)) {
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

// Load replaces the in-memory set with the persisted one. A missing or
// unreadable cache leaves an empty set.
func (m *Manager) Load(ctx context.Context) error {
	var symbols []string
	ok, err := storage.GetJSON(ctx, m.kv, storage.KeySubscriptions, &symbols)
	if err != nil {
		m.logger.Warn("failed to load subscriptions", "error", err)
	}
	if !ok {
		symbols = nil
	}

	m.mu.Lock()
	m.symbols = dedupe(symbols)
	m.mu.Unlock()

	m.logger.Debug("subscriptions loaded", "count", len(symbols))
	return err
}

// Toggle removes symbol if subscribed, otherwise appends it. The new set is
// persisted and observers are notified. The in-memory change stands even
// when persisting fails.
func (m *Manager) Toggle(ctx context.Context, symbol string) ([]string, error) {
	m.mu.Lock()
	if i := slices.Index(m.symbols, symbol); i >= 0 {
		m.symbols = slices.Delete(slices.Clone(m.symbols), i, i+1)
	} else {
		m.symbols = append(slices.Clone(m.symbols), symbol)
	}
	next := slices.Clone(m.symbols)
	m.mu.Unlock()

	err := m.persist(ctx, next)
	m.notify(next)
	return next, err
}

// EnsureDefault subscribes to the first defaultCount catalog symbols when no
// subscription cache exists yet. It applies at most once per Reset; an empty
// catalog does not use up the chance.
func (m *Manager) EnsureDefault(ctx context.Context, catalog []string) (bool, error) {
	m.mu.RLock()
	done := m.defaulted
	m.mu.RUnlock()

	if done || len(catalog) == 0 {
		return false, nil
	}

	_, cached, err := m.kv.Get(ctx, storage.KeySubscriptions)
	if err != nil {
		// Leave the guard armed so a later snapshot can retry.
		return false, err
	}

	m.mu.Lock()
	m.defaulted = true
	m.mu.Unlock()

	if cached {
		return false, nil
	}

	n := min(m.defaultCount, len(catalog))
	next := dedupe(catalog[:n])

	m.mu.Lock()
	m.symbols = next
	m.mu.Unlock()

	m.logger.Info("applied default subscriptions", "symbols", next)

	err = m.persist(ctx, next)
	m.notify(slices.Clone(next))
	return true, err
}

// Reset clears the set and re-arms the default guard. Nothing is persisted.
func (m *Manager) Reset() {
	m.mu.Lock()
	had := len(m.symbols) > 0
	m.symbols = nil
	m.defaulted = false
	m.mu.Unlock()

	if had {
		m.notify(nil)
	}
}

// IsSubscribed reports whether symbol is in the set.
func (m *Manager) IsSubscribed(symbol string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Contains(m.symbols, symbol)
}

// Symbols returns a copy of the set in subscription order.
func (m *Manager) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.symbols)
}

func (m *Manager) persist(ctx context.Context, symbols []string) error {
	if symbols == nil {
		symbols = []string{}
	}
	if err := storage.SetJSON(ctx, m.kv, storage.KeySubscriptions, symbols); err != nil {
		m.logger.Error("failed to persist subscriptions", "error", err)
		return err
	}
	return nil
}

func (m *Manager) notify(symbols []string) {
	m.mu.RLock()
	observers := slices.Clone(m.observers)
	m.mu.RUnlock()

	for _, fn := range observers {
		fn(slices.Clone(symbols))
	}
}

// dedupe keeps the first occurrence of each symbol.
func dedupe(symbols []string) []string {
	if len(symbols) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
