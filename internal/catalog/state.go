package catalog

import (
	"slices"
	"strings"
	"sync"

	"github.com/rickgao/quotedesk/internal/model"
	"golang.org/x/text/cases"
)

// catalogState holds the in-memory catalog with thread-safe access.
type catalogState struct {
	mu sync.RWMutex

	instruments []model.Instrument // snapshot order
	bySymbol    map[string]int     // symbol -> index into instruments
	err         string
	loading     bool
}

func newState() *catalogState {
	return &catalogState{
		bySymbol: make(map[string]int),
		loading:  true,
	}
}

// replace swaps the whole catalog. Later duplicates of a symbol win the index.
func (s *catalogState) replace(instruments []model.Instrument) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.instruments = slices.Clone(instruments)
	s.bySymbol = make(map[string]int, len(instruments))
	for i, inst := range s.instruments {
		s.bySymbol[inst.Symbol] = i
	}
}

func (s *catalogState) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.instruments)
}

func (s *catalogState) all() []model.Instrument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.instruments)
}

func (s *catalogState) symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.instruments))
	for i, inst := range s.instruments {
		out[i] = inst.Symbol
	}
	return out
}

func (s *catalogState) get(symbol string) (model.Instrument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.bySymbol[symbol]
	if !ok {
		return model.Instrument{}, false
	}
	return s.instruments[i], true
}

func (s *catalogState) setErr(msg string) {
	s.mu.Lock()
	s.err = msg
	s.mu.Unlock()
}

func (s *catalogState) getErr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *catalogState) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

func (s *catalogState) isLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// filter returns the instruments named in symbols, in the order given, whose
// symbol or description contains query under Unicode case folding. Symbols
// missing from the catalog are skipped.
func (s *catalogState) filter(symbols []string, query string) []model.Instrument {
	fold := cases.Fold()
	q := fold.String(strings.TrimSpace(query))

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Instrument, 0, len(symbols))
	for _, sym := range symbols {
		i, ok := s.bySymbol[sym]
		if !ok {
			continue
		}
		inst := s.instruments[i]
		if q == "" ||
			strings.Contains(fold.String(inst.Symbol), q) ||
			strings.Contains(fold.String(inst.Description), q) {
			out = append(out, inst)
		}
	}
	return out
}
