// Package router decodes catalog and quote stream frames into typed messages.
package router

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/quotedesk/internal/model"
)

// Missing-field defaults for catalog entries.
const (
	DefaultString = "N/A"
	descSuffix    = " description"
)

// Router parses raw frames. It is safe for concurrent use.
type Router struct {
	logger *slog.Logger

	mu              sync.RWMutex
	received        int64
	routed          int64
	parseErrors     int64
	unknownMessages int64
	skippedEntries  int64
}

// New creates a router.
func New(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{logger: logger}
}

// Stats returns current statistics.
func (r *Router) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		MessagesReceived: r.received,
		MessagesRouted:   r.routed,
		ParseErrors:      r.parseErrors,
		UnknownMessages:  r.unknownMessages,
		SkippedEntries:   r.skippedEntries,
	}
}

// Route decodes one frame. Frames that are valid JSON but carry a msgType
// other than "symbols" or "quote" come back as KindOther with a nil error.
func (r *Router) Route(data []byte, receivedAt time.Time) (Message, error) {
	r.mu.Lock()
	r.received++
	r.mu.Unlock()

	msgType, err := r.extractType(data)
	if err != nil {
		r.countParseError()
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	msg := Message{Type: msgType, ReceivedAt: receivedAt}

	switch msgType {
	case string(KindSymbols):
		instruments, skipped, err := parseSymbols(data)
		if err != nil {
			r.countParseError()
			return Message{}, err
		}
		msg.Kind = KindSymbols
		msg.Instruments = instruments
		if skipped > 0 {
			r.logger.Debug("skipped catalog entries without symbol name", "count", skipped)
			r.mu.Lock()
			r.skippedEntries += int64(skipped)
			r.mu.Unlock()
		}

	case string(KindQuote):
		quote, err := parseQuote(data)
		if err != nil {
			r.countParseError()
			return Message{}, err
		}
		msg.Kind = KindQuote
		msg.Quote = quote

	default:
		r.logger.Debug("skipping message type", "type", msgType)
		r.mu.Lock()
		r.unknownMessages++
		r.mu.Unlock()
		msg.Kind = KindOther
		return msg, nil
	}

	r.mu.Lock()
	r.routed++
	r.mu.Unlock()

	return msg, nil
}

func (r *Router) countParseError() {
	r.mu.Lock()
	r.parseErrors++
	r.mu.Unlock()
}

// extractType extracts the message type without full JSON parse.
func (r *Router) extractType(data []byte) (string, error) {
	var envelope messageEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", err
	}
	return envelope.Type, nil
}

// parseSymbols decodes a catalog snapshot, applying field defaults.
// Entries without a symbol name are dropped and counted.
func parseSymbols(data []byte) ([]model.Instrument, int, error) {
	var wire symbolsWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(wire.Symbols) == 0 || string(wire.Symbols) == "null" {
		return nil, 0, fmt.Errorf("%w: symbolsArray", ErrMissingPayload)
	}

	var entries []symbolEntryWire
	if err := json.Unmarshal(wire.Symbols, &entries); err != nil {
		return nil, 0, fmt.Errorf("%w: symbolsArray: %v", ErrMalformed, err)
	}

	instruments := make([]model.Instrument, 0, len(entries))
	skipped := 0
	for _, e := range entries {
		if e.Name == "" {
			skipped++
			continue
		}
		instruments = append(instruments, toInstrument(e))
	}
	return instruments, skipped, nil
}

func toInstrument(e symbolEntryWire) model.Instrument {
	symbol := string(e.Name)

	desc := string(e.Description)
	if desc == "" {
		desc = symbol + descSuffix
	}

	return model.Instrument{
		Symbol:       symbol,
		Group:        orDefault(e.Group),
		Description:  desc,
		SwapShort:    float64(e.SwapShort),
		SwapLong:     float64(e.SwapLong),
		ContractSize: float64(e.ContractSize),
		Currency:     orDefault(e.Currency),
	}
}

func orDefault(s flexString) string {
	if s == "" {
		return DefaultString
	}
	return string(s)
}

// parseQuote decodes a quote frame. A quote without a symbol is malformed.
func parseQuote(data []byte) (model.Quote, error) {
	var wire quoteWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return model.Quote{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if wire.Details == nil {
		return model.Quote{}, fmt.Errorf("%w: quoteDetails", ErrMissingPayload)
	}
	if wire.Details.Symbol == "" {
		return model.Quote{}, fmt.Errorf("%w: quoteDetails.symbol", ErrMissingPayload)
	}

	d := wire.Details
	return model.Quote{
		Symbol:       string(d.Symbol),
		Bid:          string(d.Bid),
		Ask:          string(d.Ask),
		Timestamp:    string(d.Date),
		ExchangeName: string(d.ExchangeName),
	}, nil
}
