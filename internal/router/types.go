package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/rickgao/quotedesk/internal/model"
)

// Kind classifies a routed frame.
type Kind string

const (
	KindSymbols Kind = "symbols" // catalog snapshot
	KindQuote   Kind = "quote"   // single bid/ask update
	KindOther   Kind = "other"   // well-formed but not consumed
)

// Errors
var (
	ErrMalformed      = errors.New("malformed frame")
	ErrMissingPayload = errors.New("missing payload")
)

// Message is a decoded stream frame.
type Message struct {
	Kind       Kind
	Type       string // raw msgType, set for every kind
	ReceivedAt time.Time

	Instruments []model.Instrument // KindSymbols, in snapshot order
	Quote       model.Quote        // KindQuote
}

// Stats contains runtime statistics.
type Stats struct {
	MessagesReceived int64
	MessagesRouted   int64
	ParseErrors      int64
	UnknownMessages  int64
	SkippedEntries   int64 // catalog entries without a symbol name
}

// -----------------------------------------------------------------------------
// Wire formats
// -----------------------------------------------------------------------------

// messageEnvelope is used to extract the message type before full parsing.
type messageEnvelope struct {
	Type string `json:"msgType"`
}

// symbolsWire is {"msgType":"symbols","symbolsArray":[...]}.
type symbolsWire struct {
	Symbols json.RawMessage `json:"symbolsArray"`
}

type symbolEntryWire struct {
	Name         flexString `json:"symbolName"`
	Description  flexString `json:"Description"`
	Group        flexString `json:"Group"`
	SwapShort    flexFloat  `json:"SwapShort"`
	SwapLong     flexFloat  `json:"SwapLong"`
	ContractSize flexFloat  `json:"ContractSize"`
	Currency     flexString `json:"Currency"`
}

// quoteWire is {"msgType":"quote","quoteDetails":{...}}.
type quoteWire struct {
	Details *quoteDetailsWire `json:"quoteDetails"`
}

type quoteDetailsWire struct {
	Symbol       flexString `json:"symbol"`
	Bid          flexString `json:"bid"`
	Ask          flexString `json:"ask"`
	Date         flexString `json:"date"`
	ExchangeName flexString `json:"ExchangeName"`
}

// flexString accepts a JSON string or a bare number (kept verbatim).
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexFloat accepts a JSON number or a numeric string. Anything else decodes to 0.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			v = 0
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		*f = 0
		return nil
	}
	*f = flexFloat(v)
	return nil
}
