package model

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Session Types
// -----------------------------------------------------------------------------

// Credential identifies a logged-in session.
type Credential struct {
	Token          string // Primary (acs) token
	Expiry         string // Token expiry as reported by the login endpoint
	SecondaryToken string // Optional (utip) token, preferred for streaming
}

// ActiveToken returns the token used to open the catalog stream.
func (c Credential) ActiveToken() string {
	if c.SecondaryToken != "" {
		return c.SecondaryToken
	}
	return c.Token
}

// -----------------------------------------------------------------------------
// Catalog Types
// -----------------------------------------------------------------------------

// Instrument represents a tradable symbol from the catalog feed.
// JSON field names match the persisted catalog cache.
type Instrument struct {
	Symbol       string  `json:"Symbol"` // Primary key (e.g., "EURUSD")
	Group        string  `json:"Group"`  // e.g., "Forex", "Crypto"
	Description  string  `json:"Description"`
	SwapShort    float64 `json:"SwapShort"`
	SwapLong     float64 `json:"SwapLong"`
	ContractSize float64 `json:"ContractSize"`
	Currency     string  `json:"Currency"`
}

// -----------------------------------------------------------------------------
// Quote Types
// -----------------------------------------------------------------------------

// Quote is the latest bid/ask for one instrument.
type Quote struct {
	Symbol       string `json:"symbol"`
	Bid          string `json:"bid"`
	Ask          string `json:"ask"`
	Timestamp    string `json:"date"` // Unix seconds
	ExchangeName string `json:"ExchangeName"`
}

// Spread returns ask minus bid.
func (q Quote) Spread() (decimal.Decimal, error) {
	bid, err := decimal.NewFromString(q.Bid)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse bid %q: %w", q.Bid, err)
	}
	ask, err := decimal.NewFromString(q.Ask)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse ask %q: %w", q.Ask, err)
	}
	return ask.Sub(bid), nil
}

// Time returns the quote timestamp. ok is false when the feed sent
// something other than unix seconds.
func (q Quote) Time() (t time.Time, ok bool) {
	secs, err := strconv.ParseInt(q.Timestamp, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(secs, 0), true
}
