package terminal

import (
	"github.com/rickgao/quotedesk/internal/model"
	"github.com/shopspring/decimal"
)

// Row is one subscribed instrument with its latest quote, if any.
type Row struct {
	model.Instrument
	Quote  *model.Quote `json:"quote,omitempty"`
	Spread string       `json:"spread,omitempty"`
}

// Status summarizes the client for health checks and periodic logging.
type Status struct {
	LoggedIn       bool   `json:"logged_in"`
	SessionLoading bool   `json:"session_loading"`
	Instruments    int    `json:"instruments"`
	CatalogLoading bool   `json:"catalog_loading"`
	CatalogStream  string `json:"catalog_stream"`
	CatalogError   string `json:"catalog_error,omitempty"`
	Subscriptions  int    `json:"subscriptions"`
	QuoteStream    string `json:"quote_stream"`
	Quotes         int    `json:"quotes"`
	QuoteError     string `json:"quote_error,omitempty"`
}

// Credential returns the current credential, if logged in.
func (c *Client) Credential() (model.Credential, bool) {
	return c.session.Credential()
}

// SessionLoading reports whether a restore or login is in flight.
func (c *Client) SessionLoading() bool {
	return c.session.Loading()
}

// Instruments returns the full catalog.
func (c *Client) Instruments() []model.Instrument {
	return c.catalog.Instruments()
}

// CatalogError returns the catalog warning, or "".
func (c *Client) CatalogError() string {
	return c.catalog.Err()
}

// CatalogLoading reports whether the catalog is still being fetched.
func (c *Client) CatalogLoading() bool {
	return c.catalog.Loading()
}

// Subscriptions returns the subscription set in order.
func (c *Client) Subscriptions() []string {
	return c.subs.Symbols()
}

// IsSubscribed reports whether symbol is subscribed.
func (c *Client) IsSubscribed(symbol string) bool {
	return c.subs.IsSubscribed(symbol)
}

// Quotes returns a copy of the quote table.
func (c *Client) Quotes() map[string]model.Quote {
	return c.quotes.Quotes()
}

// SubscribedInstruments returns the subscribed instruments known to the
// catalog, in subscription order, narrowed by filter (symbol or description,
// case-insensitive), each joined with its latest quote.
func (c *Client) SubscribedInstruments(filter string) []Row {
	instruments := c.catalog.Filter(c.subs.Symbols(), filter)

	rows := make([]Row, 0, len(instruments))
	for _, inst := range instruments {
		row := Row{Instrument: inst}
		if q, ok := c.quotes.Quote(inst.Symbol); ok {
			row.Quote = &q
			if spread, err := q.Spread(); err == nil {
				row.Spread = spread.StringFixed(spreadPlaces(q))
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// spreadPlaces uses the finer of the bid/ask precisions.
func spreadPlaces(q model.Quote) int32 {
	var places int32
	for _, s := range []string{q.Bid, q.Ask} {
		d, err := decimal.NewFromString(s)
		if err != nil {
			continue
		}
		if p := -d.Exponent(); p > places {
			places = p
		}
	}
	return places
}

// Status returns a snapshot of every component.
func (c *Client) Status() Status {
	st := Status{
		LoggedIn:       c.isLoggedIn(),
		SessionLoading: c.session.Loading(),
		Instruments:    len(c.catalog.Instruments()),
		CatalogLoading: c.catalog.Loading(),
		CatalogStream:  c.catalog.StreamState().String(),
		CatalogError:   c.catalog.Err(),
		Subscriptions:  len(c.subs.Symbols()),
		QuoteStream:    c.quotes.State().String(),
		Quotes:         len(c.quotes.Quotes()),
	}
	if err := c.quotes.Err(); err != nil {
		st.QuoteError = err.Error()
	}
	return st
}
