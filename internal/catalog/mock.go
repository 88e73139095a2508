package catalog

import "github.com/rickgao/quotedesk/internal/model"

// mockInstruments is served when no live catalog can be obtained.
var mockInstruments = []model.Instrument{
	{Symbol: "EURUSD", Group: "Forex", Description: "Euro vs US Dollar", SwapShort: -0.8, SwapLong: -0.7, ContractSize: 100000, Currency: "USD"},
	{Symbol: "USDJPY", Group: "Forex", Description: "US Dollar vs Japanese Yen", SwapShort: -0.4, SwapLong: -0.3, ContractSize: 100000, Currency: "JPY"},
	{Symbol: "GBPUSD", Group: "Forex", Description: "British Pound vs US Dollar", SwapShort: -0.6, SwapLong: -0.5, ContractSize: 100000, Currency: "USD"},
	{Symbol: "BTCUSD", Group: "Crypto", Description: "Bitcoin vs US Dollar", SwapShort: -25.0, SwapLong: -22.5, ContractSize: 1, Currency: "USD"},
	{Symbol: "ETHUSD", Group: "Crypto", Description: "Ethereum vs US Dollar", SwapShort: -1.5, SwapLong: -1.2, ContractSize: 1, Currency: "USD"},
}

// MockInstruments returns a copy of the built-in fallback catalog.
func MockInstruments() []model.Instrument {
	out := make([]model.Instrument, len(mockInstruments))
	copy(out, mockInstruments)
	return out
}
