// Package model defines shared data types used across quotedesk.
//
// Conventions:
//   - Prices: decimal strings exactly as the quote feed sends them
//   - Timestamps: unix seconds as strings (quote feed), opaque strings (token expiry)
//   - IDs: instrument symbols are the primary key everywhere
package model
