// Package api provides the REST client for the trading platform's login endpoint.
//
// Endpoint:
//   - POST https://dev-virt-point.utip.work/v3/login
//
// The returned acs token (or the optional utip token) is what the catalog
// WebSocket expects in its URL path.
package api
