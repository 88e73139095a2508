// Package connection wraps gorilla/websocket for the catalog and quote feeds.
//
// Client is a raw connection: dial, a read loop feeding a message channel,
// a heartbeat that pings the server and flags stale links.
//
// Stream layers the Idle → Connecting → Open → Closed lifecycle on top of a
// Client and delivers every event through a Dispatcher, so handlers always
// run on the caller's event loop. Closing a Stream detaches its handlers:
// nothing fires after Close returns.
package connection
