// Package client implements the Connection Manager.
//
// The Connection Manager:
//   - Owns a single WebSocket transport and its heartbeat
//   - Reconnects with exponential backoff after unexpected closes
//   - Tracks the channels the client has subscribed to
//   - Dispatches inbound events to listeners registered per event type
package client
