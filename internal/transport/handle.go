// Package transport models the WebSocket send side as a capability rather
// than a concrete connection type, per the design note that the router
// should never know which of the two supported WebSocket libraries backed a
// given session. Two variants implement Handle: gorilla/websocket (the
// primary /ws endpoint) and nhooyr.io/websocket (the /ws2 endpoint). The
// /monitoring/ws endpoint also uses nhooyr.io/websocket, but writes to its
// connection directly rather than through a Handle. Both Handle variants
// serialize concurrent writers with a per-handle mutex.
package transport

import "encoding/json"

// Handle is the uniform capability a SignalingSession and MessageRouter hold
// over a WebSocket, independent of which library accepted the connection.
type Handle interface {
	// Send writes one text frame.
	Send(text string) error
	// SendJSON marshals v and writes it as one text frame.
	SendJSON(v any) error
	// Ping writes a control ping frame.
	Ping() error
	// Close closes the underlying connection.
	Close() error
	// ID is a stable identity for equality checks (e.g. "is this peer's
	// handle the one broadcasting right now").
	ID() string
}

func marshalOrErr(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
