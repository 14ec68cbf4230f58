// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"net/url"

	"golang.org/x/net/websocket"
)

var _ Dialer = WebSocketDialer{}

// WebSocketDialer connects to a collector over a websocket. Messages
// travel as text frames, one JSON-RPC envelope per frame.
type WebSocketDialer struct {
	// Origin is sent in the handshake. Defaults to the collector
	// address with an http(s) scheme.
	Origin string
}

// Dial opens a websocket to address, which must be a ws:// or wss://
// URL.
func (d WebSocketDialer) Dial(ctx context.Context, address string) (Conn, error) {
	origin := d.Origin
	if origin == "" {
		derived, err := originFor(address)
		if err != nil {
			return nil, err
		}
		origin = derived
	}
	config, err := websocket.NewConfig(address, origin)
	if err != nil {
		return nil, fmt.Errorf("collector address %q: %w", address, err)
	}
	conn, err := config.DialContext(ctx)
	if err != nil {
		return nil, err
	}
	conn.PayloadType = websocket.TextFrame
	return &websocketConn{conn: conn}, nil
}

func originFor(address string) (string, error) {
	parsed, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("collector address %q: %w", address, err)
	}
	switch parsed.Scheme {
	case "ws":
		parsed.Scheme = "http"
	case "wss":
		parsed.Scheme = "https"
	default:
		return "", fmt.Errorf("collector address %q: scheme must be ws or wss", address)
	}
	parsed.Path = ""
	parsed.RawQuery = ""
	return parsed.String(), nil
}

type websocketConn struct {
	conn *websocket.Conn
}

func (w *websocketConn) Read() ([]byte, error) {
	var message []byte
	if err := websocket.Message.Receive(w.conn, &message); err != nil {
		return nil, err
	}
	return message, nil
}

func (w *websocketConn) Write(message []byte) error {
	return websocket.Message.Send(w.conn, string(message))
}

func (w *websocketConn) Close() error {
	return w.conn.Close()
}
