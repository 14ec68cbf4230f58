// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport owns the duplex message connection to the
// telemetry collector and correlates JSON-RPC responses with the
// requests that produced them.
//
// A Client keeps one connection alive for its whole lifetime. A
// supervisor goroutine dials, runs the read loop until the connection
// drops, and dials again, waiting a fixed window between failed
// attempts. Transitions are published on Events:
//
//   - Connected after the first successful dial
//   - LostConnection when an established connection drops
//   - Reconnected after every later successful dial
//
// Each outgoing request registers a single-slot channel under its id
// in the pending map before the payload is written. The read loop
// delivers each decoded response to the slot with the matching id, so
// responses may arrive in any order. Responses with no waiting slot
// are logged and dropped. When the connection drops every waiting
// request fails with ErrConnectionLost.
//
// The physical channel is pluggable through Dialer. WebSocketDialer
// speaks text-frame websockets; MemoryNetwork connects a Client to an
// in-process collector for tests.
package transport
