// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "time"

// EventKind identifies a connection transition.
type EventKind int

const (
	// Connected is published once, after the first successful dial.
	Connected EventKind = iota + 1

	// LostConnection is published when an established connection
	// drops while the client is open.
	LostConnection

	// Reconnected is published after each successful dial that
	// follows a LostConnection.
	Reconnected
)

func (k EventKind) String() string {
	switch k {
	case Connected:
		return "connected"
	case LostConnection:
		return "lost-connection"
	case Reconnected:
		return "reconnected"
	default:
		return "unknown"
	}
}

// Event is a connection transition observed at At.
type Event struct {
	Kind EventKind
	At   time.Time
}
