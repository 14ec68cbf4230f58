// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
)

// Conn is a message-oriented duplex connection. Each Read returns one
// complete message. Write may be called concurrently with Read but not
// with another Write. Close unblocks a pending Read.
type Conn interface {
	Read() ([]byte, error)
	Write(message []byte) error
	Close() error
}

// Dialer opens connections to a collector address.
type Dialer interface {
	Dial(ctx context.Context, address string) (Conn, error)
}

var (
	// ErrNotConnected is returned by Send while no connection is up.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrConnectionLost is returned to requests that were waiting for
	// a response when the connection dropped.
	ErrConnectionLost = errors.New("transport: connection lost")

	// ErrClosed is returned after Close or CloseNow.
	ErrClosed = errors.New("transport: closed")

	// ErrDuplicateID is returned when a request id is already waiting
	// for a response.
	ErrDuplicateID = errors.New("transport: request id already in flight")
)
