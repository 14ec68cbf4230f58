// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"io"
	"sync"
)

var _ Dialer = (*MemoryNetwork)(nil)

// ErrRefused is returned by MemoryNetwork.Dial while the network is
// refusing connections.
var ErrRefused = errors.New("transport: connection refused")

// MemoryNetwork is an in-process Dialer for tests. Every Dial creates
// a connected pair and hands the far end to Accept, where a test
// collector reads requests and writes responses.
type MemoryNetwork struct {
	mu       sync.Mutex
	refusing bool
	accepted chan Conn
}

// NewMemoryNetwork returns a network that accepts connections.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{accepted: make(chan Conn, 16)}
}

// SetRefusing makes subsequent dials fail with ErrRefused (true) or
// succeed again (false).
func (n *MemoryNetwork) SetRefusing(refusing bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refusing = refusing
}

// Dial connects to the in-process collector. The address is ignored.
func (n *MemoryNetwork) Dial(ctx context.Context, address string) (Conn, error) {
	n.mu.Lock()
	refusing := n.refusing
	n.mu.Unlock()
	if refusing {
		return nil, ErrRefused
	}

	client, server := Pipe()
	select {
	case n.accepted <- server:
		return client, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Accept returns the collector end of the next dialed connection.
func (n *MemoryNetwork) Accept(ctx context.Context) (Conn, error) {
	select {
	case conn := <-n.accepted:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pipe returns two connected in-memory Conns. Closing either end
// closes both.
func Pipe() (Conn, Conn) {
	shared := &pipeState{done: make(chan struct{})}
	forward := make(chan []byte, 64)
	backward := make(chan []byte, 64)
	return &pipeConn{state: shared, in: backward, out: forward},
		&pipeConn{state: shared, in: forward, out: backward}
}

type pipeState struct {
	once sync.Once
	done chan struct{}
}

type pipeConn struct {
	state *pipeState
	in    <-chan []byte
	out   chan<- []byte
}

func (p *pipeConn) Read() ([]byte, error) {
	// Drain queued messages before reporting closure so a response
	// written just before Close is still observed.
	select {
	case message := <-p.in:
		return message, nil
	default:
	}
	select {
	case message := <-p.in:
		return message, nil
	case <-p.state.done:
		return nil, io.EOF
	}
}

func (p *pipeConn) Write(message []byte) error {
	select {
	case <-p.state.done:
		return io.ErrClosedPipe
	default:
	}
	copied := append([]byte(nil), message...)
	select {
	case p.out <- copied:
		return nil
	case <-p.state.done:
		return io.ErrClosedPipe
	}
}

func (p *pipeConn) Close() error {
	p.state.once.Do(func() { close(p.state.done) })
	return nil
}
