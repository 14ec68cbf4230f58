// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package collectortest runs an in-process telemetry collector on a
// transport.MemoryNetwork. Tests dial it through the network, inspect
// the calls it received, and script its replies.
package collectortest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/bureau-foundation/rdata/lib/jsonrpc"
	"github.com/bureau-foundation/rdata/transport"
)

// Call is one request the collector received.
type Call struct {
	ID     string
	Method string
	Params json.RawMessage
}

// Requests decodes the sub-requests of a bulkRequest call in order.
// Returns nil for any other method.
func (c Call) Requests() []Call {
	if c.Method != jsonrpc.MethodBulkRequest {
		return nil
	}
	var params struct {
		Requests []json.RawMessage `json:"requests"`
	}
	if err := json.Unmarshal(c.Params, &params); err != nil {
		return nil
	}
	calls := make([]Call, 0, len(params.Requests))
	for _, raw := range params.Requests {
		if call, err := decodeCall(raw); err == nil {
			calls = append(calls, call)
		}
	}
	return calls
}

// Param decodes a single top-level field of the call's params.
func (c Call) Param(key string) any {
	var params map[string]any
	if err := json.Unmarshal(c.Params, &params); err != nil {
		return nil
	}
	return params[key]
}

// Reply scripts the collector's answer to a call. The zero Reply
// answers with result true.
type Reply struct {
	Result any
	Error  *jsonrpc.Error
	// Silent suppresses any answer.
	Silent bool
}

// Handler decides the reply for each call.
type Handler func(Call) Reply

// Collector is an in-process collector.
type Collector struct {
	network *transport.MemoryNetwork

	mu      sync.Mutex
	handler Handler
	calls   []Call
	conns   map[transport.Conn]struct{}

	received chan Call
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New starts a collector that answers every call with true. It is
// stopped by t.Cleanup.
func New(t testing.TB) *Collector {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	collector := &Collector{
		network:  transport.NewMemoryNetwork(),
		conns:    make(map[transport.Conn]struct{}),
		received: make(chan Call, 1024),
		cancel:   cancel,
	}
	collector.wg.Add(1)
	go collector.accept(ctx)
	t.Cleanup(collector.stop)
	return collector
}

// Network is the Dialer clients use to reach the collector.
func (c *Collector) Network() *transport.MemoryNetwork {
	return c.network
}

// SetHandler replaces the reply script. nil restores the default.
func (c *Collector) SetHandler(handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Received delivers every call as it arrives.
func (c *Collector) Received() <-chan Call {
	return c.received
}

// Calls returns every call received so far.
func (c *Collector) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Flatten returns the calls received so far with bulk requests
// expanded into their sub-requests, in arrival order.
func (c *Collector) Flatten() []Call {
	var flat []Call
	for _, call := range c.Calls() {
		if call.Method == jsonrpc.MethodBulkRequest {
			flat = append(flat, call.Requests()...)
			continue
		}
		flat = append(flat, call)
	}
	return flat
}

// DropConnections closes every live connection from the collector
// side, as a network failure would.
func (c *Collector) DropConnections() {
	c.mu.Lock()
	conns := make([]transport.Conn, 0, len(c.conns))
	for conn := range c.conns {
		conns = append(conns, conn)
	}
	c.mu.Unlock()
	for _, conn := range conns {
		conn.Close()
	}
}

func (c *Collector) stop() {
	c.cancel()
	c.DropConnections()
	c.wg.Wait()
}

func (c *Collector) accept(ctx context.Context) {
	defer c.wg.Done()
	for {
		conn, err := c.network.Accept(ctx)
		if err != nil {
			return
		}
		if ctx.Err() != nil {
			conn.Close()
			return
		}
		c.mu.Lock()
		c.conns[conn] = struct{}{}
		c.mu.Unlock()

		c.wg.Add(1)
		go c.serve(conn)
	}
}

func (c *Collector) serve(conn transport.Conn) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		delete(c.conns, conn)
		c.mu.Unlock()
		conn.Close()
	}()

	for {
		message, err := conn.Read()
		if err != nil {
			return
		}
		call, err := decodeCall(message)
		if err != nil {
			continue
		}

		c.mu.Lock()
		c.calls = append(c.calls, call)
		handler := c.handler
		c.mu.Unlock()

		select {
		case c.received <- call:
		default:
		}

		reply := Reply{}
		if handler != nil {
			reply = handler(call)
		}
		if reply.Silent {
			continue
		}
		if err := conn.Write(encodeReply(call.ID, reply)); err != nil {
			return
		}
	}
}

func decodeCall(message []byte) (Call, error) {
	var envelope struct {
		ID     string          `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(message, &envelope); err != nil {
		return Call{}, err
	}
	return Call{ID: envelope.ID, Method: envelope.Method, Params: envelope.Params}, nil
}

func encodeReply(id string, reply Reply) []byte {
	response := struct {
		JSONRPC string         `json:"jsonrpc"`
		ID      string         `json:"id"`
		Result  any            `json:"result,omitempty"`
		Error   *jsonrpc.Error `json:"error,omitempty"`
	}{JSONRPC: jsonrpc.Version, ID: id, Error: reply.Error}
	if reply.Error == nil {
		response.Result = reply.Result
		if response.Result == nil {
			response.Result = true
		}
	}
	data, _ := json.Marshal(response)
	return data
}
