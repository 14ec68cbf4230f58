// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/rdata/lib/clock"
	"github.com/bureau-foundation/rdata/lib/jsonrpc"
)

const (
	// DefaultReconnectWait is the pause between failed dial attempts.
	DefaultReconnectWait = 5 * time.Second

	// DefaultRequestTimeout bounds how long Send waits for a response.
	DefaultRequestTimeout = 30 * time.Second

	defaultEventBuffer = 16
)

// Config holds the dependencies and tuning of a Client.
type Config struct {
	// Dialer opens the physical connection. Required.
	Dialer Dialer

	// Clock drives reconnect waits. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives connection diagnostics. Defaults to discard.
	Logger *slog.Logger

	// ReconnectWait is the fixed pause after a failed dial. Zero
	// means DefaultReconnectWait.
	ReconnectWait time.Duration

	// RequestTimeout bounds each Send in addition to the caller's
	// context. Zero means DefaultRequestTimeout; negative disables
	// the bound.
	RequestTimeout time.Duration

	// EventBuffer is the capacity of the Events channel. Zero means
	// 16.
	EventBuffer int
}

// Client is a correlated JSON-RPC client over a supervised connection.
type Client struct {
	dialer         Dialer
	clock          clock.Clock
	logger         *slog.Logger
	reconnectWait  time.Duration
	requestTimeout time.Duration

	events chan Event

	mu sync.Mutex
	// conn is the live connection, nil while disconnected.
	conn Conn
	// up is closed while a connection is live and replaced with a
	// fresh channel when it drops.
	up      chan struct{}
	pending map[string]chan *jsonrpc.Response
	// everConnected distinguishes Connected from Reconnected.
	everConnected bool
	opened        bool
	closed        bool
	cancel        context.CancelFunc
	done          chan struct{}

	writeMu sync.Mutex
}

// NewClient returns a Client that is not yet connected. Call Open to
// start the connection supervisor.
func NewClient(config Config) (*Client, error) {
	if config.Dialer == nil {
		return nil, errors.New("transport: Dialer is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.ReconnectWait <= 0 {
		config.ReconnectWait = DefaultReconnectWait
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = defaultEventBuffer
	}
	return &Client{
		dialer:         config.Dialer,
		clock:          config.Clock,
		logger:         config.Logger,
		reconnectWait:  config.ReconnectWait,
		requestTimeout: config.RequestTimeout,
		events:         make(chan Event, config.EventBuffer),
		up:             make(chan struct{}),
		pending:        make(map[string]chan *jsonrpc.Response),
		done:           make(chan struct{}),
	}, nil
}

// Events returns the channel of connection transitions. It is closed
// once the supervisor has exited after Close or CloseNow.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Open starts the connection supervisor for address. When
// waitUntilConnected is set it blocks until the first connection is
// established, timeout elapses, or ctx is done. The return value
// reports whether a connection is up when Open returns; the
// supervisor keeps trying either way.
func (c *Client) Open(ctx context.Context, address string, waitUntilConnected bool, timeout time.Duration) bool {
	c.mu.Lock()
	if c.opened || c.closed {
		c.mu.Unlock()
		return c.Available()
	}
	c.opened = true
	lifetime, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	up := c.up
	c.mu.Unlock()

	go c.supervise(lifetime, address)

	if !waitUntilConnected {
		return c.Available()
	}
	select {
	case <-up:
	case <-c.clock.After(timeout):
	case <-ctx.Done():
	}
	return c.Available()
}

// Available reports whether a connection is currently up.
func (c *Client) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// WaitConnected blocks until a connection is up or ctx is done.
func (c *Client) WaitConnected(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	up := c.up
	c.mu.Unlock()

	select {
	case <-up:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the supervisor and waits until it has torn the
// connection down, or until ctx is done.
func (c *Client) Close(ctx context.Context) error {
	done := c.shutdown()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseNow stops the supervisor without waiting.
func (c *Client) CloseNow() {
	c.shutdown()
}

func (c *Client) shutdown() <-chan struct{} {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if c.cancel == nil {
			return nil
		}
		return c.done
	}
	c.closed = true
	cancel := c.cancel
	conn := c.conn
	c.mu.Unlock()

	if cancel == nil {
		close(c.events)
		return nil
	}
	cancel()
	if conn != nil {
		conn.Close()
	}
	return c.done
}

// Send writes request and waits for its response. When result is
// non-nil the response result is decoded into it. A collector error is
// returned both inside the response and as the error.
func (c *Client) Send(ctx context.Context, request *jsonrpc.Request, result any) (*jsonrpc.Response, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", request.Method, err)
	}
	response, err := c.SendRaw(ctx, request.ID, payload)
	if err != nil {
		return nil, err
	}
	return response, response.Decode(result)
}

// SendRaw writes an already-encoded request whose id is id and waits
// for the matching response. The delivery queue replays persisted
// chunks through SendRaw so the bytes on the wire are exactly the bytes
// that were stored.
func (c *Client) SendRaw(ctx context.Context, id string, payload []byte) (*jsonrpc.Response, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	if _, exists := c.pending[id]; exists {
		c.mu.Unlock()
		return nil, ErrDuplicateID
	}
	slot := make(chan *jsonrpc.Response, 1)
	c.pending[id] = slot
	c.mu.Unlock()

	defer c.forget(id, slot)

	c.writeMu.Lock()
	err := conn.Write(payload)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: writing request %s: %v", ErrConnectionLost, id, err)
	}

	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	select {
	case response, ok := <-slot:
		if !ok {
			return nil, ErrConnectionLost
		}
		return response, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for response to %s: %w", id, ctx.Err())
	}
}

func (c *Client) forget(id string, slot chan *jsonrpc.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[id] == slot {
		delete(c.pending, id)
	}
}

// supervise owns the connection for the client's lifetime.
func (c *Client) supervise(ctx context.Context, address string) {
	defer close(c.done)
	defer close(c.events)

	for ctx.Err() == nil {
		dialCtx, cancel := context.WithTimeout(ctx, c.reconnectWait)
		conn, err := c.dialer.Dial(dialCtx, address)
		cancel()
		if err != nil {
			c.logger.Debug("collector dial failed, will retry",
				"address", address,
				"error", err,
				"retry_in", c.reconnectWait,
			)
			select {
			case <-ctx.Done():
				return
			case <-c.clock.After(c.reconnectWait):
			}
			continue
		}

		kind, ok := c.attach(conn)
		if !ok {
			conn.Close()
			return
		}
		c.logger.Info("collector connection established", "address", address, "event", kind.String())
		c.publish(ctx, kind)

		c.readLoop(conn)

		if c.detach(conn) {
			c.logger.Warn("collector connection lost", "address", address)
			c.publish(ctx, LostConnection)
		}
	}
}

func (c *Client) attach(conn Conn) (EventKind, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, false
	}
	c.conn = conn
	close(c.up)
	kind := Reconnected
	if !c.everConnected {
		kind = Connected
		c.everConnected = true
	}
	return kind, true
}

// detach clears the live connection and fails every waiting request.
// It reports whether the loss should be published, which is false once
// the client is closing.
func (c *Client) detach(conn Conn) bool {
	conn.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = nil
	c.up = make(chan struct{})
	for id, slot := range c.pending {
		close(slot)
		delete(c.pending, id)
	}
	return !c.closed
}

func (c *Client) publish(ctx context.Context, kind EventKind) {
	select {
	case c.events <- Event{Kind: kind, At: c.clock.Now()}:
	case <-ctx.Done():
	}
}

func (c *Client) readLoop(conn Conn) {
	for {
		message, err := conn.Read()
		if err != nil {
			return
		}
		response, err := jsonrpc.ParseResponse(message)
		if err != nil {
			c.logger.Warn("discarding malformed collector message", "error", err)
			continue
		}
		c.deliver(response)
	}
}

func (c *Client) deliver(response *jsonrpc.Response) {
	c.mu.Lock()
	slot, ok := c.pending[response.ID]
	if ok {
		delete(c.pending, response.ID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("dropping response for unknown request", "id", response.ID)
		return
	}
	slot <- response
}
