// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/rdata/contexttree"
	"github.com/bureau-foundation/rdata/delivery"
	"github.com/bureau-foundation/rdata/lib/chunkstore"
	"github.com/bureau-foundation/rdata/lib/clock"
	"github.com/bureau-foundation/rdata/lib/schema/telemetry"
	"github.com/bureau-foundation/rdata/transport"
)

var (
	// ErrNotAuthorized is returned by context and event operations
	// before Authorize has succeeded.
	ErrNotAuthorized = delivery.ErrNotAuthorized

	// ErrInvalidState is returned for a context transition its current
	// state does not allow.
	ErrInvalidState = contexttree.ErrInvalidState

	// ErrAlreadyAuthorized is returned by a second Authorize.
	ErrAlreadyAuthorized = errors.New("client: already authorized")

	// ErrAuthorizationRefused is recorded when the collector answers
	// authorize with false.
	ErrAuthorizationRefused = errors.New("client: authorization refused")

	// ErrClosed is returned after Close or CloseNow.
	ErrClosed = errors.New("client: closed")
)

// Client is one telemetry session.
type Client struct {
	transport     *transport.Client
	queue         *delivery.Queue
	tree          *contexttree.Tree
	store         chunkstore.Store
	clock         clock.Clock
	logger        *slog.Logger
	clientVersion string
	retryBackoff  time.Duration

	mu         sync.Mutex
	userID     string
	authorized bool
	lastError  error
	root       *contexttree.Context[AuthorizationData]
	closed     bool
	loops      sync.WaitGroup

	// authorizing is held by the one Authorize call in progress.
	authorizing bool

	// lifetime is cancelled by Close and CloseNow. It bounds the
	// background loops and the restore retries of the connection
	// watcher.
	lifetime context.Context
	cancel   context.CancelFunc
	watcher  chan struct{}
}

// New wires a client. It does not connect; call Open.
func New(config Config) (*Client, error) {
	if err := config.setDefaults(); err != nil {
		return nil, err
	}

	connection, err := transport.NewClient(transport.Config{
		Dialer:         config.Dialer,
		Clock:          config.Clock,
		Logger:         config.Logger.With("component", "transport"),
		ReconnectWait:  config.ReconnectWait,
		RequestTimeout: config.RequestTimeout,
	})
	if err != nil {
		return nil, err
	}
	queue, err := delivery.New(delivery.Config{
		Store:            config.Store,
		Sender:           connection,
		Clock:            config.Clock,
		Logger:           config.Logger.With("component", "delivery"),
		ChunkLifetime:    config.Delivery.ChunkLifetime,
		RolloverInterval: config.Delivery.RolloverInterval,
		RetryBackoff:     config.Delivery.RetryBackoff,
		IdlePollInterval: config.Delivery.IdlePollInterval,
		MaxChunkAttempts: config.Delivery.MaxChunkAttempts,
	})
	if err != nil {
		return nil, err
	}
	tree, err := contexttree.New(contexttree.Config{
		Submitter:     queue,
		Clock:         config.Clock,
		Logger:        config.Logger.With("component", "contexttree"),
		TrackInterval: config.TrackInterval,
	})
	if err != nil {
		return nil, err
	}

	retryBackoff := config.Delivery.RetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = delivery.DefaultRetryBackoff
	}
	lifetime, cancel := context.WithCancel(context.Background())
	c := &Client{
		transport:     connection,
		queue:         queue,
		tree:          tree,
		store:         config.Store,
		clock:         config.Clock,
		logger:        config.Logger,
		clientVersion: config.ClientVersion,
		retryBackoff:  retryBackoff,
		lifetime:      lifetime,
		cancel:        cancel,
		watcher:       make(chan struct{}),
	}
	go c.watchConnection()
	return c, nil
}

// Open starts connecting to address. See transport.Client.Open.
func (c *Client) Open(ctx context.Context, address string, waitUntilConnected bool, timeout time.Duration) bool {
	return c.transport.Open(ctx, address, waitUntilConnected, timeout)
}

// Available reports whether the collector connection is up.
func (c *Client) Available() bool {
	return c.transport.Available()
}

// Authorized reports whether Authorize has succeeded.
func (c *Client) Authorized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authorized
}

// UserID returns the authorized user, or "".
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// LastError returns the most recent authorization failure, including
// failed re-authorization after a reconnect. Nil after a success.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// Root returns the authorization context, or nil before Authorize.
func (c *Client) Root() *contexttree.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.root == nil {
		return nil
	}
	return c.root.Node
}

// Authorize identifies the session's user to the collector. On
// success it ends any root left open by a previous process for the
// same user, starts a new root, and starts the background loops.
func (c *Client) Authorize(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("client: user id is required")
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.authorized || c.authorizing {
		c.mu.Unlock()
		return ErrAlreadyAuthorized
	}
	c.authorizing = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.authorizing = false
		c.mu.Unlock()
	}()

	if err := c.sendAuthorize(ctx, userID); err != nil {
		return err
	}

	c.mu.Lock()
	c.authorized = true
	c.userID = userID
	c.mu.Unlock()
	c.queue.Authorize(userID)
	c.queue.SetConnected(c.transport.Available())

	if err := c.endOrphanedRoot(ctx, userID); err != nil {
		c.revokeAuthorization()
		return err
	}

	root, err := contexttree.CreateRoot(ctx, c.tree, authorizationSchema, c.authorizationData(ctx))
	if err != nil {
		c.revokeAuthorization()
		return fmt.Errorf("starting authorization context: %w", err)
	}
	if err := c.store.SetValue(ctx, userID, rootContextKey, root.ID()); err != nil {
		c.logger.Warn("root context id not persisted", "context_id", root.ID(), "error", err)
	}

	c.mu.Lock()
	c.root = root
	c.mu.Unlock()

	c.loops.Add(3)
	go func() { defer c.loops.Done(); c.queue.RunRollover(c.lifetime) }()
	go func() { defer c.loops.Done(); c.queue.RunReplay(c.lifetime) }()
	go func() { defer c.loops.Done(); c.tree.RunTracking(c.lifetime) }()

	c.logger.Info("session authorized", "user_id", userID, "root_context_id", root.ID())
	return nil
}

// sendAuthorize sends authorize and records the outcome in lastError.
func (c *Client) sendAuthorize(ctx context.Context, userID string) error {
	var accepted bool
	_, err := c.transport.Send(ctx, telemetry.Authorize(userID, c.clientVersion, c.clock.Now()), &accepted)
	if err == nil && !accepted {
		err = ErrAuthorizationRefused
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.lastError = fmt.Errorf("authorizing %s: %w", userID, err)
		return c.lastError
	}
	c.lastError = nil
	return nil
}

// revokeAuthorization undoes the session state set by a failed
// Authorize so that the call can be retried.
func (c *Client) revokeAuthorization() {
	c.mu.Lock()
	c.authorized = false
	c.userID = ""
	c.mu.Unlock()
	c.queue.Deauthorize()
}

// endOrphanedRoot ends a root id that a previous process persisted
// and never cleared. The endContext is persisted before returning,
// since the caller overwrites the stored id next.
func (c *Client) endOrphanedRoot(ctx context.Context, userID string) error {
	var orphan string
	err := c.store.GetValue(ctx, userID, rootContextKey, &orphan)
	if errors.Is(err, chunkstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		c.logger.Warn("reading previous root context failed", "user_id", userID, "error", err)
		return nil
	}
	if orphan == "" {
		return nil
	}
	if _, err := c.queue.Submit(ctx, telemetry.EndContext(orphan, c.clock.Now())); err != nil {
		return fmt.Errorf("ending orphaned root context %s: %w", orphan, err)
	}
	if err := c.queue.Flush(ctx); err != nil {
		return fmt.Errorf("persisting end of orphaned root context %s: %w", orphan, err)
	}
	c.logger.Info("ended root context left open by a previous session", "context_id", orphan)
	return nil
}

// Flush persists queued requests without waiting for delivery.
func (c *Client) Flush(ctx context.Context) error {
	return c.queue.Flush(ctx)
}

// Drain persists queued requests and waits until the collector has
// acknowledged every stored chunk for the user.
func (c *Client) Drain(ctx context.Context) error {
	return c.queue.FlushAndWaitForDrain(ctx)
}

// Pending returns the number of stored chunks awaiting delivery.
func (c *Client) Pending(ctx context.Context) (int, error) {
	return c.queue.Pending(ctx)
}

// DeadChunks returns the chunks quarantined after repeated rejection.
func (c *Client) DeadChunks(ctx context.Context) ([]chunkstore.DeadChunk, error) {
	userID := c.UserID()
	if userID == "" {
		return nil, ErrNotAuthorized
	}
	return c.store.DeadChunks(ctx, userID)
}

// Close ends the root context and its descendants, waits for the
// queue to drain, and disconnects. ctx bounds the drain; data that
// does not drain in time stays in the store for the next session.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	root := c.root
	userID := c.userID
	c.mu.Unlock()

	var errs []error
	if root != nil {
		if root.Status() != contexttree.Ended {
			if err := c.tree.End(ctx, root.Node); err != nil {
				errs = append(errs, fmt.Errorf("ending root context: %w", err))
			}
		}
		if err := c.queue.Flush(ctx); err != nil {
			errs = append(errs, err)
		} else if err := c.store.DeleteValue(ctx, userID, rootContextKey); err != nil {
			errs = append(errs, err)
		}
		if err := c.queue.FlushAndWaitForDrain(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	c.cancel()
	c.loops.Wait()
	c.queue.Deauthorize()
	if err := c.transport.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("closing transport: %w", err))
	}
	select {
	case <-c.watcher:
	case <-ctx.Done():
	}
	return errors.Join(errs...)
}

// CloseNow stops the loops and drops the connection without ending
// contexts or waiting. The root id stays persisted, so the next
// session ends it.
func (c *Client) CloseNow() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.transport.CloseNow()
}

func (c *Client) requireAuthorized() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !c.authorized {
		return ErrNotAuthorized
	}
	return nil
}
