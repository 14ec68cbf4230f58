// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"

	"github.com/bureau-foundation/rdata/contexttree"
	"github.com/bureau-foundation/rdata/transport"
)

// watchConnection applies transport transitions to the session until
// the transport closes its event channel.
func (c *Client) watchConnection() {
	defer close(c.watcher)
	for event := range c.transport.Events() {
		switch event.Kind {
		case transport.Connected:
			c.queue.SetConnected(true)
		case transport.LostConnection:
			c.connectionLost()
		case transport.Reconnected:
			c.reconnected()
		}
	}
}

// connectionLost interrupts the root and pauses replay.
func (c *Client) connectionLost() {
	c.queue.SetConnected(false)
	c.queue.Suspend()

	c.mu.Lock()
	root := c.root
	c.mu.Unlock()
	if root == nil || root.Status() != contexttree.Started {
		return
	}
	if err := c.tree.Interrupt(root.Node); err != nil {
		c.logger.Warn("interrupting root context failed", "context_id", root.ID(), "error", err)
		return
	}
	c.logger.Info("root context interrupted", "context_id", root.ID())
}

// reconnected re-authorizes, restores the root, and resumes replay.
// Failures are retried every RetryBackoff while the connection stays
// up; a later reconnect starts over.
func (c *Client) reconnected() {
	c.queue.SetConnected(true)
	for {
		err := c.resumeSession(c.lifetime)
		if err == nil {
			c.queue.Resume()
			return
		}
		c.logger.Warn("resuming session after reconnect failed",
			"error", err,
			"retry_in", c.retryBackoff,
		)
		select {
		case <-c.lifetime.Done():
			return
		case <-c.clock.After(c.retryBackoff):
		}
		if !c.transport.Available() {
			return
		}
	}
}

func (c *Client) resumeSession(ctx context.Context) error {
	c.mu.Lock()
	authorized := c.authorized
	userID := c.userID
	root := c.root
	c.mu.Unlock()
	if !authorized {
		return nil
	}

	if err := c.sendAuthorize(ctx, userID); err != nil {
		return err
	}
	if root == nil || root.Status() != contexttree.Interrupted {
		return nil
	}
	err := c.tree.Restore(ctx, root.Node)
	if errors.Is(err, contexttree.ErrInvalidState) {
		// Ended by Close while the restore was in flight.
		return nil
	}
	if err == nil {
		c.logger.Info("root context restored", "context_id", root.ID())
	}
	return err
}
