// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/rdata/contexttree"
	"github.com/bureau-foundation/rdata/lib/clock"
	"github.com/bureau-foundation/rdata/lib/schema/telemetry"
)

// Event is a logged event as it was queued.
type Event struct {
	ID        string
	Name      string
	ContextID string
	Time      time.Time
	Data      any
}

// LogEvent queues an event. An empty name defaults to the Go type name
// of data. A nil owner logs the event outside any context.
func (c *Client) LogEvent(ctx context.Context, name string, data any, owner *contexttree.Node) (Event, error) {
	if err := c.requireAuthorized(); err != nil {
		return Event{}, err
	}
	if name == "" {
		name = typeName(data)
	}
	event := Event{
		ID:   uuid.NewString(),
		Name: name,
		Time: c.clock.Now(),
		Data: data,
	}
	if owner != nil {
		event.ContextID = owner.ID()
	}

	_, err := c.queue.Submit(ctx, telemetry.LogEvent(telemetry.LogEventParams{
		ID:        event.ID,
		Name:      event.Name,
		ContextID: event.ContextID,
		Time:      clock.UnixMillis(event.Time),
		Data:      event.Data,
	}, event.Time))
	if err != nil {
		return Event{}, err
	}
	return event, nil
}

func typeName(data any) string {
	t := reflect.TypeOf(data)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Name() == "" {
		return "event"
	}
	return t.Name()
}

// StartContext starts a context under parent, or under the root when
// parent is nil.
func StartContext[T any](ctx context.Context, c *Client, parent *contexttree.Node, schema *contexttree.Schema[T], data T, options ...contexttree.Option) (*contexttree.Context[T], error) {
	if err := c.requireAuthorized(); err != nil {
		return nil, err
	}
	return contexttree.StartChild(ctx, c.tree, parent, schema, data, options...)
}

// SetContextData replaces the data of target and reports it whole.
func SetContextData[T any](ctx context.Context, c *Client, target *contexttree.Context[T], data T) error {
	if err := c.requireAuthorized(); err != nil {
		return err
	}
	return target.SetData(ctx, data)
}

// EndContext ends node and its descendants. The root belongs to the
// session and is ended by Close.
func (c *Client) EndContext(ctx context.Context, node *contexttree.Node) error {
	if err := c.requireAuthorized(); err != nil {
		return err
	}
	if node == c.Root() {
		return fmt.Errorf("%w: the root context is ended by Close", ErrInvalidState)
	}
	return c.tree.End(ctx, node)
}

// RestoreContext restores an interrupted context.
func (c *Client) RestoreContext(ctx context.Context, node *contexttree.Node) error {
	if err := c.requireAuthorized(); err != nil {
		return err
	}
	return c.tree.Restore(ctx, node)
}

// RestoreInterruptedContexts asks the collector to restore every
// context it holds as interrupted for the user.
func (c *Client) RestoreInterruptedContexts(ctx context.Context) error {
	if err := c.requireAuthorized(); err != nil {
		return err
	}
	_, err := c.queue.Submit(ctx, telemetry.RestoreInterruptedContexts(c.clock.Now()))
	return err
}

// EndInterruptedContexts asks the collector to end every context it
// holds as interrupted for the user.
func (c *Client) EndInterruptedContexts(ctx context.Context) error {
	if err := c.requireAuthorized(); err != nil {
		return err
	}
	_, err := c.queue.Submit(ctx, telemetry.EndInterruptedContexts(c.clock.Now()))
	return err
}
