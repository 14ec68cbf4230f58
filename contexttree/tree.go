// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package contexttree

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/rdata/lib/clock"
	"github.com/bureau-foundation/rdata/lib/jsonrpc"
	"github.com/bureau-foundation/rdata/lib/schema/telemetry"
)

// ErrInvalidState is returned for a lifecycle transition the node's
// current state does not allow.
var ErrInvalidState = errors.New("contexttree: invalid state")

// DefaultTrackInterval is the default tracking tick period.
const DefaultTrackInterval = 100 * time.Millisecond

// Submitter accepts requests for delivery. The delivery queue
// implements it.
type Submitter interface {
	Submit(ctx context.Context, request *jsonrpc.Request) (*jsonrpc.Response, error)
}

// Config holds the tree's dependencies.
type Config struct {
	Submitter Submitter
	Clock     clock.Clock
	Logger    *slog.Logger

	// TrackInterval is the tracking tick period.
	TrackInterval time.Duration
}

// Tree owns the root context and, through it, every live context.
type Tree struct {
	submitter     Submitter
	clock         clock.Clock
	logger        *slog.Logger
	trackInterval time.Duration

	mu   sync.Mutex
	root *Node
}

// New returns an empty tree.
func New(config Config) (*Tree, error) {
	if config.Submitter == nil {
		return nil, errors.New("contexttree: Submitter is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.TrackInterval <= 0 {
		config.TrackInterval = DefaultTrackInterval
	}
	return &Tree{
		submitter:     config.Submitter,
		clock:         config.Clock,
		logger:        config.Logger,
		trackInterval: config.TrackInterval,
	}, nil
}

// Root returns the root node, or nil.
func (t *Tree) Root() *Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.root
}

// Option adjusts a context at start.
type Option func(*startOptions)

type startOptions struct {
	name       string
	persistent bool
}

// Persistent marks the context as one the collector keeps open across
// sessions.
func Persistent() Option {
	return func(o *startOptions) { o.persistent = true }
}

// WithName overrides the schema's context name for one context.
func WithName(name string) Option {
	return func(o *startOptions) { o.name = name }
}

// CreateRoot starts the distinguished root context. It fails with
// ErrInvalidState while a previous root is still live.
func CreateRoot[T any](ctx context.Context, tree *Tree, schema *Schema[T], data T, options ...Option) (*Context[T], error) {
	tree.mu.Lock()
	if tree.root != nil && tree.root.Status() != Ended {
		tree.mu.Unlock()
		return nil, fmt.Errorf("%w: root context %s is still %s", ErrInvalidState, tree.root.id, tree.root.Status())
	}
	created := start(tree, schema, nil, data, options)
	tree.root = created.Node
	tree.mu.Unlock()

	if err := tree.submitStart(ctx, created.Node); err != nil {
		tree.mu.Lock()
		if tree.root == created.Node {
			tree.root = nil
		}
		tree.mu.Unlock()
		return nil, err
	}
	return created, nil
}

// StartChild starts a context under parent, or under the root when
// parent is nil.
func StartChild[T any](ctx context.Context, tree *Tree, parent *Node, schema *Schema[T], data T, options ...Option) (*Context[T], error) {
	if parent == nil {
		parent = tree.Root()
		if parent == nil {
			return nil, fmt.Errorf("%w: no root context", ErrInvalidState)
		}
	}
	created := start(tree, schema, parent, data, options)
	created.parent = parent
	if !parent.addChild(created.Node) {
		return nil, fmt.Errorf("%w: parent context %s has ended", ErrInvalidState, parent.id)
	}

	if err := tree.submitStart(ctx, created.Node); err != nil {
		parent.removeChild(created.Node)
		return nil, err
	}
	return created, nil
}

func start[T any](tree *Tree, schema *Schema[T], parent *Node, data T, options []Option) *Context[T] {
	resolved := startOptions{name: schema.Name()}
	for _, option := range options {
		option(&resolved)
	}
	parentID := ""
	if parent != nil {
		parentID = parent.id
	}
	return newContext(tree, schema, uuid.NewString(), resolved.name, parentID, resolved.persistent, data, tree.clock.Now())
}

func (t *Tree) submitStart(ctx context.Context, node *Node) error {
	node.mu.Lock()
	payload, err := node.encode()
	started := node.timeStarted
	node.mu.Unlock()
	if err != nil {
		return fmt.Errorf("contexttree: encoding data of %s: %w", node.name, err)
	}

	_, err = t.submitter.Submit(ctx, telemetry.StartContext(telemetry.StartContextParams{
		ID:              node.id,
		Name:            node.name,
		Persistent:      node.persistent,
		ParentContextID: node.parentID,
		Data:            json.RawMessage(payload),
		TimeStarted:     clock.UnixMillis(started),
	}, started))
	return err
}

// End ends node's children, deepest first, and then node itself.
// Ending an already-ended node fails with ErrInvalidState.
func (t *Tree) End(ctx context.Context, node *Node) error {
	if node == nil {
		return fmt.Errorf("%w: no context", ErrInvalidState)
	}
	if node.Status() == Ended {
		return fmt.Errorf("%w: context %s already ended", ErrInvalidState, node.id)
	}
	for _, child := range node.Children() {
		if child.Status() == Ended {
			continue
		}
		if err := t.End(ctx, child); err != nil {
			return err
		}
	}

	node.mu.Lock()
	if node.status == Ended {
		node.mu.Unlock()
		return fmt.Errorf("%w: context %s already ended", ErrInvalidState, node.id)
	}
	ended := t.clock.Now()
	node.status = Ended
	node.timeEnded = ended
	parent := node.parent
	node.parent = nil
	node.mu.Unlock()

	if parent != nil {
		parent.removeChild(node)
	}
	_, err := t.submitter.Submit(ctx, telemetry.EndContext(node.id, ended))
	return err
}

// Interrupt marks the root Interrupted. Tracking skips the tree until
// Restore.
func (t *Tree) Interrupt(node *Node) error {
	if node == nil || node != t.Root() {
		return fmt.Errorf("%w: only the root context can be interrupted", ErrInvalidState)
	}
	node.mu.Lock()
	defer node.mu.Unlock()
	if node.status != Started {
		return fmt.Errorf("%w: cannot interrupt %s context %s", ErrInvalidState, node.status, node.id)
	}
	node.status = Interrupted
	node.timeEnded = t.clock.Now()
	return nil
}

// Restore sends restoreContext for an Interrupted node and, once the
// collector accepts it, returns the node to Started. A collector that
// reports the context as already applied counts as accepted.
func (t *Tree) Restore(ctx context.Context, node *Node) error {
	if node == nil {
		return fmt.Errorf("%w: no context", ErrInvalidState)
	}
	if status := node.Status(); status != Interrupted {
		return fmt.Errorf("%w: cannot restore %s context %s", ErrInvalidState, status, node.id)
	}
	_, err := t.submitter.Submit(ctx, telemetry.RestoreContext(node.id, t.clock.Now()))
	if err != nil && !jsonrpc.IsAlreadyApplied(err) {
		return fmt.Errorf("restoring context %s: %w", node.id, err)
	}

	node.mu.Lock()
	defer node.mu.Unlock()
	if node.status != Interrupted {
		return fmt.Errorf("%w: context %s changed to %s during restore", ErrInvalidState, node.id, node.status)
	}
	node.status = Started
	node.timeEnded = time.Time{}
	return nil
}

// SetData replaces the context's data, reports the whole payload with
// setContextData, and re-baselines tracked fields to the new values.
func (c *Context[T]) SetData(ctx context.Context, data T) error {
	c.mu.Lock()
	if c.status == Ended {
		c.mu.Unlock()
		return fmt.Errorf("%w: context %s has ended", ErrInvalidState, c.id)
	}
	*c.data = data
	payload, err := c.encode()
	c.baselineLocked()
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("contexttree: encoding data of %s: %w", c.name, err)
	}
	_, err = c.tree.submitter.Submit(ctx, telemetry.SetContextData(c.id, json.RawMessage(payload), c.tree.clock.Now()))
	return err
}
