// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package contexttree

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"
)

// Status is a context's lifecycle state.
type Status int

const (
	Started Status = iota + 1
	Interrupted
	Ended
)

func (s Status) String() string {
	switch s {
	case Started:
		return "started"
	case Interrupted:
		return "interrupted"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

// trackedField is one tracked path on a live node. last is the JSON
// encoding of the value most recently reported.
type trackedField struct {
	key  string
	read func() any
	last []byte
}

// change is a tracked field whose current encoding differs from last.
type change struct {
	index   int
	key     string
	encoded []byte
}

// Node is a context in the tree. Its id never changes.
type Node struct {
	id         string
	name       string
	parentID   string
	persistent bool
	tree       *Tree

	mu          sync.Mutex
	status      Status
	timeStarted time.Time
	timeEnded   time.Time
	children    []*Node
	parent      *Node
	fields      []trackedField
	// encode returns the JSON encoding of the whole data payload.
	encode func() ([]byte, error)
}

// ID returns the context id.
func (n *Node) ID() string { return n.id }

// Name returns the context name.
func (n *Node) Name() string { return n.name }

// ParentID returns the parent's id, or "" for the root.
func (n *Node) ParentID() string { return n.parentID }

// Persistent reports whether the collector keeps the context open
// across sessions.
func (n *Node) Persistent() bool { return n.persistent }

// Status returns the current state.
func (n *Node) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

// TimeStarted returns when the context started.
func (n *Node) TimeStarted() time.Time {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.timeStarted
}

// TimeEnded returns when the context ended or was interrupted. Zero
// while Started.
func (n *Node) TimeEnded() time.Time {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.timeEnded
}

// Children returns the live children in start order.
func (n *Node) Children() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*Node(nil), n.children...)
}

func (n *Node) addChild(child *Node) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.status == Ended {
		return false
	}
	n.children = append(n.children, child)
	return true
}

func (n *Node) removeChild(child *Node) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, candidate := range n.children {
		if candidate == child {
			n.children = append(n.children[:i], n.children[i+1:]...)
			return
		}
	}
}

// baselineLocked records the current value of every field as already
// reported. n.mu must be held.
func (n *Node) baselineLocked() {
	for i := range n.fields {
		encoded, err := json.Marshal(n.fields[i].read())
		if err != nil {
			n.fields[i].last = nil
			continue
		}
		n.fields[i].last = encoded
	}
}

// changes returns the fields whose encoding differs from the last
// report. Fields that fail to encode are passed to onError and skipped.
func (n *Node) changes(onError func(key string, err error)) []change {
	n.mu.Lock()
	defer n.mu.Unlock()
	var changed []change
	for i, field := range n.fields {
		encoded, err := json.Marshal(field.read())
		if err != nil {
			onError(field.key, err)
			continue
		}
		if !bytes.Equal(encoded, field.last) {
			changed = append(changed, change{index: i, key: field.key, encoded: encoded})
		}
	}
	return changed
}

func (n *Node) commit(c change) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fields[c.index].last = c.encoded
}

// Context is a node carrying data of type T.
type Context[T any] struct {
	*Node
	data *T
}

// Update runs fn with exclusive access to the data. Changes to tracked
// fields are reported on the next tick.
func (c *Context[T]) Update(fn func(data *T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.data)
}

// Get returns a shallow copy of the data.
func (c *Context[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.data
}

func newContext[T any](tree *Tree, schema *Schema[T], id, name, parentID string, persistent bool, data T, started time.Time) *Context[T] {
	owned := new(T)
	*owned = data
	node := &Node{
		id:          id,
		name:        name,
		parentID:    parentID,
		persistent:  persistent,
		tree:        tree,
		status:      Started,
		timeStarted: started,
		encode:      func() ([]byte, error) { return json.Marshal(owned) },
	}
	node.fields = make([]trackedField, len(schema.fields))
	for i, spec := range schema.fields {
		get := spec.get
		node.fields[i] = trackedField{key: spec.key, read: func() any { return get(owned) }}
	}
	node.baselineLocked()
	return &Context[T]{Node: node, data: owned}
}
