// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunkstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by GetValue for a missing key.
var ErrNotFound = errors.New("chunkstore: not found")

// Chunk is an immutable batch of requests awaiting acknowledgement.
// Payload is the encoded bulkRequest envelope whose id is ID.
type Chunk struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	// Sequence orders chunks that share a CreatedAt millisecond. The
	// queue assigns it in creation order.
	Sequence uint64
	Payload  []byte
}

// DeadChunk is a chunk removed from replay, with the reason.
type DeadChunk struct {
	Chunk
	Reason        string
	QuarantinedAt time.Time
}

// Store is the durable storage contract of the delivery queue. All
// methods are safe for concurrent use.
type Store interface {
	// SaveChunk persists chunk. Saving an id that already exists for
	// the user is a no-op.
	SaveChunk(ctx context.Context, chunk Chunk) error

	// ListChunks returns the user's chunks ordered by CreatedAt, then
	// Sequence, then id.
	ListChunks(ctx context.Context, userID string) ([]Chunk, error)

	// DeleteChunk removes a chunk. Deleting a missing chunk is not an
	// error.
	DeleteChunk(ctx context.Context, userID, chunkID string) error

	// CountChunks returns how many chunks the user has pending.
	CountChunks(ctx context.Context, userID string) (int, error)

	// QuarantineChunk moves a pending chunk to the dead-letter set.
	QuarantineChunk(ctx context.Context, userID, chunkID, reason string) error

	// DeadChunks lists the user's dead-lettered chunks, oldest first.
	DeadChunks(ctx context.Context, userID string) ([]DeadChunk, error)

	// GetValue decodes the value stored under key into v, or returns
	// ErrNotFound.
	GetValue(ctx context.Context, userID, key string, v any) error

	// SetValue stores v under key, replacing any previous value.
	SetValue(ctx context.Context, userID, key string, v any) error

	// DeleteValue removes key. Deleting a missing key is not an error.
	DeleteValue(ctx context.Context, userID, key string) error

	Close() error
}
