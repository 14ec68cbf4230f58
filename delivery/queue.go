// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/rdata/lib/chunkstore"
	"github.com/bureau-foundation/rdata/lib/clock"
	"github.com/bureau-foundation/rdata/lib/jsonrpc"
	"github.com/bureau-foundation/rdata/lib/schema/telemetry"
)

// ErrNotAuthorized is returned when a batchable request is submitted
// before a user has been authorized.
var ErrNotAuthorized = errors.New("delivery: not authorized")

// Defaults for Config.
const (
	DefaultChunkLifetime    = 500 * time.Millisecond
	DefaultRolloverInterval = 100 * time.Millisecond
	DefaultRetryBackoff     = 5 * time.Second
	DefaultIdlePollInterval = time.Second
)

// Sender is the transport the queue delivers through.
type Sender interface {
	Send(ctx context.Context, request *jsonrpc.Request, result any) (*jsonrpc.Response, error)
	SendRaw(ctx context.Context, id string, payload []byte) (*jsonrpc.Response, error)
}

// Config holds the queue's dependencies and tuning.
type Config struct {
	Store  chunkstore.Store
	Sender Sender
	Clock  clock.Clock
	Logger *slog.Logger

	// ChunkLifetime is how long a chunk accepts appends before it is
	// persisted.
	ChunkLifetime time.Duration

	// RolloverInterval is how often the active chunk's age is checked.
	RolloverInterval time.Duration

	// RetryBackoff is the fixed pause after a failed delivery.
	RetryBackoff time.Duration

	// IdlePollInterval bounds how long replay sleeps with nothing to
	// do before listing the store again.
	IdlePollInterval time.Duration

	// MaxChunkAttempts moves a chunk to the dead-letter set after this
	// many rejections by the collector. Zero retries forever.
	// Transport failures do not count as attempts.
	MaxChunkAttempts int
}

// pendingChunk is a chunk still in memory.
type pendingChunk struct {
	id        string
	userID    string
	createdAt time.Time
	sequence  uint64
	requests  []json.RawMessage
}

// Queue batches, persists and replays requests.
type Queue struct {
	store  chunkstore.Store
	sender Sender
	clock  clock.Clock
	logger *slog.Logger

	chunkLifetime    time.Duration
	rolloverInterval time.Duration
	retryBackoff     time.Duration
	idlePollInterval time.Duration
	maxChunkAttempts int

	mu        sync.Mutex
	userID    string
	connected bool
	suspended bool
	active    *pendingChunk
	// sequence is assigned to the next chunk created.
	sequence uint64
	// ready holds expired chunks not yet persisted, oldest first.
	ready    []*pendingChunk
	attempts map[string]int
	// progress is closed and replaced every time a chunk leaves the
	// store, waking FlushAndWaitForDrain.
	progress chan struct{}

	persistMu sync.Mutex

	// wake is a capacity-1 signal to the replay loop.
	wake chan struct{}
}

// New returns a queue. Store and Sender are required.
func New(config Config) (*Queue, error) {
	if config.Store == nil {
		return nil, errors.New("delivery: Store is required")
	}
	if config.Sender == nil {
		return nil, errors.New("delivery: Sender is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.ChunkLifetime <= 0 {
		config.ChunkLifetime = DefaultChunkLifetime
	}
	if config.RolloverInterval <= 0 {
		config.RolloverInterval = DefaultRolloverInterval
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = DefaultRetryBackoff
	}
	if config.IdlePollInterval <= 0 {
		config.IdlePollInterval = DefaultIdlePollInterval
	}
	if config.MaxChunkAttempts < 0 {
		return nil, errors.New("delivery: MaxChunkAttempts must not be negative")
	}
	return &Queue{
		store:            config.Store,
		sender:           config.Sender,
		clock:            config.Clock,
		logger:           config.Logger,
		chunkLifetime:    config.ChunkLifetime,
		rolloverInterval: config.RolloverInterval,
		retryBackoff:     config.RetryBackoff,
		idlePollInterval: config.IdlePollInterval,
		maxChunkAttempts: config.MaxChunkAttempts,
		attempts:         make(map[string]int),
		progress:         make(chan struct{}),
		wake:             make(chan struct{}, 1),
	}, nil
}

// Authorize sets the user whose chunks are accepted and replayed.
func (q *Queue) Authorize(userID string) {
	q.mu.Lock()
	q.userID = userID
	q.mu.Unlock()
	q.Wake()
}

// Deauthorize stops accepting batchable requests and pauses replay.
func (q *Queue) Deauthorize() {
	q.mu.Lock()
	q.userID = ""
	q.mu.Unlock()
}

// UserID returns the authorized user, or "".
func (q *Queue) UserID() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.userID
}

// SetConnected records transport availability.
func (q *Queue) SetConnected(connected bool) {
	q.mu.Lock()
	q.connected = connected
	q.mu.Unlock()
	if connected {
		q.Wake()
	}
}

// Suspend pauses replay while the root context is interrupted.
func (q *Queue) Suspend() {
	q.mu.Lock()
	q.suspended = true
	q.mu.Unlock()
}

// Resume lifts Suspend and wakes replay.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.suspended = false
	q.mu.Unlock()
	q.Wake()
}

// Wake nudges the replay loop to re-check its gate and the store.
func (q *Queue) Wake() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// replayUser returns the user to replay for, or "" while replay is
// gated off.
func (q *Queue) replayUser() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.connected || q.suspended {
		return ""
	}
	return q.userID
}

// Submit routes request. Non-batchable requests are sent now and their
// response returned. Batchable requests are appended to the active
// chunk and Submit returns a nil response.
func (q *Queue) Submit(ctx context.Context, request *jsonrpc.Request) (*jsonrpc.Response, error) {
	if !request.Batchable() {
		return q.sender.Send(ctx, request, nil)
	}

	encoded, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("delivery: encoding %s: %w", request.Method, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.userID == "" {
		return nil, ErrNotAuthorized
	}
	if q.active != nil && q.active.userID != q.userID {
		q.ready = append(q.ready, q.active)
		q.active = nil
	}
	if q.active == nil {
		q.active = &pendingChunk{
			id:        uuid.NewString(),
			userID:    q.userID,
			createdAt: q.clock.Now(),
			sequence:  q.sequence,
		}
		q.sequence++
	}
	q.active.requests = append(q.active.requests, encoded)
	return nil, nil
}

// Rollover persists the active chunk if it has outlived ChunkLifetime,
// along with any earlier chunk whose persistence failed.
func (q *Queue) Rollover(ctx context.Context) error {
	q.mu.Lock()
	if q.active != nil && q.clock.Now().Sub(q.active.createdAt) >= q.chunkLifetime {
		q.ready = append(q.ready, q.active)
		q.active = nil
	}
	q.mu.Unlock()
	return q.persistReady(ctx)
}

// Flush persists the active chunk regardless of its age.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	if q.active != nil {
		q.ready = append(q.ready, q.active)
		q.active = nil
	}
	q.mu.Unlock()
	return q.persistReady(ctx)
}

func (q *Queue) persistReady(ctx context.Context) error {
	q.persistMu.Lock()
	defer q.persistMu.Unlock()

	persisted := false
	defer func() {
		if persisted {
			q.Wake()
		}
	}()

	for {
		q.mu.Lock()
		if len(q.ready) == 0 {
			q.mu.Unlock()
			return nil
		}
		chunk := q.ready[0]
		q.mu.Unlock()

		payload, err := json.Marshal(telemetry.BulkRequest(chunk.id, chunk.requests, chunk.createdAt))
		if err != nil {
			return fmt.Errorf("delivery: encoding chunk %s: %w", chunk.id, err)
		}
		err = q.store.SaveChunk(ctx, chunkstore.Chunk{
			ID:        chunk.id,
			UserID:    chunk.userID,
			CreatedAt: chunk.createdAt,
			Sequence:  chunk.sequence,
			Payload:   payload,
		})
		if err != nil {
			return fmt.Errorf("delivery: persisting chunk %s: %w", chunk.id, err)
		}

		q.mu.Lock()
		q.ready = q.ready[1:]
		q.mu.Unlock()
		persisted = true
		q.logger.Debug("chunk persisted",
			"chunk_id", chunk.id,
			"user_id", chunk.userID,
			"requests", len(chunk.requests),
		)
	}
}

// RunRollover checks the active chunk every RolloverInterval until ctx
// is done.
func (q *Queue) RunRollover(ctx context.Context) {
	ticker := q.clock.NewTicker(q.rolloverInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.Rollover(ctx); err != nil && ctx.Err() == nil {
				q.logger.Warn("chunk rollover failed, will retry", "error", err)
			}
		}
	}
}

// Pending returns the number of persisted chunks awaiting delivery for
// the authorized user.
func (q *Queue) Pending(ctx context.Context) (int, error) {
	userID := q.UserID()
	if userID == "" {
		return 0, nil
	}
	return q.store.CountChunks(ctx, userID)
}

// FlushAndWaitForDrain persists the active chunk and blocks until the
// authorized user's store holds no chunks, or ctx is done.
func (q *Queue) FlushAndWaitForDrain(ctx context.Context) error {
	if err := q.Flush(ctx); err != nil {
		return err
	}
	userID := q.UserID()
	if userID == "" {
		return ErrNotAuthorized
	}
	for {
		q.mu.Lock()
		progress := q.progress
		q.mu.Unlock()

		count, err := q.store.CountChunks(ctx, userID)
		if err != nil {
			return fmt.Errorf("delivery: counting chunks: %w", err)
		}
		if count == 0 {
			return nil
		}
		q.Wake()
		select {
		case <-progress:
		case <-ctx.Done():
			return fmt.Errorf("delivery: %d chunks still pending: %w", count, ctx.Err())
		}
	}
}

func (q *Queue) signalProgress() {
	q.mu.Lock()
	close(q.progress)
	q.progress = make(chan struct{})
	q.mu.Unlock()
}
