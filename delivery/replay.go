// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/rdata/lib/chunkstore"
	"github.com/bureau-foundation/rdata/lib/jsonrpc"
)

// outcome is what replay does after one delivery attempt.
type outcome int

const (
	// delivered: the chunk left the store, move on.
	delivered outcome = iota
	// rejected: the collector refused the chunk, back off.
	rejected
	// unreachable: the transport failed, wait for reconnect or back
	// off.
	unreachable
)

// RunReplay drains persisted chunks until ctx is done.
func (q *Queue) RunReplay(ctx context.Context) {
	for ctx.Err() == nil {
		userID := q.replayUser()
		if userID == "" {
			q.waitForWake(ctx)
			continue
		}

		chunks, err := q.store.ListChunks(ctx, userID)
		if err != nil {
			if ctx.Err() == nil {
				q.logger.Warn("listing chunks failed, will retry",
					"user_id", userID,
					"error", err,
					"retry_in", q.retryBackoff,
				)
			}
			q.sleep(ctx, false)
			continue
		}
		if len(chunks) == 0 {
			q.idle(ctx)
			continue
		}

		for _, chunk := range chunks {
			if ctx.Err() != nil || q.replayUser() != userID {
				break
			}
			result := q.replayChunk(ctx, chunk)
			if result == rejected {
				q.sleep(ctx, false)
				break
			}
			if result == unreachable {
				q.sleep(ctx, true)
				break
			}
		}
	}
}

func (q *Queue) replayChunk(ctx context.Context, chunk chunkstore.Chunk) outcome {
	response, err := q.sender.SendRaw(ctx, chunk.ID, chunk.Payload)
	if err != nil {
		if ctx.Err() == nil {
			q.logger.Warn("chunk delivery failed, will retry",
				"chunk_id", chunk.ID,
				"error", err,
			)
		}
		return unreachable
	}

	switch {
	case response.Succeeded():
		return q.remove(ctx, chunk)

	case response.Error != nil && jsonrpc.IsAlreadyApplied(response.Error):
		q.logger.Warn("chunk already applied by collector, dropping",
			"chunk_id", chunk.ID,
			"error", response.Error,
		)
		return q.remove(ctx, chunk)
	}

	var reason string
	if response.Error != nil {
		reason = response.Error.Error()
	} else {
		reason = fmt.Sprintf("collector answered %s", string(response.Result))
	}

	q.mu.Lock()
	q.attempts[chunk.ID]++
	attempts := q.attempts[chunk.ID]
	q.mu.Unlock()

	if q.maxChunkAttempts > 0 && attempts >= q.maxChunkAttempts {
		q.logger.Error("chunk rejected too many times, moving to dead letters",
			"chunk_id", chunk.ID,
			"attempts", attempts,
			"reason", reason,
		)
		if err := q.store.QuarantineChunk(ctx, chunk.UserID, chunk.ID, reason); err != nil {
			q.logger.Warn("quarantining chunk failed", "chunk_id", chunk.ID, "error", err)
			return rejected
		}
		q.forget(chunk.ID)
		q.signalProgress()
		return delivered
	}

	q.logger.Warn("chunk rejected by collector, will retry",
		"chunk_id", chunk.ID,
		"attempts", attempts,
		"reason", reason,
		"retry_in", q.retryBackoff,
	)
	return rejected
}

func (q *Queue) remove(ctx context.Context, chunk chunkstore.Chunk) outcome {
	if err := q.store.DeleteChunk(ctx, chunk.UserID, chunk.ID); err != nil {
		// The collector has the chunk; a later replay will be answered
		// as already applied.
		q.logger.Warn("deleting delivered chunk failed", "chunk_id", chunk.ID, "error", err)
		return rejected
	}
	q.forget(chunk.ID)
	q.signalProgress()
	return delivered
}

func (q *Queue) forget(chunkID string) {
	q.mu.Lock()
	delete(q.attempts, chunkID)
	q.mu.Unlock()
}

func (q *Queue) waitForWake(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-q.wake:
	}
}

func (q *Queue) idle(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-q.wake:
	case <-q.clock.After(q.idlePollInterval):
	}
}

// sleep waits out RetryBackoff. When wakeable, a Wake (such as a
// reconnect) cuts the wait short.
func (q *Queue) sleep(ctx context.Context, wakeable bool) {
	var wake <-chan struct{}
	if wakeable {
		wake = q.wake
	}
	select {
	case <-ctx.Done():
	case <-wake:
	case <-q.clock.After(q.retryBackoff):
	}
}
