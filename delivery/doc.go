// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package delivery is the durable at-least-once queue between the
// telemetry client and the collector.
//
// Non-batchable requests pass straight through to the Sender and their
// response is returned to the caller. Batchable requests are appended
// to the active chunk. A chunk lives for ChunkLifetime; on the next
// rollover check after that it is encoded as a bulkRequest envelope
// (whose id is the chunk id) and persisted to the chunkstore. Only a
// persisted chunk is ever sent.
//
// The replay loop drains persisted chunks oldest first, one at a time:
//
//   - result true: the chunk is deleted
//   - collector error classified already-applied: the chunk is deleted
//     and a warning logged, since an earlier attempt landed
//   - anything else: the chunk stays and the loop pauses for
//     RetryBackoff before trying again
//
// Replay runs only while the queue is connected, authorized, and not
// suspended. The session orchestrator flips those flags from
// connection events and the root context state.
package delivery
