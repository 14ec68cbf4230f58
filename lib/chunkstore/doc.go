// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunkstore is the durable local store behind the delivery
// queue. It holds two kinds of records per user id:
//
//   - chunks: encoded bulkRequest envelopes waiting to be acknowledged
//     by the collector, listed oldest first
//   - values: small scalar records (the current root context, for
//     instance) stored as CBOR
//
// SQLiteStore persists to a single database file through lib/sqlitepool.
// A chunk is durable once SaveChunk returns. Each payload is checksummed
// with keyed BLAKE3 before it is optionally compressed (lz4 or zstd) and
// optionally encrypted to an age X25519 identity. Rows that fail to
// decode or verify on load are moved to a dead-letter table instead of
// being replayed.
//
// Memory implements the same Store contract in process memory for
// tests.
package chunkstore
