// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool wraps zombiezen.com/go/sqlite/sqlitex.Pool with
// the pragmas and helpers the local telemetry store needs.
//
// Every connection runs in WAL mode with a 5 s busy timeout. The
// synchronous level defaults to FULL because the delivery queue treats
// a committed row as the point after which data can no longer be lost.
//
// Open installs an idempotent schema once. Do and Transaction borrow a
// connection for the duration of a callback:
//
//	err := pool.Transaction(ctx, func(conn *sqlite.Conn) error {
//	    return sqlitex.Execute(conn, "DELETE FROM chunks WHERE ...", &sqlitex.ExecOptions{...})
//	})
//
// The underlying driver is modernc.org/sqlite, a pure-Go translation of
// SQLite, so the binary needs no cgo.
package sqlitepool
