// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/rdata/lib/sqlitepool"
)

const testSchema = `
CREATE TABLE IF NOT EXISTS items (
	id INTEGER PRIMARY KEY,
	value TEXT NOT NULL
);
`

func openTestPool(t *testing.T, path string) *sqlitepool.Pool {
	t.Helper()
	pool, err := sqlitepool.Open(sqlitepool.Config{Path: path, Schema: testSchema})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	return pool
}

func pragmaInt(t *testing.T, conn *sqlite.Conn, pragma string) int {
	t.Helper()
	var value int
	err := sqlitex.Execute(conn, "PRAGMA "+pragma, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("PRAGMA %s: %v", pragma, err)
	}
	return value
}

func countItems(t *testing.T, pool *sqlitepool.Pool) int {
	t.Helper()
	var count int
	err := pool.Do(context.Background(), func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT COUNT(*) FROM items", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt(0)
				return nil
			},
		})
	})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return count
}

func TestOpenAppliesDurabilityPragmas(t *testing.T) {
	pool := openTestPool(t, filepath.Join(t.TempDir(), "test.db"))
	err := pool.Do(context.Background(), func(conn *sqlite.Conn) error {
		// FULL is 2.
		if got := pragmaInt(t, conn, "synchronous"); got != 2 {
			t.Errorf("synchronous = %d, want 2", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
}

func TestTransactionCommitsAndRollsBack(t *testing.T) {
	pool := openTestPool(t, filepath.Join(t.TempDir(), "test.db"))
	ctx := context.Background()

	err := pool.Transaction(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "INSERT INTO items (value) VALUES (?)", &sqlitex.ExecOptions{Args: []any{"kept"}})
	})
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}

	sentinel := errors.New("abort")
	err = pool.Transaction(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, "INSERT INTO items (value) VALUES (?)", &sqlitex.ExecOptions{Args: []any{"discarded"}}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Transaction error = %v, want sentinel", err)
	}
	if got := countItems(t, pool); got != 1 {
		t.Fatalf("rows = %d, want 1", got)
	}
}

func TestSchemaSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	first, err := sqlitepool.Open(sqlitepool.Config{Path: path, Schema: testSchema})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	err = first.Transaction(context.Background(), func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "INSERT INTO items (value) VALUES ('x')", nil)
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second := openTestPool(t, path)
	if got := countItems(t, second); got != 1 {
		t.Fatalf("rows after reopen = %d, want 1", got)
	}
}

func TestOpenValidation(t *testing.T) {
	if _, err := sqlitepool.Open(sqlitepool.Config{}); err == nil {
		t.Fatal("Open with empty Path succeeded")
	}
	if _, err := sqlitepool.Open(sqlitepool.Config{Path: filepath.Join(t.TempDir(), "x.db"), Synchronous: "OFF"}); err == nil {
		t.Fatal("Open with Synchronous OFF succeeded")
	}
}
