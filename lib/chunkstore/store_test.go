// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunkstore

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/rdata/lib/testutil"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// storeContract runs the behavior every Store must share.
func storeContract(t *testing.T, open func(t *testing.T) Store) {
	t.Run("OrderedByCreatedAt", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		user := testutil.UniqueID("user")

		// Insert out of order; the tie at +1s breaks by id.
		for _, chunk := range []Chunk{
			{ID: "c", UserID: user, CreatedAt: start.Add(2 * time.Second), Payload: []byte("third")},
			{ID: "b", UserID: user, CreatedAt: start.Add(time.Second), Payload: []byte("second-b")},
			{ID: "a", UserID: user, CreatedAt: start.Add(time.Second), Payload: []byte("second-a")},
			{ID: "z", UserID: user, CreatedAt: start, Payload: []byte("first")},
		} {
			if err := store.SaveChunk(ctx, chunk); err != nil {
				t.Fatalf("SaveChunk(%s): %v", chunk.ID, err)
			}
		}

		chunks, err := store.ListChunks(ctx, user)
		if err != nil {
			t.Fatalf("ListChunks: %v", err)
		}
		var order []string
		for _, chunk := range chunks {
			order = append(order, chunk.ID)
		}
		if got, want := join(order), "z,a,b,c"; got != want {
			t.Fatalf("order = %s, want %s", got, want)
		}
		if !bytes.Equal(chunks[0].Payload, []byte("first")) {
			t.Fatalf("payload = %q", chunks[0].Payload)
		}
		if !chunks[0].CreatedAt.Equal(start) {
			t.Fatalf("CreatedAt = %v, want %v", chunks[0].CreatedAt, start)
		}
	})

	t.Run("SequenceOrdersSameMillisecond", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		user := testutil.UniqueID("user")

		// Ids sort against the sequence so only Sequence can yield
		// the wanted order.
		for _, chunk := range []Chunk{
			{ID: "a", UserID: user, CreatedAt: start, Sequence: 2, Payload: []byte("third")},
			{ID: "b", UserID: user, CreatedAt: start, Sequence: 1, Payload: []byte("second")},
			{ID: "c", UserID: user, CreatedAt: start, Sequence: 0, Payload: []byte("first")},
		} {
			if err := store.SaveChunk(ctx, chunk); err != nil {
				t.Fatalf("SaveChunk(%s): %v", chunk.ID, err)
			}
		}

		chunks, err := store.ListChunks(ctx, user)
		if err != nil {
			t.Fatalf("ListChunks: %v", err)
		}
		var order []string
		for _, chunk := range chunks {
			order = append(order, chunk.ID)
		}
		if got, want := join(order), "c,b,a"; got != want {
			t.Fatalf("order = %s, want %s", got, want)
		}
		if chunks[2].Sequence != 2 {
			t.Fatalf("Sequence = %d, want 2", chunks[2].Sequence)
		}
	})

	t.Run("DuplicateIDIsIgnored", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		user := testutil.UniqueID("user")
		first := Chunk{ID: "dup", UserID: user, CreatedAt: start, Payload: []byte("original")}
		second := Chunk{ID: "dup", UserID: user, CreatedAt: start.Add(time.Hour), Payload: []byte("replacement")}
		if err := store.SaveChunk(ctx, first); err != nil {
			t.Fatalf("SaveChunk: %v", err)
		}
		if err := store.SaveChunk(ctx, second); err != nil {
			t.Fatalf("SaveChunk duplicate: %v", err)
		}
		chunks, err := store.ListChunks(ctx, user)
		if err != nil {
			t.Fatalf("ListChunks: %v", err)
		}
		if len(chunks) != 1 || string(chunks[0].Payload) != "original" {
			t.Fatalf("chunks = %+v", chunks)
		}
	})

	t.Run("UsersAreIsolated", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		alice, bob := testutil.UniqueID("alice"), testutil.UniqueID("bob")
		if err := store.SaveChunk(ctx, Chunk{ID: "x", UserID: alice, CreatedAt: start, Payload: []byte("a")}); err != nil {
			t.Fatalf("SaveChunk: %v", err)
		}
		if count, _ := store.CountChunks(ctx, bob); count != 0 {
			t.Fatalf("bob sees %d chunks", count)
		}
		if count, _ := store.CountChunks(ctx, alice); count != 1 {
			t.Fatalf("alice sees %d chunks", count)
		}
	})

	t.Run("DeleteAndQuarantine", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		user := testutil.UniqueID("user")
		for _, id := range []string{"keep", "drop", "poison"} {
			if err := store.SaveChunk(ctx, Chunk{ID: id, UserID: user, CreatedAt: start, Payload: []byte(id)}); err != nil {
				t.Fatalf("SaveChunk: %v", err)
			}
		}
		if err := store.DeleteChunk(ctx, user, "drop"); err != nil {
			t.Fatalf("DeleteChunk: %v", err)
		}
		if err := store.DeleteChunk(ctx, user, "never-existed"); err != nil {
			t.Fatalf("DeleteChunk missing: %v", err)
		}
		if err := store.QuarantineChunk(ctx, user, "poison", "rejected 3 times"); err != nil {
			t.Fatalf("QuarantineChunk: %v", err)
		}

		chunks, err := store.ListChunks(ctx, user)
		if err != nil {
			t.Fatalf("ListChunks: %v", err)
		}
		if len(chunks) != 1 || chunks[0].ID != "keep" {
			t.Fatalf("pending = %+v", chunks)
		}
		dead, err := store.DeadChunks(ctx, user)
		if err != nil {
			t.Fatalf("DeadChunks: %v", err)
		}
		if len(dead) != 1 || dead[0].ID != "poison" || dead[0].Reason != "rejected 3 times" {
			t.Fatalf("dead = %+v", dead)
		}
		if string(dead[0].Payload) != "poison" {
			t.Fatalf("dead payload = %q", dead[0].Payload)
		}
	})

	t.Run("Values", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		user := testutil.UniqueID("user")

		type record struct {
			ContextID string `json:"context_id"`
			Started   int64  `json:"started"`
		}
		var missing record
		if err := store.GetValue(ctx, user, "root", &missing); !errors.Is(err, ErrNotFound) {
			t.Fatalf("GetValue missing = %v, want ErrNotFound", err)
		}
		if err := store.SetValue(ctx, user, "root", record{ContextID: "r1", Started: 1}); err != nil {
			t.Fatalf("SetValue: %v", err)
		}
		if err := store.SetValue(ctx, user, "root", record{ContextID: "r2", Started: 2}); err != nil {
			t.Fatalf("SetValue overwrite: %v", err)
		}
		var got record
		if err := store.GetValue(ctx, user, "root", &got); err != nil {
			t.Fatalf("GetValue: %v", err)
		}
		if got.ContextID != "r2" || got.Started != 2 {
			t.Fatalf("GetValue = %+v", got)
		}
		if err := store.DeleteValue(ctx, user, "root"); err != nil {
			t.Fatalf("DeleteValue: %v", err)
		}
		if err := store.GetValue(ctx, user, "root", &got); !errors.Is(err, ErrNotFound) {
			t.Fatalf("GetValue after delete = %v, want ErrNotFound", err)
		}
	})
}

func join(values []string) string {
	var buffer bytes.Buffer
	for i, value := range values {
		if i > 0 {
			buffer.WriteByte(',')
		}
		buffer.WriteString(value)
	}
	return buffer.String()
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store { return NewMemory(nil) })
}

func TestSQLiteStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store {
		return openSQLite(t, SQLiteConfig{Path: testutil.StatePath(t)})
	})
}

func TestSQLiteStoreCompressed(t *testing.T) {
	for _, compression := range []Compression{CompressionLZ4, CompressionZstd} {
		t.Run(string(compression), func(t *testing.T) {
			storeContract(t, func(t *testing.T) Store {
				return openSQLite(t, SQLiteConfig{Path: testutil.StatePath(t), Compression: compression})
			})
		})
	}
}

func openSQLite(t *testing.T, config SQLiteConfig) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(config)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}
