// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunkstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"filippo.io/age"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/rdata/lib/clock"
	"github.com/bureau-foundation/rdata/lib/codec"
	"github.com/bureau-foundation/rdata/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	user_id     TEXT    NOT NULL,
	chunk_id    TEXT    NOT NULL,
	created_at  INTEGER NOT NULL,
	sequence    INTEGER NOT NULL,
	compression TEXT    NOT NULL,
	encrypted   INTEGER NOT NULL,
	size        INTEGER NOT NULL,
	checksum    BLOB    NOT NULL,
	payload     BLOB    NOT NULL,
	PRIMARY KEY (user_id, chunk_id)
);
CREATE INDEX IF NOT EXISTS chunks_by_age ON chunks (user_id, created_at, sequence, chunk_id);

CREATE TABLE IF NOT EXISTS dead_chunks (
	user_id        TEXT    NOT NULL,
	chunk_id       TEXT    NOT NULL,
	created_at     INTEGER NOT NULL,
	sequence       INTEGER NOT NULL,
	compression    TEXT    NOT NULL,
	encrypted      INTEGER NOT NULL,
	size           INTEGER NOT NULL,
	checksum       BLOB    NOT NULL,
	payload        BLOB    NOT NULL,
	reason         TEXT    NOT NULL,
	quarantined_at INTEGER NOT NULL,
	PRIMARY KEY (user_id, chunk_id)
);

CREATE TABLE IF NOT EXISTS kv (
	user_id TEXT NOT NULL,
	key     TEXT NOT NULL,
	value   BLOB NOT NULL,
	PRIMARY KEY (user_id, key)
);
`

const chunkColumns = "chunk_id, created_at, sequence, compression, encrypted, size, checksum, payload"

// SQLiteConfig configures a SQLiteStore.
type SQLiteConfig struct {
	// Path is the database file. Required.
	Path string

	// Compression applied to payloads written from now on. Rows keep
	// the compression they were written with.
	Compression Compression

	// EncryptionIdentity is an age X25519 secret key
	// ("AGE-SECRET-KEY-1..."). When set, payloads are encrypted to
	// its recipient and decrypted with it.
	EncryptionIdentity string

	// Synchronous is the SQLite synchronous level, "full" (default) or
	// "normal". Case-insensitive.
	Synchronous string

	// Clock stamps dead-letter entries. Defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to discard.
	Logger *slog.Logger
}

// SQLiteStore is the durable Store.
type SQLiteStore struct {
	pool   *sqlitepool.Pool
	sealer sealer
	clock  clock.Clock
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the store at config.Path.
func OpenSQLite(config SQLiteConfig) (*SQLiteStore, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("chunkstore: Path is required")
	}
	compression, err := ParseCompression(string(config.Compression))
	if err != nil {
		return nil, err
	}
	var identity *age.X25519Identity
	if config.EncryptionIdentity != "" {
		identity, err = age.ParseX25519Identity(strings.TrimSpace(config.EncryptionIdentity))
		if err != nil {
			return nil, fmt.Errorf("chunkstore: parsing encryption identity: %w", err)
		}
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:        config.Path,
		Synchronous: strings.ToUpper(config.Synchronous),
		Schema:      schema,
		Logger:      config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("chunkstore: %w", err)
	}
	return &SQLiteStore{
		pool:   pool,
		sealer: sealer{compression: compression, identity: identity},
		clock:  config.Clock,
		logger: config.Logger,
	}, nil
}

// SaveChunk seals the payload and inserts the row. The chunk is durable
// when SaveChunk returns nil.
func (s *SQLiteStore) SaveChunk(ctx context.Context, chunk Chunk) error {
	row, err := s.sealer.seal(chunk.Payload)
	if err != nil {
		return fmt.Errorf("chunkstore: sealing chunk %s: %w", chunk.ID, err)
	}
	err = s.pool.Transaction(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT OR IGNORE INTO chunks (user_id, `+chunkColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				chunk.UserID,
				chunk.ID,
				clock.UnixMillis(chunk.CreatedAt),
				int64(chunk.Sequence),
				string(row.compression),
				row.encrypted,
				row.size,
				row.checksum,
				row.data,
			}})
	})
	if err != nil {
		return fmt.Errorf("chunkstore: saving chunk %s: %w", chunk.ID, err)
	}
	return nil
}

// ListChunks loads and verifies the user's chunks, oldest first. Rows
// that do not decode are quarantined and left out of the result.
func (s *SQLiteStore) ListChunks(ctx context.Context, userID string) ([]Chunk, error) {
	var chunks []Chunk
	type broken struct {
		id     string
		reason string
	}
	var corrupt []broken

	err := s.pool.Do(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT `+chunkColumns+` FROM chunks
			 WHERE user_id = ?
			 ORDER BY created_at, sequence, chunk_id`,
			&sqlitex.ExecOptions{
				Args: []any{userID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					chunk, row := scanChunk(stmt, userID)
					payload, err := s.sealer.open(row)
					if err != nil {
						corrupt = append(corrupt, broken{id: chunk.ID, reason: err.Error()})
						return nil
					}
					chunk.Payload = payload
					chunks = append(chunks, chunk)
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("chunkstore: listing chunks: %w", err)
	}

	for _, entry := range corrupt {
		s.logger.Warn("quarantining unreadable chunk",
			"user_id", userID,
			"chunk_id", entry.id,
			"reason", entry.reason,
		)
		if err := s.QuarantineChunk(ctx, userID, entry.id, entry.reason); err != nil {
			return nil, err
		}
	}
	return chunks, nil
}

// scanChunk reads the chunkColumns of the current row. The returned
// chunk has no payload yet.
func scanChunk(stmt *sqlite.Stmt, userID string) (Chunk, sealed) {
	chunk := Chunk{
		ID:        stmt.ColumnText(0),
		UserID:    userID,
		CreatedAt: clock.FromUnixMillis(stmt.ColumnInt64(1)),
		Sequence:  uint64(stmt.ColumnInt64(2)),
	}
	return chunk, sealed{
		compression: Compression(stmt.ColumnText(3)),
		encrypted:   stmt.ColumnBool(4),
		size:        stmt.ColumnInt(5),
		checksum:    columnBlob(stmt, 6),
		data:        columnBlob(stmt, 7),
	}
}

func columnBlob(stmt *sqlite.Stmt, column int) []byte {
	blob := make([]byte, stmt.ColumnLen(column))
	stmt.ColumnBytes(column, blob)
	return blob
}

// DeleteChunk removes an acknowledged chunk.
func (s *SQLiteStore) DeleteChunk(ctx context.Context, userID, chunkID string) error {
	err := s.pool.Transaction(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`DELETE FROM chunks WHERE user_id = ? AND chunk_id = ?`,
			&sqlitex.ExecOptions{Args: []any{userID, chunkID}})
	})
	if err != nil {
		return fmt.Errorf("chunkstore: deleting chunk %s: %w", chunkID, err)
	}
	return nil
}

// CountChunks returns the number of pending chunks for userID.
func (s *SQLiteStore) CountChunks(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.pool.Do(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT COUNT(*) FROM chunks WHERE user_id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{userID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					count = stmt.ColumnInt(0)
					return nil
				},
			})
	})
	if err != nil {
		return 0, fmt.Errorf("chunkstore: counting chunks: %w", err)
	}
	return count, nil
}

// QuarantineChunk moves the chunk row into dead_chunks atomically.
func (s *SQLiteStore) QuarantineChunk(ctx context.Context, userID, chunkID, reason string) error {
	err := s.pool.Transaction(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			`INSERT OR REPLACE INTO dead_chunks (user_id, `+chunkColumns+`, reason, quarantined_at)
			 SELECT user_id, `+chunkColumns+`, ?, ? FROM chunks
			 WHERE user_id = ? AND chunk_id = ?`,
			&sqlitex.ExecOptions{Args: []any{reason, clock.UnixMillis(s.clock.Now()), userID, chunkID}})
		if err != nil {
			return err
		}
		return sqlitex.Execute(conn,
			`DELETE FROM chunks WHERE user_id = ? AND chunk_id = ?`,
			&sqlitex.ExecOptions{Args: []any{userID, chunkID}})
	})
	if err != nil {
		return fmt.Errorf("chunkstore: quarantining chunk %s: %w", chunkID, err)
	}
	return nil
}

// DeadChunks lists dead-lettered chunks. Payloads that cannot be
// opened are returned empty.
func (s *SQLiteStore) DeadChunks(ctx context.Context, userID string) ([]DeadChunk, error) {
	var dead []DeadChunk
	err := s.pool.Do(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT `+chunkColumns+`, reason, quarantined_at FROM dead_chunks
			 WHERE user_id = ?
			 ORDER BY quarantined_at, chunk_id`,
			&sqlitex.ExecOptions{
				Args: []any{userID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					chunk, row := scanChunk(stmt, userID)
					chunk.Payload, _ = s.sealer.open(row)
					dead = append(dead, DeadChunk{
						Chunk:         chunk,
						Reason:        stmt.ColumnText(8),
						QuarantinedAt: clock.FromUnixMillis(stmt.ColumnInt64(9)),
					})
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("chunkstore: listing dead chunks: %w", err)
	}
	return dead, nil
}

// GetValue decodes the CBOR value under key into v.
func (s *SQLiteStore) GetValue(ctx context.Context, userID, key string, v any) error {
	var (
		data  []byte
		found bool
	)
	err := s.pool.Do(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT value FROM kv WHERE user_id = ? AND key = ?`,
			&sqlitex.ExecOptions{
				Args: []any{userID, key},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					data = columnBlob(stmt, 0)
					found = true
					return nil
				},
			})
	})
	if err != nil {
		return fmt.Errorf("chunkstore: reading %s: %w", key, err)
	}
	if !found {
		return ErrNotFound
	}
	if err := codec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("chunkstore: decoding %s: %w", key, err)
	}
	return nil
}

// SetValue stores v as CBOR under key.
func (s *SQLiteStore) SetValue(ctx context.Context, userID, key string, v any) error {
	data, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("chunkstore: encoding %s: %w", key, err)
	}
	err = s.pool.Transaction(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO kv (user_id, key, value) VALUES (?, ?, ?)
			 ON CONFLICT (user_id, key) DO UPDATE SET value = excluded.value`,
			&sqlitex.ExecOptions{Args: []any{userID, key, data}})
	})
	if err != nil {
		return fmt.Errorf("chunkstore: writing %s: %w", key, err)
	}
	return nil
}

// DeleteValue removes key.
func (s *SQLiteStore) DeleteValue(ctx context.Context, userID, key string) error {
	err := s.pool.Transaction(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`DELETE FROM kv WHERE user_id = ? AND key = ?`,
			&sqlitex.ExecOptions{Args: []any{userID, key}})
	})
	if err != nil {
		return fmt.Errorf("chunkstore: deleting %s: %w", key, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.pool.Close()
}
