// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunkstore

import (
	"context"
	"sort"
	"sync"

	"github.com/bureau-foundation/rdata/lib/clock"
	"github.com/bureau-foundation/rdata/lib/codec"
)

// Memory is an in-process Store. Values round-trip through CBOR so
// callers observe the same decoding behavior as SQLiteStore. A Memory
// survives a simulated restart as long as the same instance is handed
// to the next queue.
type Memory struct {
	clock clock.Clock

	mu     sync.Mutex
	chunks map[string]map[string]Chunk
	dead   map[string][]DeadChunk
	values map[string]map[string][]byte
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty store. A nil clock means clock.Real().
func NewMemory(clk clock.Clock) *Memory {
	if clk == nil {
		clk = clock.Real()
	}
	return &Memory{
		clock:  clk,
		chunks: make(map[string]map[string]Chunk),
		dead:   make(map[string][]DeadChunk),
		values: make(map[string]map[string][]byte),
	}
}

func (m *Memory) SaveChunk(_ context.Context, chunk Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user := m.chunks[chunk.UserID]
	if user == nil {
		user = make(map[string]Chunk)
		m.chunks[chunk.UserID] = user
	}
	if _, exists := user[chunk.ID]; exists {
		return nil
	}
	chunk.CreatedAt = clock.FromUnixMillis(clock.UnixMillis(chunk.CreatedAt))
	chunk.Payload = append([]byte(nil), chunk.Payload...)
	user[chunk.ID] = chunk
	return nil
}

func (m *Memory) ListChunks(_ context.Context, userID string) ([]Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chunks := make([]Chunk, 0, len(m.chunks[userID]))
	for _, chunk := range m.chunks[userID] {
		chunks = append(chunks, chunk)
	}
	sort.Slice(chunks, func(i, j int) bool {
		if !chunks[i].CreatedAt.Equal(chunks[j].CreatedAt) {
			return chunks[i].CreatedAt.Before(chunks[j].CreatedAt)
		}
		if chunks[i].Sequence != chunks[j].Sequence {
			return chunks[i].Sequence < chunks[j].Sequence
		}
		return chunks[i].ID < chunks[j].ID
	})
	return chunks, nil
}

func (m *Memory) DeleteChunk(_ context.Context, userID, chunkID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chunks[userID], chunkID)
	return nil
}

func (m *Memory) CountChunks(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chunks[userID]), nil
}

func (m *Memory) QuarantineChunk(_ context.Context, userID, chunkID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chunk, ok := m.chunks[userID][chunkID]
	if !ok {
		return nil
	}
	delete(m.chunks[userID], chunkID)
	m.dead[userID] = append(m.dead[userID], DeadChunk{
		Chunk:         chunk,
		Reason:        reason,
		QuarantinedAt: m.clock.Now(),
	})
	return nil
}

func (m *Memory) DeadChunks(_ context.Context, userID string) ([]DeadChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DeadChunk(nil), m.dead[userID]...), nil
}

func (m *Memory) GetValue(_ context.Context, userID, key string, v any) error {
	m.mu.Lock()
	data, ok := m.values[userID][key]
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return codec.Unmarshal(data, v)
}

func (m *Memory) SetValue(_ context.Context, userID, key string, v any) error {
	data, err := codec.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	user := m.values[userID]
	if user == nil {
		user = make(map[string][]byte)
		m.values[userID] = user
	}
	user[key] = data
	return nil
}

func (m *Memory) DeleteValue(_ context.Context, userID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values[userID], key)
	return nil
}

func (m *Memory) Close() error { return nil }
