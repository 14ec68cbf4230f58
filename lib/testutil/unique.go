// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
)

var uniqueCounter atomic.Uint64

// UniqueID returns "prefix-N" with N increasing across the test
// binary. Tests use it for user ids that must not collide in a shared
// store.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}

// StatePath returns a fresh database path inside t.TempDir(). Two
// stores opened on the same path share state, which is how tests
// simulate a process restart.
func StatePath(t testing.TB) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "rdata.db")
}
