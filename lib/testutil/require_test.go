// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

type recordingTB struct {
	failure string
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Fatalf(format string, args ...any) {
	r.failure = fmt.Sprintf(format, args...)
	panic(r)
}

func capture(fn func(tb TB)) (failure string) {
	tb := &recordingTB{}
	defer func() {
		if recovered := recover(); recovered != nil {
			if recovered != tb {
				panic(recovered)
			}
			failure = tb.failure
		}
	}()
	fn(tb)
	return ""
}

func TestRequireReceive(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 7
	if got := RequireReceive(t, ch, time.Second); got != 7 {
		t.Fatalf("RequireReceive = %d, want 7", got)
	}

	failure := capture(func(tb TB) {
		RequireReceive(tb, make(chan int), 10*time.Millisecond, "waiting for %s", "value")
	})
	if !strings.Contains(failure, "waiting for value") {
		t.Fatalf("failure = %q", failure)
	}
}

func TestRequireNoReceive(t *testing.T) {
	RequireNoReceive(t, make(chan int), 10*time.Millisecond)

	ch := make(chan int, 1)
	ch <- 1
	if failure := capture(func(tb TB) { RequireNoReceive(tb, ch, time.Second) }); failure == "" {
		t.Fatal("RequireNoReceive did not fail on a ready channel")
	}
}

func TestEventually(t *testing.T) {
	calls := 0
	Eventually(t, time.Second, func() bool {
		calls++
		return calls >= 3
	})

	if failure := capture(func(tb TB) { Eventually(tb, 20*time.Millisecond, func() bool { return false }) }); failure == "" {
		t.Fatal("Eventually did not fail")
	}
}

func TestUniqueID(t *testing.T) {
	first, second := UniqueID("user"), UniqueID("user")
	if first == second || !strings.HasPrefix(first, "user-") {
		t.Fatalf("UniqueID = %q, %q", first, second)
	}
}
