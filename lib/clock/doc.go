// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable time source used by the
// telemetry client's background loops, and the conversion between
// time.Time and the epoch-millisecond timestamps carried on the wire.
//
// Components hold a Clock field. Production wiring passes Real();
// tests pass Fake() and step time forward:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	queue := delivery.New(delivery.Config{Clock: c, ...})
//	go queue.RunRollover(ctx)
//	c.WaitForTimers(1)
//	c.Advance(time.Second)
//
// WaitForTimers closes the race between a goroutine registering its
// timer and the test advancing the clock.
package clock
