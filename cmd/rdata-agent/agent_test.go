// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/bureau-foundation/rdata/client"
	"github.com/bureau-foundation/rdata/lib/chunkstore"
	"github.com/bureau-foundation/rdata/lib/clock"
	"github.com/bureau-foundation/rdata/lib/collectortest"
	"github.com/bureau-foundation/rdata/lib/jsonrpc"
	"github.com/bureau-foundation/rdata/lib/testutil"
)

func TestAgentReportsHeartbeatsAndEndsContext(t *testing.T) {
	collector := collectortest.New(t)
	session, err := client.New(client.Config{
		Dialer: collector.Network(),
		Store:  chunkstore.NewMemory(clock.Real()),
		Delivery: client.DeliveryConfig{
			ChunkLifetime:    10 * time.Millisecond,
			RolloverInterval: 5 * time.Millisecond,
			IdlePollInterval: 10 * time.Millisecond,
		},
		TrackInterval: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	t.Cleanup(session.CloseNow)
	if !session.Open(context.Background(), "collector", true, 5*time.Second) {
		t.Fatal("agent client did not connect")
	}
	if err := session.Authorize(context.Background(), "agent-test"); err != nil {
		t.Fatalf("Authorize: %v", err)
	}

	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- (&agent{
			client:    session,
			clock:     fake,
			logger:    slog.New(slog.DiscardHandler),
			heartbeat: 30 * time.Second,
		}).run(ctx)
	}()

	// One tick, 90 seconds after the process context started.
	fake.WaitForTimers(1)
	fake.Advance(90 * time.Second)

	hasHeartbeat := func() bool {
		for _, call := range collector.Flatten() {
			if call.Method == jsonrpc.MethodLogEvent && call.Param("name") == "heartbeat" {
				return true
			}
		}
		return false
	}
	testutil.Eventually(t, 5*time.Second, hasHeartbeat, "collector received no heartbeat")
	hasUptime := func() bool {
		for _, call := range collector.Flatten() {
			if call.Method == jsonrpc.MethodUpdateContextDataVariable &&
				call.Param("key") == "uptimeSeconds" && call.Param("value") == float64(90) {
				return true
			}
		}
		return false
	}
	testutil.Eventually(t, 5*time.Second, hasUptime, "uptime was not reported from the agent clock")

	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "agent did not stop"); err != nil {
		t.Fatalf("agent run: %v", err)
	}

	drain, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := session.Close(drain); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var processID string
	for _, call := range collector.Flatten() {
		if call.Method == jsonrpc.MethodStartContext && call.Param("name") == "process" {
			processID, _ = call.Param("id").(string)
		}
	}
	if processID == "" {
		t.Fatal("collector never saw the process context start")
	}
	ended := false
	for _, call := range collector.Flatten() {
		if call.Method == jsonrpc.MethodEndContext && call.Param("id") == processID {
			ended = true
		}
	}
	if !ended {
		t.Fatal("process context was not ended")
	}
}
