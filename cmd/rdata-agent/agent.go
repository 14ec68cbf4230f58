// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/bureau-foundation/rdata/client"
	"github.com/bureau-foundation/rdata/contexttree"
	"github.com/bureau-foundation/rdata/lib/clock"
)

// processStats is the data of the "process" context.
type processStats struct {
	PID            int    `json:"pid"`
	UptimeSeconds  int64  `json:"uptimeSeconds"`
	Goroutines     int    `json:"goroutines"`
	HeapAllocBytes uint64 `json:"heapAllocBytes"`
	GCCycles       uint32 `json:"gcCycles"`
}

var processSchema = contexttree.NewSchema[processStats]().
	Named("process").
	Track("uptimeSeconds", func(s *processStats) any { return s.UptimeSeconds }).
	Track("goroutines", func(s *processStats) any { return s.Goroutines }).
	Track("heapAllocBytes", func(s *processStats) any { return s.HeapAllocBytes }).
	Track("gcCycles", func(s *processStats) any { return s.GCCycles })

type heartbeatEvent struct {
	Sequence int `json:"sequence"`
}

type agent struct {
	client    *client.Client
	clock     clock.Clock
	logger    *slog.Logger
	heartbeat time.Duration
}

// run samples process statistics and logs heartbeats until ctx is
// done, then ends the process context.
func (a *agent) run(ctx context.Context) error {
	if a.clock == nil {
		a.clock = clock.Real()
	}
	started := a.clock.Now()
	process, err := client.StartContext(ctx, a.client, nil, processSchema, a.sample(started))
	if err != nil {
		return fmt.Errorf("starting process context: %w", err)
	}

	ticker := a.clock.NewTicker(a.heartbeat)
	defer ticker.Stop()
	for sequence := 1; ; sequence++ {
		select {
		case <-ctx.Done():
			// ctx is already cancelled; End only queues.
			if err := a.client.EndContext(context.WithoutCancel(ctx), process.Node); err != nil {
				return fmt.Errorf("ending process context: %w", err)
			}
			return nil
		case <-ticker.C:
		}

		current := a.sample(started)
		process.Update(func(s *processStats) { *s = current })
		if _, err := a.client.LogEvent(ctx, "heartbeat", heartbeatEvent{Sequence: sequence}, process.Node); err != nil {
			a.logger.Warn("heartbeat not queued", "sequence", sequence, "error", err)
		}
	}
}

func (a *agent) sample(started time.Time) processStats {
	var memory runtime.MemStats
	runtime.ReadMemStats(&memory)
	return processStats{
		PID:            os.Getpid(),
		UptimeSeconds:  int64(a.clock.Now().Sub(started).Seconds()),
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocBytes: memory.HeapAlloc,
		GCCycles:       memory.NumGC,
	}
}
