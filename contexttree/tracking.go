// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package contexttree

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/bureau-foundation/rdata/lib/schema/telemetry"
)

// Tick walks Started nodes breadth first from the root and submits an
// updateContextDataVariable for every tracked field that changed since
// its last report. The snapshot advances only when the submit
// succeeds, so a rejected update is retried on the next tick.
func (t *Tree) Tick(ctx context.Context) error {
	root := t.Root()
	if root == nil {
		return nil
	}

	pending := []*Node{root}
	for len(pending) > 0 {
		node := pending[0]
		pending = pending[1:]
		if node.Status() != Started {
			continue
		}

		changes := node.changes(func(key string, err error) {
			t.logger.Warn("tracked field does not encode",
				"context_id", node.id,
				"key", key,
				"error", err,
			)
		})
		for _, changed := range changes {
			request := telemetry.UpdateContextDataVariable(node.id, changed.key, json.RawMessage(changed.encoded), t.clock.Now())
			if _, err := t.submitter.Submit(ctx, request); err != nil {
				return err
			}
			node.commit(changed)
		}
		pending = append(pending, node.Children()...)
	}
	return nil
}

// RunTracking ticks every TrackInterval until ctx is done.
func (t *Tree) RunTracking(ctx context.Context) {
	ticker := t.clock.NewTicker(t.trackInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
				t.logger.Warn("tracking tick failed", "error", err)
			}
		}
	}
}
