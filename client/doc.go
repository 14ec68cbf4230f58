// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package client is the telemetry session: it connects to a collector,
// authorizes a user, and reports events and context data through the
// durable delivery queue.
//
// A session looks like:
//
//	c, err := client.New(client.Config{
//	    Dialer: transport.WebSocketDialer{},
//	    Store:  store,
//	})
//	c.Open(ctx, "ws://collector:8888", true, 10*time.Second)
//	if err := c.Authorize(ctx, "player-42"); err != nil { ... }
//
//	level, err := client.StartContext(ctx, c, nil, levelSchema, Level{Name: "tutorial"})
//	level.Update(func(l *Level) { l.Score.Points = 5 })
//	c.LogEvent(ctx, "", LevelCompleted{}, level.Node)
//	c.EndContext(ctx, level.Node)
//
//	c.Close(ctx)
//
// Authorize creates the root "authorization" context describing the
// application and host, and records its id in the store. If the
// process dies without Close, the next Authorize for the same user
// ends that orphaned root before starting a new one.
//
// When the connection drops the root is interrupted: tracking stops
// and replay pauses. On reconnect the client re-authorizes, restores
// the root, and resumes replay. Data submitted in between is queued and
// persisted as usual.
package client
