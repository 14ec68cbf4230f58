// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package contexttree maintains the tree of telemetry contexts and
// reports field-level changes to their data.
//
// A context is a named scope (a session, a level, a screen) carrying
// typed data. Which fields of that data are tracked is declared once
// per type with a Schema:
//
//	type Score struct{ Points int }
//	type Level struct {
//	    Name  string
//	    Score Score
//	}
//
//	var scoreSchema = contexttree.NewSchema[Score]().
//	    Track("points", func(s *Score) any { return s.Points })
//	var levelSchema = contexttree.Nest(
//	    contexttree.NewSchema[Level]().Track("name", func(l *Level) any { return l.Name }),
//	    "score", func(l *Level) *Score { return &l.Score }, scoreSchema)
//
// The level schema tracks "name" and "score.points". Nesting a schema
// inside itself, or deeper than MaxDepth, panics at registration.
//
// Every tracking tick walks the tree breadth first from the root,
// visiting only Started nodes, and submits an updateContextDataVariable
// for each tracked field whose encoded value differs from the last one
// reported. Unchanged fields are silent. When the root is Interrupted
// the walk stops at the root, so nothing is reported until Restore.
//
// Host code mutates context data only through Context.Update, which
// holds the node lock so a tick never observes a half-written value.
package contexttree
