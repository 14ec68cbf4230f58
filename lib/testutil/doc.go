// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive], [RequireNoReceive] and [RequireClosed] wrap the
// select-with-timeout pattern so tests never block forever on a
// channel. [Eventually] polls a condition for state that is not
// signalled on a channel, such as a store draining.
//
// [UniqueID] and [StatePath] give tests isolated identities and
// database files.
//
// All helpers call t.Fatalf on failure. This package imports nothing
// from the module.
package testutil
