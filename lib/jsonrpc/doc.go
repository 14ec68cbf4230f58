// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package jsonrpc defines the JSON-RPC 2.0 envelopes exchanged with
// the telemetry collector.
//
// A Request carries a random id that is the sole correlation key
// between a request and its response, and the method's batchability,
// which is a property of the method and never serialized. Batchable
// requests are grouped into a bulkRequest envelope by the delivery
// queue; non-batchable requests go to the collector on their own.
//
// Collector errors arrive as *Error. The Data field is a
// machine-checkable classification; IsAlreadyApplied reports the one
// classification the client treats as success.
package jsonrpc
