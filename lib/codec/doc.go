// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the binary encoding for values the telemetry client
// keeps in its local scalar store: the identity of the current root
// context, the last authorized user, and similar small records.
//
// Wire traffic to the collector is JSON-RPC and does not go through
// this package. Local records use CBOR (RFC 8949) with deterministic
// encoding. Types that carry json tags and no cbor tags encode with
// the json field names.
package codec
