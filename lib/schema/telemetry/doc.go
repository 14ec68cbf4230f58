// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry defines the params payloads of every collector
// method and constructors that wrap them in JSON-RPC requests.
//
// All timestamps are epoch milliseconds (see lib/clock). Data payloads
// are opaque to this package: they are whatever JSON-marshalable value
// the host attached to a context or event.
package telemetry
