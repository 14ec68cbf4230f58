// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jsonrpc

import (
	"errors"
	"fmt"
)

// AlreadyApplied is the error data the collector attaches when a
// request conflicts with state it has already recorded, such as a
// startContext for an id it knows. For a replayed chunk that means an
// earlier attempt landed.
const AlreadyApplied = "context-validation-error"

// Error is a JSON-RPC error object returned by the collector.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("collector error %d (%s): %s", e.Code, e.Data, e.Message)
	}
	return fmt.Sprintf("collector error %d: %s", e.Code, e.Message)
}

// IsAlreadyApplied reports whether err is a collector error classified
// as already applied.
func IsAlreadyApplied(err error) bool {
	var rpcError *Error
	return errors.As(err, &rpcError) && rpcError != nil && rpcError.Data == AlreadyApplied
}

// IsServerError reports whether err is any collector error.
func IsServerError(err error) bool {
	var rpcError *Error
	return errors.As(err, &rpcError)
}

// ProtocolError reports a message that could not be decoded or did not
// match the expected shape.
type ProtocolError struct {
	// ID is the request id the message was for, when known.
	ID  string
	Err error
}

func (e *ProtocolError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("jsonrpc: malformed response to %s: %v", e.ID, e.Err)
	}
	return fmt.Sprintf("jsonrpc: malformed message: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
