// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jsonrpc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/rdata/lib/clock"
)

// Version is the JSON-RPC protocol version string.
const Version = "2.0"

// Request is an outgoing call. Params is any JSON-marshalable value,
// normally one of the lib/schema/telemetry params types.
type Request struct {
	JSONRPC   string `json:"jsonrpc"`
	ID        string `json:"id"`
	Method    string `json:"method"`
	Params    any    `json:"params,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// NewRequest builds a request with a fresh random id, stamped with
// createdAt in epoch milliseconds.
func NewRequest(method string, params any, createdAt time.Time) *Request {
	return &Request{
		JSONRPC:   Version,
		ID:        uuid.NewString(),
		Method:    method,
		Params:    params,
		CreatedAt: clock.UnixMillis(createdAt),
	}
}

// Batchable reports whether the request may be placed in a chunk.
func (r *Request) Batchable() bool {
	return IsBatchable(r.Method)
}

// Response is a reply from the collector. Exactly one of Result and
// Error is meaningful.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Decode unmarshals the result into v. A collector error is returned
// as-is; a result that does not fit v is a *ProtocolError.
func (r *Response) Decode(v any) error {
	if r.Error != nil {
		return r.Error
	}
	if v == nil {
		return nil
	}
	if len(r.Result) == 0 {
		return &ProtocolError{ID: r.ID, Err: fmt.Errorf("response has neither result nor error")}
	}
	if err := json.Unmarshal(r.Result, v); err != nil {
		return &ProtocolError{ID: r.ID, Err: err}
	}
	return nil
}

// Succeeded reports whether the response carries a boolean true
// result, which is how the collector acknowledges a chunk.
func (r *Response) Succeeded() bool {
	if r.Error != nil {
		return false
	}
	var ok bool
	if err := json.Unmarshal(r.Result, &ok); err != nil {
		return false
	}
	return ok
}

// ParseResponse decodes a single message read from the connection.
func ParseResponse(data []byte) (*Response, error) {
	var response Response
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, &ProtocolError{Err: err}
	}
	if response.ID == "" {
		return nil, &ProtocolError{Err: fmt.Errorf("response without id")}
	}
	return &response, nil
}
