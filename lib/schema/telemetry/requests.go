// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"encoding/json"
	"time"

	"github.com/bureau-foundation/rdata/lib/clock"
	"github.com/bureau-foundation/rdata/lib/jsonrpc"
)

// Authorize builds an authorize request.
func Authorize(userID, clientVersion string, now time.Time) *jsonrpc.Request {
	return jsonrpc.NewRequest(jsonrpc.MethodAuthorize, AuthorizeParams{
		UserID:        userID,
		ClientVersion: clientVersion,
	}, now)
}

// StartContext builds a startContext request.
func StartContext(params StartContextParams, now time.Time) *jsonrpc.Request {
	return jsonrpc.NewRequest(jsonrpc.MethodStartContext, params, now)
}

// EndContext builds an endContext request for the context id ended at
// ended.
func EndContext(id string, ended time.Time) *jsonrpc.Request {
	return jsonrpc.NewRequest(jsonrpc.MethodEndContext, EndContextParams{
		ID:        id,
		TimeEnded: clock.UnixMillis(ended),
	}, ended)
}

// RestoreContext builds a restoreContext request.
func RestoreContext(id string, now time.Time) *jsonrpc.Request {
	return jsonrpc.NewRequest(jsonrpc.MethodRestoreContext, RestoreContextParams{ID: id}, now)
}

// SetContextData builds a setContextData request.
func SetContextData(id string, data any, now time.Time) *jsonrpc.Request {
	return jsonrpc.NewRequest(jsonrpc.MethodSetContextData, SetContextDataParams{
		ID:      id,
		Data:    data,
		TimeSet: clock.UnixMillis(now),
	}, now)
}

// UpdateContextDataVariable builds an updateContextDataVariable request.
func UpdateContextDataVariable(id, key string, value any, now time.Time) *jsonrpc.Request {
	return jsonrpc.NewRequest(jsonrpc.MethodUpdateContextDataVariable, UpdateContextDataVariableParams{
		ID:          id,
		Key:         key,
		Value:       value,
		TimeUpdated: clock.UnixMillis(now),
	}, now)
}

// LogEvent builds a logEvent request.
func LogEvent(params LogEventParams, now time.Time) *jsonrpc.Request {
	return jsonrpc.NewRequest(jsonrpc.MethodLogEvent, params, now)
}

// RestoreInterruptedContexts asks the collector to restore every
// context it holds as interrupted for the authorized user.
func RestoreInterruptedContexts(now time.Time) *jsonrpc.Request {
	return jsonrpc.NewRequest(jsonrpc.MethodRestoreInterruptedContexts, nil, now)
}

// EndInterruptedContexts asks the collector to end every context it
// holds as interrupted for the authorized user.
func EndInterruptedContexts(now time.Time) *jsonrpc.Request {
	return jsonrpc.NewRequest(jsonrpc.MethodEndInterruptedContexts, nil, now)
}

// BulkRequest wraps encoded requests in a bulkRequest envelope with the
// given id. The delivery queue uses the chunk id here so the bulk
// envelope and the stored chunk share one identity.
func BulkRequest(id string, requests []json.RawMessage, created time.Time) *jsonrpc.Request {
	request := jsonrpc.NewRequest(jsonrpc.MethodBulkRequest, BulkRequestParams{Requests: requests}, created)
	request.ID = id
	return request
}
