// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import "encoding/json"

// AuthorizeParams identifies the user a session acts for and the
// client build that produced the data.
type AuthorizeParams struct {
	UserID        string `json:"userId"`
	ClientVersion string `json:"clientVersion,omitempty"`
}

// StartContextParams opens a context. ParentContextID is empty for a
// root context.
type StartContextParams struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Persistent      bool   `json:"persistent"`
	ParentContextID string `json:"parentContextId,omitempty"`
	Data            any    `json:"data"`
	TimeStarted     int64  `json:"timeStarted"`
}

// EndContextParams closes a context.
type EndContextParams struct {
	ID        string `json:"id"`
	TimeEnded int64  `json:"timeEnded"`
}

// RestoreContextParams reopens an interrupted context.
type RestoreContextParams struct {
	ID string `json:"id"`
}

// SetContextDataParams replaces the whole data payload of a context.
type SetContextDataParams struct {
	ID      string `json:"id"`
	Data    any    `json:"data"`
	TimeSet int64  `json:"timeSet"`
}

// UpdateContextDataVariableParams carries one tracked field change.
// Key is the dotted path of the field inside the context data.
type UpdateContextDataVariableParams struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	Value       any    `json:"value"`
	TimeUpdated int64  `json:"timeUpdated"`
}

// LogEventParams records one event. ContextID is empty for events not
// attached to a context.
type LogEventParams struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ContextID string `json:"contextId,omitempty"`
	Time      int64  `json:"time"`
	Data      any    `json:"data"`
}

// BulkRequestParams carries a chunk's requests in append order. Each
// element is an already-encoded request envelope so persisted chunks
// replay byte-for-byte.
type BulkRequestParams struct {
	Requests []json.RawMessage `json:"requests"`
}
