// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jsonrpc

// Collector method names.
const (
	MethodAuthorize                  = "authorize"
	MethodStartContext               = "startContext"
	MethodEndContext                 = "endContext"
	MethodRestoreContext             = "restoreContext"
	MethodSetContextData             = "setContextData"
	MethodUpdateContextDataVariable  = "updateContextDataVariable"
	MethodLogEvent                   = "logEvent"
	MethodBulkRequest                = "bulkRequest"
	MethodRestoreInterruptedContexts = "restoreInterruptedContexts"
	MethodEndInterruptedContexts     = "endInterruptedContexts"
)

// batchable lists the methods that may travel inside a bulkRequest.
// Everything else is sent on its own and answered synchronously.
var batchable = map[string]bool{
	MethodStartContext:              true,
	MethodEndContext:                true,
	MethodSetContextData:            true,
	MethodUpdateContextDataVariable: true,
	MethodLogEvent:                  true,
}

// IsBatchable reports whether requests for method may be grouped into
// a chunk. Unknown methods are not batchable.
func IsBatchable(method string) bool {
	return batchable[method]
}
