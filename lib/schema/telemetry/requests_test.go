// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/bureau-foundation/rdata/lib/jsonrpc"
)

var now = time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

func wireParams(t *testing.T, request *jsonrpc.Request) map[string]any {
	t.Helper()
	data, err := json.Marshal(request)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var envelope struct {
		Params map[string]any `json:"params"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	return envelope.Params
}

func TestStartContextWireNames(t *testing.T) {
	request := StartContext(StartContextParams{
		ID:              "c1",
		Name:            "level",
		Persistent:      true,
		ParentContextID: "root",
		Data:            map[string]int{"score": 0},
		TimeStarted:     now.UnixMilli(),
	}, now)

	if request.Method != jsonrpc.MethodStartContext || !request.Batchable() {
		t.Fatalf("method %q batchable %v", request.Method, request.Batchable())
	}
	params := wireParams(t, request)
	for _, key := range []string{"id", "name", "persistent", "parentContextId", "data", "timeStarted"} {
		if _, ok := params[key]; !ok {
			t.Errorf("params missing %q: %v", key, params)
		}
	}
}

func TestRootStartContextOmitsParent(t *testing.T) {
	params := wireParams(t, StartContext(StartContextParams{ID: "root", Name: "session"}, now))
	if _, ok := params["parentContextId"]; ok {
		t.Fatalf("root context carries parentContextId: %v", params)
	}
}

func TestUpdateContextDataVariable(t *testing.T) {
	params := wireParams(t, UpdateContextDataVariable("c1", "test.someNumber", 5, now))
	if params["key"] != "test.someNumber" || params["value"] != float64(5) || params["id"] != "c1" {
		t.Fatalf("params = %v", params)
	}
	if params["timeUpdated"] != float64(now.UnixMilli()) {
		t.Fatalf("timeUpdated = %v", params["timeUpdated"])
	}
}

func TestNonBatchableConstructors(t *testing.T) {
	for _, request := range []*jsonrpc.Request{
		Authorize("u1", "1.0.0", now),
		RestoreContext("root", now),
		RestoreInterruptedContexts(now),
		EndInterruptedContexts(now),
		BulkRequest("chunk-1", nil, now),
	} {
		if request.Batchable() {
			t.Errorf("%s is batchable", request.Method)
		}
	}
}

func TestBulkRequestUsesChunkID(t *testing.T) {
	inner, err := json.Marshal(EndContext("c1", now))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	bulk := BulkRequest("chunk-7", []json.RawMessage{inner}, now)
	if bulk.ID != "chunk-7" {
		t.Fatalf("bulk id = %q, want chunk-7", bulk.ID)
	}
	data, err := json.Marshal(bulk)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded struct {
		Params struct {
			Requests []struct {
				Method string `json:"method"`
			} `json:"requests"`
		} `json:"params"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(decoded.Params.Requests) != 1 || decoded.Params.Requests[0].Method != "endContext" {
		t.Fatalf("bulk requests = %+v", decoded.Params.Requests)
	}
}
