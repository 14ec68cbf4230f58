// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"os"
	"runtime"

	"github.com/google/uuid"

	"github.com/bureau-foundation/rdata/contexttree"
	"github.com/bureau-foundation/rdata/lib/chunkstore"
	"github.com/bureau-foundation/rdata/lib/version"
)

// AuthorizationData is the payload of the root context. It describes
// the application and the host the session runs on.
type AuthorizationData struct {
	Application ApplicationInfo `json:"applicationInfo"`
	System      SystemInfo      `json:"systemInfo"`
}

// ApplicationInfo identifies the reporting build.
type ApplicationInfo struct {
	ClientVersion string        `json:"clientVersion"`
	Build         version.Build `json:"build"`
}

// SystemInfo describes the host.
type SystemInfo struct {
	OperatingSystem string `json:"operatingSystem"`
	Architecture    string `json:"architecture"`
	Hostname        string `json:"hostname,omitempty"`
	CPUs            int    `json:"cpus"`
	// DeviceID is generated on first use and kept in the store, so it
	// is stable across sessions that share a state file.
	DeviceID string `json:"deviceUniqueIdentifier"`
}

var authorizationSchema = contexttree.NewSchema[AuthorizationData]().Named("authorization")

const (
	rootContextKey = "root_context_id"
	deviceIDKey    = "device_id"
)

// deviceID returns the store's device id, creating it on first use.
// It is kept under the empty user because it belongs to the host.
func deviceID(ctx context.Context, store chunkstore.Store) (string, error) {
	var id string
	err := store.GetValue(ctx, "", deviceIDKey, &id)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, chunkstore.ErrNotFound) {
		return "", err
	}
	id = uuid.NewString()
	if err := store.SetValue(ctx, "", deviceIDKey, id); err != nil {
		return "", err
	}
	return id, nil
}

func (c *Client) authorizationData(ctx context.Context) AuthorizationData {
	hostname, _ := os.Hostname()
	device, err := deviceID(ctx, c.store)
	if err != nil {
		c.logger.Warn("device id unavailable", "error", err)
	}
	return AuthorizationData{
		Application: ApplicationInfo{
			ClientVersion: c.clientVersion,
			Build:         version.Current(),
		},
		System: SystemInfo{
			OperatingSystem: runtime.GOOS,
			Architecture:    runtime.GOARCH,
			Hostname:        hostname,
			CPUs:            runtime.NumCPU(),
			DeviceID:        device,
		},
	}
}
