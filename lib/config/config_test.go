// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Delivery.ChunkLifetime != 500*time.Millisecond {
		t.Errorf("expected chunk_lifetime=500ms, got %s", cfg.Delivery.ChunkLifetime)
	}
	if cfg.Collector.ReconnectWait != 5*time.Second {
		t.Errorf("expected reconnect_wait=5s, got %s", cfg.Collector.ReconnectWait)
	}
	if cfg.Tracking.Interval != 100*time.Millisecond {
		t.Errorf("expected tracking interval=100ms, got %s", cfg.Tracking.Interval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoad_RequiresRdataConfig(t *testing.T) {
	t.Setenv("RDATA_CONFIG", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when RDATA_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "RDATA_CONFIG environment variable not set") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_WithRdataConfig(t *testing.T) {
	path := writeConfig(t, "rdata.yaml", `
environment: production
collector:
  address: wss://collector.example.com/rpc
session:
  user_id: u1
`)
	t.Setenv("RDATA_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Environment != Production {
		t.Errorf("expected environment=production, got %s", cfg.Environment)
	}
	if cfg.Collector.Address != "wss://collector.example.com/rpc" {
		t.Errorf("expected address from file, got %s", cfg.Collector.Address)
	}
	if cfg.Session.UserID != "u1" {
		t.Errorf("expected user_id=u1, got %s", cfg.Session.UserID)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, "rdata.yaml", `
collector:
  address: ws://10.0.0.5:9000
  request_timeout: 2s

delivery:
  chunk_lifetime: 2s
  retry_backoff: 250ms
  max_chunk_attempts: 4

tracking:
  interval: 50ms

storage:
  path: /var/lib/rdata/state.db
  compression: zstd
  synchronous: normal
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Collector.Address != "ws://10.0.0.5:9000" {
		t.Errorf("expected address=ws://10.0.0.5:9000, got %s", cfg.Collector.Address)
	}
	if cfg.Collector.RequestTimeout != 2*time.Second {
		t.Errorf("expected request_timeout=2s, got %s", cfg.Collector.RequestTimeout)
	}
	if cfg.Delivery.ChunkLifetime != 2*time.Second || cfg.Delivery.RetryBackoff != 250*time.Millisecond {
		t.Errorf("unexpected delivery config: %+v", cfg.Delivery)
	}
	if cfg.Delivery.MaxChunkAttempts != 4 {
		t.Errorf("expected max_chunk_attempts=4, got %d", cfg.Delivery.MaxChunkAttempts)
	}
	if cfg.Delivery.RolloverInterval != 100*time.Millisecond {
		t.Errorf("unset rollover_interval lost its default: %s", cfg.Delivery.RolloverInterval)
	}
	if cfg.Tracking.Interval != 50*time.Millisecond {
		t.Errorf("expected tracking interval=50ms, got %s", cfg.Tracking.Interval)
	}
	if cfg.Storage.Path != "/var/lib/rdata/state.db" || cfg.Storage.Compression != "zstd" || cfg.Storage.Synchronous != "normal" {
		t.Errorf("unexpected storage config: %+v", cfg.Storage)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFileJSONC(t *testing.T) {
	path := writeConfig(t, "rdata.jsonc", `{
  // Local collector.
  "collector": {"address": "ws://localhost:7000"},
  "delivery": {
    "chunk_lifetime": "750ms",
    "max_chunk_attempts": 2, // quarantine quickly
  },
}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Collector.Address != "ws://localhost:7000" {
		t.Errorf("expected address from JSONC, got %s", cfg.Collector.Address)
	}
	if cfg.Delivery.ChunkLifetime != 750*time.Millisecond {
		t.Errorf("expected chunk_lifetime=750ms, got %s", cfg.Delivery.ChunkLifetime)
	}
	if cfg.Delivery.MaxChunkAttempts != 2 {
		t.Errorf("expected max_chunk_attempts=2, got %d", cfg.Delivery.MaxChunkAttempts)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "rdata.yaml", `
environment: production

collector:
  address: ws://localhost:8888

storage:
  compression: none

development:
  collector:
    address: ws://dev:1

production:
  collector:
    address: wss://collector.example.com
  delivery:
    drain_timeout: 30s
  storage:
    compression: zstd
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Collector.Address != "wss://collector.example.com" {
		t.Errorf("expected production address, got %s", cfg.Collector.Address)
	}
	if cfg.Delivery.DrainTimeout != 30*time.Second {
		t.Errorf("expected drain_timeout=30s, got %s", cfg.Delivery.DrainTimeout)
	}
	if cfg.Storage.Compression != "zstd" {
		t.Errorf("expected compression=zstd, got %s", cfg.Storage.Compression)
	}
	if cfg.Delivery.ChunkLifetime != 500*time.Millisecond {
		t.Errorf("override cleared an unrelated default: %s", cfg.Delivery.ChunkLifetime)
	}
}

func TestExpandVariables(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("RDATA_COLLECTOR_HOST", "metrics.internal")

	path := writeConfig(t, "rdata.yaml", `
collector:
  address: ws://${RDATA_COLLECTOR_HOST}:${RDATA_COLLECTOR_PORT:-8888}
storage:
  path: ${HOME}/state/rdata.db
  encryption_identity_file: ${HOME}/.config/rdata/identity.txt
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Collector.Address != "ws://metrics.internal:8888" {
		t.Errorf("expected expanded address, got %s", cfg.Collector.Address)
	}
	if cfg.Storage.Path != "/home/tester/state/rdata.db" {
		t.Errorf("expected expanded path, got %s", cfg.Storage.Path)
	}
	if cfg.Storage.EncryptionIdentityFile != "/home/tester/.config/rdata/identity.txt" {
		t.Errorf("expected expanded identity path, got %s", cfg.Storage.EncryptionIdentityFile)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Environment = "staging"
	cfg.Collector.Address = "http://collector"
	cfg.Delivery.ChunkLifetime = 0
	cfg.Delivery.MaxChunkAttempts = -1
	cfg.Storage.Compression = "gzip"
	cfg.Storage.Synchronous = "off"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{
		"invalid environment",
		"ws:// or wss://",
		"delivery.chunk_lifetime must be positive",
		"max_chunk_attempts",
		"storage.compression",
		"storage.synchronous",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("validation error missing %q:\n%v", want, err)
		}
	}
}

func TestEnsurePaths(t *testing.T) {
	cfg := Default()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "nested", "dir", "rdata.db")
	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths: %v", err)
	}
	if info, err := os.Stat(filepath.Dir(cfg.Storage.Path)); err != nil || !info.IsDir() {
		t.Fatalf("store directory not created: %v", err)
	}
}
