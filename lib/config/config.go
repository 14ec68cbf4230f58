// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Production is for shipped builds.
	Production Environment = "production"
)

// Config is the configuration of an rdata client process.
type Config struct {
	// Environment selects which override section applies.
	Environment Environment `yaml:"environment"`

	Collector CollectorConfig `yaml:"collector"`
	Session   SessionConfig   `yaml:"session"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Storage   StorageConfig   `yaml:"storage"`

	// Per-environment overrides, applied after the base config is
	// loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Collector *CollectorConfig `yaml:"collector,omitempty"`
	Session   *SessionConfig   `yaml:"session,omitempty"`
	Delivery  *DeliveryConfig  `yaml:"delivery,omitempty"`
	Tracking  *TrackingConfig  `yaml:"tracking,omitempty"`
	Storage   *StorageConfig   `yaml:"storage,omitempty"`
}

// CollectorConfig configures the collector connection.
type CollectorConfig struct {
	// Address is the collector websocket URL.
	// Default: ws://localhost:8888
	Address string `yaml:"address"`

	// ConnectTimeout bounds the wait for the first connection at
	// startup. The client keeps reconnecting afterwards either way.
	// Default: 10s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// ReconnectWait is the pause after a failed dial.
	// Default: 5s
	ReconnectWait time.Duration `yaml:"reconnect_wait"`

	// RequestTimeout bounds each request. Negative disables it.
	// Default: 30s
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// SessionConfig identifies the reporting user and build.
type SessionConfig struct {
	// UserID is the user authorized at startup.
	UserID string `yaml:"user_id"`

	// ClientVersion is reported in authorize. Empty means the build
	// version.
	ClientVersion string `yaml:"client_version"`
}

// DeliveryConfig tunes batching and replay.
type DeliveryConfig struct {
	// ChunkLifetime is how long a chunk accepts requests.
	// Default: 500ms
	ChunkLifetime time.Duration `yaml:"chunk_lifetime"`

	// RolloverInterval is how often chunk age is checked.
	// Default: 100ms
	RolloverInterval time.Duration `yaml:"rollover_interval"`

	// RetryBackoff is the pause after a rejected delivery.
	// Default: 5s
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// IdlePollInterval bounds replay's sleep with nothing to send.
	// Default: 1s
	IdlePollInterval time.Duration `yaml:"idle_poll_interval"`

	// MaxChunkAttempts quarantines a chunk after this many rejections.
	// Zero retries forever.
	MaxChunkAttempts int `yaml:"max_chunk_attempts"`

	// DrainTimeout bounds the wait for delivery at shutdown.
	// Default: 10s
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// TrackingConfig tunes context data change tracking.
type TrackingConfig struct {
	// Interval is the tracking tick period.
	// Default: 100ms
	Interval time.Duration `yaml:"interval"`
}

// StorageConfig configures the durable chunk store.
type StorageConfig struct {
	// Path is the SQLite database file.
	// Default: ${HOME}/.local/state/rdata/rdata.db
	Path string `yaml:"path"`

	// Compression is the payload compression: none, lz4, or zstd.
	// Default: none
	Compression string `yaml:"compression"`

	// Synchronous is the SQLite synchronous mode: full or normal.
	// Default: full
	Synchronous string `yaml:"synchronous"`

	// EncryptionIdentityFile is an age X25519 identity file. When
	// set, chunk payloads are encrypted at rest.
	EncryptionIdentityFile string `yaml:"encryption_identity_file"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Environment: Development,
		Collector: CollectorConfig{
			Address:        "ws://localhost:8888",
			ConnectTimeout: 10 * time.Second,
			ReconnectWait:  5 * time.Second,
			RequestTimeout: 30 * time.Second,
		},
		Delivery: DeliveryConfig{
			ChunkLifetime:    500 * time.Millisecond,
			RolloverInterval: 100 * time.Millisecond,
			RetryBackoff:     5 * time.Second,
			IdlePollInterval: time.Second,
			DrainTimeout:     10 * time.Second,
		},
		Tracking: TrackingConfig{
			Interval: 100 * time.Millisecond,
		},
		Storage: StorageConfig{
			Path:        filepath.Join(homeDir, ".local", "state", "rdata", "rdata.db"),
			Compression: "none",
			Synchronous: "full",
		},
	}
}

// Load loads configuration from the RDATA_CONFIG environment variable.
//
// There are no fallbacks or defaults - if RDATA_CONFIG is not set, this
// fails.
func Load() (*Config, error) {
	configPath := os.Getenv("RDATA_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("RDATA_CONFIG environment variable not set; " +
			"set it to the path of your rdata.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. Files ending
// in .json or .jsonc are read as JSON with comments; anything else is
// YAML.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data, err = jsoncToYAML(data)
		if err != nil {
			return err
		}
	}
	return yaml.Unmarshal(data, c)
}

// jsoncToYAML strips comments and trailing commas and re-encodes the
// document as YAML, so both formats share the yaml tags and duration
// strings like "5s".
func jsoncToYAML(data []byte) ([]byte, error) {
	var document any
	if err := json.Unmarshal(jsonc.ToJSON(data), &document); err != nil {
		return nil, fmt.Errorf("parsing JSONC: %w", err)
	}
	return yaml.Marshal(document)
}

// applyEnvironmentOverrides applies the section matching Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if o := overrides.Collector; o != nil {
		overrideString(&c.Collector.Address, o.Address)
		overrideDuration(&c.Collector.ConnectTimeout, o.ConnectTimeout)
		overrideDuration(&c.Collector.ReconnectWait, o.ReconnectWait)
		overrideDuration(&c.Collector.RequestTimeout, o.RequestTimeout)
	}
	if o := overrides.Session; o != nil {
		overrideString(&c.Session.UserID, o.UserID)
		overrideString(&c.Session.ClientVersion, o.ClientVersion)
	}
	if o := overrides.Delivery; o != nil {
		overrideDuration(&c.Delivery.ChunkLifetime, o.ChunkLifetime)
		overrideDuration(&c.Delivery.RolloverInterval, o.RolloverInterval)
		overrideDuration(&c.Delivery.RetryBackoff, o.RetryBackoff)
		overrideDuration(&c.Delivery.IdlePollInterval, o.IdlePollInterval)
		overrideDuration(&c.Delivery.DrainTimeout, o.DrainTimeout)
		if o.MaxChunkAttempts != 0 {
			c.Delivery.MaxChunkAttempts = o.MaxChunkAttempts
		}
	}
	if o := overrides.Tracking; o != nil {
		overrideDuration(&c.Tracking.Interval, o.Interval)
	}
	if o := overrides.Storage; o != nil {
		overrideString(&c.Storage.Path, o.Path)
		overrideString(&c.Storage.Compression, o.Compression)
		overrideString(&c.Storage.Synchronous, o.Synchronous)
		overrideString(&c.Storage.EncryptionIdentityFile, o.EncryptionIdentityFile)
	}
}

func overrideString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

func overrideDuration(target *time.Duration, value time.Duration) {
	if value != 0 {
		*target = value
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// paths and the collector address.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Collector.Address = expandVars(c.Collector.Address, vars)
	c.Storage.Path = expandVars(c.Storage.Path, vars)
	c.Storage.EncryptionIdentityFile = expandVars(c.Storage.EncryptionIdentityFile, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Collector.Address == "" {
		errs = append(errs, fmt.Errorf("collector.address is required"))
	} else if address, err := url.Parse(c.Collector.Address); err != nil {
		errs = append(errs, fmt.Errorf("collector.address: %w", err))
	} else if address.Scheme != "ws" && address.Scheme != "wss" {
		errs = append(errs, fmt.Errorf("collector.address must be a ws:// or wss:// URL, got %q", c.Collector.Address))
	}

	positive := []struct {
		name  string
		value time.Duration
	}{
		{"collector.connect_timeout", c.Collector.ConnectTimeout},
		{"collector.reconnect_wait", c.Collector.ReconnectWait},
		{"delivery.chunk_lifetime", c.Delivery.ChunkLifetime},
		{"delivery.rollover_interval", c.Delivery.RolloverInterval},
		{"delivery.retry_backoff", c.Delivery.RetryBackoff},
		{"delivery.idle_poll_interval", c.Delivery.IdlePollInterval},
		{"delivery.drain_timeout", c.Delivery.DrainTimeout},
		{"tracking.interval", c.Tracking.Interval},
	}
	for _, field := range positive {
		if field.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", field.name, field.value))
		}
	}
	if c.Delivery.MaxChunkAttempts < 0 {
		errs = append(errs, fmt.Errorf("delivery.max_chunk_attempts must not be negative"))
	}

	if c.Storage.Path == "" {
		errs = append(errs, fmt.Errorf("storage.path is required"))
	}
	compressions := []string{"none", "lz4", "zstd"}
	if !contains(compressions, c.Storage.Compression) {
		errs = append(errs, fmt.Errorf("storage.compression must be one of: %v", compressions))
	}
	synchronous := []string{"full", "normal"}
	if !contains(synchronous, c.Storage.Synchronous) {
		errs = append(errs, fmt.Errorf("storage.synchronous must be one of: %v", synchronous))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the directory holding the store.
func (c *Config) EnsurePaths() error {
	dir := filepath.Dir(c.Storage.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
