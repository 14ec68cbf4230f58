// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"errors"
	"log/slog"
	"time"

	"github.com/bureau-foundation/rdata/lib/chunkstore"
	"github.com/bureau-foundation/rdata/lib/clock"
	"github.com/bureau-foundation/rdata/lib/version"
	"github.com/bureau-foundation/rdata/transport"
)

// Config holds the dependencies and tuning of a Client. Zero values
// select the documented defaults of the transport, delivery and
// contexttree packages.
type Config struct {
	// Dialer opens collector connections. Required.
	Dialer transport.Dialer

	// Store persists chunks and the root context identity. Required.
	// The client does not close it.
	Store chunkstore.Store

	Clock  clock.Clock
	Logger *slog.Logger

	// ClientVersion is reported in authorize. Defaults to
	// version.Short().
	ClientVersion string

	ReconnectWait  time.Duration
	RequestTimeout time.Duration

	Delivery DeliveryConfig

	// TrackInterval is the period of the change-tracking tick.
	TrackInterval time.Duration
}

// DeliveryConfig tunes the delivery queue.
type DeliveryConfig struct {
	ChunkLifetime    time.Duration
	RolloverInterval time.Duration
	RetryBackoff     time.Duration
	IdlePollInterval time.Duration
	MaxChunkAttempts int
}

func (c *Config) setDefaults() error {
	if c.Dialer == nil {
		return errors.New("client: Dialer is required")
	}
	if c.Store == nil {
		return errors.New("client: Store is required")
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.ClientVersion == "" {
		c.ClientVersion = version.Short()
	}
	return nil
}
