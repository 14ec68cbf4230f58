// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// rdata-agent reports process telemetry to an rdata collector. It is
// both a diagnostic for a collector deployment and a worked example of
// the client package: it authorizes a user, opens a "process" context
// whose runtime statistics are tracked field by field, and logs a
// heartbeat event every interval.
//
// On SIGINT or SIGTERM it ends its contexts and waits, bounded by
// delivery.drain_timeout, for the collector to acknowledge everything
// queued. Whatever does not drain stays in the state database and is
// delivered by the next run.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/rdata/client"
	"github.com/bureau-foundation/rdata/lib/chunkstore"
	"github.com/bureau-foundation/rdata/lib/clock"
	"github.com/bureau-foundation/rdata/lib/config"
	"github.com/bureau-foundation/rdata/lib/version"
	"github.com/bureau-foundation/rdata/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		address     string
		userID      string
		statePath   string
		heartbeat   time.Duration
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("rdata-agent", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "config file (default: $RDATA_CONFIG, or built-in defaults when unset)")
	flagSet.StringVar(&address, "address", "", "collector websocket URL (overrides collector.address)")
	flagSet.StringVar(&userID, "user-id", "", "user to authorize (overrides session.user_id)")
	flagSet.StringVar(&statePath, "state", "", "state database path (overrides storage.path)")
	flagSet.DurationVar(&heartbeat, "heartbeat", 10*time.Second, "interval between heartbeat events")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Printf("rdata-agent %s\n", version.Full())
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}
	if heartbeat <= 0 {
		return fmt.Errorf("--heartbeat must be positive, got %s", heartbeat)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if address != "" {
		cfg.Collector.Address = address
	}
	if userID != "" {
		cfg.Session.UserID = userID
	}
	if statePath != "" {
		cfg.Storage.Path = statePath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Session.UserID == "" {
		return errors.New("a user id is required: set session.user_id or pass --user-id")
	}

	logger := newLogger()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	session, err := client.New(client.Config{
		Dialer:         transport.WebSocketDialer{},
		Store:          store,
		Logger:         logger,
		ClientVersion:  cfg.Session.ClientVersion,
		ReconnectWait:  cfg.Collector.ReconnectWait,
		RequestTimeout: cfg.Collector.RequestTimeout,
		Delivery: client.DeliveryConfig{
			ChunkLifetime:    cfg.Delivery.ChunkLifetime,
			RolloverInterval: cfg.Delivery.RolloverInterval,
			RetryBackoff:     cfg.Delivery.RetryBackoff,
			IdlePollInterval: cfg.Delivery.IdlePollInterval,
			MaxChunkAttempts: cfg.Delivery.MaxChunkAttempts,
		},
		TrackInterval: cfg.Tracking.Interval,
	})
	if err != nil {
		return err
	}

	if !session.Open(ctx, cfg.Collector.Address, true, cfg.Collector.ConnectTimeout) {
		session.CloseNow()
		return fmt.Errorf("collector %s not reachable within %s", cfg.Collector.Address, cfg.Collector.ConnectTimeout)
	}
	if err := session.Authorize(ctx, cfg.Session.UserID); err != nil {
		session.CloseNow()
		return err
	}
	logger.Info("reporting to collector",
		"address", cfg.Collector.Address,
		"user_id", cfg.Session.UserID,
		"heartbeat", heartbeat,
	)

	agentErr := (&agent{client: session, clock: clock.Real(), logger: logger, heartbeat: heartbeat}).run(ctx)

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Delivery.DrainTimeout)
	defer cancel()
	if err := session.Close(drainCtx); err != nil {
		logger.Warn("shutdown incomplete, undelivered data stays queued", "error", err)
	}
	return agentErr
}

func loadConfig(path string) (*config.Config, error) {
	switch {
	case path != "":
		return config.LoadFile(path)
	case os.Getenv("RDATA_CONFIG") != "":
		return config.Load()
	default:
		return config.Default(), nil
	}
}

func openStore(cfg *config.Config, logger *slog.Logger) (*chunkstore.SQLiteStore, error) {
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}
	var identity string
	if cfg.Storage.EncryptionIdentityFile != "" {
		data, err := os.ReadFile(cfg.Storage.EncryptionIdentityFile)
		if err != nil {
			return nil, fmt.Errorf("reading encryption identity: %w", err)
		}
		identity = string(data)
	}
	return chunkstore.OpenSQLite(chunkstore.SQLiteConfig{
		Path:               cfg.Storage.Path,
		Compression:        chunkstore.Compression(cfg.Storage.Compression),
		EncryptionIdentity: identity,
		Synchronous:        cfg.Storage.Synchronous,
		Logger:             logger.With("component", "chunkstore"),
	})
}

// newLogger uses a text handler on a terminal and JSON otherwise.
func newLogger() *slog.Logger {
	var handler slog.Handler
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}
