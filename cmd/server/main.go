// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

// Package main is the entry point for the Tandem server.
//
// Tandem turns a stream of user actions on events (VIEW, REGISTER, LIKE) into
// event-to-event similarity scores and serves recommendations from them. One
// binary hosts three roles, selected with TANDEM_ROLES:
//
//   - collector: validates actions and appends them to the action stream,
//     buffering through a BadgerDB WAL while the broker is unavailable
//   - aggregator: replays the action stream into the co-occurrence matrix and
//     publishes similarity deltas
//   - analyzer: persists actions and deltas into DuckDB and answers queries
//
// # Startup Order
//
//  1. Configuration (Koanf v2: defaults, optional YAML, environment)
//  2. Embedded NATS with JetStream, when NATS_EMBEDDED=true
//  3. Broker connection and stream provisioning
//  4. Role components
//  5. gRPC listener and, when HTTP_ENABLED=true, the HTTP API
//  6. Supervisor tree
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the tree. Servers drain in-flight requests and
// consumer loops finish their current batch. The WAL and the store are closed
// before the broker connection.
//
// SIGHUP reloads the configuration and applies LOG_LEVEL without a restart.
//
// # Example Usage
//
// Single node with every role:
//
//	export TANDEM_ROLES=collector,aggregator,analyzer
//	export NATS_EMBEDDED=true
//	export HTTP_ENABLED=true
//	./tandem
//
// Collector only, against an external broker:
//
//	export TANDEM_ROLES=collector
//	export NATS_EMBEDDED=false
//	export NATS_URL=nats://nats:4222
//	export WAL_ENABLED=true
//	./tandem
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/tandem/internal/config"
	"github.com/tomtom215/tandem/internal/logging"
	"github.com/tomtom215/tandem/internal/supervisor"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})

	logging.Info().Strs("roles", cfg.Roles).Msg("Starting Tandem")

	err = run(cfg)
	logging.Err(err).Msg("Tandem stopped")
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := startBroker(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	a, err := buildApp(ctx, cfg, b)
	if err != nil {
		return err
	}
	defer a.close()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{})
	if err != nil {
		return err
	}
	a.register(tree)

	watchReload(ctx, config.LoadWithKoanf)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	logging.Info().Msg("Starting supervisor tree")
	for err := range tree.ServeBackground(ctx) {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}
	return nil
}
