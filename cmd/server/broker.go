// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/tandem/internal/config"
	"github.com/tomtom215/tandem/internal/eventprocessor"
	"github.com/tomtom215/tandem/internal/logging"
)

// broker owns the NATS side of the process: the optional embedded server,
// the client connection and the provisioned streams.
type broker struct {
	server *eventprocessor.EmbeddedServer
	conn   *nats.Conn
	js     jetstream.JetStream
	url    string
}

func startBroker(ctx context.Context, cfg *config.Config) (*broker, error) {
	b := &broker{url: cfg.NATS.URL}

	if cfg.NATS.EmbeddedServer {
		serverCfg, err := embeddedServerConfig(&cfg.NATS)
		if err != nil {
			return nil, err
		}
		srv, err := eventprocessor.NewEmbeddedServer(&serverCfg)
		if err != nil {
			return nil, fmt.Errorf("start embedded NATS: %w", err)
		}
		b.server = srv
		b.url = srv.ClientURL()
		logging.Info().Str("url", b.url).Str("store_dir", serverCfg.StoreDir).Msg("Embedded NATS server started")
	}

	connCfg := eventprocessor.DefaultConnectionConfig(b.url)
	conn, js, err := eventprocessor.Connect(&connCfg)
	if err != nil {
		b.close()
		return nil, err
	}
	b.conn, b.js = conn, js

	maxAge := time.Duration(cfg.NATS.StreamRetentionDays) * 24 * time.Hour
	if err := eventprocessor.EnsureStreams(ctx, js,
		eventprocessor.ActionStreamConfig(cfg.NATS.ActionStream, cfg.NATS.ActionSubject, maxAge),
		eventprocessor.SimilarityStreamConfig(cfg.NATS.SimilarityStream, cfg.NATS.SimilaritySubject, maxAge),
	); err != nil {
		b.close()
		return nil, fmt.Errorf("provision streams: %w", err)
	}

	logging.Info().
		Str("action_stream", cfg.NATS.ActionStream).
		Str("similarity_stream", cfg.NATS.SimilarityStream).
		Int("retention_days", cfg.NATS.StreamRetentionDays).
		Msg("Streams ready")
	return b, nil
}

// embeddedServerConfig listens on the host and port of the configured URL.
func embeddedServerConfig(c *config.NATSConfig) (eventprocessor.ServerConfig, error) {
	serverCfg := eventprocessor.DefaultServerConfig()
	if c.StoreDir != "" {
		serverCfg.StoreDir = c.StoreDir
	}
	if c.MaxMemory > 0 {
		serverCfg.JetStreamMaxMem = c.MaxMemory
	}
	if c.MaxStore > 0 {
		serverCfg.JetStreamMaxStore = c.MaxStore
	}

	u, err := url.Parse(c.URL)
	if err != nil {
		return serverCfg, fmt.Errorf("parse NATS URL: %w", err)
	}
	if host, port, err := net.SplitHostPort(u.Host); err == nil {
		if host != "" {
			serverCfg.Host = host
		}
		if p, err := strconv.Atoi(port); err == nil {
			serverCfg.Port = p
		}
	}
	return serverCfg, nil
}

// close closes the connection and stops the embedded server, if any.
func (b *broker) close() {
	if b.conn != nil {
		b.conn.Close()
	}
	if b.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := b.server.Shutdown(ctx); err != nil {
			logging.Warn().Err(err).Msg("Embedded NATS server shutdown timed out")
			return
		}
		logging.Info().Msg("Embedded NATS server stopped")
	}
}
