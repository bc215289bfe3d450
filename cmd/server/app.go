// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/tandem/internal/aggregator"
	"github.com/tomtom215/tandem/internal/analyzer"
	"github.com/tomtom215/tandem/internal/api"
	"github.com/tomtom215/tandem/internal/collector"
	"github.com/tomtom215/tandem/internal/config"
	"github.com/tomtom215/tandem/internal/database"
	"github.com/tomtom215/tandem/internal/eventprocessor"
	"github.com/tomtom215/tandem/internal/logging"
	"github.com/tomtom215/tandem/internal/middleware"
	"github.com/tomtom215/tandem/internal/recommend"
	"github.com/tomtom215/tandem/internal/rpc"
	"github.com/tomtom215/tandem/internal/supervisor"
	"github.com/tomtom215/tandem/internal/supervisor/services"
	"github.com/tomtom215/tandem/internal/wal"
)

// app holds the components of the enabled roles. Nil fields belong to
// disabled roles.
type app struct {
	cfg    *config.Config
	broker *broker

	publisher *eventprocessor.Publisher
	collector *collector.Collector
	walLog    *wal.BadgerWAL
	retry     *wal.RetryLoop

	processor *aggregator.Processor
	loops     []*eventprocessor.ConsumerLoop

	db          *database.DB
	recommender *recommend.Service

	grpcServer  *rpc.Server
	grpcLimiter *rpc.RateLimiter
	httpServer  *http.Server
}

func buildApp(ctx context.Context, cfg *config.Config, b *broker) (a *app, err error) {
	a = &app{cfg: cfg, broker: b}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if cfg.HasRole(config.RoleCollector) || cfg.HasRole(config.RoleAggregator) {
		if err := a.buildPublisher(); err != nil {
			return nil, err
		}
	}
	if cfg.HasRole(config.RoleCollector) {
		if err := a.buildCollector(); err != nil {
			return nil, err
		}
	}
	if cfg.HasRole(config.RoleAggregator) {
		if err := a.buildAggregator(ctx); err != nil {
			return nil, err
		}
	}
	if cfg.NeedsStore() {
		if err := a.buildAnalyzer(ctx); err != nil {
			return nil, err
		}
	}
	if err := a.buildServers(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) breakerConfig(name string) eventprocessor.CircuitBreakerConfig {
	cb := eventprocessor.DefaultCircuitBreakerConfig(name)
	c := a.cfg.CircuitBreaker
	if c.MaxRequests > 0 {
		cb.MaxRequests = c.MaxRequests
	}
	if c.Interval > 0 {
		cb.Interval = c.Interval
	}
	if c.Timeout > 0 {
		cb.Timeout = c.Timeout
	}
	if c.FailureThreshold > 0 {
		cb.FailureThreshold = c.FailureThreshold
	}
	return cb
}

func (a *app) buildPublisher() error {
	pubCfg := eventprocessor.DefaultPublisherConfig(a.broker.url)
	pubCfg.ActionSubject = a.cfg.NATS.ActionSubject
	pubCfg.SimilaritySubject = a.cfg.NATS.SimilaritySubject

	pub, err := eventprocessor.NewPublisher(&pubCfg, eventprocessor.NewWatermillLogger())
	if err != nil {
		return fmt.Errorf("create publisher: %w", err)
	}
	pub.SetCircuitBreaker(eventprocessor.NewCircuitBreaker(a.breakerConfig("stream-publisher")))
	a.publisher = pub
	return nil
}

func (a *app) buildCollector() error {
	opts := collector.Options{RejectUnknownActions: a.cfg.Collector.RejectUnknownActions}

	if a.cfg.WAL.Enabled {
		w, err := wal.Open(wal.FromAppConfig(&a.cfg.WAL))
		if err != nil {
			return fmt.Errorf("open WAL: %w", err)
		}
		a.walLog = w
		opts.WAL = w
		logging.Info().Str("path", a.cfg.WAL.Path).Msg("Collector WAL opened")
	}

	c, err := collector.New(a.publisher, opts)
	if err != nil {
		return err
	}
	a.collector = c
	if a.walLog != nil {
		a.retry = wal.NewRetryLoop(a.walLog, c.WALPublisher())
	}
	return nil
}

func (a *app) consumerConfig(stream, subject, durable string) eventprocessor.ConsumerConfig {
	return eventprocessor.ConsumerConfig{
		Stream:        stream,
		Subject:       subject,
		Durable:       durable,
		Replay:        durable == "",
		AckWait:       a.cfg.NATS.AckWait,
		MaxDeliver:    a.cfg.NATS.MaxDeliver,
		MaxAckPending: 2 * a.cfg.NATS.FetchBatch,
	}
}

func (a *app) loopConfig(name string) eventprocessor.LoopConfig {
	lc := eventprocessor.DefaultLoopConfig(name)
	if a.cfg.NATS.FetchBatch > 0 {
		lc.BatchSize = a.cfg.NATS.FetchBatch
	}
	if a.cfg.NATS.PollWait > 0 {
		lc.PollWait = a.cfg.NATS.PollWait
	}
	return lc
}

func (a *app) addLoop(ctx context.Context, name string, cc eventprocessor.ConsumerConfig, h eventprocessor.BatchHandler) error {
	src, err := eventprocessor.NewJetStreamSource(ctx, a.broker.js, cc)
	if err != nil {
		return fmt.Errorf("%s consumer: %w", name, err)
	}
	loop, err := eventprocessor.NewConsumerLoop(src, h, a.loopConfig(name))
	if err != nil {
		return err
	}
	a.loops = append(a.loops, loop)
	return nil
}

// buildAggregator replays the whole action stream through an ephemeral
// consumer, so the matrix is rebuilt from the retained history on start.
func (a *app) buildAggregator(ctx context.Context) error {
	p, err := aggregator.NewProcessor(a.publisher, aggregator.Options{
		KeepMaxWeight: a.cfg.Aggregator.KeepMaxWeight,
	})
	if err != nil {
		return err
	}
	a.processor = p

	cc := a.consumerConfig(a.cfg.NATS.ActionStream, a.cfg.NATS.ActionSubject, "")
	return a.addLoop(ctx, a.cfg.Aggregator.ConsumerName, cc, p)
}

func (a *app) buildAnalyzer(ctx context.Context) error {
	db, err := database.New(&a.cfg.Database)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.db = db
	logging.Info().Str("path", a.cfg.Database.Path).Msg("Store opened")

	svc, err := recommend.NewService(db, eventprocessor.NewCircuitBreaker(a.breakerConfig("store")))
	if err != nil {
		return err
	}
	a.recommender = svc

	actions, err := analyzer.NewActionSink(db)
	if err != nil {
		return err
	}
	similarities, err := analyzer.NewSimilaritySink(db)
	if err != nil {
		return err
	}

	ac := a.cfg.Analyzer
	if err := a.addLoop(ctx, ac.ActionConsumer,
		a.consumerConfig(a.cfg.NATS.ActionStream, a.cfg.NATS.ActionSubject, ac.ActionConsumer), actions); err != nil {
		return err
	}
	return a.addLoop(ctx, ac.SimilarityConsumer,
		a.consumerConfig(a.cfg.NATS.SimilarityStream, a.cfg.NATS.SimilaritySubject, ac.SimilarityConsumer), similarities)
}

func (a *app) buildServers() error {
	var (
		ingest rpc.ActionCollector
		query  rpc.Recommender
	)
	if a.collector != nil {
		ingest = a.collector
	}
	if a.recommender != nil {
		query = a.recommender
	}
	if ingest != nil || query != nil {
		opts := rpc.ServerOptions{Collector: ingest, Recommender: query}
		if sec := a.cfg.Security; !sec.RateLimitDisabled {
			a.grpcLimiter = rpc.NewRateLimiter(sec.RateLimitReqs, sec.RateLimitWindow)
			opts.RateLimiter = a.grpcLimiter
		}
		srv, err := rpc.NewServer(a.cfg.GRPC, opts)
		if err != nil {
			return err
		}
		a.grpcServer = srv
	}

	if !a.cfg.Server.Enabled {
		return nil
	}

	deps := api.Dependencies{
		Roles: a.cfg.Roles,
		NATS:  a.broker.conn,
		Stats: a.stats(),
	}
	if a.collector != nil {
		deps.Collector = a.collector
	}
	if a.recommender != nil {
		deps.Recommender = a.recommender
		deps.Store = a.recommender
	}

	router := api.NewRouter(api.NewHandler(deps), api.ChiMiddlewareConfigFrom(&a.cfg.Security), middleware.DefaultSlowRequestThreshold)
	a.httpServer = &http.Server{
		Addr:              net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(a.cfg.Server.Port)),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       a.cfg.Server.Timeout,
		WriteTimeout:      a.cfg.Server.Timeout,
		IdleTimeout:       2 * time.Minute,
	}
	return nil
}

func (a *app) stats() map[string]api.StatsFunc {
	stats := map[string]api.StatsFunc{}
	if a.collector != nil {
		stats["collector"] = func() interface{} { return a.collector.Stats() }
	}
	if a.walLog != nil {
		stats["wal"] = func() interface{} { return a.walLog.Stats() }
	}
	if a.processor != nil {
		stats["aggregator"] = func() interface{} {
			return map[string]interface{}{
				"state":          a.processor.Snapshot(),
				"deltas_emitted": a.processor.DeltasEmitted(),
			}
		}
	}
	if a.recommender != nil {
		stats["recommend"] = func() interface{} { return a.recommender.Stats() }
	}
	if a.db != nil {
		stats["store"] = func() interface{} {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s, err := a.db.Stats(ctx)
			if err != nil {
				return map[string]string{"error": err.Error()}
			}
			return s
		}
	}
	if len(a.loops) > 0 {
		stats["consumers"] = func() interface{} {
			out := make([]eventprocessor.ConsumerStats, 0, len(a.loops))
			for _, l := range a.loops {
				out = append(out, l.Stats())
			}
			return out
		}
	}
	return stats
}

// register adds every built component to its supervisor layer.
func (a *app) register(tree *supervisor.SupervisorTree) {
	for _, loop := range a.loops {
		tree.AddMessagingService(services.NewRunnerService(loop.Name(), loop))
	}
	if a.retry != nil {
		tree.AddDataService(services.NewRunnerService("wal-retry", a.retry))
	}
	if a.grpcLimiter != nil {
		tree.AddAPIService(services.NewRunnerService("grpc-rate-limiter", a.grpcLimiter))
	}
	if a.grpcServer != nil {
		tree.AddAPIService(services.NewServerService("grpc-server", a.grpcServer, 10*time.Second))
		logging.Info().Str("addr", a.grpcServer.Addr()).Msg("gRPC server service added")
	}
	if a.httpServer != nil {
		tree.AddAPIService(services.NewServerService("http-server", a.httpServer, 10*time.Second))
		logging.Info().Str("addr", a.httpServer.Addr).Msg("HTTP server service added")
	}
}

// close releases resources in reverse dependency order.
func (a *app) close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing publisher")
		}
	}
	if a.walLog != nil {
		if err := a.walLog.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing WAL")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}
}
