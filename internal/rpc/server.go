// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package rpc

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tomtom215/tandem/internal/collector"
	"github.com/tomtom215/tandem/internal/config"
	"github.com/tomtom215/tandem/internal/models"
	"github.com/tomtom215/tandem/internal/validation"
)

// ActionCollector accepts ingested actions. It is implemented by *collector.Collector.
type ActionCollector interface {
	Collect(ctx context.Context, action *models.UserAction) error
}

// Recommender answers the ranking queries. It is implemented by *recommend.Service.
type Recommender interface {
	GetSimilarEvents(ctx context.Context, eventID, userID int64, maxResults int) ([]models.RecommendedEvent, error)
	GetRecommendationsForUser(ctx context.Context, userID int64, maxResults int) ([]models.RecommendedEvent, error)
	GetInteractionsCount(ctx context.Context, eventIDs []int64) ([]models.RecommendedEvent, error)
}

// ServerOptions selects the services to register. A nil field leaves the
// matching service unregistered, so callers get codes.Unimplemented.
type ServerOptions struct {
	Collector   ActionCollector
	Recommender Recommender

	// RateLimiter limits calls per peer. Nil disables limiting.
	RateLimiter *RateLimiter

	// ExtraOptions are appended to the server options, mainly for tests.
	ExtraOptions []grpc.ServerOption
}

// Server is the gRPC listener. ListenAndServe and Shutdown match the
// lifecycle of *http.Server.
type Server struct {
	addr   string
	server *grpc.Server
}

// NewServer builds a server for cfg with the services in opts.
func NewServer(cfg config.GRPCConfig, opts ServerOptions) (*Server, error) {
	if opts.Collector == nil && opts.Recommender == nil {
		return nil, ErrNoServices
	}

	unary := []grpc.UnaryServerInterceptor{UnaryObserver()}
	stream := []grpc.StreamServerInterceptor{StreamObserver()}
	if opts.RateLimiter != nil {
		unary = append(unary, UnaryRateLimit(opts.RateLimiter))
		stream = append(stream, StreamRateLimit(opts.RateLimiter))
	}
	unary = append(unary, UnaryRecovery())
	stream = append(stream, StreamRecovery())

	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(stream...),
	}
	if cfg.MaxConcurrentStreams > 0 {
		serverOpts = append(serverOpts, grpc.MaxConcurrentStreams(cfg.MaxConcurrentStreams))
	}
	serverOpts = append(serverOpts, opts.ExtraOptions...)

	gs := grpc.NewServer(serverOpts...)
	if opts.Collector != nil {
		RegisterUserActionControllerServer(gs, &ingestService{collector: opts.Collector})
	}
	if opts.Recommender != nil {
		RegisterRecommendationsControllerServer(gs, &queryService{recommender: opts.Recommender})
	}

	return &Server{
		addr:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		server: gs,
	}, nil
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// ListenAndServe listens on Addr and serves until Shutdown.
func (s *Server) ListenAndServe() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	return s.Serve(lis)
}

// Serve serves on lis until Shutdown.
func (s *Server) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// Shutdown stops accepting calls and waits for running ones. When ctx ends
// first, remaining calls are cut off.
func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		<-done
		return ctx.Err()
	}
}

type ingestService struct {
	collector ActionCollector
}

func (s *ingestService) CollectUserAction(ctx context.Context, in *UserActionMessage) (*Empty, error) {
	ctx = collector.WithTransport(ctx, collector.TransportGRPC)
	if err := s.collector.Collect(ctx, in.toModel()); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

type queryService struct {
	recommender Recommender
}

func (s *queryService) GetSimilarEvents(in *SimilarEventsRequest, stream RecommendedEventSender) error {
	if err := validate(in); err != nil {
		return err
	}
	return sendAll(stream, func(ctx context.Context) ([]models.RecommendedEvent, error) {
		return s.recommender.GetSimilarEvents(ctx, in.EventID, in.UserID, int(in.MaxResults))
	})
}

func (s *queryService) GetRecommendationsForUser(in *UserPredictionsRequest, stream RecommendedEventSender) error {
	if err := validate(in); err != nil {
		return err
	}
	return sendAll(stream, func(ctx context.Context) ([]models.RecommendedEvent, error) {
		return s.recommender.GetRecommendationsForUser(ctx, in.UserID, int(in.MaxResults))
	})
}

func (s *queryService) GetInteractionsCount(in *InteractionsCountRequest, stream RecommendedEventSender) error {
	if err := validate(in); err != nil {
		return err
	}
	return sendAll(stream, func(ctx context.Context) ([]models.RecommendedEvent, error) {
		return s.recommender.GetInteractionsCount(ctx, in.EventIDs)
	})
}

func validate(in interface{}) error {
	if verr := validation.ValidateStruct(in); verr != nil {
		return status.Error(codes.InvalidArgument, verr.Error())
	}
	return nil
}

// sendAll runs query and streams its results. Once the caller has gone away
// nothing more is sent and the call ends without an error.
func sendAll(stream RecommendedEventSender, query func(ctx context.Context) ([]models.RecommendedEvent, error)) error {
	ctx := stream.Context()
	items, err := query(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return toStatus(err)
	}
	for i := range items {
		if ctx.Err() != nil {
			return nil
		}
		if err := stream.Send(&items[i]); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
	return nil
}
