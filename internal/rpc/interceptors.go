// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package rpc

import (
	"context"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/tomtom215/tandem/internal/logging"
	"github.com/tomtom215/tandem/internal/metrics"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "x-request-id"

// requestContext attaches the caller's request id, or a new one, to ctx and
// echoes it back in the response header.
func requestContext(ctx context.Context) context.Context {
	var requestID string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(RequestIDHeader); len(vals) > 0 {
			requestID = vals[0]
		}
	}
	if requestID == "" {
		requestID = logging.GenerateRequestID()
	}
	_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, requestID))
	return logging.ContextWithRequestID(ctx, requestID)
}

func observe(ctx context.Context, method string, start time.Time, err error) {
	code := status.Code(err)
	duration := time.Since(start)
	metrics.RecordRPC(method, code.String(), duration)

	event := logging.Ctx(ctx).Debug()
	switch code {
	case codes.OK, codes.Canceled:
	case codes.InvalidArgument:
		event = logging.Ctx(ctx).Info()
	default:
		event = logging.Ctx(ctx).Warn().Err(err)
	}
	event.Str("method", method).Str("code", code.String()).Dur("duration", duration).Msg("gRPC call")
}

func recovered(method string, r interface{}) error {
	logging.Error().
		Str("method", method).
		Interface("panic", r).
		Str("stack", string(debug.Stack())).
		Msg("Recovered from panic in gRPC handler")
	return status.Error(codes.Internal, "internal error")
}

// UnaryObserver logs and measures unary calls.
func UnaryObserver() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		ctx = requestContext(ctx)
		start := time.Now()
		resp, err := handler(ctx, req)
		observe(ctx, info.FullMethod, start, err)
		return resp, err
	}
}

// UnaryRecovery turns a handler panic into codes.Internal.
func UnaryRecovery() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				resp, err = nil, recovered(info.FullMethod, r)
			}
		}()
		return handler(ctx, req)
	}
}

// contextStream overrides the context of a server stream.
type contextStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *contextStream) Context() context.Context {
	return s.ctx
}

// StreamObserver logs and measures streaming calls.
func StreamObserver() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx := requestContext(ss.Context())
		start := time.Now()
		err := handler(srv, &contextStream{ServerStream: ss, ctx: ctx})
		observe(ctx, info.FullMethod, start, err)
		return err
	}
}

// StreamRecovery turns a handler panic into codes.Internal.
func StreamRecovery() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = recovered(info.FullMethod, r)
			}
		}()
		return handler(srv, ss)
	}
}
