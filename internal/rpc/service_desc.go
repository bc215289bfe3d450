// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// Fully qualified service and method names.
const (
	UserActionServiceName      = "tandem.v1.UserActionController"
	RecommendationsServiceName = "tandem.v1.RecommendationsController"

	MethodCollectUserAction         = "/" + UserActionServiceName + "/CollectUserAction"
	MethodGetSimilarEvents          = "/" + RecommendationsServiceName + "/GetSimilarEvents"
	MethodGetRecommendationsForUser = "/" + RecommendationsServiceName + "/GetRecommendationsForUser"
	MethodGetInteractionsCount      = "/" + RecommendationsServiceName + "/GetInteractionsCount"
)

// UserActionControllerServer handles ingest calls.
type UserActionControllerServer interface {
	CollectUserAction(ctx context.Context, in *UserActionMessage) (*Empty, error)
}

// RecommendationsControllerServer handles query calls. Each method sends its
// results one by one on stream.
type RecommendationsControllerServer interface {
	GetSimilarEvents(in *SimilarEventsRequest, stream RecommendedEventSender) error
	GetRecommendationsForUser(in *UserPredictionsRequest, stream RecommendedEventSender) error
	GetInteractionsCount(in *InteractionsCountRequest, stream RecommendedEventSender) error
}

// RecommendedEventSender is the server side of a query stream.
type RecommendedEventSender interface {
	Send(*RecommendedEventMessage) error
	Context() context.Context
}

type recommendedEventSender struct {
	grpc.ServerStream
}

func (s *recommendedEventSender) Send(m *RecommendedEventMessage) error {
	return s.ServerStream.SendMsg(m)
}

var userActionServiceDesc = grpc.ServiceDesc{
	ServiceName: UserActionServiceName,
	HandlerType: (*UserActionControllerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CollectUserAction", Handler: collectUserActionHandler},
	},
	Streams: []grpc.StreamDesc{},
}

var recommendationsServiceDesc = grpc.ServiceDesc{
	ServiceName: RecommendationsServiceName,
	HandlerType: (*RecommendationsControllerServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{StreamName: "GetSimilarEvents", Handler: getSimilarEventsHandler, ServerStreams: true},
		{StreamName: "GetRecommendationsForUser", Handler: getRecommendationsForUserHandler, ServerStreams: true},
		{StreamName: "GetInteractionsCount", Handler: getInteractionsCountHandler, ServerStreams: true},
	},
}

// RegisterUserActionControllerServer registers srv on s.
func RegisterUserActionControllerServer(s grpc.ServiceRegistrar, srv UserActionControllerServer) {
	s.RegisterService(&userActionServiceDesc, srv)
}

// RegisterRecommendationsControllerServer registers srv on s.
func RegisterRecommendationsControllerServer(s grpc.ServiceRegistrar, srv RecommendationsControllerServer) {
	s.RegisterService(&recommendationsServiceDesc, srv)
}

func collectUserActionHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(UserActionMessage)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(UserActionControllerServer).CollectUserAction(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodCollectUserAction}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(UserActionControllerServer).CollectUserAction(ctx, req.(*UserActionMessage))
	}
	return interceptor(ctx, in, info, handler)
}

func getSimilarEventsHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(SimilarEventsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(RecommendationsControllerServer).GetSimilarEvents(in, &recommendedEventSender{stream})
}

func getRecommendationsForUserHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(UserPredictionsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(RecommendationsControllerServer).GetRecommendationsForUser(in, &recommendedEventSender{stream})
}

func getInteractionsCountHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(InteractionsCountRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(RecommendationsControllerServer).GetInteractionsCount(in, &recommendedEventSender{stream})
}
