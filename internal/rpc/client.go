// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/tomtom215/tandem/internal/models"
)

// Client calls a Tandem gRPC server.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for target. Connections are plaintext unless opts
// override the transport credentials.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}
	conn, err := grpc.NewClient(target, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// CollectUserAction sends one action to the collector. A zero timestamp is
// left for the server to fill in.
func (c *Client) CollectUserAction(ctx context.Context, action *models.UserAction) error {
	req := &UserActionMessage{
		UserID:     action.UserID,
		EventID:    action.EventID,
		ActionType: wireActionType(action.ActionType),
	}
	if !action.Timestamp.IsZero() {
		ts := action.Timestamp
		req.Timestamp = &ts
	}
	return c.conn.Invoke(ctx, MethodCollectUserAction, req, &Empty{})
}

// GetSimilarEvents collects the GetSimilarEvents stream.
func (c *Client) GetSimilarEvents(ctx context.Context, eventID, userID int64, maxResults int) ([]models.RecommendedEvent, error) {
	req := &SimilarEventsRequest{EventID: eventID, UserID: userID, MaxResults: int32(maxResults)}
	return c.collect(ctx, 0, MethodGetSimilarEvents, req)
}

// GetRecommendationsForUser collects the GetRecommendationsForUser stream.
func (c *Client) GetRecommendationsForUser(ctx context.Context, userID int64, maxResults int) ([]models.RecommendedEvent, error) {
	req := &UserPredictionsRequest{UserID: userID, MaxResults: int32(maxResults)}
	return c.collect(ctx, 1, MethodGetRecommendationsForUser, req)
}

// GetInteractionsCount collects the GetInteractionsCount stream.
func (c *Client) GetInteractionsCount(ctx context.Context, eventIDs []int64) ([]models.RecommendedEvent, error) {
	req := &InteractionsCountRequest{EventIDs: eventIDs}
	return c.collect(ctx, 2, MethodGetInteractionsCount, req)
}

func (c *Client) collect(ctx context.Context, streamIdx int, method string, req interface{}) ([]models.RecommendedEvent, error) {
	stream, err := c.conn.NewStream(ctx, &recommendationsServiceDesc.Streams[streamIdx], method)
	if err != nil {
		return nil, err
	}
	// io.EOF here means the server already ended the call; RecvMsg has the status.
	if err := stream.SendMsg(req); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	out := []models.RecommendedEvent{}
	for {
		var item RecommendedEventMessage
		err := stream.RecvMsg(&item)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
}
