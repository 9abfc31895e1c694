package rpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/wfunc/piratepanic/models"
)

var ErrRewardUnavailable = errors.New("match reward unavailable")

// Client calls the reward service with a session token.
type Client struct {
	conn     *grpc.ClientConn
	attempts int
	wait     time.Duration
}

// NewClient connects lazily to addr. MatchReward is tried up to attempts times,
// wait apart.
func NewClient(addr, token string, attempts int, wait time.Duration, opts ...grpc.DialOption) (*Client, error) {
	if attempts < 1 {
		attempts = 1
	}
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
		grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, callOpts ...grpc.CallOption) error {
			ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
			return invoker(ctx, method, req, reply, cc, callOpts...)
		}),
	}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, attempts: attempts, wait: wait}, nil
}

// RecordMatchResult reports the result as host. A result already on record
// counts as success.
func (c *Client) RecordMatchResult(ctx context.Context, ended models.MatchEnded) error {
	err := c.conn.Invoke(ctx, "/"+ServiceName+"/RecordMatchResult", &ended, &RecordReply{})
	if status.Code(err) == codes.AlreadyExists {
		return nil
	}
	return err
}

// retryable reports whether a failed call may succeed when repeated: the
// result is not reported yet, or the call never reached a healthy server.
func retryable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted,
		codes.Aborted, codes.Internal, codes.Unknown:
		return true
	}
	return false
}

// MatchReward asks for the gold earned in matchID, retrying while the host
// has not reported yet or the service fails transiently. Once the attempts
// are spent the last error is returned wrapped in ErrRewardUnavailable.
func (c *Client) MatchReward(ctx context.Context, matchID string) (int, error) {
	var reply MatchRewardReply
	op := func() error {
		err := c.conn.Invoke(ctx, "/"+ServiceName+"/MatchReward", &MatchRewardRequest{MatchID: matchID}, &reply)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.wait), uint64(c.attempts-1)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		if retryable(err) || ctx.Err() != nil {
			return 0, fmt.Errorf("%w: %w", ErrRewardUnavailable, err)
		}
		return 0, err
	}
	return reply.Gold, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
