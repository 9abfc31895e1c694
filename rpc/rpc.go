package rpc

import (
	"context"
	"errors"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/wfunc/piratepanic/auth"
	"github.com/wfunc/piratepanic/logger"
	"github.com/wfunc/piratepanic/models"
	"github.com/wfunc/piratepanic/persistence"
	"github.com/wfunc/piratepanic/services"
)

const ServiceName = "piratepanic.Rewards"

type RecordReply struct{}

type MatchRewardRequest struct {
	MatchID string `json:"match_id"`
}

type MatchRewardReply struct {
	Gold int `json:"gold"`
}

// Rewards is the business side of the reward service.
type Rewards interface {
	RecordMatchResult(ctx context.Context, reporterID string, ended models.MatchEnded) error
	MatchReward(ctx context.Context, matchID, userID string) (int, error)
}

type TokenVerifier interface {
	ParseToken(tok string) (*auth.Claims, error)
}

type userKey struct{}

// UserID returns the caller authenticated by the interceptor.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userKey{}).(string)
	return id, ok
}

// Server manages the gRPC listener.
type Server struct {
	address string
	grpc    *grpc.Server
}

func NewServer(addr string, tokens TokenVerifier, rewards Rewards) *Server {
	s := grpc.NewServer(grpc.UnaryInterceptor(authInterceptor(tokens)))
	s.RegisterService(&serviceDesc, &rewardService{rewards: rewards})
	return &Server{address: addr, grpc: s}
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

func (s *Server) Serve(listener net.Listener) error {
	logger.Log.Infof("RPC server listening on %s", listener.Addr())
	return s.grpc.Serve(listener)
}

func (s *Server) Stop() {
	logger.Log.Info("Stopping RPC server.")
	s.grpc.GracefulStop()
}

func authInterceptor(tokens TokenVerifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		var tok string
		if values := md.Get("authorization"); len(values) > 0 {
			tok = auth.BearerToken(values[0])
		}
		claims, err := tokens.ParseToken(tok)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(context.WithValue(ctx, userKey{}, claims.Subject), req)
	}
}

// rewardService adapts Rewards to the wire and maps its errors to status codes.
type rewardService struct {
	rewards Rewards
}

func (r *rewardService) recordMatchResult(ctx context.Context, req *models.MatchEnded) (*RecordReply, error) {
	userID, _ := UserID(ctx)
	if err := r.rewards.RecordMatchResult(ctx, userID, *req); err != nil {
		return nil, toStatus(err)
	}
	return &RecordReply{}, nil
}

func (r *rewardService) matchReward(ctx context.Context, req *MatchRewardRequest) (*MatchRewardReply, error) {
	userID, _ := UserID(ctx)
	gold, err := r.rewards.MatchReward(ctx, req.MatchID, userID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &MatchRewardReply{Gold: gold}, nil
}

func toStatus(err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, services.ErrNotHost), errors.Is(err, services.ErrNotParticipant):
		code = codes.PermissionDenied
	case errors.Is(err, services.ErrMatchUnknown):
		code = codes.NotFound
	case errors.Is(err, services.ErrInvalidResult):
		code = codes.InvalidArgument
	case errors.Is(err, persistence.ErrDuplicateResult):
		code = codes.AlreadyExists
	case errors.Is(err, services.ErrRewardPending):
		code = codes.Unavailable
	}
	return status.Error(code, err.Error())
}

type rewardHandler interface {
	recordMatchResult(ctx context.Context, req *models.MatchEnded) (*RecordReply, error)
	matchReward(ctx context.Context, req *MatchRewardRequest) (*MatchRewardReply, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*rewardHandler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RecordMatchResult", Handler: recordMatchResultHandler},
		{MethodName: "MatchReward", Handler: matchRewardHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func recordMatchResultHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(models.MatchEnded)
	if err := dec(in); err != nil {
		return nil, err
	}
	h := srv.(rewardHandler)
	if interceptor == nil {
		return h.recordMatchResult(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/RecordMatchResult"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return h.recordMatchResult(ctx, req.(*models.MatchEnded))
	})
}

func matchRewardHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(MatchRewardRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	h := srv.(rewardHandler)
	if interceptor == nil {
		return h.matchReward(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/MatchReward"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return h.matchReward(ctx, req.(*MatchRewardRequest))
	})
}
