package nakama

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/heroiclabs/nakama-common/runtime"
)

const RpcMatchReward = "match_reward"

// gRPC status codes carried by runtime errors.
const (
	codeInvalidArgument  = 3
	codeNotFound         = 5
	codePermissionDenied = 7
	codeUnavailable      = 14
	codeUnauthenticated  = 16
)

type MatchRewardRequest struct {
	MatchID string `json:"match_id"`
}

type MatchRewardResponse struct {
	Gold int `json:"gold"`
}

func RegisterRPCs(initializer runtime.Initializer) error {
	return initializer.RegisterRpc(RpcMatchReward, rpcMatchReward)
}

func rpcMatchReward(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	if userID == "" {
		return "", runtime.NewError("no user in context", codeUnauthenticated)
	}
	var req MatchRewardRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil || req.MatchID == "" {
		return "", runtime.NewError("match_id required", codeInvalidArgument)
	}

	raw, err := nk.MatchSignal(ctx, req.MatchID, userID)
	if err != nil {
		logger.Warn("match_reward: signal %s failed: %v", req.MatchID, err)
		return "", runtime.NewError("match not found", codeNotFound)
	}
	var reply signalReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return "", err
	}
	switch {
	case reply.Pending:
		return "", runtime.NewError("result pending", codeUnavailable)
	case !reply.Known:
		return "", runtime.NewError("not a participant", codePermissionDenied)
	}

	b, err := json.Marshal(MatchRewardResponse{Gold: reply.Gold})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
