// services/reward_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/wfunc/piratepanic/election"
	"github.com/wfunc/piratepanic/logger"
	"github.com/wfunc/piratepanic/models"
	"github.com/wfunc/piratepanic/persistence"
)

var (
	ErrMatchUnknown   = errors.New("match is not live on this relay")
	ErrNotHost        = errors.New("only the match host may report the result")
	ErrInvalidResult  = errors.New("result does not name the match participants")
	ErrRewardPending  = errors.New("match result not reported yet")
	ErrNotParticipant = errors.New("user did not play this match")
)

const (
	winnerBase   = 20
	loserBase    = 5
	perTowerGold = 5
)

// Reward is the gold a player earns from a finished match.
func Reward(ended models.MatchEnded, userID string) (int, bool) {
	switch userID {
	case ended.WinnerID:
		return winnerBase + perTowerGold*ended.WinnerTowersDestroyed, true
	case ended.LoserID:
		return loserBase + perTowerGold*ended.LoserTowersDestroyed, true
	default:
		return 0, false
	}
}

// ParticipantSource lists the players of a relay match as seated when it
// filled.
type ParticipantSource interface {
	Participants(matchID string) ([]models.Presence, bool)
}

type RewardService struct {
	db           persistence.Database
	participants ParticipantSource
}

func NewRewardService(db persistence.Database, participants ParticipantSource) *RewardService {
	return &RewardService{db: db, participants: participants}
}

// RecordMatchResult stores the host's account of a match. The reporter must be
// the host elected over the match roster and both named players must be on it.
func (s *RewardService) RecordMatchResult(ctx context.Context, reporterID string, ended models.MatchEnded) error {
	presences, ok := s.participants.Participants(ended.MatchID)
	if !ok {
		return ErrMatchUnknown
	}
	if !election.IsHost(presences, reporterID) {
		return ErrNotHost
	}
	if ended.WinnerID == ended.LoserID || !contains(presences, ended.WinnerID) || !contains(presences, ended.LoserID) {
		return ErrInvalidResult
	}

	if err := s.db.SaveMatchResult(ctx, models.NewMatchResult(ended, reporterID)); err != nil {
		return fmt.Errorf("save result of %s: %w", ended.MatchID, err)
	}
	logger.Log.Infow("match result recorded",
		"match_id", ended.MatchID,
		"winner_id", ended.WinnerID,
		"duration_seconds", ended.DurationSeconds,
	)
	return nil
}

// MatchReward returns the gold userID earned in matchID.
func (s *RewardService) MatchReward(ctx context.Context, matchID, userID string) (int, error) {
	result, err := s.db.LoadMatchResult(ctx, matchID)
	if errors.Is(err, persistence.ErrRecordNotFound) {
		return 0, ErrRewardPending
	}
	if err != nil {
		return 0, err
	}
	gold, ok := Reward(result.Ended(), userID)
	if !ok {
		return 0, ErrNotParticipant
	}
	return gold, nil
}

func contains(presences []models.Presence, userID string) bool {
	for _, p := range presences {
		if p.UserID == userID {
			return true
		}
	}
	return false
}
