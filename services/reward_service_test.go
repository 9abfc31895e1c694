package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/piratepanic/models"
	"github.com/wfunc/piratepanic/network"
	"github.com/wfunc/piratepanic/persistence"
	"github.com/wfunc/piratepanic/room"
	"github.com/wfunc/piratepanic/session"
)

type fakeParticipants map[string][]models.Presence

func (f fakeParticipants) Participants(matchID string) ([]models.Presence, bool) {
	p, ok := f[matchID]
	return p, ok
}

func newService() (*RewardService, *persistence.Memory) {
	db := persistence.NewMemory()
	live := fakeParticipants{"m1": {
		{UserID: "bob", SessionID: "B"},
		{UserID: "alice", SessionID: "A"},
	}}
	return NewRewardService(db, live), db
}

func TestReward(t *testing.T) {
	ended := models.MatchEnded{WinnerID: "alice", LoserID: "bob", WinnerTowersDestroyed: 2, LoserTowersDestroyed: 1}

	gold, ok := Reward(ended, "alice")
	assert.True(t, ok)
	assert.Equal(t, 30, gold)

	gold, ok = Reward(ended, "bob")
	assert.True(t, ok)
	assert.Equal(t, 10, gold)

	_, ok = Reward(ended, "carol")
	assert.False(t, ok)
}

func TestRecordMatchResult_OnlyHost(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	ended := models.MatchEnded{MatchID: "m1", WinnerID: "alice", LoserID: "bob"}

	assert.ErrorIs(t, svc.RecordMatchResult(ctx, "bob", ended), ErrNotHost)
	require.NoError(t, svc.RecordMatchResult(ctx, "alice", ended))
	assert.ErrorIs(t, svc.RecordMatchResult(ctx, "alice", ended), persistence.ErrDuplicateResult)
}

func TestRecordMatchResult_Validation(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	assert.ErrorIs(t, svc.RecordMatchResult(ctx, "alice", models.MatchEnded{MatchID: "gone"}), ErrMatchUnknown)
	assert.ErrorIs(t, svc.RecordMatchResult(ctx, "alice",
		models.MatchEnded{MatchID: "m1", WinnerID: "alice", LoserID: "carol"}), ErrInvalidResult)
	assert.ErrorIs(t, svc.RecordMatchResult(ctx, "alice",
		models.MatchEnded{MatchID: "m1", WinnerID: "alice", LoserID: "alice"}), ErrInvalidResult)
}

func TestMatchReward(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, err := svc.MatchReward(ctx, "m1", "bob")
	assert.ErrorIs(t, err, ErrRewardPending)

	require.NoError(t, svc.RecordMatchResult(ctx, "alice",
		models.MatchEnded{MatchID: "m1", WinnerID: "bob", LoserID: "alice", WinnerTowersDestroyed: 1}))

	gold, err := svc.MatchReward(ctx, "m1", "bob")
	require.NoError(t, err)
	assert.Equal(t, 25, gold)

	_, err = svc.MatchReward(ctx, "m1", "carol")
	assert.ErrorIs(t, err, ErrNotParticipant)
}

type nopConn struct{ network.Connection }

// The host is fixed when the match fills; once it disconnects the remaining
// player does not inherit the right to report.
func TestRecordMatchResult_HostFixedAtFill(t *testing.T) {
	rooms := room.NewRoomManager(2)
	alice := session.NewSession("A", nopConn{}, "alice", "alice")
	bob := session.NewSession("B", nopConn{}, "bob", "bob")
	_, err := rooms.Join(alice, "m1")
	require.NoError(t, err)
	_, err = rooms.Join(bob, "m1")
	require.NoError(t, err)
	require.NoError(t, rooms.Leave(alice))

	svc := NewRewardService(persistence.NewMemory(), rooms)
	ctx := context.Background()
	forged := models.MatchEnded{MatchID: "m1", WinnerID: "bob", LoserID: "alice"}
	assert.ErrorIs(t, svc.RecordMatchResult(ctx, "bob", forged), ErrNotHost)

	ended := models.MatchEnded{MatchID: "m1", WinnerID: "alice", LoserID: "bob"}
	require.NoError(t, svc.RecordMatchResult(ctx, "alice", ended))
}
