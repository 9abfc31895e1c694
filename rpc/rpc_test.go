package rpc

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/wfunc/piratepanic/auth"
	"github.com/wfunc/piratepanic/config"
	"github.com/wfunc/piratepanic/models"
	"github.com/wfunc/piratepanic/persistence"
	"github.com/wfunc/piratepanic/services"
)

type liveMatches map[string][]models.Presence

func (l liveMatches) Participants(matchID string) ([]models.Presence, bool) {
	p, ok := l[matchID]
	return p, ok
}

type harness struct {
	auth     *auth.Auth
	listener *bufconn.Listener
	aliceID  string
	bobID    string
}

func startServer(t *testing.T) *harness {
	t.Helper()
	live := liveMatches{"m1": {
		{UserID: auth.UserID("alice-device"), SessionID: "A"},
		{UserID: auth.UserID("bob-device"), SessionID: "B"},
	}}
	return serve(t, services.NewRewardService(persistence.NewMemory(), live))
}

func serve(t *testing.T, rewards Rewards) *harness {
	t.Helper()
	a := auth.New(config.AuthConfig{SigningKey: "k", Issuer: "piratepanic", TokenTTL: time.Hour})
	h := &harness{
		auth:     a,
		listener: bufconn.Listen(1 << 20),
		aliceID:  auth.UserID("alice-device"),
		bobID:    auth.UserID("bob-device"),
	}
	srv := NewServer("bufnet", a, rewards)
	go srv.Serve(h.listener)
	t.Cleanup(srv.Stop)
	return h
}

// flakyRewards fails the first failures lookups with a storage error.
type flakyRewards struct {
	failures int32
	calls    atomic.Int32
	err      error
}

func (f *flakyRewards) RecordMatchResult(context.Context, string, models.MatchEnded) error {
	return nil
}

func (f *flakyRewards) MatchReward(context.Context, string, string) (int, error) {
	if f.calls.Add(1) <= f.failures {
		return 0, f.err
	}
	return 7, nil
}

func (h *harness) client(t *testing.T, device string, attempts int) *Client {
	t.Helper()
	token, _, err := h.auth.AuthenticateDevice(device, "")
	require.NoError(t, err)
	c, err := NewClient("passthrough:///bufnet", token, attempts, 10*time.Millisecond,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return h.listener.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRecordAndReward(t *testing.T) {
	h := startServer(t)
	ctx := context.Background()
	host := h.client(t, "alice-device", 1)
	guest := h.client(t, "bob-device", 1)

	ended := models.MatchEnded{MatchID: "m1", WinnerID: h.aliceID, LoserID: h.bobID, WinnerTowersDestroyed: 1}

	err := guest.RecordMatchResult(ctx, ended)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	require.NoError(t, host.RecordMatchResult(ctx, ended))
	require.NoError(t, host.RecordMatchResult(ctx, ended), "repeated report is accepted")

	gold, err := guest.MatchReward(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 5, gold)

	gold, err = host.MatchReward(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 25, gold)
}

func TestMatchRewardGivesUpAfterAttempts(t *testing.T) {
	h := startServer(t)
	guest := h.client(t, "bob-device", 3)

	start := time.Now()
	_, err := guest.MatchReward(context.Background(), "m1")
	assert.ErrorIs(t, err, ErrRewardUnavailable)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond, "two waits between three attempts")
}

func TestRejectsBadToken(t *testing.T) {
	h := startServer(t)
	c, err := NewClient("passthrough:///bufnet", "garbage", 1, 0,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return h.listener.DialContext(ctx)
		}))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.MatchReward(context.Background(), "m1")
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestMatchRewardRetriesTransientFailures(t *testing.T) {
	store := &flakyRewards{failures: 2, err: errors.New("connection reset")}
	h := serve(t, store)
	guest := h.client(t, "bob-device", 3)

	gold, err := guest.MatchReward(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 7, gold)
	assert.EqualValues(t, 3, store.calls.Load())
}

func TestMatchRewardWrapsExhaustedTransientFailure(t *testing.T) {
	store := &flakyRewards{failures: 100, err: errors.New("connection reset")}
	h := serve(t, store)
	guest := h.client(t, "bob-device", 2)

	_, err := guest.MatchReward(context.Background(), "m1")
	assert.ErrorIs(t, err, ErrRewardUnavailable)
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.EqualValues(t, 2, store.calls.Load())
}

func TestMatchRewardDoesNotRetryRejection(t *testing.T) {
	store := &flakyRewards{failures: 100, err: services.ErrNotParticipant}
	h := serve(t, store)
	guest := h.client(t, "bob-device", 3)

	_, err := guest.MatchReward(context.Background(), "m1")
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
	assert.NotErrorIs(t, err, ErrRewardUnavailable)
	assert.EqualValues(t, 1, store.calls.Load())
}
