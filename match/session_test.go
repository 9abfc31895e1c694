package match

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/piratepanic/models"
	"github.com/wfunc/piratepanic/state"
	"github.com/wfunc/piratepanic/timer"
)

const testMatchID = "match-1"

type sentMessage struct {
	opCode int64
	data   []byte
}

// fakeRelay records calls and lets tests inject relay events.
type fakeRelay struct {
	mu       sync.Mutex
	handler  models.RelayHandler
	info     *models.MatchInfo
	joinErr  error
	leaveErr error
	onJoin   func(h models.RelayHandler)
	sent     []sentMessage
	leaves   int
	unsubs   int
}

func (r *fakeRelay) JoinMatch(ctx context.Context, d models.MatchDescriptor) (*models.MatchInfo, error) {
	r.mu.Lock()
	h, onJoin := r.handler, r.onJoin
	r.mu.Unlock()
	if onJoin != nil {
		onJoin(h)
	}
	if r.joinErr != nil {
		return nil, r.joinErr
	}
	return r.info, nil
}

func (r *fakeRelay) SendMatchState(ctx context.Context, matchID string, opCode int64, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMessage{opCode: opCode, data: data})
	return nil
}

func (r *fakeRelay) LeaveMatch(ctx context.Context, matchID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaves++
	return r.leaveErr
}

func (r *fakeRelay) Subscribe(h models.RelayHandler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.unsubs++
		r.handler = models.RelayHandler{}
	}
}

func (r *fakeRelay) presence(event models.PresenceEvent) {
	r.mu.Lock()
	h := r.handler
	r.mu.Unlock()
	if h.OnPresence != nil {
		h.OnPresence(event)
	}
}

func (r *fakeRelay) data(sender models.Presence, msg models.Message) {
	payload, _ := models.Encode(msg)
	r.mu.Lock()
	h := r.handler
	r.mu.Unlock()
	if h.OnMatchData != nil {
		h.OnMatchData(models.MatchData{MatchID: testMatchID, OpCode: msg.OpCode(), Data: payload, Sender: sender})
	}
}

func (r *fakeRelay) dataFor(matchID string, sender models.Presence, msg models.Message) {
	payload, _ := models.Encode(msg)
	r.mu.Lock()
	h := r.handler
	r.mu.Unlock()
	if h.OnMatchData != nil {
		h.OnMatchData(models.MatchData{MatchID: matchID, OpCode: msg.OpCode(), Data: payload, Sender: sender})
	}
}

func (r *fakeRelay) leaveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaves
}

func (r *fakeRelay) sentOpCodes() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ops []int64
	for _, m := range r.sent {
		ops = append(ops, m.opCode)
	}
	return ops
}

var (
	alice = models.Presence{UserID: "user-a", SessionID: "A"}
	bob   = models.Presence{UserID: "user-b", SessionID: "B"}
)

func newTestSession(t *testing.T, self models.Presence, presences ...models.Presence) (*Session, *timer.Loop, *fakeRelay) {
	t.Helper()
	loop := timer.NewLoop(64)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go loop.Run(ctx)

	relay := &fakeRelay{info: &models.MatchInfo{
		MatchID:   testMatchID,
		Self:      self,
		Presences: append([]models.Presence{self}, presences...),
	}}
	return NewSession(relay, loop, self.UserID, 2), loop, relay
}

// onLoop runs fn on the loop after everything already posted.
func onLoop(t *testing.T, loop *timer.Loop, fn func()) {
	t.Helper()
	require.NoError(t, loop.Call(context.Background(), fn))
}

func TestJoinMatch_ElectsHostFromSessionIDs(t *testing.T) {
	s, loop, _ := newTestSession(t, bob, alice)

	matchID, err := s.JoinMatch(context.Background(), models.MatchDescriptor{MatchID: testMatchID})
	require.NoError(t, err)
	assert.Equal(t, testMatchID, matchID)

	onLoop(t, loop, func() {
		assert.Equal(t, state.Started, s.Phase())
		assert.Equal(t, "user-a", s.HostID())
		assert.False(t, s.IsHost())
		assert.Equal(t, "user-a", s.OpponentID())
		assert.Len(t, s.Participants(), 2)
	})
}

func TestStartBarrier_BuffersAndDrainsInArrivalOrder(t *testing.T) {
	s, loop, relay := newTestSession(t, alice)

	var got []int
	started := false
	On(s, func(_ models.Presence, msg models.UnitMoved) {
		assert.True(t, started, "dispatched before start")
		got = append(got, msg.UnitID)
	})
	s.OnStarted(func() { started = true })

	// A fact racing the join reply is buffered as well.
	relay.onJoin = func(h models.RelayHandler) {
		relay.data(bob, models.UnitMoved{UnitID: 1})
	}

	_, err := s.JoinMatch(context.Background(), models.MatchDescriptor{MatchID: testMatchID})
	require.NoError(t, err)
	onLoop(t, loop, func() { assert.Equal(t, state.Joined, s.Phase()) })

	relay.data(bob, models.UnitMoved{UnitID: 2})
	relay.data(bob, models.UnitMoved{UnitID: 3})
	relay.presence(models.PresenceEvent{MatchID: testMatchID, Joins: []models.Presence{bob}})
	relay.data(bob, models.UnitMoved{UnitID: 4})
	relay.data(bob, models.UnitMoved{UnitID: 5})

	onLoop(t, loop, func() {
		assert.Equal(t, state.Started, s.Phase())
		assert.Equal(t, []int{1, 2, 3, 4, 5}, got)
		assert.True(t, s.IsHost())
	})
}

func TestStartBarrier_DropsTrafficForOtherMatches(t *testing.T) {
	s, loop, relay := newTestSession(t, alice)

	var got []int
	On(s, func(_ models.Presence, msg models.UnitMoved) { got = append(got, msg.UnitID) })

	// Leftovers from an earlier match on the same connection arrive while the
	// join is still in flight.
	relay.onJoin = func(h models.RelayHandler) {
		relay.dataFor("previous-match", bob, models.UnitMoved{UnitID: 99})
		relay.presence(models.PresenceEvent{MatchID: "previous-match", Leaves: []models.Presence{bob}})
		relay.data(bob, models.UnitMoved{UnitID: 1})
	}

	_, err := s.JoinMatch(context.Background(), models.MatchDescriptor{MatchID: testMatchID})
	require.NoError(t, err)
	relay.dataFor("previous-match", bob, models.UnitMoved{UnitID: 98})
	relay.presence(models.PresenceEvent{MatchID: testMatchID, Joins: []models.Presence{bob}})

	onLoop(t, loop, func() {
		assert.Equal(t, state.Started, s.Phase())
		assert.Equal(t, []int{1}, got)
	})
	assert.Equal(t, 0, relay.leaveCount())
}

func TestJoinMatch_DuplicateAccountIsFatal(t *testing.T) {
	s, _, relay := newTestSession(t, alice, models.Presence{UserID: "user-a", SessionID: "A2"})

	_, err := s.JoinMatch(context.Background(), models.MatchDescriptor{MatchID: testMatchID})
	assert.ErrorIs(t, err, ErrDuplicateAccount)
	assert.Equal(t, 1, relay.leaveCount())
	assert.Equal(t, state.Ended, s.Phase())
}

func TestJoinMatch_DuplicateAccountInPresenceEvent(t *testing.T) {
	s, _, relay := newTestSession(t, alice)
	_, err := s.JoinMatch(context.Background(), models.MatchDescriptor{MatchID: testMatchID})
	require.NoError(t, err)

	relay.presence(models.PresenceEvent{MatchID: testMatchID, Joins: []models.Presence{{UserID: "user-a", SessionID: "A2"}}})

	require.Eventually(t, func() bool { return s.Phase() == state.Ended }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, relay.leaveCount())
}

func TestJoinMatch_RelayErrorTearsDown(t *testing.T) {
	s, _, relay := newTestSession(t, alice)
	relay.joinErr = errors.New("socket closed")

	_, err := s.JoinMatch(context.Background(), models.MatchDescriptor{MatchID: testMatchID})
	require.Error(t, err)
	assert.Equal(t, 1, relay.unsubs)
	assert.Equal(t, 0, relay.leaveCount(), "nothing to leave on the relay")
	assert.Equal(t, state.Ended, s.Phase())

	_, err = s.JoinMatch(context.Background(), models.MatchDescriptor{MatchID: testMatchID})
	assert.ErrorIs(t, err, ErrAlreadyJoined)
}

func TestLeaveMatch_ConcurrentCallsTearDownOnce(t *testing.T) {
	s, loop, relay := newTestSession(t, alice, bob)
	_, err := s.JoinMatch(context.Background(), models.MatchDescriptor{MatchID: testMatchID})
	require.NoError(t, err)

	teardowns := 0
	onLoop(t, loop, func() { s.OnTeardown(func() { teardowns++ }) })

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.LeaveMatch(context.Background())
		}()
	}
	wg.Wait()

	onLoop(t, loop, func() { assert.Equal(t, 1, teardowns) })
	assert.Equal(t, 1, relay.leaveCount())
	assert.Equal(t, 1, relay.unsubs)
}

func TestLeaveMatch_RelayErrorIsBestEffort(t *testing.T) {
	s, loop, relay := newTestSession(t, alice, bob)
	relay.leaveErr = errors.New("timeout")
	_, err := s.JoinMatch(context.Background(), models.MatchDescriptor{MatchID: testMatchID})
	require.NoError(t, err)

	tornDown := false
	onLoop(t, loop, func() { s.OnTeardown(func() { tornDown = true }) })

	assert.NoError(t, s.LeaveMatch(context.Background()))
	onLoop(t, loop, func() { assert.True(t, tornDown) })
	assert.Equal(t, state.Ended, s.Phase())
}

func TestPeerLeaveIsFatal(t *testing.T) {
	s, _, relay := newTestSession(t, alice, bob)
	_, err := s.JoinMatch(context.Background(), models.MatchDescriptor{MatchID: testMatchID})
	require.NoError(t, err)

	relay.presence(models.PresenceEvent{MatchID: testMatchID, Leaves: []models.Presence{bob}})

	require.Eventually(t, func() bool { return s.Phase() == state.Ended }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, relay.leaveCount())
}

func TestBroadcast_RelayBeforeNestedFacts(t *testing.T) {
	s, loop, relay := newTestSession(t, alice, bob)

	var spawned []models.UnitSpawned
	On(s, func(sender models.Presence, msg models.UnitSpawned) {
		assert.Equal(t, alice, sender)
		spawned = append(spawned, msg)
	})
	On(s, func(_ models.Presence, msg models.UnitAttacked) {
		s.Broadcast(context.Background(), models.MatchEnded{MatchID: testMatchID, WinnerID: msg.OwnerID})
	})

	_, err := s.JoinMatch(context.Background(), models.MatchDescriptor{MatchID: testMatchID})
	require.NoError(t, err)

	onLoop(t, loop, func() {
		s.Broadcast(context.Background(), models.UnitSpawned{OwnerID: "user-a", UnitID: 0, NodeX: 4, NodeY: 10})
		s.Broadcast(context.Background(), models.UnitAttacked{OwnerID: "user-a"})
	})

	assert.Equal(t, []int64{models.OpUnitSpawned, models.OpUnitAttacked, models.OpMatchEnded}, relay.sentOpCodes())
	require.Len(t, spawned, 1)
	assert.Equal(t, 4, spawned[0].NodeX)
	assert.Equal(t, state.Ended, s.Phase())
}

func TestMessagesAfterMatchEndedAreDropped(t *testing.T) {
	s, loop, relay := newTestSession(t, bob, alice)
	moves := 0
	On(s, func(_ models.Presence, _ models.UnitMoved) { moves++ })

	_, err := s.JoinMatch(context.Background(), models.MatchDescriptor{MatchID: testMatchID})
	require.NoError(t, err)

	relay.data(alice, models.UnitMoved{UnitID: 1})
	relay.data(alice, models.MatchEnded{MatchID: testMatchID})
	relay.data(alice, models.UnitMoved{UnitID: 2})

	onLoop(t, loop, func() {
		assert.Equal(t, 1, moves)
		assert.Equal(t, state.Ended, s.Phase())
	})
}

func TestUndecodablePayloadIsDropped(t *testing.T) {
	s, loop, relay := newTestSession(t, alice, bob)
	calls := 0
	On(s, func(_ models.Presence, _ models.UnitMoved) { calls++ })

	_, err := s.JoinMatch(context.Background(), models.MatchDescriptor{MatchID: testMatchID})
	require.NoError(t, err)

	relay.mu.Lock()
	h := relay.handler
	relay.mu.Unlock()
	h.OnMatchData(models.MatchData{MatchID: testMatchID, OpCode: models.OpUnitMoved, Data: []byte("{"), Sender: bob})
	relay.data(bob, models.UnitMoved{UnitID: 3})

	onLoop(t, loop, func() { assert.Equal(t, 1, calls) })
}
