// Package match owns the lifecycle of one relayed match connection: joining,
// presence tracking, the start barrier, buffering of early messages and typed
// dispatch.
package match

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wfunc/piratepanic/election"
	"github.com/wfunc/piratepanic/logger"
	"github.com/wfunc/piratepanic/models"
	"github.com/wfunc/piratepanic/state"
)

var (
	ErrDuplicateAccount = errors.New("same account joined the match twice")
	ErrAlreadyJoined    = errors.New("match already joined")
	ErrNotJoined        = errors.New("match not joined")
)

// Relay is the transport scoping messages to one match.
type Relay interface {
	JoinMatch(ctx context.Context, descriptor models.MatchDescriptor) (*models.MatchInfo, error)
	SendMatchState(ctx context.Context, matchID string, opCode int64, data []byte) error
	LeaveMatch(ctx context.Context, matchID string) error
	Subscribe(handler models.RelayHandler) (unsubscribe func())
}

// Executor is the serialized context every state change runs on.
type Executor interface {
	Post(fn func()) bool
	Call(ctx context.Context, fn func()) error
}

type handlerFunc func(sender models.Presence, data []byte)

// Session is confined to its executor: apart from JoinMatch, LeaveMatch,
// MatchID and Phase, methods must be called from the executor goroutine.
type Session struct {
	relay       Relay
	exec        Executor
	log         *zap.SugaredLogger
	localUserID string
	expected    int
	lifecycle   state.StateMachine

	mutex       sync.Mutex
	matchID     string
	joiningID   string
	unsubscribe func()
	left        atomic.Bool

	self          models.Presence
	participants  map[string]models.Presence // by session id
	host          models.Presence
	opponentID    string
	joinCompleted bool

	pending  []models.MatchData
	handlers map[int64][]handlerFunc

	startedListeners  []func()
	teardownListeners []func()
}

func NewSession(relay Relay, exec Executor, localUserID string, expectedPlayers int) *Session {
	if expectedPlayers <= 0 {
		expectedPlayers = 2
	}
	s := &Session{
		relay:        relay,
		exec:         exec,
		log:          logger.Named("match").With("user_id", localUserID),
		localUserID:  localUserID,
		expected:     expectedPlayers,
		lifecycle:    state.NewLifecycle(),
		participants: make(map[string]models.Presence),
		handlers:     make(map[int64][]handlerFunc),
	}
	s.lifecycle.OnEnter(state.Started, s.started)
	On(s, func(_ models.Presence, msg models.MatchEnded) {
		if err := s.lifecycle.ChangeState(state.Ended); err == nil {
			s.log.Infow("match ended", "winner_id", msg.WinnerID, "loser_id", msg.LoserID)
		}
	})
	return s
}

// On subscribes fn to messages of type T. Handlers run on the executor in
// registration order.
func On[T models.Message](s *Session, fn func(sender models.Presence, msg T)) {
	var zero T
	opCode := zero.OpCode()
	s.handlers[opCode] = append(s.handlers[opCode], func(sender models.Presence, data []byte) {
		msg, err := models.Decode[T](data)
		if err != nil {
			s.log.Warnw("dropping undecodable message", "op_code", opCode, "error", err)
			return
		}
		fn(sender, msg)
	})
}

// OnStarted registers fn to run once the start barrier is passed, before the
// pending queue is drained.
func (s *Session) OnStarted(fn func()) {
	s.startedListeners = append(s.startedListeners, fn)
}

// OnTeardown registers fn to run on the executor after the match is left.
func (s *Session) OnTeardown(fn func()) {
	s.teardownListeners = append(s.teardownListeners, fn)
}

// JoinMatch joins the relay match and seeds the participant set. It blocks on
// the relay and must not be called from the executor.
func (s *Session) JoinMatch(ctx context.Context, descriptor models.MatchDescriptor) (string, error) {
	if err := s.lifecycle.ChangeState(state.Joining); err != nil {
		return "", ErrAlreadyJoined
	}
	s.mutex.Lock()
	s.joiningID = descriptor.MatchID
	s.mutex.Unlock()

	unsubscribe := s.relay.Subscribe(models.RelayHandler{
		OnPresence: func(event models.PresenceEvent) {
			s.exec.Post(func() { s.handlePresence(event) })
		},
		OnMatchData: func(data models.MatchData) {
			s.exec.Post(func() { s.handleData(data) })
		},
	})
	s.mutex.Lock()
	s.unsubscribe = unsubscribe
	s.mutex.Unlock()

	info, err := s.relay.JoinMatch(ctx, descriptor)
	if err != nil {
		s.log.Errorw("relay join failed", "match_id", descriptor.MatchID, "error", err)
		s.LeaveMatch(ctx)
		return "", fmt.Errorf("join match %s: %w", descriptor.MatchID, err)
	}

	s.mutex.Lock()
	s.matchID = info.MatchID
	s.mutex.Unlock()

	var joinErr error
	if err := s.exec.Call(ctx, func() { joinErr = s.joined(info) }); err != nil {
		joinErr = err
	}
	if joinErr != nil {
		s.LeaveMatch(ctx)
		return "", joinErr
	}
	s.log.Infow("joined match", "match_id", info.MatchID, "presences", len(info.Presences))
	return info.MatchID, nil
}

func (s *Session) joined(info *models.MatchInfo) error {
	s.self = info.Self
	s.addPresence(info.Self)
	for _, p := range info.Presences {
		if !s.addPresence(p) {
			return fmt.Errorf("%w: %s", ErrDuplicateAccount, p.UserID)
		}
	}
	s.joinCompleted = true
	if err := s.lifecycle.ChangeState(state.Joined); err != nil {
		return err
	}
	s.maybeStart()
	return nil
}

// addPresence reports false when the presence reuses a participant's user id
// under another session.
func (s *Session) addPresence(p models.Presence) bool {
	for _, existing := range s.participants {
		if existing.UserID == p.UserID && existing.SessionID != p.SessionID {
			return false
		}
	}
	s.participants[p.SessionID] = p
	if p.UserID != s.localUserID {
		s.opponentID = p.UserID
	}
	return true
}

func (s *Session) handlePresence(event models.PresenceEvent) {
	if s.left.Load() || !s.sameMatch(event.MatchID) {
		return
	}
	for _, p := range event.Joins {
		if !s.addPresence(p) {
			s.fatal("duplicate account joined", ErrDuplicateAccount)
			return
		}
		s.log.Infow("participant joined", "joined_user_id", p.UserID, "session_id", p.SessionID)
	}
	if len(event.Leaves) > 0 {
		s.fatal("participant left", nil)
		return
	}
	s.maybeStart()
}

func (s *Session) maybeStart() {
	if s.lifecycle.GetCurrentState() != state.Joined || !s.joinCompleted || len(s.participants) < s.expected {
		return
	}
	host, err := election.Elect(s.Participants())
	if err != nil {
		s.fatal("host election failed", err)
		return
	}
	s.host = host
	s.lifecycle.ChangeState(state.Started)
}

// started runs when the lifecycle enters Started: listeners first, then the
// pending queue in arrival order.
func (s *Session) started() {
	s.log.Infow("match started", "host_id", s.host.UserID, "is_host", s.IsHost())

	for _, fn := range s.startedListeners {
		fn()
	}
	pending := s.pending
	s.pending = nil
	for _, data := range pending {
		s.dispatch(data)
	}
}

func (s *Session) handleData(data models.MatchData) {
	if s.left.Load() || !s.sameMatch(data.MatchID) {
		return
	}
	switch s.lifecycle.GetCurrentState() {
	case state.Started:
		s.dispatch(data)
	case state.Ended:
		s.log.Debugw("dropping message after match end", "op_code", data.OpCode)
	default:
		s.pending = append(s.pending, data)
	}
}

func (s *Session) dispatch(data models.MatchData) {
	handlers := s.handlers[data.OpCode]
	if len(handlers) == 0 {
		s.log.Debugw("no handler for message", "op_code", data.OpCode)
		return
	}
	for _, h := range handlers {
		h(data.Sender, data.Data)
	}
}

// sameMatch filters out traffic for other matches on a shared relay
// connection. Before the join reply the requested match id is used.
func (s *Session) sameMatch(matchID string) bool {
	s.mutex.Lock()
	expected := s.matchID
	if expected == "" {
		expected = s.joiningID
	}
	s.mutex.Unlock()
	return expected == "" || matchID == expected
}

// SendFact publishes msg to the other participants.
func (s *Session) SendFact(ctx context.Context, msg models.Message) error {
	matchID := s.MatchID()
	if matchID == "" {
		return ErrNotJoined
	}
	data, err := models.Encode(msg)
	if err != nil {
		return err
	}
	if err := s.relay.SendMatchState(ctx, matchID, msg.OpCode(), data); err != nil {
		return fmt.Errorf("send op %d: %w", msg.OpCode(), err)
	}
	return nil
}

// SendFactSelf applies msg locally through the same path as relayed data.
func (s *Session) SendFactSelf(msg models.Message) {
	data, err := models.Encode(msg)
	if err != nil {
		s.log.Errorw("encode failed", "op_code", msg.OpCode(), "error", err)
		return
	}
	s.handleData(models.MatchData{
		MatchID: s.MatchID(),
		OpCode:  msg.OpCode(),
		Data:    data,
		Sender:  s.self,
	})
}

// Broadcast sends msg to the relay, then applies it locally. Facts emitted
// while applying msg therefore reach the peer after msg itself.
func (s *Session) Broadcast(ctx context.Context, msg models.Message) {
	if err := s.SendFact(ctx, msg); err != nil {
		s.log.Warnw("relay send failed", "op_code", msg.OpCode(), "error", err)
	}
	s.SendFactSelf(msg)
}

// LeaveMatch tears the match down once; later calls return immediately.
// Relay errors are logged and do not stop the local teardown.
func (s *Session) LeaveMatch(ctx context.Context) error {
	if !s.left.CompareAndSwap(false, true) {
		return nil
	}

	s.mutex.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	matchID := s.matchID
	s.mutex.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if matchID != "" {
		if err := s.relay.LeaveMatch(ctx, matchID); err != nil {
			s.log.Warnw("relay leave failed", "match_id", matchID, "error", err)
		}
	}
	s.lifecycle.ChangeState(state.Ended)
	s.log.Infow("left match", "match_id", matchID)

	s.exec.Post(func() {
		for _, fn := range s.teardownListeners {
			fn()
		}
	})
	return nil
}

func (s *Session) fatal(reason string, err error) {
	s.log.Warnw("leaving match", "reason", reason, "error", err)
	go s.LeaveMatch(context.Background())
}

func (s *Session) MatchID() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.matchID
}

func (s *Session) Phase() state.Phase {
	return s.lifecycle.GetCurrentState()
}

func (s *Session) LocalUserID() string {
	return s.localUserID
}

func (s *Session) Self() models.Presence {
	return s.self
}

func (s *Session) HostID() string {
	return s.host.UserID
}

func (s *Session) IsHost() bool {
	return s.host.UserID != "" && s.host.UserID == s.localUserID
}

func (s *Session) OpponentID() string {
	return s.opponentID
}

// Participants returns the participant set sorted by session id.
func (s *Session) Participants() []models.Presence {
	out := make([]models.Presence, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}
