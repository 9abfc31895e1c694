// Package nakama runs the relay as a Nakama runtime module: an authoritative
// match that only forwards match data between its two presences, plus the
// match_reward RPC.
package nakama

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/heroiclabs/nakama-common/runtime"

	"github.com/wfunc/piratepanic/election"
	"github.com/wfunc/piratepanic/models"
	"github.com/wfunc/piratepanic/services"
)

const (
	MatchName = "piratepanic_relay"

	maxPlayers = 2
	tickRate   = 10
	// emptyTicksLimit ends a match nobody sits in after ten seconds.
	emptyTicksLimit = 10 * tickRate
)

type MatchLabel struct {
	Game string `json:"game"`
	Open int    `json:"open"`
}

// MatchState is the relay's view of one match. Order keeps session ids in
// join order; Roster is fixed the first time the match fills.
type MatchState struct {
	Presences  map[string]runtime.Presence `json:"-"`
	Order      []string                    `json:"order"`
	Roster     []models.Presence           `json:"roster,omitempty"`
	Result     *models.MatchEnded          `json:"result,omitempty"`
	EmptyTicks int                         `json:"empty_ticks"`
}

func (ms *MatchState) participants() []models.Presence {
	out := make([]models.Presence, 0, len(ms.Order))
	for _, id := range ms.Order {
		p := ms.Presences[id]
		out = append(out, models.Presence{UserID: p.GetUserId(), SessionID: p.GetSessionId(), Username: p.GetUsername()})
	}
	return out
}

func (ms *MatchState) others(sessionID string) []runtime.Presence {
	var out []runtime.Presence
	for _, id := range ms.Order {
		if id != sessionID {
			out = append(out, ms.Presences[id])
		}
	}
	return out
}

func (ms *MatchState) hasUser(userID string) bool {
	for _, p := range ms.Presences {
		if p.GetUserId() == userID {
			return true
		}
	}
	return false
}

type matchHandler struct{}

func newMatchHandler() *matchHandler {
	return &matchHandler{}
}

func (mh *matchHandler) MatchInit(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, params map[string]interface{}) (interface{}, int, string) {
	state := &MatchState{Presences: make(map[string]runtime.Presence)}
	return state, tickRate, label(state)
}

func label(state *MatchState) string {
	b, _ := json.Marshal(MatchLabel{Game: "piratepanic", Open: maxPlayers - len(state.Presences)})
	return string(b)
}

// MatchJoinAttempt admits at most two presences and never the same account
// twice; duplicates would break host election on the peers.
func (mh *matchHandler) MatchJoinAttempt(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presence runtime.Presence, metadata map[string]string) (interface{}, bool, string) {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state, false, "state not found"
	}
	if matchState.hasUser(presence.GetUserId()) {
		return state, false, "already joined"
	}
	if len(matchState.Presences) >= maxPlayers {
		return state, false, "match full"
	}
	return state, true, ""
}

func (mh *matchHandler) MatchJoin(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchJoin: state not found")
		return state
	}
	for _, p := range presences {
		if _, exists := matchState.Presences[p.GetSessionId()]; exists {
			continue
		}
		matchState.Presences[p.GetSessionId()] = p
		matchState.Order = append(matchState.Order, p.GetSessionId())
		logger.Debug("MatchJoin: user %s joined with session %s", p.GetUserId(), p.GetSessionId())
	}
	matchState.EmptyTicks = 0
	if matchState.Roster == nil && len(matchState.Presences) == maxPlayers {
		matchState.Roster = matchState.participants()
	}
	if err := dispatcher.MatchLabelUpdate(label(matchState)); err != nil {
		logger.Warn("MatchJoin: label update failed: %v", err)
	}
	return matchState
}

func (mh *matchHandler) MatchLeave(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchLeave: state not found")
		return state
	}
	for _, p := range presences {
		delete(matchState.Presences, p.GetSessionId())
		for i, id := range matchState.Order {
			if id == p.GetSessionId() {
				matchState.Order = append(matchState.Order[:i], matchState.Order[i+1:]...)
				break
			}
		}
		logger.Debug("MatchLeave: user %s left", p.GetUserId())
	}
	if err := dispatcher.MatchLabelUpdate(label(matchState)); err != nil {
		logger.Warn("MatchLeave: label update failed: %v", err)
	}
	return matchState
}

// MatchLoop forwards every message to the other presences unchanged. A
// MatchEnded from the host elected over the roster is kept for reward lookups.
func (mh *matchHandler) MatchLoop(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, messages []runtime.MatchData) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state
	}

	if len(matchState.Presences) == 0 {
		matchState.EmptyTicks++
		if matchState.EmptyTicks >= emptyTicksLimit {
			logger.Info("MatchLoop: terminating empty match.")
			return nil
		}
		return matchState
	}

	for _, msg := range messages {
		if others := matchState.others(msg.GetSessionId()); len(others) > 0 {
			if err := dispatcher.BroadcastMessage(msg.GetOpCode(), msg.GetData(), others, msg, msg.GetReliable()); err != nil {
				logger.Warn("MatchLoop: forward op %d failed: %v", msg.GetOpCode(), err)
			}
		}
		if msg.GetOpCode() == models.OpMatchEnded {
			mh.observeEnd(matchState, logger, msg)
		}
	}
	return matchState
}

func (mh *matchHandler) observeEnd(state *MatchState, logger runtime.Logger, msg runtime.MatchData) {
	if state.Result != nil {
		return
	}
	if !election.IsHost(state.Roster, msg.GetUserId()) {
		logger.Warn("MatchLoop: ignoring MatchEnded from non-host %s", msg.GetUserId())
		return
	}
	ended, err := models.Decode[models.MatchEnded](msg.GetData())
	if err != nil {
		logger.Warn("MatchLoop: bad MatchEnded payload: %v", err)
		return
	}
	state.Result = &ended
	logger.Info("MatchLoop: match won by %s", ended.WinnerID)
}

func (mh *matchHandler) MatchTerminate(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, graceSeconds int) interface{} {
	logger.Debug("MatchTerminate: grace %d seconds", graceSeconds)
	return state
}

type signalReply struct {
	Pending bool `json:"pending,omitempty"`
	Known   bool `json:"known"`
	Gold    int  `json:"gold"`
}

// MatchSignal answers a reward lookup: data is the asking user id.
func (mh *matchHandler) MatchSignal(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, data string) (interface{}, string) {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state, ""
	}
	var reply signalReply
	if matchState.Result == nil {
		reply.Pending = true
	} else {
		reply.Gold, reply.Known = services.Reward(*matchState.Result, data)
	}
	b, _ := json.Marshal(reply)
	return matchState, string(b)
}
