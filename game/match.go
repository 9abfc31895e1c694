// Package game assembles the match core for one client: session, projection
// and, on the host, the authoritative simulation.
package game

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/wfunc/piratepanic/cards"
	"github.com/wfunc/piratepanic/config"
	"github.com/wfunc/piratepanic/logger"
	"github.com/wfunc/piratepanic/match"
	"github.com/wfunc/piratepanic/models"
	"github.com/wfunc/piratepanic/projection"
	"github.com/wfunc/piratepanic/sim"
	"github.com/wfunc/piratepanic/state"
	"github.com/wfunc/piratepanic/timer"
	"github.com/wfunc/piratepanic/world"
)

var (
	ErrNotStarted  = errors.New("match not started")
	ErrSlotPending = errors.New("hand slot is waiting for the host")
)

type Match struct {
	Session *match.Session
	World   *projection.Projection
	Sim     *sim.Simulation
	Catalog cards.Catalog

	loop *timer.Loop
	log  *zap.SugaredLogger

	endOnce  sync.Once
	ended    chan struct{}
	result   models.MatchEnded
	doneOnce sync.Once
	done     chan struct{}
}

func NewMatch(relay match.Relay, loop *timer.Loop, userID string, cfg config.MatchConfig) *Match {
	session := match.NewSession(relay, loop, userID, cfg.ExpectedPlayers)
	catalog := cards.DefaultCatalog()
	proj := projection.New(session, world.NewDefaultGrid(), catalog, loop, cfg)
	proj.Register(session)
	simulation := sim.New(session, proj, catalog, loop, cfg)
	simulation.Register(session)

	m := &Match{
		Session: session,
		World:   proj,
		Sim:     simulation,
		Catalog: catalog,
		loop:    loop,
		log:     logger.Named("game").With("user_id", userID),
		ended:   make(chan struct{}),
		done:    make(chan struct{}),
	}
	match.On(session, func(_ models.Presence, msg models.MatchEnded) {
		m.endOnce.Do(func() {
			m.result = msg
			close(m.ended)
		})
	})
	session.OnTeardown(func() {
		m.doneOnce.Do(func() { close(m.done) })
	})
	return m
}

func (m *Match) Join(ctx context.Context, matchID string) (string, error) {
	return m.Session.JoinMatch(ctx, models.MatchDescriptor{MatchID: matchID})
}

func (m *Match) Leave(ctx context.Context) error {
	return m.Session.LeaveMatch(ctx)
}

// Ended is closed once the MatchEnded fact was applied.
func (m *Match) Ended() <-chan struct{} {
	return m.ended
}

// Result is valid after Ended is closed.
func (m *Match) Result() models.MatchEnded {
	return m.result
}

// Done is closed once the match was left.
func (m *Match) Done() <-chan struct{} {
	return m.done
}

// PlayCard asks the host to play the card in slot at world position (x, y).
// It must run on the match loop. The slot stays reserved until the host
// answers with CardPlayed or CardCanceled.
func (m *Match) PlayCard(ctx context.Context, slot int, x, y float64) error {
	if m.Session.Phase() != state.Started {
		return ErrNotStarted
	}
	hand := m.World.Hand()
	if slot < 0 || slot >= len(hand) {
		return cards.ErrInvalidSlot
	}
	if !m.World.Reserve(slot) {
		return ErrSlotPending
	}
	req := models.CardPlayRequest{
		PlayerID: m.Session.LocalUserID(),
		Card:     hand[slot],
		Slot:     slot,
		X:        x,
		Y:        y,
	}
	if m.Session.IsHost() {
		m.Session.SendFactSelf(req)
		return nil
	}
	if err := m.Session.SendFact(ctx, req); err != nil {
		m.World.ApplyCardCanceled(models.CardCanceled{PlayerID: req.PlayerID, Card: req.Card, Slot: slot})
		return err
	}
	return nil
}
