package game

import (
	"context"
	"time"

	"github.com/wfunc/piratepanic/cards"
	"github.com/wfunc/piratepanic/state"
	"github.com/wfunc/piratepanic/timer"
	"github.com/wfunc/piratepanic/world"
)

// AutoPlayer plays the first affordable card every interval, aimed at the
// enemy castle. It stands in for a human at the controls.
type AutoPlayer struct {
	match    *Match
	sched    timer.Scheduler
	interval time.Duration
	timerID  int64
	played   int
}

func NewAutoPlayer(m *Match, sched timer.Scheduler, interval time.Duration) *AutoPlayer {
	return &AutoPlayer{match: m, sched: sched, interval: interval}
}

// Start must run on the match loop.
func (a *AutoPlayer) Start() {
	if a.timerID != 0 || a.interval <= 0 {
		return
	}
	a.timerID = a.sched.Every(a.interval, a.act)
	a.match.Session.OnTeardown(a.Stop)
}

func (a *AutoPlayer) Stop() {
	if a.timerID != 0 {
		a.sched.Cancel(a.timerID)
		a.timerID = 0
	}
}

// Played is the number of play requests sent.
func (a *AutoPlayer) Played() int {
	return a.played
}

func (a *AutoPlayer) act() {
	switch a.match.Session.Phase() {
	case state.Started:
	case state.Ended:
		a.Stop()
		return
	default:
		return
	}

	w := a.match.World
	gold := w.Gold(a.match.Session.LocalUserID())
	for slot, c := range w.Hand() {
		info, ok := a.match.Catalog.Lookup(c.Type)
		if !ok || w.Reserved(slot) || info.Cost > gold {
			continue
		}
		x, y := a.aim()
		if err := a.match.PlayCard(context.Background(), slot, x, y); err != nil {
			a.match.log.Debugw("auto play failed", "slot", slot, "error", err)
			return
		}
		a.played++
		return
	}
}

// aim returns the world position of the enemy castle, or the middle of the
// enemy half once it is gone.
func (a *AutoPlayer) aim() (float64, float64) {
	w := a.match.World
	enemy := world.Red
	if w.Color(a.match.Session.LocalUserID()) == world.Red {
		enemy = world.Blue
	}
	for _, u := range w.Units(enemy) {
		if u.Card == cards.Castle {
			return u.Node.Position()
		}
	}
	g := w.Grid()
	x := g.Width / 4
	if a.match.Session.IsHost() {
		x = g.Mirror(x)
	}
	return g.Node(x, g.Height/2).Position()
}
