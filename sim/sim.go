// Package sim is the host's authoritative simulation. It validates card
// plays, drives unit AI and combat, resolves spells and decides the winner.
// It only ever emits facts; the projection applies them.
package sim

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/piratepanic/cards"
	"github.com/wfunc/piratepanic/config"
	"github.com/wfunc/piratepanic/logger"
	"github.com/wfunc/piratepanic/match"
	"github.com/wfunc/piratepanic/models"
	"github.com/wfunc/piratepanic/projection"
	"github.com/wfunc/piratepanic/timer"
	"github.com/wfunc/piratepanic/world"
)

// Session is what the simulation needs from the match session.
type Session interface {
	Broadcast(ctx context.Context, msg models.Message)
	LocalUserID() string
	HostID() string
	IsHost() bool
	MatchID() string
	Participants() []models.Presence
}

// structure placement on the host's side; the opponent's is mirrored.
var structureLayout = []struct {
	card cards.Type
	x, y int
}{
	{cards.Castle, 1, 5},
	{cards.Fort, 2, 2},
	{cards.Fort, 2, 9},
}

type Simulation struct {
	session Session
	world   *projection.Projection
	grid    *world.Grid
	catalog cards.Catalog
	sched   timer.Scheduler
	cfg     config.MatchConfig
	log     *zap.SugaredLogger

	// Shuffle reorders a deck before dealing when ShuffleDecks is set.
	Shuffle func(deck []cards.Card)

	running   bool
	ended     bool
	tickID    int64
	startedAt time.Time
	nextID    int

	players   map[string]*cards.Player
	targets   map[*world.Unit]*world.Unit
	cooldowns map[*world.Unit]int
	towers    map[string]int // towers destroyed, by the destroying player
}

func New(session Session, proj *projection.Projection, catalog cards.Catalog, sched timer.Scheduler, cfg config.MatchConfig) *Simulation {
	s := &Simulation{
		session:   session,
		world:     proj,
		grid:      proj.Grid(),
		catalog:   catalog,
		sched:     sched,
		cfg:       cfg,
		log:       logger.Named("sim"),
		Shuffle:   func(deck []cards.Card) { rand.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] }) },
		players:   make(map[string]*cards.Player),
		targets:   make(map[*world.Unit]*world.Unit),
		cooldowns: make(map[*world.Unit]int),
		towers:    make(map[string]int),
	}
	proj.OnDestroyed(s.unitDestroyed)
	return s
}

// Register wires the simulation to a session. It only acts when the local
// peer is elected host.
func (s *Simulation) Register(session *match.Session) {
	session.OnStarted(func() {
		if session.IsHost() {
			s.Start()
		}
	})
	match.On(session, s.HandleCardPlayRequest)
	match.On(session, func(_ models.Presence, _ models.MatchEnded) { s.Stop() })
	session.OnTeardown(s.Stop)
}

// Start builds every participant's structures, deals starting hands and
// starts the unit ticks.
func (s *Simulation) Start() {
	if s.running || s.ended {
		return
	}
	s.running = true
	s.startedAt = s.sched.Now()
	s.log.Infow("starting simulation", "match_id", s.session.MatchID())

	participants := s.session.Participants()
	for _, p := range participants {
		host := p.UserID == s.session.HostID()
		for _, st := range structureLayout {
			x := st.x
			if !host {
				x = s.grid.Mirror(x)
			}
			s.spawn(p.UserID, st.card, s.grid.Node(x, st.y))
		}
	}
	for _, p := range participants {
		deck := cards.DefaultDeck()
		if s.cfg.ShuffleDecks && s.Shuffle != nil {
			s.Shuffle(deck)
		}
		player := cards.NewPlayer(p.UserID, deck)
		s.players[p.UserID] = player
		s.broadcast(models.StartingHand{PlayerID: p.UserID, Cards: player.Deal(s.cfg.HandSize)})
	}
	if s.cfg.TickInterval > 0 {
		s.tickID = s.sched.Every(s.cfg.TickInterval, s.Tick)
	}
}

// Stop halts the unit ticks.
func (s *Simulation) Stop() {
	s.ended = true
	if s.tickID != 0 {
		s.sched.Cancel(s.tickID)
		s.tickID = 0
	}
}

func (s *Simulation) broadcast(msg models.Message) {
	s.session.Broadcast(context.Background(), msg)
}

func (s *Simulation) spawn(ownerID string, card cards.Type, node *world.Node) {
	id := s.nextID
	s.nextID++
	s.broadcast(models.UnitSpawned{OwnerID: ownerID, UnitID: id, Card: card, NodeX: node.X, NodeY: node.Y})
}

// HandleCardPlayRequest validates a play and answers with either CardPlayed
// followed by its effect, or CardCanceled.
func (s *Simulation) HandleCardPlayRequest(sender models.Presence, req models.CardPlayRequest) {
	if !s.running || s.ended {
		return
	}
	if sender.UserID != req.PlayerID {
		s.log.Warnw("dropping card play for another player", "sender_id", sender.UserID, "player_id", req.PlayerID)
		return
	}
	player, ok := s.players[req.PlayerID]
	if !ok {
		s.log.Warnw("dropping card play from unknown player", "player_id", req.PlayerID)
		return
	}
	log := s.log.With("player_id", req.PlayerID, "card", req.Card.Type, "slot", req.Slot)

	info, ok := s.catalog.Lookup(req.Card.Type)
	if !ok || !info.Playable() {
		log.Infow("card canceled", "reason", "unplayable")
		s.cancel(req)
		return
	}
	if gold := s.world.Gold(req.PlayerID); gold < info.Cost {
		log.Infow("card canceled", "reason", "gold", "gold", gold, "cost", info.Cost)
		s.cancel(req)
		return
	}
	host := req.PlayerID == s.session.HostID()
	node, ok := s.grid.Resolve(req.X, req.Y, host, info.Region, info.Stackable)
	if !ok {
		log.Infow("card canceled", "reason", "no eligible node")
		s.cancel(req)
		return
	}
	if !player.Holds(req.Slot, req.Card) {
		log.Infow("card canceled", "reason", "not in hand")
		s.cancel(req)
		return
	}
	played, replacement, err := player.Play(req.Slot)
	if err != nil {
		log.Infow("card canceled", "reason", err)
		s.cancel(req)
		return
	}

	s.broadcast(models.CardPlayed{
		PlayerID: req.PlayerID,
		Card:     played,
		NewCard:  replacement,
		Slot:     req.Slot,
		NodeX:    node.X,
		NodeY:    node.Y,
	})
	if info.Spell {
		s.castSpell(req.PlayerID, info, node)
		return
	}
	s.spawn(req.PlayerID, info.Type, node)
}

func (s *Simulation) cancel(req models.CardPlayRequest) {
	s.broadcast(models.CardCanceled{PlayerID: req.PlayerID, Card: req.Card, Slot: req.Slot})
}

func (s *Simulation) castSpell(casterID string, info cards.Info, node *world.Node) {
	hits := []models.SpellHit{}
	for _, u := range s.enemiesOf(casterID) {
		if world.Distance(u.Node, node) <= info.Radius+1e-9 {
			hits = append(hits, models.SpellHit{OwnerID: u.OwnerID, UnitID: u.ID})
		}
	}
	s.broadcast(models.SpellActivated{
		OwnerID: casterID,
		Card:    info.Type,
		NodeX:   node.X,
		NodeY:   node.Y,
		Damage:  info.Damage,
		Hits:    hits,
	})
}

func (s *Simulation) enemiesOf(ownerID string) []*world.Unit {
	color := world.Red
	if s.world.Color(ownerID) == world.Red {
		color = world.Blue
	}
	return s.world.Units(color)
}

func (s *Simulation) unitDestroyed(u *world.Unit) {
	delete(s.targets, u)
	delete(s.cooldowns, u)
	if !s.running || s.ended {
		return
	}
	info, _ := s.catalog.Lookup(u.Card)
	if !info.Tower {
		return
	}
	destroyer := s.opponentOf(u.OwnerID)
	s.towers[destroyer]++
	if info.Castle {
		s.endMatch(destroyer, u.OwnerID)
	}
}

func (s *Simulation) opponentOf(userID string) string {
	for _, p := range s.session.Participants() {
		if p.UserID != userID {
			return p.UserID
		}
	}
	return ""
}

func (s *Simulation) endMatch(winnerID, loserID string) {
	s.Stop()
	ended := models.MatchEnded{
		MatchID:               s.session.MatchID(),
		WinnerID:              winnerID,
		LoserID:               loserID,
		WinnerTowersDestroyed: s.towers[winnerID],
		LoserTowersDestroyed:  s.towers[loserID],
		DurationSeconds:       int(math.Round(s.sched.Now().Sub(s.startedAt).Seconds())),
	}
	s.log.Infow("match decided", "winner_id", winnerID, "loser_id", loserID, "duration_seconds", ended.DurationSeconds)
	s.broadcast(ended)
}

// Tick lets every live unit act once, blue units first, each side in id
// order.
func (s *Simulation) Tick() {
	if !s.running || s.ended {
		return
	}
	units := append(s.world.Units(world.Blue), s.world.Units(world.Red)...)
	for _, u := range units {
		if s.ended {
			return
		}
		if !u.Alive() {
			continue
		}
		if s.cooldowns[u] > 0 {
			s.cooldowns[u]--
		}
		s.think(u)
	}
}

func (s *Simulation) think(u *world.Unit) {
	if u.State == world.Moving {
		return
	}
	info, _ := s.catalog.Lookup(u.Card)

	target := s.targets[u]
	if info.Structure || target == nil || !target.Alive() {
		target = s.nearestEnemy(u)
		if target == nil {
			delete(s.targets, u)
			return
		}
		s.targets[u] = target
	}

	if s.grid.Adjacent(u.Node, target.Node) {
		if s.cooldowns[u] <= 0 {
			s.attack(u, target, info)
		}
		return
	}
	if info.Structure {
		return
	}
	if dest := s.chooseStep(u, target); dest != nil {
		s.move(u, dest)
	}
}

// nearestEnemy scans enemies in id order; the first at the minimal distance
// wins.
func (s *Simulation) nearestEnemy(u *world.Unit) *world.Unit {
	var best *world.Unit
	bestDist := math.Inf(1)
	for _, e := range s.enemiesOf(u.OwnerID) {
		if d := world.Distance(u.Node, e.Node); d < bestDist {
			best, bestDist = e, d
		}
	}
	return best
}

func (s *Simulation) attack(u, target *world.Unit, info cards.Info) {
	s.cooldowns[u] = max(1, info.AttackCooldown)
	s.broadcast(models.UnitAttacked{
		OwnerID:         u.OwnerID,
		AttackerID:      u.ID,
		DefenderOwnerID: target.OwnerID,
		DefenderID:      target.ID,
		Damage:          u.Damage,
	})
}

func (s *Simulation) move(u *world.Unit, dest *world.Node) {
	s.broadcast(models.UnitMoved{OwnerID: u.OwnerID, UnitID: u.ID, NodeX: dest.X, NodeY: dest.Y})
}

// chooseStep picks the next node of u on its way to target, displacing idle
// friendlies that stand in the way. nil means u stays put.
func (s *Simulation) chooseStep(u, target *world.Unit) *world.Node {
	bearing := world.Bearing(u.Node, target.Node)
	neighbors := byAngle(u.Node.Neighbors, bearing)
	if len(neighbors) == 0 {
		return nil
	}

	for _, nb := range neighbors {
		if nb.Node.Free() && target.Node.IsNeighbor(nb.Node) {
			return nb.Node
		}
	}

	preferred := neighbors[0].Node
	if preferred.Free() {
		return preferred
	}
	if f := preferred.Unit; f != nil && preferred.Incoming == nil && s.displace(f, u.Node, []*world.Unit{u}) {
		return preferred
	}

	for _, nb := range neighbors {
		if nb.Node.Free() {
			return nb.Node
		}
	}
	return nil
}

// displace moves the idle friendly f out of the way of a unit coming from
// from. Units already on the path are in visited; the chain is at most
// MaxDisplaceDepth long.
func (s *Simulation) displace(f *world.Unit, from *world.Node, visited []*world.Unit) bool {
	if len(visited) > s.cfg.MaxDisplaceDepth || f.OwnerID != visited[0].OwnerID || f.State != world.Idle {
		return false
	}
	if info, _ := s.catalog.Lookup(f.Card); info.Structure {
		return false
	}
	for _, v := range visited {
		if v == f {
			return false
		}
	}

	neighbors := byAngle(f.Node.Neighbors, world.Bearing(from, f.Node))
	for _, nb := range neighbors {
		if nb.Node.Free() {
			s.move(f, nb.Node)
			return true
		}
	}
	chain := append(append([]*world.Unit(nil), visited...), f)
	for _, nb := range neighbors {
		next := nb.Node.Unit
		if next == nil || nb.Node.Incoming != nil || nb.Node == from {
			continue
		}
		if s.displace(next, f.Node, chain) {
			s.move(f, nb.Node)
			return true
		}
	}
	return false
}

// byAngle orders neighbors by how close their direction is to bearing. Equal
// differences keep grid order.
func byAngle(neighbors []world.Neighbor, bearing float64) []world.Neighbor {
	out := append([]world.Neighbor(nil), neighbors...)
	sort.SliceStable(out, func(i, j int) bool {
		return world.AngleDiff(out[i].Angle, bearing) < world.AngleDiff(out[j].Angle, bearing)
	})
	return out
}
