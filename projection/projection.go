// Package projection applies match facts to the local world. Every peer runs
// one, the host included, and facts change it the same way whether they came
// from the relay or from the local host.
package projection

import (
	"sort"

	"go.uber.org/zap"

	"github.com/wfunc/piratepanic/cards"
	"github.com/wfunc/piratepanic/config"
	"github.com/wfunc/piratepanic/logger"
	"github.com/wfunc/piratepanic/match"
	"github.com/wfunc/piratepanic/models"
	"github.com/wfunc/piratepanic/timer"
	"github.com/wfunc/piratepanic/world"
)

// Roles answers who is who in the match. *match.Session implements it.
type Roles interface {
	LocalUserID() string
	HostID() string
	OpponentID() string
	IsHost() bool
}

// Projection is not safe for concurrent use; it lives on the match loop.
type Projection struct {
	roles   Roles
	grid    *world.Grid
	catalog cards.Catalog
	sched   timer.Scheduler
	cfg     config.MatchConfig
	log     *zap.SugaredLogger

	units        [2]map[int]*world.Unit
	moveTimers   map[*world.Unit]int64
	attackTimers map[*world.Unit]int64

	hand      []cards.Card
	pending   map[int]bool
	gold      map[string]*cards.Gold
	accrualID int64

	destroyedListeners []func(u *world.Unit)
}

func New(roles Roles, grid *world.Grid, catalog cards.Catalog, sched timer.Scheduler, cfg config.MatchConfig) *Projection {
	return &Projection{
		roles:        roles,
		grid:         grid,
		catalog:      catalog,
		sched:        sched,
		cfg:          cfg,
		log:          logger.Named("projection").With("user_id", roles.LocalUserID()),
		units:        [2]map[int]*world.Unit{make(map[int]*world.Unit), make(map[int]*world.Unit)},
		moveTimers:   make(map[*world.Unit]int64),
		attackTimers: make(map[*world.Unit]int64),
		pending:      make(map[int]bool),
		gold:         make(map[string]*cards.Gold),
	}
}

// Register subscribes the projection to every fact of the session.
func (p *Projection) Register(s *match.Session) {
	match.On(s, func(_ models.Presence, msg models.UnitSpawned) { p.ApplyUnitSpawned(msg) })
	match.On(s, func(_ models.Presence, msg models.UnitMoved) { p.ApplyUnitMoved(msg) })
	match.On(s, func(_ models.Presence, msg models.UnitAttacked) { p.ApplyUnitAttacked(msg) })
	match.On(s, func(_ models.Presence, msg models.SpellActivated) { p.ApplySpellActivated(msg) })
	match.On(s, func(_ models.Presence, msg models.StartingHand) { p.ApplyStartingHand(msg) })
	match.On(s, func(_ models.Presence, msg models.CardPlayed) { p.ApplyCardPlayed(msg) })
	match.On(s, func(_ models.Presence, msg models.CardCanceled) { p.ApplyCardCanceled(msg) })
	match.On(s, func(_ models.Presence, _ models.MatchEnded) { p.Stop() })
	s.OnStarted(p.Start)
	s.OnTeardown(p.Stop)
}

// Apply routes a fact to its handler. Requests are ignored.
func (p *Projection) Apply(msg models.Message) {
	switch m := msg.(type) {
	case models.UnitSpawned:
		p.ApplyUnitSpawned(m)
	case models.UnitMoved:
		p.ApplyUnitMoved(m)
	case models.UnitAttacked:
		p.ApplyUnitAttacked(m)
	case models.SpellActivated:
		p.ApplySpellActivated(m)
	case models.StartingHand:
		p.ApplyStartingHand(m)
	case models.CardPlayed:
		p.ApplyCardPlayed(m)
	case models.CardCanceled:
		p.ApplyCardCanceled(m)
	case models.MatchEnded:
		p.Stop()
	}
}

// Start opens the gold ledger and begins accrual. The host also mirrors its
// opponent's gold.
func (p *Projection) Start() {
	p.ledger(p.roles.LocalUserID())
	if p.roles.IsHost() && p.roles.OpponentID() != "" {
		p.ledger(p.roles.OpponentID())
	}
	if p.accrualID == 0 && p.cfg.GoldInterval > 0 {
		p.accrualID = p.sched.Every(p.cfg.GoldInterval, p.accrue)
	}
}

// Stop halts gold accrual and pending unit timers.
func (p *Projection) Stop() {
	if p.accrualID != 0 {
		p.sched.Cancel(p.accrualID)
		p.accrualID = 0
	}
	for u, id := range p.moveTimers {
		p.sched.Cancel(id)
		delete(p.moveTimers, u)
	}
	for u, id := range p.attackTimers {
		p.sched.Cancel(id)
		delete(p.attackTimers, u)
	}
}

// OnDestroyed registers fn to run after a unit is removed from play.
func (p *Projection) OnDestroyed(fn func(u *world.Unit)) {
	p.destroyedListeners = append(p.destroyedListeners, fn)
}

func (p *Projection) accrue() {
	for _, g := range p.gold {
		g.Accrue(1)
	}
}

func (p *Projection) ledger(playerID string) *cards.Gold {
	g, ok := p.gold[playerID]
	if !ok {
		g = &cards.Gold{Amount: p.cfg.StartingGold, Max: p.cfg.MaxGold}
		p.gold[playerID] = g
	}
	return g
}

// Color is the unit table owned by ownerID. The host's side is Blue.
func (p *Projection) Color(ownerID string) world.Color {
	if ownerID == p.roles.HostID() {
		return world.Blue
	}
	return world.Red
}

// Unit returns a live unit, or nil.
func (p *Projection) Unit(ownerID string, id int) *world.Unit {
	return p.units[p.Color(ownerID)][id]
}

// Units returns the live units of one color sorted by id.
func (p *Projection) Units(color world.Color) []*world.Unit {
	table := p.units[color]
	out := make([]*world.Unit, 0, len(table))
	for _, u := range table {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (p *Projection) Grid() *world.Grid {
	return p.grid
}

func (p *Projection) Hand() []cards.Card {
	return append([]cards.Card(nil), p.hand...)
}

// Gold returns the tracked gold of playerID, zero when untracked.
func (p *Projection) Gold(playerID string) int {
	if g, ok := p.gold[playerID]; ok {
		return g.Amount
	}
	return 0
}

// Reserve marks a local hand slot as waiting for the host's answer. It
// reports false when the slot is empty or already waiting.
func (p *Projection) Reserve(slot int) bool {
	if slot < 0 || slot >= len(p.hand) || p.pending[slot] {
		return false
	}
	p.pending[slot] = true
	return true
}

func (p *Projection) Reserved(slot int) bool {
	return p.pending[slot]
}

func (p *Projection) ApplyUnitSpawned(msg models.UnitSpawned) {
	info, ok := p.catalog.Lookup(msg.Card)
	node := p.grid.Node(msg.NodeX, msg.NodeY)
	if !ok || node == nil {
		p.log.Warnw("ignoring spawn", "card", msg.Card, "x", msg.NodeX, "y", msg.NodeY)
		return
	}
	table := p.units[p.Color(msg.OwnerID)]
	if _, exists := table[msg.UnitID]; exists {
		p.log.Warnw("ignoring duplicate spawn", "owner_id", msg.OwnerID, "unit_id", msg.UnitID)
		return
	}
	u := &world.Unit{
		ID:      msg.UnitID,
		OwnerID: msg.OwnerID,
		Card:    msg.Card,
		HP:      info.HP,
		MaxHP:   info.HP,
		Damage:  info.Damage,
		Node:    node,
		State:   world.Idle,
	}
	node.Occupied = true
	node.Unit = u
	table[u.ID] = u
}

// ApplyUnitMoved starts the move. Occupancy only changes when the move
// completes, MoveDuration later.
func (p *Projection) ApplyUnitMoved(msg models.UnitMoved) {
	u := p.Unit(msg.OwnerID, msg.UnitID)
	dest := p.grid.Node(msg.NodeX, msg.NodeY)
	if u == nil || dest == nil {
		return
	}
	if u.State == world.Moving {
		p.completeMove(u)
	}
	if err := u.Transition(world.Moving); err != nil {
		p.log.Warnw("ignoring move", "unit_id", u.ID, "error", err)
		return
	}
	p.cancelAttackTimer(u)
	u.Destination = dest
	dest.Incoming = u
	p.moveTimers[u] = p.sched.AfterFunc(p.cfg.MoveDuration, func() { p.completeMove(u) })
}

func (p *Projection) completeMove(u *world.Unit) {
	if id, ok := p.moveTimers[u]; ok {
		p.sched.Cancel(id)
		delete(p.moveTimers, u)
	}
	dest := u.Destination
	if !u.Alive() || dest == nil {
		return
	}
	if src := u.Node; src.Unit == u {
		src.Occupied = false
		src.Unit = nil
	}
	dest.Occupied = true
	dest.Unit = u
	if dest.Incoming == u {
		dest.Incoming = nil
	}
	u.Node = dest
	u.Destination = nil
	u.Transition(world.Idle)
}

func (p *Projection) ApplyUnitAttacked(msg models.UnitAttacked) {
	defender := p.Unit(msg.DefenderOwnerID, msg.DefenderID)
	if defender == nil {
		return
	}
	if attacker := p.Unit(msg.OwnerID, msg.AttackerID); attacker != nil {
		if attacker.State == world.Moving {
			p.completeMove(attacker)
		}
		if err := attacker.Transition(world.Attacking); err == nil {
			p.cancelAttackTimer(attacker)
			p.attackTimers[attacker] = p.sched.AfterFunc(p.cfg.AttackDuration, func() {
				delete(p.attackTimers, attacker)
				if attacker.State == world.Attacking {
					attacker.Transition(world.Idle)
				}
			})
		}
	}
	p.damage(defender, msg.Damage)
}

func (p *Projection) cancelAttackTimer(u *world.Unit) {
	if id, ok := p.attackTimers[u]; ok {
		p.sched.Cancel(id)
		delete(p.attackTimers, u)
	}
}

func (p *Projection) ApplySpellActivated(msg models.SpellActivated) {
	for _, hit := range msg.Hits {
		if u := p.Unit(hit.OwnerID, hit.UnitID); u != nil {
			p.damage(u, msg.Damage)
		}
	}
}

func (p *Projection) damage(u *world.Unit, amount int) {
	u.HP -= amount
	if u.HP <= 0 {
		p.destroy(u)
	}
}

func (p *Projection) destroy(u *world.Unit) {
	if err := u.Transition(world.Destroyed); err != nil {
		return
	}
	delete(p.units[p.Color(u.OwnerID)], u.ID)
	if id, ok := p.moveTimers[u]; ok {
		p.sched.Cancel(id)
		delete(p.moveTimers, u)
	}
	p.cancelAttackTimer(u)
	if u.Node.Unit == u {
		u.Node.Occupied = false
		u.Node.Unit = nil
	}
	if u.Destination != nil && u.Destination.Incoming == u {
		u.Destination.Incoming = nil
	}
	p.log.Debugw("unit destroyed", "owner_id", u.OwnerID, "unit_id", u.ID, "card", u.Card)
	for _, fn := range p.destroyedListeners {
		fn(u)
	}
}

func (p *Projection) ApplyStartingHand(msg models.StartingHand) {
	if msg.PlayerID != p.roles.LocalUserID() {
		return
	}
	p.hand = append([]cards.Card(nil), msg.Cards...)
	p.pending = make(map[int]bool)
}

func (p *Projection) ApplyCardPlayed(msg models.CardPlayed) {
	info, _ := p.catalog.Lookup(msg.Card.Type)
	switch {
	case msg.PlayerID == p.roles.LocalUserID():
		if msg.Slot >= 0 && msg.Slot < len(p.hand) {
			p.hand[msg.Slot] = msg.NewCard
		}
		delete(p.pending, msg.Slot)
		p.spend(msg.PlayerID, info.Cost)
	case p.roles.IsHost():
		p.spend(msg.PlayerID, info.Cost)
	}
}

func (p *Projection) spend(playerID string, cost int) {
	g := p.ledger(playerID)
	if err := g.Spend(cost); err != nil {
		p.log.Warnw("gold ledger out of sync", "player_id", playerID, "gold", g.Amount, "cost", cost)
		g.Amount = 0
	}
}

func (p *Projection) ApplyCardCanceled(msg models.CardCanceled) {
	if msg.PlayerID == p.roles.LocalUserID() {
		delete(p.pending, msg.Slot)
	}
}
