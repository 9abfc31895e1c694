package projection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/piratepanic/cards"
	"github.com/wfunc/piratepanic/config"
	"github.com/wfunc/piratepanic/models"
	"github.com/wfunc/piratepanic/timer"
	"github.com/wfunc/piratepanic/world"
)

type roles struct {
	local, host, opponent string
}

func (r roles) LocalUserID() string { return r.local }
func (r roles) HostID() string      { return r.host }
func (r roles) OpponentID() string  { return r.opponent }
func (r roles) IsHost() bool        { return r.local == r.host }

func newTestProjection(t *testing.T, local string) (*Projection, *timer.ManualScheduler) {
	t.Helper()
	other := "guest"
	if local == "guest" {
		other = "host"
	}
	sched := timer.NewManualScheduler()
	cfg := config.Default().Match
	p := New(roles{local: local, host: "host", opponent: other}, world.NewDefaultGrid(), cards.DefaultCatalog(), sched, cfg)
	p.Start()
	return p, sched
}

func TestUnitSpawned_RegistersInOwnerTable(t *testing.T) {
	for _, local := range []string{"host", "guest"} {
		p, _ := newTestProjection(t, local)
		p.Apply(models.UnitSpawned{OwnerID: "host", UnitID: 0, Card: cards.Scallywag, NodeX: 4, NodeY: 10})

		u := p.Unit("host", 0)
		require.NotNil(t, u, local)
		assert.Equal(t, [2]int{4, 10}, [2]int{u.Node.X, u.Node.Y})
		assert.Equal(t, world.Blue, p.Color("host"))
		assert.Len(t, p.Units(world.Blue), 1)
		assert.Empty(t, p.Units(world.Red))
		assert.True(t, p.Grid().Node(4, 10).Occupied)
		assert.Same(t, u, p.Grid().Node(4, 10).Unit)
	}
}

func TestUnitSpawned_DuplicateIDIgnored(t *testing.T) {
	p, _ := newTestProjection(t, "host")
	p.Apply(models.UnitSpawned{OwnerID: "guest", UnitID: 3, Card: cards.Brute, NodeX: 10, NodeY: 2})
	p.Apply(models.UnitSpawned{OwnerID: "guest", UnitID: 3, Card: cards.Brute, NodeX: 11, NodeY: 2})

	assert.Equal(t, 10, p.Unit("guest", 3).Node.X)
	assert.False(t, p.Grid().Node(11, 2).Occupied)
}

func TestUnitMoved_OccupancyChangesOnCompletion(t *testing.T) {
	p, sched := newTestProjection(t, "guest")
	p.Apply(models.UnitSpawned{OwnerID: "host", UnitID: 0, Card: cards.Scallywag, NodeX: 4, NodeY: 4})
	src, dest := p.Grid().Node(4, 4), p.Grid().Node(5, 4)

	p.Apply(models.UnitMoved{OwnerID: "host", UnitID: 0, NodeX: 5, NodeY: 4})
	u := p.Unit("host", 0)
	assert.Equal(t, world.Moving, u.State)
	assert.True(t, src.Occupied, "source stays occupied while moving")
	assert.False(t, dest.Occupied)
	assert.Same(t, u, dest.Incoming)
	assert.False(t, dest.Free())

	sched.Advance(config.Default().Match.MoveDuration)
	assert.Equal(t, world.Idle, u.State)
	assert.False(t, src.Occupied)
	assert.Nil(t, src.Unit)
	assert.True(t, dest.Occupied)
	assert.Same(t, u, dest.Unit)
	assert.Nil(t, dest.Incoming)
	assert.Same(t, dest, u.Node)
}

func TestUnitMoved_SecondMoveCompletesFirst(t *testing.T) {
	p, _ := newTestProjection(t, "guest")
	p.Apply(models.UnitSpawned{OwnerID: "host", UnitID: 0, Card: cards.Scallywag, NodeX: 4, NodeY: 4})

	p.Apply(models.UnitMoved{OwnerID: "host", UnitID: 0, NodeX: 5, NodeY: 4})
	p.Apply(models.UnitMoved{OwnerID: "host", UnitID: 0, NodeX: 6, NodeY: 4})

	u := p.Unit("host", 0)
	assert.Equal(t, 5, u.Node.X)
	assert.Equal(t, 6, u.Destination.X)
	assert.False(t, p.Grid().Node(4, 4).Occupied)
}

func TestUnitAttacked_DestroysAndForgetsUnit(t *testing.T) {
	p, sched := newTestProjection(t, "host")
	p.Apply(models.UnitSpawned{OwnerID: "host", UnitID: 0, Card: cards.Brute, NodeX: 7, NodeY: 4})
	p.Apply(models.UnitSpawned{OwnerID: "guest", UnitID: 1, Card: cards.Scallywag, NodeX: 8, NodeY: 4})

	var destroyed []*world.Unit
	p.OnDestroyed(func(u *world.Unit) { destroyed = append(destroyed, u) })

	hit := models.UnitAttacked{OwnerID: "host", AttackerID: 0, DefenderOwnerID: "guest", DefenderID: 1, Damage: 3}
	p.Apply(hit)
	attacker := p.Unit("host", 0)
	assert.Equal(t, world.Attacking, attacker.State)
	assert.Equal(t, 3, p.Unit("guest", 1).HP)

	sched.Advance(config.Default().Match.AttackDuration)
	assert.Equal(t, world.Idle, attacker.State)

	p.Apply(hit)
	assert.Nil(t, p.Unit("guest", 1))
	require.Len(t, destroyed, 1)
	assert.Equal(t, world.Destroyed, destroyed[0].State)
	assert.False(t, p.Grid().Node(8, 4).Occupied)

	// Later facts naming the destroyed id are ignored.
	p.Apply(hit)
	p.Apply(models.UnitMoved{OwnerID: "guest", UnitID: 1, NodeX: 9, NodeY: 4})
	assert.Len(t, destroyed, 1)
	assert.False(t, p.Grid().Node(9, 4).Occupied)
	assert.Nil(t, p.Grid().Node(9, 4).Incoming)
}

func TestUnitDestroyedWhileMovingReleasesBothNodes(t *testing.T) {
	p, sched := newTestProjection(t, "host")
	p.Apply(models.UnitSpawned{OwnerID: "guest", UnitID: 1, Card: cards.Scallywag, NodeX: 8, NodeY: 4})
	p.Apply(models.UnitMoved{OwnerID: "guest", UnitID: 1, NodeX: 7, NodeY: 4})
	p.Apply(models.SpellActivated{OwnerID: "host", Card: cards.Powderkeg, NodeX: 8, NodeY: 4, Damage: 10,
		Hits: []models.SpellHit{{OwnerID: "guest", UnitID: 1}}})

	assert.True(t, p.Grid().Node(8, 4).Free())
	assert.True(t, p.Grid().Node(7, 4).Free())

	sched.Advance(time.Second)
	assert.True(t, p.Grid().Node(7, 4).Free())
}

func TestStartingHand_OnlyAddressedPlayer(t *testing.T) {
	p, _ := newTestProjection(t, "guest")
	hand := []cards.Card{{Type: cards.Brute}, {Type: cards.Raider}}

	p.Apply(models.StartingHand{PlayerID: "host", Cards: hand})
	assert.Empty(t, p.Hand())

	p.Apply(models.StartingHand{PlayerID: "guest", Cards: hand})
	assert.Equal(t, hand, p.Hand())
}

func TestCardPlayed_LocalHandAndGold(t *testing.T) {
	p, _ := newTestProjection(t, "guest")
	p.Apply(models.StartingHand{PlayerID: "guest", Cards: []cards.Card{{Type: cards.Scallywag}, {Type: cards.Brute}}})
	require.True(t, p.Reserve(0))
	assert.False(t, p.Reserve(0), "slot already waiting")
	assert.False(t, p.Reserve(5))

	p.Apply(models.CardPlayed{PlayerID: "guest", Card: cards.Card{Type: cards.Scallywag}, NewCard: cards.Card{Type: cards.Raider}, Slot: 0})

	assert.Equal(t, cards.Raider, p.Hand()[0].Type)
	assert.False(t, p.Reserved(0))
	assert.Equal(t, 1, p.Gold("guest"), "3 starting gold minus a cost of 2")
}

func TestCardPlayed_HostMirrorsOpponentGold(t *testing.T) {
	host, _ := newTestProjection(t, "host")
	host.Apply(models.CardPlayed{PlayerID: "guest", Card: cards.Card{Type: cards.Cannonball}, Slot: 1})
	assert.Equal(t, 0, host.Gold("guest"))
	assert.Equal(t, 3, host.Gold("host"))

	guest, _ := newTestProjection(t, "guest")
	guest.Apply(models.CardPlayed{PlayerID: "host", Card: cards.Card{Type: cards.Cannonball}, Slot: 1})
	assert.Equal(t, 3, guest.Gold("guest"))
	assert.Equal(t, 0, guest.Gold("host"), "clients do not track the host's gold")
}

func TestCardCanceled_ReleasesSlot(t *testing.T) {
	p, _ := newTestProjection(t, "guest")
	p.Apply(models.StartingHand{PlayerID: "guest", Cards: []cards.Card{{Type: cards.Scallywag}}})
	require.True(t, p.Reserve(0))

	p.Apply(models.CardCanceled{PlayerID: "guest", Card: cards.Card{Type: cards.Scallywag}, Slot: 0})
	assert.False(t, p.Reserved(0))
	assert.Equal(t, 3, p.Gold("guest"))
}

func TestGoldAccrualIsCapped(t *testing.T) {
	p, sched := newTestProjection(t, "host")
	cfg := config.Default().Match

	sched.Advance(2 * cfg.GoldInterval)
	assert.Equal(t, cfg.StartingGold+2, p.Gold("host"))
	assert.Equal(t, cfg.StartingGold+2, p.Gold("guest"))

	sched.Advance(100 * cfg.GoldInterval)
	assert.Equal(t, cfg.MaxGold, p.Gold("host"))

	p.Apply(models.MatchEnded{})
	before := p.Gold("host")
	p.Apply(models.CardPlayed{PlayerID: "host", Card: cards.Card{Type: cards.Brute}})
	sched.Advance(10 * cfg.GoldInterval)
	assert.Equal(t, before-4, p.Gold("host"), "accrual stops when the match ends")
}
