// Package cards holds the card catalog and the per-player economy: deck,
// hand slots and gold.
package cards

import "fmt"

// Type identifies a card kind. Values are part of the wire format.
type Type int

const (
	Castle Type = iota
	Fort
	Scallywag
	Brute
	Raider
	Cannonball
	Powderkeg
)

var typeNames = map[Type]string{
	Castle:     "castle",
	Fort:       "fort",
	Scallywag:  "scallywag",
	Brute:      "brute",
	Raider:     "raider",
	Cannonball: "cannonball",
	Powderkeg:  "powderkeg",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("card(%d)", int(t))
}

// DropRegion is the part of the board a card may be played onto.
type DropRegion int

const (
	WholeMap DropRegion = iota
	AllyHalf
	EnemyHalf
	AllySpawn
	EnemySpawn
)

// Card is one card instance in a deck or hand slot.
type Card struct {
	Type Type `json:"type"`
}

// Info is the static description of a card kind.
type Info struct {
	Type   Type
	Cost   int
	HP     int
	Damage int
	Region DropRegion
	// Stackable cards may target an occupied node.
	Stackable bool
	Spell     bool
	Radius    float64
	// Structures never move and cannot be played from a hand.
	Structure bool
	// Tower structures count towards the towers-destroyed tally.
	Tower bool
	// Castle structures end the match when destroyed.
	Castle         bool
	AttackCooldown int
}

func (i Info) Playable() bool {
	return !i.Structure
}

type Catalog map[Type]Info

func (c Catalog) Lookup(t Type) (Info, bool) {
	info, ok := c[t]
	return info, ok
}

func DefaultCatalog() Catalog {
	return Catalog{
		Castle:     {Type: Castle, HP: 40, Damage: 2, Structure: true, Tower: true, Castle: true, AttackCooldown: 2},
		Fort:       {Type: Fort, HP: 25, Damage: 2, Structure: true, Tower: true, AttackCooldown: 2},
		Scallywag:  {Type: Scallywag, Cost: 2, HP: 6, Damage: 2, Region: AllySpawn, AttackCooldown: 2},
		Brute:      {Type: Brute, Cost: 4, HP: 14, Damage: 3, Region: AllyHalf, AttackCooldown: 3},
		Raider:     {Type: Raider, Cost: 5, HP: 8, Damage: 3, Region: EnemySpawn, AttackCooldown: 2},
		Cannonball: {Type: Cannonball, Cost: 3, Damage: 6, Region: WholeMap, Spell: true, Stackable: true, Radius: 1.5},
		Powderkeg:  {Type: Powderkeg, Cost: 5, Damage: 10, Region: EnemyHalf, Spell: true, Stackable: true, Radius: 1.0},
	}
}

// DefaultDeck is the deck every player brings when none is configured.
func DefaultDeck() []Card {
	return []Card{
		{Type: Scallywag}, {Type: Brute}, {Type: Raider}, {Type: Cannonball},
		{Type: Scallywag}, {Type: Brute}, {Type: Powderkeg}, {Type: Scallywag},
	}
}
