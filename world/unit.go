package world

import (
	"errors"
	"fmt"

	"github.com/wfunc/piratepanic/cards"
)

var ErrInvalidTransition = errors.New("invalid unit state transition")

type UnitState int

const (
	Idle UnitState = iota
	Moving
	Attacking
	Destroyed
)

func (s UnitState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Moving:
		return "moving"
	case Attacking:
		return "attacking"
	case Destroyed:
		return "destroyed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var unitTransitions = map[UnitState][]UnitState{
	Idle:      {Moving, Attacking, Destroyed},
	Moving:    {Idle, Attacking, Destroyed},
	Attacking: {Idle, Moving, Attacking, Destroyed},
}

// Color separates the two sides' unit tables. The host's side is Blue.
type Color int

const (
	Blue Color = iota
	Red
)

type Unit struct {
	ID      int
	OwnerID string
	Card    cards.Type
	HP      int
	MaxHP   int
	Damage  int
	Node    *Node
	State   UnitState

	// Destination is set while the unit is moving.
	Destination *Node
}

func (u *Unit) Alive() bool {
	return u.State != Destroyed
}

// Transition moves the unit to state to. Destroyed is terminal.
func (u *Unit) Transition(to UnitState) error {
	for _, allowed := range unitTransitions[u.State] {
		if allowed == to {
			u.State = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, u.State, to)
}
