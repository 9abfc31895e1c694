package models

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wfunc/piratepanic/cards"
)

var ErrUnknownOpCode = errors.New("unknown op code")

// Message is a match message exchanged between peers. The op code is
// derived from the type, so the zero value of every message is usable to
// look it up.
type Message interface {
	OpCode() int64
}

// UnitSpawned places a new unit on the board.
type UnitSpawned struct {
	OwnerID string     `json:"owner_id"`
	UnitID  int        `json:"unit_id"`
	Card    cards.Type `json:"card"`
	NodeX   int        `json:"node_x"`
	NodeY   int        `json:"node_y"`
}

// UnitMoved starts a unit's move to an adjacent node.
type UnitMoved struct {
	OwnerID string `json:"owner_id"`
	UnitID  int    `json:"unit_id"`
	NodeX   int    `json:"node_x"`
	NodeY   int    `json:"node_y"`
}

type UnitAttacked struct {
	OwnerID         string `json:"owner_id"`
	AttackerID      int    `json:"attacker_id"`
	DefenderOwnerID string `json:"defender_owner_id"`
	DefenderID      int    `json:"defender_id"`
	Damage          int    `json:"damage"`
}

// SpellHit names one unit caught by a spell.
type SpellHit struct {
	OwnerID string `json:"owner_id"`
	UnitID  int    `json:"unit_id"`
}

type SpellActivated struct {
	OwnerID string     `json:"owner_id"`
	Card    cards.Type `json:"card"`
	NodeX   int        `json:"node_x"`
	NodeY   int        `json:"node_y"`
	Damage  int        `json:"damage"`
	Hits    []SpellHit `json:"hits"`
}

// StartingHand is addressed to a single player; other peers ignore it.
type StartingHand struct {
	PlayerID string       `json:"player_id"`
	Cards    []cards.Card `json:"cards"`
}

// CardPlayRequest proposes playing the card in Slot at world position (X, Y).
// Only the host acts on it.
type CardPlayRequest struct {
	PlayerID string     `json:"player_id"`
	Card     cards.Card `json:"card"`
	Slot     int        `json:"slot"`
	X        float64    `json:"x"`
	Y        float64    `json:"y"`
}

// CardPlayed carries the played card and the card drawn to replace it.
type CardPlayed struct {
	PlayerID string     `json:"player_id"`
	Card     cards.Card `json:"card"`
	NewCard  cards.Card `json:"new_card"`
	Slot     int        `json:"slot"`
	NodeX    int        `json:"node_x"`
	NodeY    int        `json:"node_y"`
}

type CardCanceled struct {
	PlayerID string     `json:"player_id"`
	Card     cards.Card `json:"card"`
	Slot     int        `json:"slot"`
}

type MatchEnded struct {
	MatchID               string `json:"match_id"`
	WinnerID              string `json:"winner_id"`
	LoserID               string `json:"loser_id"`
	WinnerTowersDestroyed int    `json:"winner_towers_destroyed"`
	LoserTowersDestroyed  int    `json:"loser_towers_destroyed"`
	DurationSeconds       int    `json:"duration_seconds"`
}

func (UnitSpawned) OpCode() int64     { return OpUnitSpawned }
func (UnitMoved) OpCode() int64       { return OpUnitMoved }
func (UnitAttacked) OpCode() int64    { return OpUnitAttacked }
func (SpellActivated) OpCode() int64  { return OpSpellActivated }
func (StartingHand) OpCode() int64    { return OpStartingHand }
func (CardPlayRequest) OpCode() int64 { return OpCardPlayRequest }
func (CardPlayed) OpCode() int64      { return OpCardPlayed }
func (CardCanceled) OpCode() int64    { return OpCardCanceled }
func (MatchEnded) OpCode() int64      { return OpMatchEnded }

// Encode serializes a message to its wire payload.
func Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// Decode parses a payload into the message type T.
func Decode[T Message](data []byte) (T, error) {
	var msg T
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("decode op %d: %w", msg.OpCode(), err)
	}
	return msg, nil
}

// DecodeAny parses a payload into the message type registered for opCode.
func DecodeAny(opCode int64, data []byte) (Message, error) {
	switch opCode {
	case OpUnitSpawned:
		return Decode[UnitSpawned](data)
	case OpUnitMoved:
		return Decode[UnitMoved](data)
	case OpUnitAttacked:
		return Decode[UnitAttacked](data)
	case OpSpellActivated:
		return Decode[SpellActivated](data)
	case OpStartingHand:
		return Decode[StartingHand](data)
	case OpCardPlayRequest:
		return Decode[CardPlayRequest](data)
	case OpCardPlayed:
		return Decode[CardPlayed](data)
	case OpCardCanceled:
		return Decode[CardCanceled](data)
	case OpMatchEnded:
		return Decode[MatchEnded](data)
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownOpCode, opCode)
}
