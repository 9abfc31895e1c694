package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/piratepanic/cards"
)

func TestOpCodesAreStable(t *testing.T) {
	cases := []struct {
		msg  Message
		want int64
	}{
		{UnitSpawned{}, 0},
		{UnitMoved{}, 1},
		{UnitAttacked{}, 2},
		{SpellActivated{}, 3},
		{StartingHand{}, 4},
		{CardPlayRequest{}, 5},
		{CardPlayed{}, 6},
		{CardCanceled{}, 7},
		{MatchEnded{}, 8},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.msg.OpCode(), "%T", tc.msg)
	}
}

func TestWireFieldNames(t *testing.T) {
	data, err := Encode(UnitSpawned{OwnerID: "u1", UnitID: 7, Card: cards.Brute, NodeX: 4, NodeY: 10})
	require.NoError(t, err)
	assert.JSONEq(t, `{"owner_id":"u1","unit_id":7,"card":3,"node_x":4,"node_y":10}`, string(data))

	data, err = Encode(CardPlayed{PlayerID: "u1", Card: cards.Card{Type: cards.Brute}, NewCard: cards.Card{Type: cards.Raider}, Slot: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"player_id":"u1","card":{"type":3},"new_card":{"type":4},"slot":2,"node_x":0,"node_y":0}`, string(data))
}

func TestDecodeAny(t *testing.T) {
	msg, err := DecodeAny(OpCardPlayRequest, []byte(`{"player_id":"u2","card":{"type":2},"slot":1,"x":1.5,"y":2}`))
	require.NoError(t, err)

	req, ok := msg.(CardPlayRequest)
	require.True(t, ok)
	assert.Equal(t, "u2", req.PlayerID)
	assert.Equal(t, cards.Scallywag, req.Card.Type)
	assert.Equal(t, 1.5, req.X)

	_, err = DecodeAny(99, []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownOpCode)

	_, err = DecodeAny(OpUnitMoved, []byte(`not json`))
	assert.Error(t, err)
}
