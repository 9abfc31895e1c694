package models

// Op codes of match messages. They must match on every peer.
const (
	OpUnitSpawned     int64 = 0
	OpUnitMoved       int64 = 1
	OpUnitAttacked    int64 = 2
	OpSpellActivated  int64 = 3
	OpStartingHand    int64 = 4
	OpCardPlayRequest int64 = 5
	OpCardPlayed      int64 = 6
	OpCardCanceled    int64 = 7
	OpMatchEnded      int64 = 8
)
