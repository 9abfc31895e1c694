package network

import "github.com/wfunc/piratepanic/models"

// Frame kinds exchanged on the relay socket.
const (
	MsgTypeHeartbeat = 1
	MsgTypeError     = 2

	MsgTypeMatchmakerAdd     = 101
	MsgTypeMatchmakerMatched = 102
	MsgTypeMatchJoin         = 103
	MsgTypeMatchJoined       = 104
	MsgTypeMatchLeave        = 105

	MsgTypeMatchDataSend = 201
	MsgTypeMatchData     = 202

	MsgTypeMatchPresence = 301
)

// Error codes carried by MsgTypeError frames.
const (
	ErrCodeBadRequest = 1
	ErrCodeMatchFull  = 2
	ErrCodeNotInMatch = 3
)

// ErrorMessage rejects the frame of kind Request.
type ErrorMessage struct {
	Request uint16 `json:"request"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type MatchmakerAdd struct {
	MinCount int `json:"min_count"`
	MaxCount int `json:"max_count"`
}

type MatchmakerMatched struct {
	Ticket  string            `json:"ticket"`
	MatchID string            `json:"match_id"`
	Self    models.Presence   `json:"self"`
	Users   []models.Presence `json:"users"`
}

type MatchJoin = models.MatchDescriptor

type MatchJoined = models.MatchInfo

type MatchLeave struct {
	MatchID string `json:"match_id"`
}

type MatchDataSend struct {
	MatchID string `json:"match_id"`
	OpCode  int64  `json:"op_code"`
	Data    []byte `json:"data"`
}

type MatchData = models.MatchData

type MatchPresence = models.PresenceEvent
