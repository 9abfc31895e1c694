package models

// Presence identifies one socket session of a user inside a match.
type Presence struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Username  string `json:"username,omitempty"`
}

// MatchDescriptor names the match to join.
type MatchDescriptor struct {
	MatchID string `json:"match_id"`
}

// MatchInfo is the relay's answer to a join: the match id, the joining
// presence and every presence in the match at join time, self included.
type MatchInfo struct {
	MatchID   string     `json:"match_id"`
	Self      Presence   `json:"self"`
	Presences []Presence `json:"presences"`
}

type PresenceEvent struct {
	MatchID string     `json:"match_id"`
	Joins   []Presence `json:"joins,omitempty"`
	Leaves  []Presence `json:"leaves,omitempty"`
}

// MatchData is an opaque relayed message and the presence that sent it.
type MatchData struct {
	MatchID string   `json:"match_id"`
	OpCode  int64    `json:"op_code"`
	Data    []byte   `json:"data"`
	Sender  Presence `json:"sender"`
}

// RelayHandler receives relay events. Either callback may be nil.
type RelayHandler struct {
	OnPresence  func(PresenceEvent)
	OnMatchData func(MatchData)
}
