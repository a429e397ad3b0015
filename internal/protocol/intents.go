package protocol

import "time"

// Header accompanies every message in both directions.
type Header struct {
	MessageID string    `json:"messageId"`
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}

// TableContext scopes an intent to a table at a specific sequence. HandID is
// only required for player actions.
type TableContext struct {
	TableID  string `json:"tableId"`
	HandID   string `json:"handId,omitempty"`
	Sequence uint64 `json:"sequence"`
}

// IntentType identifies a client intent.
type IntentType string

const (
	IntentJoinRoom     IntentType = "join-room"
	IntentLeaveRoom    IntentType = "leave-room"
	IntentTakeSeat     IntentType = "take-seat"
	IntentLeaveSeat    IntentType = "leave-seat"
	IntentStandUp      IntentType = "stand-up"
	IntentSitBack      IntentType = "sit-back"
	IntentPlayerAction IntentType = "player-action"
	IntentRequestSync  IntentType = "request-sync"
	IntentHeartbeat    IntentType = "heartbeat"
)

// ActionType is a betting action inside a player-action intent.
type ActionType string

const (
	ActionFold  ActionType = "fold"
	ActionCheck ActionType = "check"
	ActionCall  ActionType = "call"
	ActionBet   ActionType = "bet"
	ActionRaise ActionType = "raise"
	ActionAllIn ActionType = "all-in"
)

// Intent is the single envelope the authority accepts. Exactly one of the
// payload pointers matching Type is set.
type Intent struct {
	Type         IntentType    `json:"type"`
	SessionID    string        `json:"sessionId"`
	Header       Header        `json:"header"`
	TableContext *TableContext `json:"tableContext,omitempty"`

	JoinRoom     *JoinRoomIntent     `json:"joinRoom,omitempty"`
	LeaveRoom    *LeaveRoomIntent    `json:"leaveRoom,omitempty"`
	TakeSeat     *TakeSeatIntent     `json:"takeSeat,omitempty"`
	PlayerAction *PlayerActionIntent `json:"playerAction,omitempty"`
	RequestSync  *RequestSyncIntent  `json:"requestSync,omitempty"`
	Heartbeat    *HeartbeatIntent    `json:"heartbeat,omitempty"`
}

type JoinRoomIntent struct {
	RoomID      string `json:"roomId"`
	AsSpectator bool   `json:"asSpectator,omitempty"`
}

type LeaveRoomIntent struct {
	RoomID string `json:"roomId"`
}

type TakeSeatIntent struct {
	SeatIndex   int   `json:"seatIndex"`
	BuyInAmount int64 `json:"buyInAmount"`
}

type PlayerActionIntent struct {
	Action ActionType `json:"action"`
	Amount int64      `json:"amount,omitempty"`
}

type RequestSyncIntent struct {
	FromSequence *uint64 `json:"fromSequence,omitempty"`
}

type HeartbeatIntent struct {
	ClientTime time.Time `json:"clientTime"`
}
