package protocol

import (
	"encoding/json"
	"time"
)

// EventType identifies a server-to-client event.
type EventType string

const (
	EventAck                EventType = "ack"
	EventReject             EventType = "reject"
	EventRoomJoined         EventType = "room-joined"
	EventRoomLeft           EventType = "room-left"
	EventPlayerJoined       EventType = "player-joined"
	EventPlayerLeft         EventType = "player-left"
	EventSeatTaken          EventType = "seat-taken"
	EventSeatVacated        EventType = "seat-vacated"
	EventPlayerSatOut       EventType = "player-sat-out"
	EventPlayerSatBack      EventType = "player-sat-back"
	EventHandStarted        EventType = "hand-started"
	EventActionPerformed    EventType = "action-performed"
	EventStreetChanged      EventType = "street-changed"
	EventPotUpdated         EventType = "pot-updated"
	EventHandEnded          EventType = "hand-ended"
	EventPlayerDisconnected EventType = "player-disconnected"
	EventPlayerReconnected  EventType = "player-reconnected"
	EventPlayerTimedOut     EventType = "player-timed-out"
	EventSnapshot           EventType = "snapshot"
	EventDiff               EventType = "diff"
	EventHeartbeatAck       EventType = "heartbeat-ack"
)

// Event is the server-to-client envelope. Targets names the players the
// broadcaster should deliver to; empty means everyone subscribed to the
// table or room the event belongs to.
type Event struct {
	Type    EventType       `json:"type"`
	Header  Header          `json:"header"`
	TableID string          `json:"tableId,omitempty"`
	RoomID  string          `json:"roomId,omitempty"`
	Data    json.RawMessage `json:"data"`

	Targets []string `json:"-"`
}

// NewEvent marshals data into an event envelope.
func NewEvent(eventType EventType, data any) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{Type: eventType, Data: raw}, nil
}

// MustEvent is NewEvent for payload types that cannot fail to marshal.
func MustEvent(eventType EventType, data any) *Event {
	ev, err := NewEvent(eventType, data)
	if err != nil {
		panic("protocol: marshal " + string(eventType) + ": " + err.Error())
	}
	return ev
}

// For restricts delivery to the named players.
func (e *Event) For(playerIDs ...string) *Event {
	e.Targets = playerIDs
	return e
}

type AckData struct {
	IntentMessageID string `json:"intentMessageId"`
}

type RejectData struct {
	IntentMessageID string            `json:"intentMessageId"`
	Code            Code              `json:"code"`
	Reason          string            `json:"reason"`
	Details         map[string]string `json:"details,omitempty"`
}

type RoomJoinedData struct {
	RoomID      string `json:"roomId"`
	PlayerID    string `json:"playerId"`
	AsSpectator bool   `json:"asSpectator"`
}

type RoomLeftData struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
}

type PlayerPresenceData struct {
	RoomID      string `json:"roomId"`
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName,omitempty"`
}

type SeatTakenData struct {
	TableID   string `json:"tableId"`
	SeatIndex int    `json:"seatIndex"`
	PlayerID  string `json:"playerId"`
	Stack     int64  `json:"stack"`
}

type SeatVacatedData struct {
	TableID   string `json:"tableId"`
	SeatIndex int    `json:"seatIndex"`
	PlayerID  string `json:"playerId"`
}

type SeatStatusData struct {
	TableID   string `json:"tableId"`
	SeatIndex int    `json:"seatIndex"`
	PlayerID  string `json:"playerId"`
}

type HandStartedPlayer struct {
	PlayerID  string `json:"playerId"`
	SeatIndex int    `json:"seatIndex"`
	Stack     int64  `json:"stack"`
}

type HandStartedData struct {
	HandID     string              `json:"handId"`
	HandNumber uint64              `json:"handNumber"`
	DealerSeat int                 `json:"dealerSeat"`
	SBSeat     int                 `json:"sbSeat"`
	BBSeat     int                 `json:"bbSeat"`
	Players    []HandStartedPlayer `json:"players"`
}

type ActionPerformedData struct {
	HandID    string     `json:"handId"`
	PlayerID  string     `json:"playerId"`
	SeatIndex int        `json:"seatIndex"`
	Action    ActionType `json:"action"`
	Amount    int64      `json:"amount,omitempty"`
	NewStack  int64      `json:"newStack"`
	PotTotal  int64      `json:"potTotal"`
}

type StreetChangedData struct {
	HandID         string   `json:"handId"`
	Street         string   `json:"street"`
	CommunityCards []string `json:"communityCards"`
}

type PotUpdatedData struct {
	HandID   string `json:"handId"`
	PotTotal int64  `json:"potTotal"`
}

// EndReason describes how a hand ended.
type EndReason string

const (
	EndShowdown    EndReason = "showdown"
	EndAllFolded   EndReason = "all-folded"
	EndAllInRunout EndReason = "all-in-runout"
)

type HandWinner struct {
	PlayerID        string `json:"playerId"`
	Amount          int64  `json:"amount"`
	HandDescription string `json:"handDescription,omitempty"`
}

type HandEndedData struct {
	HandID    string       `json:"handId"`
	Winners   []HandWinner `json:"winners"`
	EndReason EndReason    `json:"endReason"`
	Rake      int64        `json:"rake"`
}

type PlayerDisconnectedData struct {
	PlayerID              string `json:"playerId"`
	GraceSecondsRemaining int    `json:"graceSecondsRemaining"`
}

type PlayerReconnectedData struct {
	PlayerID string `json:"playerId"`
}

type PlayerTimedOutData struct {
	PlayerID string     `json:"playerId"`
	Action   ActionType `json:"action"`
}

type SnapshotData struct {
	ForPlayerID string          `json:"forPlayerId"`
	Sequence    uint64          `json:"sequence"`
	Snapshot    json.RawMessage `json:"snapshot"`
}

// DiffOp is a single path-addressed operation transforming a base snapshot.
type DiffOp struct {
	Op    string          `json:"op"` // add, replace, remove
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value,omitempty"`
}

type DiffData struct {
	BaseSequence uint64   `json:"baseSequence"`
	Sequence     uint64   `json:"sequence"`
	Operations   []DiffOp `json:"operations"`
}

type HeartbeatAckData struct {
	ServerTime time.Time `json:"serverTime"`
	ClientTime time.Time `json:"clientTime"`
	LatencyMs  int64     `json:"latencyMs"`
}
