package integrity

import "time"

// EventType tags an integrity event. Each tag has exactly one payload shape.
type EventType string

const (
	EventHandStarted         EventType = "hand_started"
	EventPlayerAction        EventType = "player_action"
	EventStreetChanged       EventType = "street_changed"
	EventPotAwarded          EventType = "pot_awarded"
	EventRakeCollected       EventType = "rake_collected"
	EventHandEnded           EventType = "hand_ended"
	EventPlayerJoined        EventType = "player_joined"
	EventPlayerLeft          EventType = "player_left"
	EventManagerIntervention EventType = "manager_intervention"
)

// Payload is the tagged variant carried by an event. Exactly one concrete
// type corresponds to each EventType.
type Payload interface {
	payloadType() EventType
}

// Event is an immutable record of one game happening. Events are never
// mutated after Record returns; detectors see copies.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"sessionId"`
	TableID   string    `json:"tableId"`
	HandID    string    `json:"handId,omitempty"`
	Payload   Payload   `json:"payload"`
}

// HandPlayer is one participant at hand start.
type HandPlayer struct {
	PlayerID  string `json:"playerId"`
	SeatIndex int    `json:"seatIndex"`
	Stack     int64  `json:"stack"`
	Position  string `json:"position"` // early, middle, late, blinds
}

type HandStartedPayload struct {
	HandNumber uint64       `json:"handNumber"`
	DealerSeat int          `json:"dealerSeat"`
	SmallBlind int64        `json:"smallBlind"`
	BigBlind   int64        `json:"bigBlind"`
	Players    []HandPlayer `json:"players"`
}

func (HandStartedPayload) payloadType() EventType { return EventHandStarted }

type PlayerActionPayload struct {
	PlayerID    string `json:"playerId"`
	SeatIndex   int    `json:"seatIndex"`
	Action      string `json:"action"`
	Amount      int64  `json:"amount,omitempty"`
	Street      string `json:"street"`
	PotBefore   int64  `json:"potBefore"`
	FacingBet   int64  `json:"facingBet"`
	TimeTakenMs int64  `json:"timeTakenMs"`
	HeadsUp     bool   `json:"headsUp"`
	Opponents   int    `json:"opponents"`
}

func (PlayerActionPayload) payloadType() EventType { return EventPlayerAction }

type StreetChangedPayload struct {
	Street    string   `json:"street"`
	Community []string `json:"community"`
	PotSize   int64    `json:"potSize"`
}

func (StreetChangedPayload) payloadType() EventType { return EventStreetChanged }

type PotAwardedPayload struct {
	PotID        string   `json:"potId"`
	WinnerID     string   `json:"winnerId"`
	Amount       int64    `json:"amount"`
	Contributors []string `json:"contributors"`
}

func (PotAwardedPayload) payloadType() EventType { return EventPotAwarded }

type RakeCollectedPayload struct {
	Amount int64 `json:"amount"`
}

func (RakeCollectedPayload) payloadType() EventType { return EventRakeCollected }

type HandEndedPayload struct {
	Winners         []string         `json:"winners"`
	EndReason       string           `json:"endReason"`
	PotSize         int64            `json:"potSize"`
	FinalStreet     string           `json:"finalStreet"`
	ShowdownPlayers []string         `json:"showdownPlayers,omitempty"`
	NetChips        map[string]int64 `json:"netChips"`
}

func (HandEndedPayload) payloadType() EventType { return EventHandEnded }

type PlayerJoinedPayload struct {
	PlayerID  string `json:"playerId"`
	SeatIndex int    `json:"seatIndex"`
	Stack     int64  `json:"stack"`
}

func (PlayerJoinedPayload) payloadType() EventType { return EventPlayerJoined }

type PlayerLeftPayload struct {
	PlayerID    string `json:"playerId"`
	Stack       int64  `json:"stack"`
	ByAuthority bool   `json:"byAuthority"`
}

func (PlayerLeftPayload) payloadType() EventType { return EventPlayerLeft }

type ManagerInterventionPayload struct {
	Kind           string `json:"kind"` // pause, resume, config_change, kick
	AuthorityID    string `json:"authorityId"`
	TargetPlayerID string `json:"targetPlayerId,omitempty"`
	Details        string `json:"details,omitempty"`
	DuringHand     bool   `json:"duringHand"`
	FacingAction   bool   `json:"facingAction"`
}

func (ManagerInterventionPayload) payloadType() EventType { return EventManagerIntervention }
