package game

import (
	"fmt"
	"time"

	"github.com/tablestakes/cardroom/internal/protocol"
)

// Street is the phase of a hand.
type Street int

const (
	StreetWaiting Street = iota
	StreetPreflop
	StreetFlop
	StreetTurn
	StreetRiver
	StreetShowdown
	StreetComplete
)

func (s Street) String() string {
	return [...]string{"waiting", "preflop", "flop", "turn", "river", "showdown", "complete"}[s]
}

// Table is the single source of truth for one game. Seat count is fixed at
// construction; Sequence increments once per committed state change.
type Table struct {
	ID               string
	HandID           string
	HandNumber       uint64
	Street           Street
	Seats            []*Seat
	Community        []Card
	Pot              int64
	CurrentBet       int64
	MinRaise         int64
	DealerSeat       int
	ActiveSeat       int
	LastRaiserSeat   int
	ActionsThisRound int
	Sequence         uint64

	SmallBlind int64
	BigBlind   int64

	deck []Card
}

// NewTable creates a table with a fixed number of seats.
func NewTable(id string, seatCount int, smallBlind, bigBlind int64) *Table {
	seats := make([]*Seat, seatCount)
	for i := range seats {
		seats[i] = &Seat{Index: i}
	}
	return &Table{
		ID:             id,
		Street:         StreetWaiting,
		Seats:          seats,
		DealerSeat:     -1,
		ActiveSeat:     -1,
		LastRaiserSeat: -1,
		SmallBlind:     smallBlind,
		BigBlind:       bigBlind,
	}
}

// Commit bumps the table sequence; the owning room calls it exactly once per
// applied intent or timer transition.
func (t *Table) Commit() uint64 {
	t.Sequence++
	return t.Sequence
}

// HandActive reports whether a hand is in progress.
func (t *Table) HandActive() bool {
	return t.Street != StreetWaiting && t.Street != StreetComplete
}

// SeatOf returns the seat occupied by the player, or nil.
func (t *Table) SeatOf(playerID string) *Seat {
	for _, s := range t.Seats {
		if s.PlayerID == playerID {
			return s
		}
	}
	return nil
}

// TakeSeat seats a player with their buy-in stack.
func (t *Table) TakeSeat(playerID, displayName string, seatIndex int, stack int64) *protocol.Reject {
	if seatIndex < 0 || seatIndex >= len(t.Seats) {
		return protocol.NewRejectf(protocol.CodeSeatNotFound, "seat %d does not exist", seatIndex)
	}
	if t.SeatOf(playerID) != nil {
		return protocol.NewReject(protocol.CodeAlreadySeated)
	}
	seat := t.Seats[seatIndex]
	if seat.Occupied() {
		return protocol.NewRejectf(protocol.CodeSeatTaken, "seat %d is taken", seatIndex)
	}
	seat.PlayerID = playerID
	seat.DisplayName = displayName
	seat.Stack = stack
	seat.Status = SeatActive
	return nil
}

// LeaveSeat removes the player from their seat. Leaving mid-hand folds first.
func (t *Table) LeaveSeat(playerID string) (*Seat, *protocol.Reject) {
	seat := t.SeatOf(playerID)
	if seat == nil {
		return nil, protocol.NewReject(protocol.CodeNotSeated)
	}
	if t.HandActive() && seat.LiveInHand() {
		t.ForceFold(seat.Index)
	}
	vacated := *seat
	seat.vacate()
	return &vacated, nil
}

// StandUp marks the seat sitting-out from the next hand. Standing up during
// a hand the seat is still contesting is not allowed.
func (t *Table) StandUp(playerID string) *protocol.Reject {
	seat := t.SeatOf(playerID)
	if seat == nil {
		return protocol.NewReject(protocol.CodeNotSeated)
	}
	if t.HandActive() && seat.LiveInHand() {
		return protocol.NewReject(protocol.CodeCannotChangeDuringHand)
	}
	seat.Status = SeatSittingOut
	return nil
}

// SitBack returns a sitting-out seat to play.
func (t *Table) SitBack(playerID string) *protocol.Reject {
	seat := t.SeatOf(playerID)
	if seat == nil {
		return protocol.NewReject(protocol.CodeNotSeated)
	}
	if seat.Status != SeatSittingOut {
		return protocol.NewRejectf(protocol.CodeIllegalAction, "seat is %s, not sitting-out", seat.Status)
	}
	seat.Status = SeatActive
	return nil
}

// MarkDisconnected flags the seat without altering hand progress. The room
// decides whether to hold action inside the grace window.
func (t *Table) MarkDisconnected(playerID string, at time.Time) {
	seat := t.SeatOf(playerID)
	if seat == nil {
		return
	}
	seat.DisconnectedAt = at
	if seat.CanAct() {
		seat.Status = SeatDisconnected
	}
}

// MarkReconnected restores a disconnected seat.
func (t *Table) MarkReconnected(playerID string) {
	seat := t.SeatOf(playerID)
	if seat == nil {
		return
	}
	seat.DisconnectedAt = time.Time{}
	if seat.Status == SeatDisconnected {
		seat.Status = SeatActive
	}
}

// seatedPlayers counts seats eligible to be dealt in.
func (t *Table) seatedPlayers() int {
	n := 0
	for _, s := range t.Seats {
		if s.Occupied() && s.Status != SeatSittingOut && s.Stack > 0 {
			n++
		}
	}
	return n
}

// actingSeats counts seats with a live decision remaining.
func (t *Table) actingSeats() int {
	n := 0
	for _, s := range t.Seats {
		if s.CanAct() {
			n++
		}
	}
	return n
}

// liveSeats counts seats still contesting the pot.
func (t *Table) liveSeats() int {
	n := 0
	for _, s := range t.Seats {
		if s.LiveInHand() {
			n++
		}
	}
	return n
}

// nextEligibleSeat walks clockwise from (from+1) to the next seat that can be
// dealt in. Returns -1 when none exists.
func (t *Table) nextEligibleSeat(from int) int {
	n := len(t.Seats)
	for i := 1; i <= n; i++ {
		idx := ((from + i) % n + n) % n
		s := t.Seats[idx]
		if s.Occupied() && s.Status != SeatSittingOut && s.Stack > 0 {
			return idx
		}
	}
	return -1
}

// nextActingSeat walks clockwise from (from+1) to the next seat with a live
// decision. Returns -1 when none exists.
func (t *Table) nextActingSeat(from int) int {
	n := len(t.Seats)
	for i := 1; i <= n; i++ {
		idx := ((from + i) % n + n) % n
		if t.Seats[idx].CanAct() {
			return idx
		}
	}
	return -1
}

// CheckInvariants verifies structural table invariants; a violation is a
// programming error severe enough to halt the table.
func (t *Table) CheckInvariants() error {
	for _, s := range t.Seats {
		if s.Stack < 0 {
			return fmt.Errorf("seat %d has negative stack %d", s.Index, s.Stack)
		}
		if s.CurrentBet > t.CurrentBet {
			return fmt.Errorf("seat %d bet %d exceeds table bet %d", s.Index, s.CurrentBet, t.CurrentBet)
		}
	}
	if t.HandActive() && t.Street != StreetShowdown && t.ActiveSeat >= 0 {
		if !t.Seats[t.ActiveSeat].CanAct() {
			return fmt.Errorf("active seat %d cannot act", t.ActiveSeat)
		}
	}
	return nil
}
