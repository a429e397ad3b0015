package game

import "time"

// SeatStatus is the hand-local state of a seat.
type SeatStatus int

const (
	SeatEmpty SeatStatus = iota
	SeatActive
	SeatFolded
	SeatAllIn
	SeatSittingOut
	SeatDisconnected
)

func (s SeatStatus) String() string {
	return [...]string{"empty", "active", "folded", "all-in", "sitting-out", "disconnected"}[s]
}

// Seat is an indexed slot at a table. The table owns its seats; nothing
// outside the owning room's serializer mutates them.
type Seat struct {
	Index            int
	PlayerID         string
	DisplayName      string
	Stack            int64
	CurrentBet       int64
	TotalBetThisHand int64
	Status           SeatStatus
	HoleCards        []Card
	Dealer           bool
	InHand           bool
	DisconnectedAt   time.Time
}

// Occupied reports whether a player holds the seat.
func (s *Seat) Occupied() bool {
	return s.PlayerID != ""
}

// CanAct reports whether the seat still has a live decision in the current
// hand: dealt in, not folded, not already all-in.
func (s *Seat) CanAct() bool {
	return s.InHand && (s.Status == SeatActive || s.Status == SeatDisconnected)
}

// LiveInHand reports whether the seat still contests the pot.
func (s *Seat) LiveInHand() bool {
	return s.InHand && s.Status != SeatFolded
}

// resetForHand clears hand-local state ahead of a deal.
func (s *Seat) resetForHand() {
	s.CurrentBet = 0
	s.TotalBetThisHand = 0
	s.HoleCards = nil
	s.Dealer = false
	s.InHand = false
	if s.Status == SeatFolded || s.Status == SeatAllIn {
		s.Status = SeatActive
	}
}

// vacate empties the seat entirely.
func (s *Seat) vacate() {
	*s = Seat{Index: s.Index}
}
