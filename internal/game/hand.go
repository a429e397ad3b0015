package game

import (
	"math/rand"

	"github.com/tablestakes/cardroom/internal/protocol"
)

// HandStart summarizes a freshly dealt hand for event emission and the
// economy layer.
type HandStart struct {
	HandID     string
	HandNumber uint64
	DealerSeat int
	SBSeat     int
	BBSeat     int
	SBAmount   int64
	BBAmount   int64
	Players    []*Seat
}

// StreetChange records one street advance and the community cards after it.
type StreetChange struct {
	Street    Street
	Community []Card
}

// ActionOutcome is the committed effect of one legal action, including any
// street advances it triggered.
type ActionOutcome struct {
	SeatIndex int
	PlayerID  string
	Action    protocol.ActionType
	Paid      int64
	NewStack  int64
	PotTotal  int64
	IsAllIn   bool

	StreetChanges []StreetChange
	HandOver      bool
	EndReason     protocol.EndReason
}

// SeatContribution feeds side-pot computation.
type SeatContribution struct {
	PlayerID string
	Total    int64
	AllIn    bool
	Folded   bool
}

// CanStartHand requires at least two seats that are occupied, willing and
// funded, and no hand in progress.
func (t *Table) CanStartHand() bool {
	if t.HandActive() {
		return false
	}
	return t.seatedPlayers() >= 2
}

// StartHand rotates the dealer, deals hole cards from the injected RNG and
// posts blinds. Blinds are capped by stack; an all-in blind is allowed.
func (t *Table) StartHand(handID string, rng *rand.Rand) (*HandStart, *protocol.Reject) {
	if !t.CanStartHand() {
		return nil, protocol.NewReject(protocol.CodeHandNotActive)
	}

	t.HandID = handID
	t.HandNumber++
	t.Community = nil
	t.Pot = 0
	t.ActionsThisRound = 0
	for _, s := range t.Seats {
		s.resetForHand()
	}

	// Dealer rotates to the next eligible seat clockwise.
	t.DealerSeat = t.nextEligibleSeat(t.DealerSeat)
	t.Seats[t.DealerSeat].Dealer = true

	var sbSeat, bbSeat int
	if t.seatedPlayers() == 2 {
		// Heads-up: dealer posts the small blind.
		sbSeat = t.DealerSeat
		bbSeat = t.nextEligibleSeat(sbSeat)
	} else {
		sbSeat = t.nextEligibleSeat(t.DealerSeat)
		bbSeat = t.nextEligibleSeat(sbSeat)
	}

	// Deal before blinds so a blinded-out all-in still holds cards.
	t.deck = NewDeck(rng)
	players := make([]*Seat, 0, len(t.Seats))
	for i := 1; i <= len(t.Seats); i++ {
		idx := (t.DealerSeat + i) % len(t.Seats)
		s := t.Seats[idx]
		if s.Occupied() && s.Status != SeatSittingOut && s.Stack > 0 {
			s.InHand = true
			s.Status = SeatActive
			s.HoleCards = t.deal(2)
			players = append(players, s)
		}
	}

	sbPaid := t.postBlind(t.Seats[sbSeat], t.SmallBlind)
	bbPaid := t.postBlind(t.Seats[bbSeat], t.BigBlind)

	t.Street = StreetPreflop
	t.CurrentBet = t.BigBlind
	t.MinRaise = t.BigBlind
	t.LastRaiserSeat = bbSeat
	t.ActiveSeat = t.nextActingSeat(bbSeat)

	return &HandStart{
		HandID:     handID,
		HandNumber: t.HandNumber,
		DealerSeat: t.DealerSeat,
		SBSeat:     sbSeat,
		BBSeat:     bbSeat,
		SBAmount:   sbPaid,
		BBAmount:   bbPaid,
		Players:    players,
	}, nil
}

func (t *Table) postBlind(seat *Seat, amount int64) int64 {
	paid := min64(amount, seat.Stack)
	seat.Stack -= paid
	seat.CurrentBet = paid
	seat.TotalBetThisHand = paid
	t.Pot += paid
	if seat.Stack == 0 {
		seat.Status = SeatAllIn
	}
	return paid
}

func (t *Table) deal(n int) []Card {
	cards := t.deck[:n]
	t.deck = t.deck[n:]
	return cards
}

// ApplyAction validates and applies one action for the seat whose turn it
// is. An illegal action returns a reject and leaves all state untouched.
func (t *Table) ApplyAction(seatIndex int, action protocol.ActionType, amount int64) (*ActionOutcome, *protocol.Reject) {
	if t.Street < StreetPreflop || t.Street > StreetRiver {
		return nil, protocol.NewReject(protocol.CodeHandNotActive)
	}
	if seatIndex != t.ActiveSeat {
		return nil, protocol.NewReject(protocol.CodeNotYourTurn)
	}
	seat := t.Seats[seatIndex]
	call := t.CurrentBet - seat.CurrentBet

	// Validate fully before any mutation.
	switch action {
	case protocol.ActionFold:
	case protocol.ActionCheck:
		if call != 0 {
			return nil, protocol.NewRejectf(protocol.CodeIllegalAction, "cannot check facing a bet of %d", call)
		}
	case protocol.ActionCall:
		if call <= 0 {
			return nil, protocol.NewRejectf(protocol.CodeIllegalAction, "nothing to call")
		}
	case protocol.ActionBet:
		if t.CurrentBet != 0 {
			return nil, protocol.NewRejectf(protocol.CodeIllegalAction, "cannot bet facing a bet, raise instead")
		}
		if amount < t.MinRaise {
			return nil, protocol.NewRejectf(protocol.CodeBetTooSmall, "minimum bet is %d", t.MinRaise)
		}
		if amount > seat.Stack {
			return nil, protocol.NewRejectf(protocol.CodeInsufficientChips, "bet %d exceeds stack %d", amount, seat.Stack)
		}
	case protocol.ActionRaise:
		if t.CurrentBet == 0 {
			return nil, protocol.NewRejectf(protocol.CodeIllegalAction, "nothing to raise, bet instead")
		}
		if amount < t.CurrentBet+t.MinRaise {
			return nil, protocol.NewRejectf(protocol.CodeBetTooSmall, "minimum raise is to %d", t.CurrentBet+t.MinRaise)
		}
		if amount-seat.CurrentBet > seat.Stack {
			return nil, protocol.NewRejectf(protocol.CodeInsufficientChips, "raise to %d exceeds stack", amount)
		}
	case protocol.ActionAllIn:
		if seat.Stack <= 0 {
			return nil, protocol.NewRejectf(protocol.CodeIllegalAction, "no chips to commit")
		}
	default:
		return nil, protocol.NewRejectf(protocol.CodeIllegalAction, "unknown action %q", action)
	}

	out := &ActionOutcome{
		SeatIndex: seatIndex,
		PlayerID:  seat.PlayerID,
		Action:    action,
	}

	switch action {
	case protocol.ActionFold:
		seat.Status = SeatFolded
		if t.LastRaiserSeat == seatIndex {
			t.LastRaiserSeat = -1
		}

	case protocol.ActionCheck:
		// No chips move.

	case protocol.ActionCall:
		paid := min64(call, seat.Stack)
		t.pay(seat, paid)
		out.Paid = paid

	case protocol.ActionBet:
		t.pay(seat, amount)
		t.CurrentBet = amount
		t.MinRaise = amount
		t.LastRaiserSeat = seatIndex
		out.Paid = amount

	case protocol.ActionRaise:
		paid := amount - seat.CurrentBet
		t.pay(seat, paid)
		t.MinRaise = amount - t.CurrentBet
		t.CurrentBet = amount
		t.LastRaiserSeat = seatIndex
		out.Paid = paid

	case protocol.ActionAllIn:
		paid := seat.Stack
		t.pay(seat, paid)
		out.Paid = paid
		if seat.CurrentBet > t.CurrentBet {
			// An all-in below the minimum raise does not reopen action:
			// the bet stands but minRaise and lastRaiser are unchanged.
			increment := seat.CurrentBet - t.CurrentBet
			if increment >= t.MinRaise {
				t.MinRaise = increment
				t.LastRaiserSeat = seatIndex
			}
			t.CurrentBet = seat.CurrentBet
		}
	}

	out.IsAllIn = seat.Status == SeatAllIn
	out.NewStack = seat.Stack
	out.PotTotal = t.Pot

	t.ActionsThisRound++
	t.ActiveSeat = t.nextActingSeat(seatIndex)
	t.afterAction(out)
	return out, nil
}

// pay moves chips from the seat's stack toward the pot for this street.
func (t *Table) pay(seat *Seat, amount int64) {
	seat.Stack -= amount
	seat.CurrentBet += amount
	seat.TotalBetThisHand += amount
	t.Pot += amount
	if seat.Stack == 0 {
		seat.Status = SeatAllIn
	}
}

// ForceFold folds a seat regardless of turn order. Used for timeouts,
// disconnect-grace expiry and players leaving mid-hand.
func (t *Table) ForceFold(seatIndex int) *ActionOutcome {
	seat := t.Seats[seatIndex]
	if !seat.LiveInHand() || seat.Status == SeatAllIn {
		return nil
	}
	seat.Status = SeatFolded
	if t.LastRaiserSeat == seatIndex {
		t.LastRaiserSeat = -1
	}

	out := &ActionOutcome{
		SeatIndex: seatIndex,
		PlayerID:  seat.PlayerID,
		Action:    protocol.ActionFold,
		NewStack:  seat.Stack,
		PotTotal:  t.Pot,
	}

	if seatIndex == t.ActiveSeat {
		t.ActionsThisRound++
		t.ActiveSeat = t.nextActingSeat(seatIndex)
		t.afterAction(out)
	} else if t.roundClosed() {
		t.advanceStreets(out)
	} else if t.liveSeats() <= 1 {
		t.endByFolds(out)
	}
	return out
}

// afterAction checks hand termination and round closure after a committed
// action.
func (t *Table) afterAction(out *ActionOutcome) {
	if t.liveSeats() <= 1 {
		t.endByFolds(out)
		return
	}
	if t.roundClosed() {
		t.advanceStreets(out)
	}
}

// roundClosed reports whether the betting round is over: every acting seat
// has matched the current bet and at least one full orbit of actions has
// happened.
func (t *Table) roundClosed() bool {
	acting := 0
	for _, s := range t.Seats {
		if !s.CanAct() {
			continue
		}
		acting++
		if s.CurrentBet != t.CurrentBet {
			return false
		}
	}
	if acting == 0 {
		return true
	}
	return t.ActionsThisRound >= acting
}

// endByFolds ends the hand immediately with one live seat remaining.
func (t *Table) endByFolds(out *ActionOutcome) {
	t.Street = StreetShowdown
	t.ActiveSeat = -1
	out.HandOver = true
	out.EndReason = protocol.EndAllFolded
}

// advanceStreets moves to the next street, auto-running to showdown when at
// most one seat can still act.
func (t *Table) advanceStreets(out *ActionOutcome) {
	ranOut := false
	for {
		for _, s := range t.Seats {
			s.CurrentBet = 0
		}
		t.CurrentBet = 0
		t.MinRaise = t.BigBlind
		t.LastRaiserSeat = -1
		t.ActionsThisRound = 0

		switch t.Street {
		case StreetPreflop:
			t.Street = StreetFlop
			t.Community = append(t.Community, t.deal(3)...)
		case StreetFlop:
			t.Street = StreetTurn
			t.Community = append(t.Community, t.deal(1)...)
		case StreetTurn:
			t.Street = StreetRiver
			t.Community = append(t.Community, t.deal(1)...)
		case StreetRiver:
			t.Street = StreetShowdown
			t.ActiveSeat = -1
			out.HandOver = true
			if ranOut {
				out.EndReason = protocol.EndAllInRunout
			} else {
				out.EndReason = protocol.EndShowdown
			}
			return
		default:
			return
		}

		community := make([]Card, len(t.Community))
		copy(community, t.Community)
		out.StreetChanges = append(out.StreetChanges, StreetChange{Street: t.Street, Community: community})

		t.ActiveSeat = t.nextActingSeat(t.DealerSeat)
		if t.actingSeats() > 1 {
			return
		}
		// Everyone is all-in (or a lone seat has nobody to bet against):
		// run the remaining streets out.
		ranOut = true
	}
}

// FinishHand transitions showdown to complete and returns seats to waiting
// state once the room has settled the pot.
func (t *Table) FinishHand() {
	t.Street = StreetComplete
	t.ActiveSeat = -1
	for _, s := range t.Seats {
		if s.InHand {
			s.InHand = false
		}
		if !s.DisconnectedAt.IsZero() && s.Occupied() {
			s.Status = SeatSittingOut
		}
	}
}

// ResetToWaiting clears the completed hand ahead of the next deal.
func (t *Table) ResetToWaiting() {
	t.Street = StreetWaiting
	t.HandID = ""
	t.Community = nil
	t.Pot = 0
	t.CurrentBet = 0
	t.MinRaise = 0
	t.ActiveSeat = -1
	t.LastRaiserSeat = -1
	t.ActionsThisRound = 0
	for _, s := range t.Seats {
		if s.Occupied() {
			s.resetForHand()
		}
	}
}

// Contributions exports per-player totals for side-pot computation.
func (t *Table) Contributions() []SeatContribution {
	var out []SeatContribution
	for _, s := range t.Seats {
		if !s.Occupied() || s.TotalBetThisHand == 0 {
			continue
		}
		out = append(out, SeatContribution{
			PlayerID: s.PlayerID,
			Total:    s.TotalBetThisHand,
			AllIn:    s.Status == SeatAllIn,
			Folded:   s.Status == SeatFolded,
		})
	}
	return out
}

// BestSeats ranks the eligible, live seats with the injected evaluator and
// returns the winners (several on a tie).
func (t *Table) BestSeats(eval HandEvaluator, eligible []string) []string {
	var best Rank
	var winners []string
	first := true
	for _, s := range t.Seats {
		if !s.LiveInHand() || len(s.HoleCards) == 0 {
			continue
		}
		found := false
		for _, id := range eligible {
			if id == s.PlayerID {
				found = true
				break
			}
		}
		if !found {
			continue
		}
		rank := eval.Evaluate(s.HoleCards, t.Community)
		if first {
			best = rank
			winners = []string{s.PlayerID}
			first = false
			continue
		}
		cmp := eval.Compare(rank, best)
		if cmp > 0 {
			best = rank
			winners = []string{s.PlayerID}
		} else if cmp == 0 {
			winners = append(winners, s.PlayerID)
		}
	}
	return winners
}

// LiveSeatCount exposes the number of seats still contesting the pot.
func (t *Table) LiveSeatCount() int { return t.liveSeats() }

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
