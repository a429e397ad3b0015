package game

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablestakes/cardroom/internal/protocol"
)

func headsUp(t *testing.T) *Table {
	t.Helper()
	tbl := NewTable("tbl-1", 2, 5, 10)
	require.Nil(t, tbl.TakeSeat("alice", "Alice", 0, 500))
	require.Nil(t, tbl.TakeSeat("bob", "Bob", 1, 500))
	return tbl
}

func mustAct(t *testing.T, tbl *Table, action protocol.ActionType, amount int64) *ActionOutcome {
	t.Helper()
	out, rej := tbl.ApplyAction(tbl.ActiveSeat, action, amount)
	require.Nil(t, rej, "action %s rejected: %+v", action, rej)
	return out
}

func TestStartHandHeadsUpDealerPostsSmallBlind(t *testing.T) {
	tbl := headsUp(t)
	start, rej := tbl.StartHand("h1", rand.New(rand.NewSource(1)))
	require.Nil(t, rej)

	assert.Equal(t, start.DealerSeat, start.SBSeat)
	assert.Equal(t, int64(5), start.SBAmount)
	assert.Equal(t, int64(10), start.BBAmount)
	assert.Equal(t, int64(15), tbl.Pot)
	assert.Len(t, start.Players, 2)
	for _, s := range start.Players {
		assert.Len(t, s.HoleCards, 2)
	}

	// The small blind acts first preflop when heads-up.
	assert.Equal(t, start.SBSeat, tbl.ActiveSeat)
}

func TestStartHandRotatesDealer(t *testing.T) {
	tbl := threeHanded(t)
	start, rej := tbl.StartHand("h1", rand.New(rand.NewSource(1)))
	require.Nil(t, rej)
	first := start.DealerSeat

	mustAct(t, tbl, protocol.ActionFold, 0)
	mustAct(t, tbl, protocol.ActionFold, 0)
	tbl.FinishHand()
	tbl.ResetToWaiting()

	start, rej = tbl.StartHand("h2", rand.New(rand.NewSource(2)))
	require.Nil(t, rej)
	assert.Equal(t, (first+1)%3, start.DealerSeat)
	assert.Equal(t, uint64(2), start.HandNumber)
}

func TestStartHandRequiresTwoFundedSeats(t *testing.T) {
	tbl := NewTable("tbl-1", 3, 5, 10)
	require.Nil(t, tbl.TakeSeat("alice", "Alice", 0, 500))
	assert.False(t, tbl.CanStartHand())

	_, rej := tbl.StartHand("h1", rand.New(rand.NewSource(1)))
	require.NotNil(t, rej)
	assert.Equal(t, protocol.CodeHandNotActive, rej.Code)
}

func TestApplyActionLegality(t *testing.T) {
	tests := []struct {
		name   string
		action protocol.ActionType
		amount int64
		code   protocol.Code
	}{
		{"check facing a bet", protocol.ActionCheck, 0, protocol.CodeIllegalAction},
		{"bet facing a bet", protocol.ActionBet, 50, protocol.CodeIllegalAction},
		{"raise below minimum", protocol.ActionRaise, 15, protocol.CodeBetTooSmall},
		{"raise beyond stack", protocol.ActionRaise, 600, protocol.CodeInsufficientChips},
		{"unknown action", protocol.ActionType("splash"), 0, protocol.CodeIllegalAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := threeHanded(t)
			_, rej := tbl.StartHand("h1", rand.New(rand.NewSource(1)))
			require.Nil(t, rej)

			_, rej = tbl.ApplyAction(tbl.ActiveSeat, tt.action, tt.amount)
			require.NotNil(t, rej)
			assert.Equal(t, tt.code, rej.Code)
		})
	}
}

func TestApplyActionOutOfTurn(t *testing.T) {
	tbl := threeHanded(t)
	_, rej := tbl.StartHand("h1", rand.New(rand.NewSource(1)))
	require.Nil(t, rej)

	offTurn := (tbl.ActiveSeat + 1) % 3
	_, rej = tbl.ApplyAction(offTurn, protocol.ActionFold, 0)
	require.NotNil(t, rej)
	assert.Equal(t, protocol.CodeNotYourTurn, rej.Code)
}

func TestApplyActionRejectionLeavesStateUntouched(t *testing.T) {
	tbl := threeHanded(t)
	_, rej := tbl.StartHand("h1", rand.New(rand.NewSource(1)))
	require.Nil(t, rej)

	pot, active, stack := tbl.Pot, tbl.ActiveSeat, tbl.Seats[tbl.ActiveSeat].Stack
	_, rej = tbl.ApplyAction(tbl.ActiveSeat, protocol.ActionRaise, 11)
	require.NotNil(t, rej)

	assert.Equal(t, pot, tbl.Pot)
	assert.Equal(t, active, tbl.ActiveSeat)
	assert.Equal(t, stack, tbl.Seats[active].Stack)
}

func TestFoldToSingleWinnerEndsHand(t *testing.T) {
	tbl := threeHanded(t)
	_, rej := tbl.StartHand("h1", rand.New(rand.NewSource(1)))
	require.Nil(t, rej)

	mustAct(t, tbl, protocol.ActionFold, 0)
	out := mustAct(t, tbl, protocol.ActionFold, 0)

	assert.True(t, out.HandOver)
	assert.Equal(t, protocol.EndAllFolded, out.EndReason)
	assert.Equal(t, StreetShowdown, tbl.Street)
	assert.Equal(t, 1, tbl.LiveSeatCount())
}

func TestBettingRoundsRunToShowdown(t *testing.T) {
	tbl := headsUp(t)
	_, rej := tbl.StartHand("h1", rand.New(rand.NewSource(1)))
	require.Nil(t, rej)

	// Preflop: SB completes, BB checks.
	out := mustAct(t, tbl, protocol.ActionCall, 0)
	require.Empty(t, out.StreetChanges)
	out = mustAct(t, tbl, protocol.ActionCheck, 0)
	require.Len(t, out.StreetChanges, 1)
	assert.Equal(t, StreetFlop, out.StreetChanges[0].Street)
	assert.Len(t, tbl.Community, 3)

	// Flop: bet and call.
	mustAct(t, tbl, protocol.ActionCheck, 0)
	mustAct(t, tbl, protocol.ActionBet, 20)
	out = mustAct(t, tbl, protocol.ActionCall, 0)
	require.Len(t, out.StreetChanges, 1)
	assert.Equal(t, StreetTurn, out.StreetChanges[0].Street)
	assert.Len(t, tbl.Community, 4)

	// Turn and river check through.
	mustAct(t, tbl, protocol.ActionCheck, 0)
	out = mustAct(t, tbl, protocol.ActionCheck, 0)
	assert.Len(t, tbl.Community, 5)

	mustAct(t, tbl, protocol.ActionCheck, 0)
	out = mustAct(t, tbl, protocol.ActionCheck, 0)
	assert.True(t, out.HandOver)
	assert.Equal(t, protocol.EndShowdown, out.EndReason)
	assert.Equal(t, StreetShowdown, tbl.Street)
}

func TestAllInPreflopRunsBoardOut(t *testing.T) {
	tbl := headsUp(t)
	_, rej := tbl.StartHand("h1", rand.New(rand.NewSource(1)))
	require.Nil(t, rej)

	mustAct(t, tbl, protocol.ActionAllIn, 0)
	out := mustAct(t, tbl, protocol.ActionAllIn, 0)

	assert.True(t, out.HandOver)
	assert.Equal(t, protocol.EndAllInRunout, out.EndReason)
	assert.Len(t, out.StreetChanges, 3)
	assert.Len(t, tbl.Community, 5)
	assert.Equal(t, int64(1000), tbl.Pot)
}

func TestShortAllInDoesNotReopenAction(t *testing.T) {
	tbl := NewTable("tbl-1", 3, 5, 10)
	require.Nil(t, tbl.TakeSeat("alice", "Alice", 0, 500))
	require.Nil(t, tbl.TakeSeat("bob", "Bob", 1, 500))
	require.Nil(t, tbl.TakeSeat("shorty", "Shorty", 2, 14))
	_, rej := tbl.StartHand("h1", rand.New(rand.NewSource(1)))
	require.Nil(t, rej)

	// Seat 2 posted the 10 blind with 4 behind; its shove to 14 is below a
	// full raise and must not move the minimum raise.
	mustAct(t, tbl, protocol.ActionCall, 0)
	mustAct(t, tbl, protocol.ActionCall, 0)
	out := mustAct(t, tbl, protocol.ActionAllIn, 0)

	require.True(t, out.IsAllIn)
	assert.Equal(t, int64(14), tbl.CurrentBet)
	assert.Equal(t, int64(10), tbl.MinRaise)
}

func TestForceFoldOnActiveSeatAdvancesAction(t *testing.T) {
	tbl := threeHanded(t)
	_, rej := tbl.StartHand("h1", rand.New(rand.NewSource(1)))
	require.Nil(t, rej)

	active := tbl.ActiveSeat
	out := tbl.ForceFold(active)
	require.NotNil(t, out)
	assert.Equal(t, protocol.ActionFold, out.Action)
	assert.NotEqual(t, active, tbl.ActiveSeat)

	// Folding an already folded seat is a no-op.
	assert.Nil(t, tbl.ForceFold(active))
}

func TestContributionsTrackTotals(t *testing.T) {
	tbl := threeHanded(t)
	_, rej := tbl.StartHand("h1", rand.New(rand.NewSource(1)))
	require.Nil(t, rej)

	mustAct(t, tbl, protocol.ActionRaise, 30)
	mustAct(t, tbl, protocol.ActionFold, 0)
	mustAct(t, tbl, protocol.ActionCall, 0)

	byPlayer := make(map[string]SeatContribution)
	for _, c := range tbl.Contributions() {
		byPlayer[c.PlayerID] = c
	}
	require.Len(t, byPlayer, 3)

	var total int64
	for _, c := range byPlayer {
		total += c.Total
	}
	assert.Equal(t, tbl.Pot, total)

	folded := 0
	for _, c := range byPlayer {
		if c.Folded {
			folded++
		}
	}
	assert.Equal(t, 1, folded)
}

// rankByFirstCard orders hands by the raw byte value of the first hole card.
// Good enough to drive BestSeats deterministically.
type rankByFirstCard struct{}

func (rankByFirstCard) Evaluate(hole, _ []Card) Rank { return Rank(hole[0][0]) }
func (rankByFirstCard) Compare(a, b Rank) int        { return int(a - b) }
func (rankByFirstCard) Describe(Rank) string         { return "test rank" }

func TestBestSeatsRespectsEligibility(t *testing.T) {
	tbl := threeHanded(t)
	_, rej := tbl.StartHand("h1", rand.New(rand.NewSource(1)))
	require.Nil(t, rej)

	tbl.SeatOf("alice").HoleCards = []Card{"Ts", "2d"}
	tbl.SeatOf("bob").HoleCards = []Card{"Qs", "2h"}
	tbl.SeatOf("cara").HoleCards = []Card{"5s", "2c"}

	winners := tbl.BestSeats(rankByFirstCard{}, []string{"alice", "bob", "cara"})
	assert.Equal(t, []string{"alice"}, winners)

	// Excluding the winner hands the pot layer to the runner-up.
	winners = tbl.BestSeats(rankByFirstCard{}, []string{"bob", "cara"})
	assert.Equal(t, []string{"bob"}, winners)

	// A shared rank chops.
	tbl.SeatOf("cara").HoleCards = []Card{"Td", "3c"}
	winners = tbl.BestSeats(rankByFirstCard{}, []string{"alice", "bob", "cara"})
	assert.ElementsMatch(t, []string{"alice", "cara"}, winners)
}
