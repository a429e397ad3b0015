package syncer

import (
	"encoding/json"
	"fmt"

	"github.com/tablestakes/cardroom/internal/protocol"
)

// diffBuilder accumulates ordered operations against a base projection.
// Field walk order is fixed so the same (base, current) pair always yields
// the same operation list.
type diffBuilder struct {
	ops []protocol.DiffOp
}

func (b *diffBuilder) replace(path string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	b.ops = append(b.ops, protocol.DiffOp{Op: "replace", Path: path, Value: raw})
}

func (b *diffBuilder) add(path string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	b.ops = append(b.ops, protocol.DiffOp{Op: "add", Path: path, Value: raw})
}

func (b *diffBuilder) remove(path string) {
	b.ops = append(b.ops, protocol.DiffOp{Op: "remove", Path: path})
}

func (b *diffBuilder) cards(path string, base, cur []string) {
	switch {
	case len(base) == 0 && len(cur) > 0:
		b.add(path, cur)
	case len(base) > 0 && len(cur) == 0:
		b.remove(path)
	case !equalStrings(base, cur):
		b.replace(path, cur)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// DiffViews computes the ordered operations that transform base into cur.
// Both views must belong to the same viewer; diffing across viewers would
// leak hole cards.
func DiffViews(base, cur TableView) []protocol.DiffOp {
	b := &diffBuilder{}

	if base.HandID != cur.HandID {
		b.replace("/handId", cur.HandID)
	}
	if base.HandNumber != cur.HandNumber {
		b.replace("/handNumber", cur.HandNumber)
	}
	if base.Street != cur.Street {
		b.replace("/street", cur.Street)
	}
	if base.Pot != cur.Pot {
		b.replace("/pot", cur.Pot)
	}
	if base.CurrentBet != cur.CurrentBet {
		b.replace("/currentBet", cur.CurrentBet)
	}
	if base.MinRaise != cur.MinRaise {
		b.replace("/minRaise", cur.MinRaise)
	}
	if base.DealerSeat != cur.DealerSeat {
		b.replace("/dealerSeat", cur.DealerSeat)
	}
	if base.ActiveSeat != cur.ActiveSeat {
		b.replace("/activeSeat", cur.ActiveSeat)
	}
	b.cards("/community", base.Community, cur.Community)

	for i := range cur.Seats {
		path := fmt.Sprintf("/seats/%d", i)
		if i >= len(base.Seats) {
			b.add(path, cur.Seats[i])
			continue
		}
		diffSeat(b, path, base.Seats[i], cur.Seats[i])
	}
	for i := len(cur.Seats); i < len(base.Seats); i++ {
		b.remove(fmt.Sprintf("/seats/%d", i))
	}

	if base.Sequence != cur.Sequence {
		b.replace("/sequence", cur.Sequence)
	}
	return b.ops
}

func diffSeat(b *diffBuilder, path string, base, cur SeatView) {
	if base.PlayerID != cur.PlayerID {
		b.replace(path+"/playerId", cur.PlayerID)
	}
	if base.DisplayName != cur.DisplayName {
		b.replace(path+"/displayName", cur.DisplayName)
	}
	if base.Stack != cur.Stack {
		b.replace(path+"/stack", cur.Stack)
	}
	if base.CurrentBet != cur.CurrentBet {
		b.replace(path+"/currentBet", cur.CurrentBet)
	}
	if base.TotalBetThisHand != cur.TotalBetThisHand {
		b.replace(path+"/totalBetThisHand", cur.TotalBetThisHand)
	}
	if base.Status != cur.Status {
		b.replace(path+"/status", cur.Status)
	}
	if base.Dealer != cur.Dealer {
		b.replace(path+"/dealer", cur.Dealer)
	}
	if base.InHand != cur.InHand {
		b.replace(path+"/inHand", cur.InHand)
	}
	b.cards(path+"/holeCards", base.HoleCards, cur.HoleCards)
}
