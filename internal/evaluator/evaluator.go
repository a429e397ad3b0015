// Package evaluator scores hold'em hands with the chehsunliu/poker
// lookup-table evaluator.
package evaluator

import (
	"github.com/chehsunliu/poker"

	"github.com/tablestakes/cardroom/internal/game"
)

// Evaluator adapts the lookup evaluator to the table's ranking interface.
// The underlying scores are inverted: lower is stronger. Compare hides that.
type Evaluator struct{}

// New returns a ready evaluator; the lookup tables are package state.
func New() *Evaluator { return &Evaluator{} }

// Evaluate scores the best five-card hand from hole cards plus board.
func (*Evaluator) Evaluate(hole, board []game.Card) game.Rank {
	cards := make([]poker.Card, 0, len(hole)+len(board))
	for _, c := range hole {
		cards = append(cards, poker.NewCard(string(c)))
	}
	for _, c := range board {
		cards = append(cards, poker.NewCard(string(c)))
	}
	return game.Rank(poker.Evaluate(cards))
}

// Compare returns >0 when a beats b, <0 when b beats a, 0 on a chop.
func (*Evaluator) Compare(a, b game.Rank) int {
	switch {
	case a < b:
		return 1
	case a > b:
		return -1
	default:
		return 0
	}
}

// Describe names the hand class, e.g. "Straight Flush".
func (*Evaluator) Describe(r game.Rank) string {
	return poker.RankString(int32(r))
}
