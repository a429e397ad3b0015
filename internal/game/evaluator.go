package game

// Rank is an opaque hand-strength value produced by a HandEvaluator.
type Rank int32

// HandEvaluator ranks seven-card holdem hands. The implementation is
// injected; the state machine only needs a total order and a description.
type HandEvaluator interface {
	// Evaluate ranks two hole cards against a board of up to five cards.
	Evaluate(hole []Card, board []Card) Rank
	// Compare returns >0 if a beats b, <0 if b beats a, 0 on a tie.
	Compare(a, b Rank) int
	// Describe renders a rank for hand-ended events ("Two Pair, Aces and Kings").
	Describe(r Rank) string
}
