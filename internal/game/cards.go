package game

import (
	"fmt"
	"math/rand"
)

// Card is a two-character rank+suit string, e.g. "As", "Td", "9c".
type Card string

var (
	ranks = []byte{'2', '3', '4', '5', '6', '7', '8', '9', 'T', 'J', 'Q', 'K', 'A'}
	suits = []byte{'s', 'h', 'd', 'c'}
)

// NewDeck builds a 52-card deck shuffled with the provided RNG. The RNG is
// injected so a seeded deal is replay-equivalent.
func NewDeck(rng *rand.Rand) []Card {
	cards := make([]Card, 0, 52)
	for _, s := range suits {
		for _, r := range ranks {
			cards = append(cards, Card([]byte{r, s}))
		}
	}
	rng.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
	return cards
}

// ValidCard reports whether c is a well-formed card string.
func ValidCard(c Card) bool {
	if len(c) != 2 {
		return false
	}
	rankOK, suitOK := false, false
	for _, r := range ranks {
		if c[0] == r {
			rankOK = true
			break
		}
	}
	for _, s := range suits {
		if c[1] == s {
			suitOK = true
			break
		}
	}
	return rankOK && suitOK
}

// CardStrings converts a card slice for wire payloads.
func CardStrings(cards []Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = string(c)
	}
	return out
}

func (c Card) String() string { return string(c) }

// ParseCard validates and converts a wire string.
func ParseCard(s string) (Card, error) {
	c := Card(s)
	if !ValidCard(c) {
		return "", fmt.Errorf("invalid card %q", s)
	}
	return c, nil
}
