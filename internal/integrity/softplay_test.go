package integrity

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftPlayPassiveInBigPots(t *testing.T) {
	var actions []PlayerActionPayload
	// Aggressive in small pots, purely passive once the pot is big.
	for i := 0; i < 20; i++ {
		actions = append(actions, PlayerActionPayload{PlayerID: "dom", Action: "bet", Amount: 20, Street: "flop", PotBefore: 50})
	}
	for i := 0; i < 16; i++ {
		actions = append(actions, PlayerActionPayload{PlayerID: "dom", Action: "call", Amount: 50, Street: "turn", PotBefore: 300, FacingBet: 50})
	}
	events := handEvents("h1", streamBase,
		[]HandPlayer{{PlayerID: "dom", SeatIndex: 0, Position: "late"}},
		actions, nil)

	d := NewSoftPlayDetector(DefaultSoftPlayConfig())
	indicators := d.Detect(events)
	require.Contains(t, patternsOf(indicators), "passive_in_high_ev")

	for _, ind := range indicators {
		if ind.Pattern != "passive_in_high_ev" {
			continue
		}
		assert.Equal(t, []string{"dom"}, ind.Players)
		assert.InDelta(t, 1.0, ind.Strength, 0.001, "no aggression at all past the big-pot line")
	}
}

func TestSoftPlayLowPressureHeadsUp(t *testing.T) {
	var events []Event
	for i := 0; i < 30; i++ {
		events = append(events, handEvents(fmt.Sprintf("h%d", i), streamBase.Add(time.Duration(i)*time.Minute),
			[]HandPlayer{
				{PlayerID: "softy", SeatIndex: 0, Position: "late"},
				{PlayerID: "mark", SeatIndex: 1, Position: "early"},
			},
			[]PlayerActionPayload{
				{PlayerID: "softy", Action: "bet", Amount: 20, Street: "flop"},
				{PlayerID: "softy", Action: "call", Amount: 20, Street: "turn", FacingBet: 20, HeadsUp: true},
			}, nil)...)
	}

	d := NewSoftPlayDetector(DefaultSoftPlayConfig())
	indicators := d.Detect(events)
	require.Contains(t, patternsOf(indicators), "low_pressure_heads_up")
}

func TestSoftPlayAbnormalCheckVsOpponent(t *testing.T) {
	var events []Event
	hand := func(i int, opponent string, action string) []Event {
		return handEvents(fmt.Sprintf("h%d", i), streamBase.Add(time.Duration(i)*time.Minute),
			[]HandPlayer{
				{PlayerID: "softy", SeatIndex: 0, Position: "late"},
				{PlayerID: opponent, SeatIndex: 1, Position: "early"},
			},
			[]PlayerActionPayload{
				{PlayerID: "softy", Action: action, Street: "flop"},
			}, nil)
	}
	// Softy bets into strangers but only ever checks against buddy.
	for i := 0; i < 20; i++ {
		events = append(events, hand(i, "stranger", "bet")...)
	}
	for i := 20; i < 36; i++ {
		events = append(events, hand(i, "buddy", "check")...)
	}

	d := NewSoftPlayDetector(DefaultSoftPlayConfig())
	indicators := d.Detect(events)
	require.Contains(t, patternsOf(indicators), "abnormal_check_frequency")

	for _, ind := range indicators {
		if ind.Pattern != "abnormal_check_frequency" {
			continue
		}
		assert.Equal(t, []string{"softy", "buddy"}, ind.Players)
		assert.NotZero(t, ind.ZScore)
	}
}

func TestSoftPlayBalancedStreamIsSilent(t *testing.T) {
	d := NewSoftPlayDetector(DefaultSoftPlayConfig())
	assert.Empty(t, d.Detect(sampleStream()))
}
