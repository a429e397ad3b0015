package integrity

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var streamBase = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// handEvents builds one hand's event sequence with timestamps one second
// apart.
func handEvents(handID string, at time.Time, players []HandPlayer, actions []PlayerActionPayload, ended *HandEndedPayload) []Event {
	var out []Event
	add := func(p Payload) {
		out = append(out, Event{
			ID:        fmt.Sprintf("evt_%s_%d", handID, len(out)),
			Type:      p.payloadType(),
			Timestamp: at.Add(time.Duration(len(out)) * time.Second),
			TableID:   "tbl-1",
			HandID:    handID,
			Payload:   p,
		})
	}
	add(HandStartedPayload{BigBlind: 10, SmallBlind: 5, Players: players})
	for _, a := range actions {
		add(a)
	}
	if ended != nil {
		add(*ended)
	}
	return out
}

func sampleStream() []Event {
	var events []Event
	events = append(events, handEvents("h1", streamBase,
		[]HandPlayer{
			{PlayerID: "alice", SeatIndex: 0, Position: "early"},
			{PlayerID: "bob", SeatIndex: 1, Position: "late"},
			{PlayerID: "cara", SeatIndex: 2, Position: "blinds"},
		},
		[]PlayerActionPayload{
			{PlayerID: "alice", Action: "raise", Amount: 30, Street: "preflop", TimeTakenMs: 2000},
			{PlayerID: "bob", Action: "call", Amount: 30, Street: "preflop", FacingBet: 30, TimeTakenMs: 3000},
			{PlayerID: "cara", Action: "fold", Street: "preflop", FacingBet: 30, TimeTakenMs: 500},
			{PlayerID: "alice", Action: "bet", Amount: 40, Street: "flop", TimeTakenMs: 2500},
			{PlayerID: "bob", Action: "call", Amount: 40, Street: "flop", FacingBet: 40, TimeTakenMs: 4000},
		},
		&HandEndedPayload{
			Winners:         []string{"alice"},
			EndReason:       "showdown",
			FinalStreet:     "river",
			ShowdownPlayers: []string{"alice", "bob"},
			NetChips:        map[string]int64{"alice": 30, "bob": -20, "cara": -10},
		})...)
	events = append(events, handEvents("h2", streamBase.Add(time.Minute),
		[]HandPlayer{
			{PlayerID: "alice", SeatIndex: 0, Position: "blinds"},
			{PlayerID: "bob", SeatIndex: 1, Position: "blinds"},
		},
		[]PlayerActionPayload{
			{PlayerID: "alice", Action: "call", Amount: 5, Street: "preflop", HeadsUp: true, TimeTakenMs: 1000},
			{PlayerID: "bob", Action: "check", Street: "preflop", HeadsUp: true, TimeTakenMs: 1500},
		},
		&HandEndedPayload{
			Winners:     []string{"bob"},
			EndReason:   "all_folded",
			FinalStreet: "flop",
			NetChips:    map[string]int64{"alice": -10, "bob": 10},
		})...)
	return events
}

func TestComputeMetrics(t *testing.T) {
	metrics := ComputeMetrics(sampleStream(), DefaultTimingConfig())
	require.Len(t, metrics, 3)

	alice := metrics["alice"]
	require.NotNil(t, alice)
	assert.Equal(t, 2, alice.HandsPlayed)
	assert.Equal(t, 1, alice.HandsWon)
	assert.InDelta(t, 1.0, alice.VPIP, 0.001)
	assert.InDelta(t, 0.5, alice.PFR, 0.001)
	assert.InDelta(t, 1.0, alice.CBetRate, 0.001, "the preflop raiser bet the flop")
	assert.InDelta(t, 0.5, alice.WTSD, 0.001)
	assert.InDelta(t, 1.0, alice.WSD, 0.001)
	assert.InDelta(t, 2.0, alice.AggressionFactor, 0.001)
	assert.InDelta(t, 1.0, alice.EarlyVPIP, 0.001)
	assert.Equal(t, int64(20), alice.NetChips)
	assert.Equal(t, int64(30), alice.BiggestWin)
	assert.Equal(t, int64(-10), alice.BiggestLoss)

	cara := metrics["cara"]
	require.NotNil(t, cara)
	assert.InDelta(t, 1.0, cara.QuickFoldRate, 0.001)
	assert.InDelta(t, 1.0, cara.FoldToRaise, 0.001)
	assert.Equal(t, int64(-10), cara.NetChips)
}

func TestComputeMetricsIsDeterministic(t *testing.T) {
	a := ComputeMetrics(sampleStream(), DefaultTimingConfig())
	b := ComputeMetrics(sampleStream(), DefaultTimingConfig())
	require.Equal(t, SortedPlayerIDs(a), SortedPlayerIDs(b))
	for _, id := range SortedPlayerIDs(a) {
		assert.Equal(t, a[id], b[id])
	}
}

func TestComputePairMetrics(t *testing.T) {
	pairs := ComputePairMetrics(sampleStream())

	pm := pairs["alice|bob"]
	require.NotNil(t, pm)
	assert.Equal(t, "alice", pm.PlayerA)
	assert.Equal(t, 2, pm.HandsTogether)
	assert.Equal(t, 1, pm.HeadsUpConfrontations)
	assert.Equal(t, 1, pm.ShowdownsTogether)
	assert.InDelta(t, 0.5, pm.ShowdownRate, 0.001)
	assert.Equal(t, 2, pm.RaisesAOnB, "raise and bet both count as pressure")
}

func TestChipFlowMatrix(t *testing.T) {
	events := []Event{{
		Type: EventPotAwarded,
		Payload: PotAwardedPayload{
			PotID:        "pot-0",
			WinnerID:     "alice",
			Amount:       100,
			Contributors: []string{"alice", "bob", "cara"},
		},
	}}

	flow := ChipFlowMatrix(events)
	assert.Equal(t, int64(50), flow["bob"]["alice"])
	assert.Equal(t, int64(50), flow["cara"]["alice"])
	assert.Empty(t, flow["alice"])
}

func TestChipFlowMatrixSkipsUncontested(t *testing.T) {
	events := []Event{{
		Type: EventPotAwarded,
		Payload: PotAwardedPayload{
			PotID:        "pot-0",
			WinnerID:     "alice",
			Amount:       15,
			Contributors: []string{"alice"},
		},
	}}
	assert.Empty(t, ChipFlowMatrix(events))
}
