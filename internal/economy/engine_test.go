package economy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablestakes/cardroom/internal/ledger"
)

func fixedNow() time.Time {
	return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
}

func newTestEngine(t *testing.T, rakeCfg RakeConfig) *Engine {
	t.Helper()
	led := ledger.NewManager(nil, fixedNow)
	return NewEngine(led, rakeCfg, fixedNow)
}

func TestEngineHandLifecycleWithRake(t *testing.T) {
	eng := newTestEngine(t, RakeConfig{Policy: RakeStandard, Percentage: 5, Cap: 3})

	require.NoError(t, eng.InitializePlayer("alice", 500))
	require.NoError(t, eng.InitializePlayer("bob", 500))
	require.NoError(t, eng.BuyIn("t1", "alice", 500))
	require.NoError(t, eng.BuyIn("t1", "bob", 500))

	require.NoError(t, eng.StartHand("h1", "t1"))
	require.NoError(t, eng.PostBlind("h1", "alice", 5, false))
	require.NoError(t, eng.PostBlind("h1", "bob", 10, false))
	require.NoError(t, eng.RecordAction("h1", "alice", "flop", 25, false))
	require.NoError(t, eng.RecordAction("h1", "bob", "flop", 20, false))
	require.Equal(t, int64(60), eng.PotTotal("h1"))

	res, err := eng.SettleHand("h1", HandClose{
		FinalStreet:       "river",
		SawFlop:           true,
		PlayersAtShowdown: 2,
		WinnersByPot:      map[string][]string{"pot-0": {"alice"}},
	})
	require.NoError(t, err)

	// 5% of 60 is 3, exactly at the cap.
	assert.Equal(t, int64(3), res.Rake.RakeAmount)
	require.Len(t, res.Payouts, 1)
	assert.Equal(t, int64(57), res.Payouts[0].Amount)

	assert.Equal(t, int64(527), eng.GetPlayerStack("t1", "alice"))
	assert.Equal(t, int64(470), eng.GetPlayerStack("t1", "bob"))

	house, ok := eng.Ledger().Balance(ledger.HouseAccount)
	require.True(t, ok)
	assert.Equal(t, int64(3), house)

	require.NoError(t, eng.Ledger().VerifyHandConservation("h1"))
	require.NoError(t, eng.VerifyIntegrity())
}

func TestEngineThreeWayAllInSidePots(t *testing.T) {
	eng := newTestEngine(t, RakeConfig{Policy: RakeStandard, Percentage: 5, Cap: 3})

	for player, stack := range map[string]int64{"short": 100, "mid": 200, "big": 300} {
		require.NoError(t, eng.InitializePlayer(player, stack))
		require.NoError(t, eng.BuyIn("t1", player, stack))
	}

	require.NoError(t, eng.StartHand("h1", "t1"))
	require.NoError(t, eng.RecordAction("h1", "short", "preflop", 100, true))
	require.NoError(t, eng.RecordAction("h1", "mid", "preflop", 200, true))
	require.NoError(t, eng.RecordAction("h1", "big", "preflop", 300, false))

	res, err := eng.SettleHand("h1", HandClose{
		FinalStreet:       "river",
		SawFlop:           true,
		PlayersAtShowdown: 3,
		WinnersByPot: map[string][]string{
			"pot-0": {"short"},
			"pot-1": {"mid"},
			"pot-2": {"big"},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.SidePots, 3)

	// Rake comes off the top layer only; lower pots pay in full.
	assert.Equal(t, int64(300), eng.GetPlayerStack("t1", "short"))
	assert.Equal(t, int64(200), eng.GetPlayerStack("t1", "mid"))
	assert.Equal(t, int64(97), eng.GetPlayerStack("t1", "big"))

	var paid int64
	for _, p := range res.Payouts {
		paid += p.Amount
	}
	assert.Equal(t, int64(597), paid)
	require.NoError(t, eng.VerifyIntegrity())
}

func TestEngineRakeCarriesAcrossThinTopLayer(t *testing.T) {
	eng := newTestEngine(t, RakeConfig{Policy: RakeStandard, Percentage: 5, Cap: 3})

	for player, stack := range map[string]int64{"shorty": 50, "mid": 51, "caller": 51} {
		require.NoError(t, eng.InitializePlayer(player, stack))
		require.NoError(t, eng.BuyIn("t1", player, stack))
	}

	require.NoError(t, eng.StartHand("h1", "t1"))
	require.NoError(t, eng.RecordAction("h1", "shorty", "preflop", 50, true))
	require.NoError(t, eng.RecordAction("h1", "mid", "preflop", 51, true))
	require.NoError(t, eng.RecordAction("h1", "caller", "preflop", 51, false))

	res, err := eng.SettleHand("h1", HandClose{
		FinalStreet:       "river",
		SawFlop:           true,
		PlayersAtShowdown: 3,
		WinnersByPot: map[string][]string{
			"pot-0": {"shorty"},
			"pot-1": {"mid"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Rake.RakeAmount)

	// The 2-chip top layer cannot cover the 3-chip rake; the remainder
	// comes out of the main pot and no layer pays out negative.
	var paid int64
	for _, p := range res.Payouts {
		paid += p.Amount
		assert.Positive(t, p.Amount)
	}
	assert.Equal(t, res.PotSize, paid+res.Rake.RakeAmount)
	assert.Equal(t, int64(149), eng.GetPlayerStack("t1", "shorty"))
	assert.Zero(t, eng.GetPlayerStack("t1", "mid"))

	require.NoError(t, eng.Ledger().VerifyHandConservation("h1"))
	require.NoError(t, eng.VerifyIntegrity())
}

func TestEngineSplitPotOddChip(t *testing.T) {
	eng := newTestEngine(t, RakeConfig{Policy: RakeStandard, Percentage: 5, Cap: 1})

	require.NoError(t, eng.InitializePlayer("alice", 100))
	require.NoError(t, eng.InitializePlayer("bob", 100))
	require.NoError(t, eng.BuyIn("t1", "alice", 100))
	require.NoError(t, eng.BuyIn("t1", "bob", 100))

	require.NoError(t, eng.StartHand("h1", "t1"))
	require.NoError(t, eng.RecordAction("h1", "alice", "preflop", 10, false))
	require.NoError(t, eng.RecordAction("h1", "bob", "preflop", 10, false))

	res, err := eng.SettleHand("h1", HandClose{
		FinalStreet:       "river",
		SawFlop:           true,
		PlayersAtShowdown: 2,
		WinnersByPot:      map[string][]string{"pot-0": {"alice", "bob"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Rake.RakeAmount)

	// 19 splits 10/9 with the odd chip to the first winner.
	assert.Equal(t, int64(100), eng.GetPlayerStack("t1", "alice"))
	assert.Equal(t, int64(99), eng.GetPlayerStack("t1", "bob"))
	require.NoError(t, eng.VerifyIntegrity())
}

func TestEngineNoFlopNoRakeWalk(t *testing.T) {
	eng := newTestEngine(t, RakeConfig{Policy: RakeStandard, Percentage: 5, Cap: 3, NoFlopNoRake: true})

	require.NoError(t, eng.InitializePlayer("sb", 200))
	require.NoError(t, eng.InitializePlayer("bb", 200))
	require.NoError(t, eng.BuyIn("t1", "sb", 200))
	require.NoError(t, eng.BuyIn("t1", "bb", 200))

	require.NoError(t, eng.StartHand("h1", "t1"))
	require.NoError(t, eng.PostBlind("h1", "sb", 5, false))
	require.NoError(t, eng.PostBlind("h1", "bb", 10, false))

	res, err := eng.SettleHand("h1", HandClose{
		FinalStreet:       "preflop",
		SawFlop:           false,
		PlayersAtShowdown: 1,
		WinnersByPot:      map[string][]string{"pot-0": {"bb"}},
	})
	require.NoError(t, err)
	require.True(t, res.Rake.Waived)

	assert.Equal(t, int64(205), eng.GetPlayerStack("t1", "bb"))
	assert.Equal(t, int64(195), eng.GetPlayerStack("t1", "sb"))

	house, ok := eng.Ledger().Balance(ledger.HouseAccount)
	require.True(t, ok)
	assert.Equal(t, int64(0), house)
}

func TestEngineDoubleSettlementRejected(t *testing.T) {
	eng := newTestEngine(t, RakeConfig{Policy: RakeZero})

	require.NoError(t, eng.InitializePlayer("alice", 100))
	require.NoError(t, eng.InitializePlayer("bob", 100))
	require.NoError(t, eng.BuyIn("t1", "alice", 100))
	require.NoError(t, eng.BuyIn("t1", "bob", 100))

	require.NoError(t, eng.StartHand("h1", "t1"))
	require.NoError(t, eng.RecordAction("h1", "alice", "preflop", 20, false))
	require.NoError(t, eng.RecordAction("h1", "bob", "preflop", 20, false))

	close1 := HandClose{
		FinalStreet:       "river",
		SawFlop:           true,
		PlayersAtShowdown: 2,
		WinnersByPot:      map[string][]string{"pot-0": {"alice"}},
	}
	_, err := eng.SettleHand("h1", close1)
	require.NoError(t, err)

	stackBefore := eng.GetPlayerStack("t1", "alice")
	ledgerLen := eng.Ledger().Len()

	_, err = eng.SettleHand("h1", close1)
	require.ErrorIs(t, err, ErrAlreadySettled)

	// Nothing moved on the rejected replay.
	assert.Equal(t, stackBefore, eng.GetPlayerStack("t1", "alice"))
	assert.Equal(t, ledgerLen, eng.Ledger().Len())
}

func TestEngineContributionNeedsOpenHand(t *testing.T) {
	eng := newTestEngine(t, RakeConfig{Policy: RakeZero})
	require.NoError(t, eng.InitializePlayer("alice", 100))
	require.NoError(t, eng.BuyIn("t1", "alice", 100))

	err := eng.RecordAction("missing", "alice", "preflop", 10, false)
	require.ErrorIs(t, err, ErrUnknownHand)
}

func TestEngineBuyInRequiresFunds(t *testing.T) {
	eng := newTestEngine(t, RakeConfig{Policy: RakeZero})
	require.NoError(t, eng.InitializePlayer("alice", 50))

	err := eng.BuyIn("t1", "alice", 100)
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestEngineReleaseTableReturnsEscrow(t *testing.T) {
	eng := newTestEngine(t, RakeConfig{Policy: RakeZero})
	require.NoError(t, eng.InitializePlayer("alice", 300))
	require.NoError(t, eng.BuyIn("t1", "alice", 200))

	require.NoError(t, eng.ReleaseTable("t1"))

	bal, err := eng.Balances().Get("alice")
	require.NoError(t, err)
	assert.Equal(t, int64(300), bal.Available)
	assert.Equal(t, int64(0), bal.Locked)
}
