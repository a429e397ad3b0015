package economy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateRakeStandard(t *testing.T) {
	cfg := RakeConfig{Policy: RakeStandard, Percentage: 5, Cap: 3}

	t.Run("percentage below cap", func(t *testing.T) {
		res := CalculateRake(cfg, HandFacts{Pot: 40, SawFlop: true, PlayersAtShowdown: 2})
		assert.Equal(t, int64(2), res.RakeAmount)
		assert.Equal(t, int64(38), res.PotAfterRake)
		assert.False(t, res.CapApplied)
	})

	t.Run("cap limits large pots", func(t *testing.T) {
		res := CalculateRake(cfg, HandFacts{Pot: 60, SawFlop: true, PlayersAtShowdown: 2})
		assert.Equal(t, int64(3), res.RakeAmount)
		assert.Equal(t, int64(57), res.PotAfterRake)
		assert.True(t, res.CapApplied)
	})

	t.Run("integer division floors", func(t *testing.T) {
		res := CalculateRake(RakeConfig{Policy: RakeStandard, Percentage: 5, Cap: 100},
			HandFacts{Pot: 59, SawFlop: true})
		// 59 * 5 / 100 = 2
		assert.Equal(t, int64(2), res.RakeAmount)
	})
}

func TestCalculateRakeWaivers(t *testing.T) {
	t.Run("no flop no rake", func(t *testing.T) {
		cfg := RakeConfig{Policy: RakeStandard, Percentage: 5, Cap: 3, NoFlopNoRake: true}
		res := CalculateRake(cfg, HandFacts{Pot: 15, FinalStreet: "preflop", SawFlop: false})
		require.True(t, res.Waived)
		assert.Equal(t, "no-flop-no-rake", res.WaivedReason)
		assert.Equal(t, int64(0), res.RakeAmount)
		assert.Equal(t, int64(15), res.PotAfterRake)
	})

	t.Run("uncontested pots excluded", func(t *testing.T) {
		cfg := RakeConfig{Policy: RakeStandard, Percentage: 5, Cap: 3, ExcludeUncontested: true}
		res := CalculateRake(cfg, HandFacts{Pot: 100, SawFlop: true, PlayersAtShowdown: 1})
		require.True(t, res.Waived)
		assert.Equal(t, "uncontested", res.WaivedReason)
	})

	t.Run("promotional waiver until expiry", func(t *testing.T) {
		expiry := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		cfg := RakeConfig{
			Policy: RakeStandard, Percentage: 5, Cap: 3,
			WaiverEnabled: true, WaiverExpiry: expiry,
		}
		before := CalculateRake(cfg, HandFacts{Pot: 100, SawFlop: true, PlayersAtShowdown: 2,
			Now: expiry.Add(-time.Hour)})
		require.True(t, before.Waived)
		assert.Equal(t, "promotional-waiver", before.WaivedReason)

		after := CalculateRake(cfg, HandFacts{Pot: 100, SawFlop: true, PlayersAtShowdown: 2,
			Now: expiry.Add(time.Hour)})
		assert.False(t, after.Waived)
		assert.Equal(t, int64(3), after.RakeAmount)
	})

	t.Run("zero policy takes nothing", func(t *testing.T) {
		res := CalculateRake(RakeConfig{Policy: RakeZero}, HandFacts{Pot: 500, SawFlop: true})
		assert.Equal(t, int64(0), res.RakeAmount)
		assert.Equal(t, int64(500), res.PotAfterRake)
	})
}

func TestCalculateRakeTiered(t *testing.T) {
	cfg := RakeConfig{
		Policy: RakeTiered,
		Tiers: []RakeTier{
			{MinPot: 0, MaxPot: 100, Percentage: 3, Cap: 2},
			{MinPot: 100, MaxPot: 0, Percentage: 5, Cap: 10},
		},
	}

	small := CalculateRake(cfg, HandFacts{Pot: 50, SawFlop: true, PlayersAtShowdown: 2})
	assert.Equal(t, int64(1), small.RakeAmount)

	big := CalculateRake(cfg, HandFacts{Pot: 400, SawFlop: true, PlayersAtShowdown: 2})
	assert.Equal(t, int64(10), big.RakeAmount)
	assert.True(t, big.CapApplied)
}

func TestCalculateRakeStreetPolicy(t *testing.T) {
	cfg := RakeConfig{Policy: RakeStreet, Percentage: 5, Cap: 10, RequiredStreet: "turn"}

	early := CalculateRake(cfg, HandFacts{Pot: 100, FinalStreet: "flop", SawFlop: true})
	require.True(t, early.Waived)
	assert.Equal(t, "street-not-reached", early.WaivedReason)

	late := CalculateRake(cfg, HandFacts{Pot: 100, FinalStreet: "river", SawFlop: true})
	assert.False(t, late.Waived)
	assert.Equal(t, int64(5), late.RakeAmount)
}
