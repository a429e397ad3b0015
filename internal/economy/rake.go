package economy

import "time"

// RakePolicy selects how rake is computed.
type RakePolicy string

const (
	RakeZero     RakePolicy = "zero"
	RakeStandard RakePolicy = "standard"
	RakeTiered   RakePolicy = "tiered"
	RakeStreet   RakePolicy = "street"
)

// RakeTier applies a percentage and cap to pots in [MinPot, MaxPot).
// MaxPot == 0 means unbounded.
type RakeTier struct {
	MinPot     int64
	MaxPot     int64
	Percentage int64
	Cap        int64
}

// RakeConfig holds the table's rake policy.
type RakeConfig struct {
	Policy             RakePolicy
	Percentage         int64 // percent, e.g. 5 for 5%
	Cap                int64
	NoFlopNoRake       bool
	ExcludeUncontested bool
	Tiers              []RakeTier
	RequiredStreet     string // street policy: rake only if the hand reached this street

	// Promotional waiver: no rake until the expiry passes.
	WaiverEnabled bool
	WaiverExpiry  time.Time
}

// RakeResult reports what was taken and why.
type RakeResult struct {
	RakeAmount   int64
	PotAfterRake int64
	CapApplied   bool
	Waived       bool
	WaivedReason string
	PolicyUsed   RakePolicy
}

// HandFacts is the slice of hand outcome the calculator needs.
type HandFacts struct {
	Pot               int64
	FinalStreet       string
	SawFlop           bool
	PlayersAtShowdown int
	Now               time.Time
}

var streetOrder = map[string]int{
	"preflop":  0,
	"flop":     1,
	"turn":     2,
	"river":    3,
	"showdown": 4,
	"complete": 5,
}

// CalculateRake applies the configured policy and waivers to a finished
// hand's pot.
func CalculateRake(cfg RakeConfig, facts HandFacts) RakeResult {
	result := RakeResult{PotAfterRake: facts.Pot, PolicyUsed: cfg.Policy}

	if cfg.Policy == RakeZero || cfg.Policy == "" {
		result.PolicyUsed = RakeZero
		return result
	}
	if cfg.NoFlopNoRake && !facts.SawFlop {
		result.Waived = true
		result.WaivedReason = "no-flop-no-rake"
		return result
	}
	if cfg.ExcludeUncontested && facts.PlayersAtShowdown < 2 {
		result.Waived = true
		result.WaivedReason = "uncontested"
		return result
	}
	if cfg.WaiverEnabled && facts.Now.Before(cfg.WaiverExpiry) {
		result.Waived = true
		result.WaivedReason = "promotional-waiver"
		return result
	}

	percentage, cap := cfg.Percentage, cfg.Cap
	switch cfg.Policy {
	case RakeTiered:
		tier, ok := tierFor(cfg.Tiers, facts.Pot)
		if !ok {
			return result
		}
		percentage, cap = tier.Percentage, tier.Cap
	case RakeStreet:
		if streetOrder[facts.FinalStreet] < streetOrder[cfg.RequiredStreet] {
			result.Waived = true
			result.WaivedReason = "street-not-reached"
			return result
		}
	}

	rake := facts.Pot * percentage / 100
	if cap > 0 && rake > cap {
		rake = cap
		result.CapApplied = true
	}

	result.RakeAmount = rake
	result.PotAfterRake = facts.Pot - rake
	return result
}

func tierFor(tiers []RakeTier, pot int64) (RakeTier, bool) {
	for _, t := range tiers {
		if pot >= t.MinPot && (t.MaxPot == 0 || pot < t.MaxPot) {
			return t, true
		}
	}
	return RakeTier{}, false
}
