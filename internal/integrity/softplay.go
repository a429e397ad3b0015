package integrity

import (
	"fmt"
	"math"
	"sort"
)

// SoftPlayConfig gates the soft-play patterns. Every pattern compares a
// player against their own global baseline, never an absolute threshold
// alone, so style differences do not trip it.
type SoftPlayConfig struct {
	// MinActions is the per-player minimum sample before any pattern fires.
	MinActions int
	// MinPairActions is the per-pair minimum for opponent-specific patterns.
	MinPairActions int
	// BaselineDelta is the required drop from the player's own baseline,
	// as a fraction of the baseline.
	BaselineDelta float64
	// BigPotMultiple classifies a pot as high-EV when it exceeds this many
	// big blinds.
	BigPotMultiple int64
}

// DefaultSoftPlayConfig returns the documented gates.
func DefaultSoftPlayConfig() SoftPlayConfig {
	return SoftPlayConfig{
		MinActions:     30,
		MinPairActions: 15,
		BaselineDelta:  0.40,
		BigPotMultiple: 20,
	}
}

// SoftPlayDetector finds players easing off against specific opponents.
type SoftPlayDetector struct {
	cfg SoftPlayConfig
}

// NewSoftPlayDetector creates a detector with the given gates.
func NewSoftPlayDetector(cfg SoftPlayConfig) *SoftPlayDetector {
	return &SoftPlayDetector{cfg: cfg}
}

// Detect evaluates every pattern over the stream.
func (d *SoftPlayDetector) Detect(events []Event) []Indicator {
	metrics := ComputeMetrics(events, DefaultTimingConfig())
	pairs := ComputePairMetrics(events)

	var out []Indicator
	out = append(out, d.passiveInBigPots(events, metrics)...)
	out = append(out, d.missedRiverValue(events, metrics)...)
	out = append(out, d.lowPressureHeadsUp(metrics)...)
	out = append(out, d.abnormalCheckVsOpponent(pairs, metrics)...)
	return out
}

// passiveInBigPots compares a player's aggression in pots past the big-pot
// line against their overall aggression frequency.
func (d *SoftPlayDetector) passiveInBigPots(events []Event, metrics map[string]*PlayerMetrics) []Indicator {
	bigBlind := int64(0)
	for i := range events {
		if p, ok := events[i].Payload.(HandStartedPayload); ok {
			bigBlind = p.BigBlind
			break
		}
	}
	if bigBlind == 0 {
		return nil
	}
	line := bigBlind * d.cfg.BigPotMultiple

	type bigCount struct{ aggressive, total int }
	counts := make(map[string]*bigCount)
	for i := range events {
		a, ok := events[i].Payload.(PlayerActionPayload)
		if !ok || a.PotBefore < line {
			continue
		}
		c, ok := counts[a.PlayerID]
		if !ok {
			c = &bigCount{}
			counts[a.PlayerID] = c
		}
		c.total++
		if a.Action == "bet" || a.Action == "raise" {
			c.aggressive++
		}
	}

	var out []Indicator
	for _, id := range sortedKeys(counts) {
		c := counts[id]
		pm := metrics[id]
		if pm == nil || c.total < d.cfg.MinActions/2 || pm.AggressionFrequency == 0 {
			continue
		}
		bigAgg := float64(c.aggressive) / float64(c.total)
		drop := (pm.AggressionFrequency - bigAgg) / pm.AggressionFrequency
		if drop < d.cfg.BaselineDelta {
			continue
		}
		out = append(out, Indicator{
			Pattern:     "passive_in_high_ev",
			Strength:    clamp01(drop),
			Occurrences: c.total,
			Expected:    pm.AggressionFrequency,
			Players:     []string{id},
			Evidence: []EvidenceItem{
				evidence("big_pot_aggression", bigAgg, pm.AggressionFrequency),
				evidence("baseline_drop", drop, d.cfg.BaselineDelta),
			},
			Description: fmt.Sprintf("%s bets %.0f%% less in big pots than baseline", id, drop*100),
		})
	}
	return out
}

// missedRiverValue flags players who check rivers far more often than their
// baseline check rate while still winning at showdown.
func (d *SoftPlayDetector) missedRiverValue(events []Event, metrics map[string]*PlayerMetrics) []Indicator {
	type riverCount struct{ checks, total int }
	counts := make(map[string]*riverCount)
	for i := range events {
		a, ok := events[i].Payload.(PlayerActionPayload)
		if !ok || a.Street != "river" {
			continue
		}
		c, ok := counts[a.PlayerID]
		if !ok {
			c = &riverCount{}
			counts[a.PlayerID] = c
		}
		c.total++
		if a.Action == "check" {
			c.checks++
		}
	}

	var out []Indicator
	for _, id := range sortedKeys(counts) {
		c := counts[id]
		pm := metrics[id]
		if pm == nil || c.total < d.cfg.MinActions/3 || pm.CheckRate == 0 || pm.WSD < 0.5 {
			continue
		}
		riverCheck := float64(c.checks) / float64(c.total)
		excess := (riverCheck - pm.CheckRate) / pm.CheckRate
		if excess < d.cfg.BaselineDelta {
			continue
		}
		out = append(out, Indicator{
			Pattern:     "missing_value_bet",
			Strength:    clamp01(excess),
			Occurrences: c.checks,
			Expected:    pm.CheckRate,
			Players:     []string{id},
			Evidence: []EvidenceItem{
				evidence("river_check_rate", riverCheck, pm.CheckRate),
				evidence("showdown_win_rate", pm.WSD, 0.5),
			},
			Description: fmt.Sprintf("%s checks winning rivers %.0f%% above baseline", id, excess*100),
		})
	}
	return out
}

// lowPressureHeadsUp flags players whose heads-up aggression collapses
// relative to their multiway play.
func (d *SoftPlayDetector) lowPressureHeadsUp(metrics map[string]*PlayerMetrics) []Indicator {
	var out []Indicator
	ids := make([]string, 0, len(metrics))
	for id := range metrics {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		pm := metrics[id]
		if pm.HandsPlayed < d.cfg.MinActions || pm.MultiwayAggression == 0 {
			continue
		}
		drop := (pm.MultiwayAggression - pm.HeadsUpAggression) / pm.MultiwayAggression
		if drop < d.cfg.BaselineDelta {
			continue
		}
		out = append(out, Indicator{
			Pattern:     "low_pressure_heads_up",
			Strength:    clamp01(drop),
			Occurrences: pm.HandsPlayed,
			Expected:    pm.MultiwayAggression,
			Players:     []string{id},
			Evidence: []EvidenceItem{
				evidence("heads_up_aggression", pm.HeadsUpAggression, pm.MultiwayAggression),
				evidence("baseline_drop", drop, d.cfg.BaselineDelta),
			},
			Description: fmt.Sprintf("%s applies %.0f%% less pressure heads-up than multiway", id, drop*100),
		})
	}
	return out
}

// abnormalCheckVsOpponent compares a player's check rate against one
// opponent with their global check rate.
func (d *SoftPlayDetector) abnormalCheckVsOpponent(pairs map[string]*PairMetrics, metrics map[string]*PlayerMetrics) []Indicator {
	var out []Indicator
	for _, key := range sortedPairKeys(pairs) {
		pm := pairs[key]
		check := func(player string, checks, actions int) {
			base := metrics[player]
			if base == nil || actions < d.cfg.MinPairActions || base.CheckRate == 0 {
				return
			}
			rate := float64(checks) / float64(actions)
			excess := (rate - base.CheckRate) / base.CheckRate
			if excess < d.cfg.BaselineDelta {
				return
			}
			other := pm.PlayerB
			if player == pm.PlayerB {
				other = pm.PlayerA
			}
			out = append(out, Indicator{
				Pattern:     "abnormal_check_frequency",
				Strength:    clamp01(excess),
				Occurrences: checks,
				Expected:    base.CheckRate,
				ZScore:      zScoreProportion(rate, base.CheckRate, actions),
				Players:     []string{player, other},
				Evidence: []EvidenceItem{
					evidence("check_rate_vs_opponent", rate, base.CheckRate),
					evidence("sample_actions", float64(actions), float64(d.cfg.MinPairActions)),
				},
				Description: fmt.Sprintf("%s checks %.0f%% above baseline against %s", player, excess*100, other),
			})
		}
		check(pm.PlayerA, pm.ChecksAVsB, pm.ActionsAVsB)
		check(pm.PlayerB, pm.ChecksBVsA, pm.ActionsBVsA)
	}
	return out
}

func zScoreProportion(observed, expected float64, n int) float64 {
	if n == 0 || expected <= 0 || expected >= 1 {
		return 0
	}
	se := math.Sqrt(expected * (1 - expected) / float64(n))
	if se == 0 {
		return 0
	}
	return (observed - expected) / se
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
