package integrity

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// CollusionConfig holds the rule thresholds. Defaults reflect conservative
// online-room baselines; every pattern also requires its minimum sample.
type CollusionConfig struct {
	// TransferConcentration flags when this fraction of a player's total
	// losses flows to a single opponent.
	TransferConcentration float64
	// AggressionAsymmetry flags |raises(A on B) - raises(B on A)| over the
	// pair's total raises.
	AggressionAsymmetry float64
	// FoldAsymmetry is the analogous threshold over folds.
	FoldAsymmetry float64
	// RaisesPerHeadsUpFloor is the expected minimum raise rate heads-up.
	RaisesPerHeadsUpFloor float64
	// MinPairHands gates every pairwise pattern.
	MinPairHands int
	// RecurrenceMin gates coordinated patterns: they must repeat at least
	// this many times for the same player set.
	RecurrenceMin int
}

// DefaultCollusionConfig returns the documented thresholds.
func DefaultCollusionConfig() CollusionConfig {
	return CollusionConfig{
		TransferConcentration: 0.60,
		AggressionAsymmetry:   0.70,
		FoldAsymmetry:         0.70,
		RaisesPerHeadsUpFloor: 0.50,
		MinPairHands:          20,
		RecurrenceMin:         3,
	}
}

// CollusionDetector runs rule-based pattern checks over an event stream.
// It is deterministic: the same stream yields the same indicators in the
// same order.
type CollusionDetector struct {
	cfg CollusionConfig
}

// NewCollusionDetector creates a detector with the given thresholds.
func NewCollusionDetector(cfg CollusionConfig) *CollusionDetector {
	return &CollusionDetector{cfg: cfg}
}

// Detect evaluates every pattern and returns the indicators that fired,
// ordered by pattern then player pair.
func (d *CollusionDetector) Detect(events []Event) []Indicator {
	pairs := ComputePairMetrics(events)
	flow := ChipFlowMatrix(events)
	hands := collectCollusionHands(events)

	var out []Indicator
	out = append(out, d.transferConcentration(flow)...)
	out = append(out, d.aggressionAsymmetry(pairs)...)
	out = append(out, d.foldAsymmetry(pairs)...)
	out = append(out, d.softHeadsUp(pairs)...)
	out = append(out, d.coordinatedBetting(hands)...)
	out = append(out, d.unnaturalCheckdowns(hands)...)
	return out
}

// transferConcentration flags players whose losses concentrate on one
// opponent.
func (d *CollusionDetector) transferConcentration(flow map[string]map[string]int64) []Indicator {
	var out []Indicator
	losers := make([]string, 0, len(flow))
	for id := range flow {
		losers = append(losers, id)
	}
	sort.Strings(losers)

	for _, from := range losers {
		var total int64
		for _, amount := range flow[from] {
			total += amount
		}
		if total == 0 {
			continue
		}
		tos := make([]string, 0, len(flow[from]))
		for to := range flow[from] {
			tos = append(tos, to)
		}
		sort.Strings(tos)
		for _, to := range tos {
			fraction := float64(flow[from][to]) / float64(total)
			if fraction < d.cfg.TransferConcentration {
				continue
			}
			out = append(out, Indicator{
				Pattern:     "chip_transfer_concentration",
				Strength:    clamp01(fraction),
				Occurrences: 1,
				Expected:    d.cfg.TransferConcentration,
				Players:     []string{from, to},
				Evidence: []EvidenceItem{
					evidence("loss_fraction_to_opponent", fraction, d.cfg.TransferConcentration),
					evidence("total_chips_lost", float64(total), 0),
				},
				Description: fmt.Sprintf("%.0f%% of %s's losses flow to %s", fraction*100, from, to),
			})
		}
	}
	return out
}

func (d *CollusionDetector) aggressionAsymmetry(pairs map[string]*PairMetrics) []Indicator {
	return d.asymmetry(pairs, "asymmetric_aggression", func(pm *PairMetrics) (int, int) {
		return pm.RaisesAOnB, pm.RaisesBOnA
	}, d.cfg.AggressionAsymmetry)
}

func (d *CollusionDetector) foldAsymmetry(pairs map[string]*PairMetrics) []Indicator {
	return d.asymmetry(pairs, "abnormal_fold_pattern", func(pm *PairMetrics) (int, int) {
		return pm.FoldsAToB, pm.FoldsBToA
	}, d.cfg.FoldAsymmetry)
}

func (d *CollusionDetector) asymmetry(pairs map[string]*PairMetrics, pattern string, counts func(*PairMetrics) (int, int), threshold float64) []Indicator {
	var out []Indicator
	for _, key := range sortedPairKeys(pairs) {
		pm := pairs[key]
		if pm.HandsTogether < d.cfg.MinPairHands {
			continue
		}
		a, b := counts(pm)
		total := a + b
		if total == 0 {
			continue
		}
		asym := math.Abs(float64(a)-float64(b)) / float64(total)
		if asym < threshold {
			continue
		}
		expected := float64(total) / 2
		variance := float64(total) / 4 // binomial p=0.5
		z := 0.0
		if variance > 0 {
			z = (math.Max(float64(a), float64(b)) - expected) / math.Sqrt(variance)
		}
		out = append(out, Indicator{
			Pattern:     pattern,
			Strength:    clamp01(asym),
			Occurrences: total,
			Expected:    expected,
			ZScore:      z,
			Players:     []string{pm.PlayerA, pm.PlayerB},
			Evidence: []EvidenceItem{
				evidence("asymmetry", asym, threshold),
				evidence("sample_hands", float64(pm.HandsTogether), float64(d.cfg.MinPairHands)),
			},
			Description: describePair(pattern, pm.PlayerA, pm.PlayerB),
		})
	}
	return out
}

// softHeadsUp flags pairs whose heads-up confrontations show far fewer
// raises than the expected floor.
func (d *CollusionDetector) softHeadsUp(pairs map[string]*PairMetrics) []Indicator {
	var out []Indicator
	for _, key := range sortedPairKeys(pairs) {
		pm := pairs[key]
		if pm.HeadsUpConfrontations < d.cfg.RecurrenceMin {
			continue
		}
		raises := float64(pm.RaisesAOnB + pm.RaisesBOnA)
		perHand := raises / float64(pm.HeadsUpConfrontations)
		if perHand >= d.cfg.RaisesPerHeadsUpFloor {
			continue
		}
		deficit := (d.cfg.RaisesPerHeadsUpFloor - perHand) / d.cfg.RaisesPerHeadsUpFloor
		out = append(out, Indicator{
			Pattern:     "soft_play_heads_up",
			Strength:    clamp01(deficit),
			Occurrences: pm.HeadsUpConfrontations,
			Expected:    d.cfg.RaisesPerHeadsUpFloor,
			Players:     []string{pm.PlayerA, pm.PlayerB},
			Evidence: []EvidenceItem{
				evidence("raises_per_heads_up", perHand, d.cfg.RaisesPerHeadsUpFloor),
				evidence("heads_up_confrontations", float64(pm.HeadsUpConfrontations), float64(d.cfg.RecurrenceMin)),
			},
			Description: describePair("soft heads-up play", pm.PlayerA, pm.PlayerB),
		})
	}
	return out
}

// collusionHand is one hand's action sequence in record order.
type collusionHand struct {
	id      string
	actions []PlayerActionPayload
	ended   *HandEndedPayload
}

// collectCollusionHands groups the stream by hand, preserving first-seen order.
func collectCollusionHands(events []Event) []collusionHand {
	var order []string
	byID := make(map[string]*collusionHand)
	for _, e := range events {
		if e.HandID == "" {
			continue
		}
		hr, ok := byID[e.HandID]
		if !ok {
			hr = &collusionHand{id: e.HandID}
			byID[e.HandID] = hr
			order = append(order, e.HandID)
		}
		switch p := e.Payload.(type) {
		case PlayerActionPayload:
			hr.actions = append(hr.actions, p)
		case HandEndedPayload:
			ended := p
			hr.ended = &ended
		}
	}
	out := make([]collusionHand, len(order))
	for i, id := range order {
		out[i] = *byID[id]
	}
	return out
}

// coordinatedBetting flags squeeze episodes: one partner opens, another
// re-raises, a third player folds to the pressure, and the opener releases
// before showdown. A pair only fires once it recurs RecurrenceMin times.
func (d *CollusionDetector) coordinatedBetting(hands []collusionHand) []Indicator {
	handsByPair := make(map[string][]string)
	for _, h := range hands {
		opener, raiser, ok := squeezeIn(h)
		if !ok {
			continue
		}
		a, b := opener, raiser
		if b < a {
			a, b = b, a
		}
		key := a + "|" + b
		handsByPair[key] = append(handsByPair[key], h.id)
	}
	return d.recurring(handsByPair, "coordinated_betting", "squeeze_episodes")
}

// squeezeIn reports the first opener and re-raiser in a hand where a third
// player folded after the re-raise and the opener folded later.
func squeezeIn(h collusionHand) (opener, raiser string, ok bool) {
	type aggression struct {
		player string
		street string
		index  int
	}
	var aggressors []aggression
	for i, act := range h.actions {
		if act.Action == "bet" || act.Action == "raise" {
			aggressors = append(aggressors, aggression{act.PlayerID, act.Street, i})
		}
	}
	foldsAfter := func(player string, index int) bool {
		for i := index + 1; i < len(h.actions); i++ {
			if h.actions[i].Action == "fold" && h.actions[i].PlayerID == player {
				return true
			}
		}
		return false
	}
	for j := 1; j < len(aggressors); j++ {
		b := aggressors[j]
		for k := j - 1; k >= 0; k-- {
			a := aggressors[k]
			if a.street != b.street || a.player == b.player {
				continue
			}
			thirdFolded := false
			for i := b.index + 1; i < len(h.actions); i++ {
				act := h.actions[i]
				if act.Action == "fold" && act.Street == b.street &&
					act.PlayerID != a.player && act.PlayerID != b.player {
					thirdFolded = true
					break
				}
			}
			if thirdFolded && foldsAfter(a.player, b.index) {
				return a.player, b.player, true
			}
		}
	}
	return "", "", false
}

// unnaturalCheckdowns flags showdown hands where the players who got there
// never bet or raised after the flop. The same set must recur
// RecurrenceMin times before the pattern fires.
func (d *CollusionDetector) unnaturalCheckdowns(hands []collusionHand) []Indicator {
	handsBySet := make(map[string][]string)
	for _, h := range hands {
		if h.ended == nil || h.ended.EndReason != "showdown" || h.ended.FinalStreet != "river" {
			continue
		}
		set := append([]string(nil), h.ended.ShowdownPlayers...)
		if len(set) < 2 {
			continue
		}
		atShowdown := make(map[string]bool, len(set))
		for _, id := range set {
			atShowdown[id] = true
		}
		passive := true
		for _, act := range h.actions {
			if act.Street == "preflop" || !atShowdown[act.PlayerID] {
				continue
			}
			if act.Action == "bet" || act.Action == "raise" {
				passive = false
				break
			}
		}
		if !passive {
			continue
		}
		sort.Strings(set)
		key := strings.Join(set, "|")
		handsBySet[key] = append(handsBySet[key], h.id)
	}
	return d.recurring(handsBySet, "unnatural_checkdowns", "checked_down_showdowns")
}

// recurring emits one indicator per player set that repeated a coordinated
// pattern at least RecurrenceMin times.
func (d *CollusionDetector) recurring(handsByKey map[string][]string, pattern, measure string) []Indicator {
	keys := make([]string, 0, len(handsByKey))
	for k := range handsByKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []Indicator
	for _, key := range keys {
		ids := handsByKey[key]
		n := len(ids)
		if n < d.cfg.RecurrenceMin {
			continue
		}
		players := strings.Split(key, "|")
		out = append(out, Indicator{
			Pattern:     pattern,
			Strength:    clamp01(float64(n) / float64(2*d.cfg.RecurrenceMin)),
			Occurrences: n,
			Expected:    float64(d.cfg.RecurrenceMin),
			Players:     players,
			HandIDs:     ids,
			Evidence: []EvidenceItem{
				evidence(measure, float64(n), float64(d.cfg.RecurrenceMin)),
			},
			Description: fmt.Sprintf("%s recurring across %d hands for %s", pattern, n, strings.Join(players, ", ")),
		})
	}
	return out
}

func sortedPairKeys(pairs map[string]*PairMetrics) []string {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
