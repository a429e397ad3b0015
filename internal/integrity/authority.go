package integrity

import (
	"fmt"
	"time"
)

// AuthorityAbuseConfig gates the authority-abuse patterns.
type AuthorityAbuseConfig struct {
	// MinInterventions gates every pattern.
	MinInterventions int
	// PauseFacingActionRate flags pauses issued while the authority faced
	// action, as a fraction of all pauses.
	PauseFacingActionRate float64
	// ConfigChangeWindow correlates config changes with a preceding
	// authority loss.
	ConfigChangeWindow time.Duration
	// KickedWinnerRate flags kicks whose targets had won chips from the
	// authority, as a fraction of all kicks.
	KickedWinnerRate float64
	// WinRateImprovement flags the authority's per-hand win-rate gain after
	// interventions.
	WinRateImprovement float64
}

// DefaultAuthorityAbuseConfig returns the documented gates.
func DefaultAuthorityAbuseConfig() AuthorityAbuseConfig {
	return AuthorityAbuseConfig{
		MinInterventions:      3,
		PauseFacingActionRate: 0.50,
		ConfigChangeWindow:    5 * time.Minute,
		KickedWinnerRate:      0.50,
		WinRateImprovement:    0.20,
	}
}

// AuthorityAbuseDetector inspects manager interventions for self-serving
// patterns.
type AuthorityAbuseDetector struct {
	cfg AuthorityAbuseConfig
}

// NewAuthorityAbuseDetector creates a detector with the given gates.
func NewAuthorityAbuseDetector(cfg AuthorityAbuseConfig) *AuthorityAbuseDetector {
	return &AuthorityAbuseDetector{cfg: cfg}
}

// Detect evaluates every pattern over the stream.
func (d *AuthorityAbuseDetector) Detect(events []Event) []Indicator {
	var out []Indicator
	out = append(out, d.suspiciousPauses(events)...)
	out = append(out, d.configChangeAfterLoss(events)...)
	out = append(out, d.selectiveKicks(events)...)
	out = append(out, d.interventionCorrelation(events)...)
	return out
}

func (d *AuthorityAbuseDetector) suspiciousPauses(events []Event) []Indicator {
	type pauseCount struct {
		total, facing int
		hands         []string
	}
	counts := make(map[string]*pauseCount)
	for i := range events {
		p, ok := events[i].Payload.(ManagerInterventionPayload)
		if !ok || p.Kind != "pause" {
			continue
		}
		c, ok := counts[p.AuthorityID]
		if !ok {
			c = &pauseCount{}
			counts[p.AuthorityID] = c
		}
		c.total++
		if p.DuringHand && p.FacingAction {
			c.facing++
			c.hands = append(c.hands, events[i].HandID)
		}
	}

	var out []Indicator
	for _, id := range sortedKeys(counts) {
		c := counts[id]
		if c.total < d.cfg.MinInterventions {
			continue
		}
		rate := float64(c.facing) / float64(c.total)
		if rate < d.cfg.PauseFacingActionRate {
			continue
		}
		out = append(out, Indicator{
			Pattern:     "suspicious_pause_timing",
			Strength:    clamp01(rate),
			Occurrences: c.facing,
			Expected:    d.cfg.PauseFacingActionRate,
			Players:     []string{id},
			HandIDs:     c.hands,
			Evidence: []EvidenceItem{
				evidence("pauses_facing_action", rate, d.cfg.PauseFacingActionRate),
				evidence("total_pauses", float64(c.total), float64(d.cfg.MinInterventions)),
			},
			Description: fmt.Sprintf("%s pauses while facing action in %.0f%% of pauses", id, rate*100),
		})
	}
	return out
}

func (d *AuthorityAbuseDetector) configChangeAfterLoss(events []Event) []Indicator {
	lastLoss := make(map[string]time.Time)
	type changeCount struct {
		total, afterLoss int
	}
	counts := make(map[string]*changeCount)

	for i := range events {
		switch p := events[i].Payload.(type) {
		case HandEndedPayload:
			for id, net := range p.NetChips {
				if net < 0 {
					lastLoss[id] = events[i].Timestamp
				}
			}
		case ManagerInterventionPayload:
			if p.Kind != "config_change" {
				continue
			}
			c, ok := counts[p.AuthorityID]
			if !ok {
				c = &changeCount{}
				counts[p.AuthorityID] = c
			}
			c.total++
			if loss, ok := lastLoss[p.AuthorityID]; ok &&
				events[i].Timestamp.Sub(loss) <= d.cfg.ConfigChangeWindow {
				c.afterLoss++
			}
		}
	}

	var out []Indicator
	for _, id := range sortedKeys(counts) {
		c := counts[id]
		if c.total < d.cfg.MinInterventions || c.afterLoss == 0 {
			continue
		}
		rate := float64(c.afterLoss) / float64(c.total)
		if rate < 0.5 {
			continue
		}
		out = append(out, Indicator{
			Pattern:     "config_change_after_loss",
			Strength:    clamp01(rate),
			Occurrences: c.afterLoss,
			Expected:    0.5,
			Players:     []string{id},
			Evidence: []EvidenceItem{
				evidence("changes_after_loss", rate, 0.5),
				evidence("total_changes", float64(c.total), float64(d.cfg.MinInterventions)),
			},
			Description: fmt.Sprintf("%s changes table config within %s of losing", id, d.cfg.ConfigChangeWindow),
		})
	}
	return out
}

func (d *AuthorityAbuseDetector) selectiveKicks(events []Event) []Indicator {
	flow := ChipFlowMatrix(events)
	type kickCount struct {
		total, winners int
		targets        []string
	}
	counts := make(map[string]*kickCount)
	for i := range events {
		p, ok := events[i].Payload.(ManagerInterventionPayload)
		if !ok || p.Kind != "kick" || p.TargetPlayerID == "" {
			continue
		}
		c, ok := counts[p.AuthorityID]
		if !ok {
			c = &kickCount{}
			counts[p.AuthorityID] = c
		}
		c.total++
		// Target had won chips from the authority.
		if flow[p.AuthorityID][p.TargetPlayerID] > 0 {
			c.winners++
			c.targets = append(c.targets, p.TargetPlayerID)
		}
	}

	var out []Indicator
	for _, id := range sortedKeys(counts) {
		c := counts[id]
		if c.total < d.cfg.MinInterventions {
			continue
		}
		rate := float64(c.winners) / float64(c.total)
		if rate < d.cfg.KickedWinnerRate {
			continue
		}
		out = append(out, Indicator{
			Pattern:     "selective_kicks",
			Strength:    clamp01(rate),
			Occurrences: c.winners,
			Expected:    d.cfg.KickedWinnerRate,
			Players:     append([]string{id}, c.targets...),
			Evidence: []EvidenceItem{
				evidence("kicked_winners_rate", rate, d.cfg.KickedWinnerRate),
				evidence("total_kicks", float64(c.total), float64(d.cfg.MinInterventions)),
			},
			Description: fmt.Sprintf("%s kicks players who won chips from them", id),
		})
	}
	return out
}

func (d *AuthorityAbuseDetector) interventionCorrelation(events []Event) []Indicator {
	// Split each authority's hands at their first intervention and compare
	// win rates before and after.
	intervened := make(map[string]time.Time)
	for i := range events {
		if p, ok := events[i].Payload.(ManagerInterventionPayload); ok {
			if _, seen := intervened[p.AuthorityID]; !seen {
				intervened[p.AuthorityID] = events[i].Timestamp
			}
		}
	}
	if len(intervened) == 0 {
		return nil
	}

	type winCount struct {
		beforeHands, beforeWins int
		afterHands, afterWins   int
	}
	counts := make(map[string]*winCount)
	for i := range events {
		p, ok := events[i].Payload.(HandEndedPayload)
		if !ok {
			continue
		}
		for _, authority := range sortedKeys(intervened) {
			net, played := p.NetChips[authority]
			if !played {
				continue
			}
			c, ok := counts[authority]
			if !ok {
				c = &winCount{}
				counts[authority] = c
			}
			if events[i].Timestamp.Before(intervened[authority]) {
				c.beforeHands++
				if net > 0 {
					c.beforeWins++
				}
			} else {
				c.afterHands++
				if net > 0 {
					c.afterWins++
				}
			}
		}
	}

	var out []Indicator
	for _, id := range sortedKeys(counts) {
		c := counts[id]
		if c.beforeHands < d.cfg.MinInterventions || c.afterHands < d.cfg.MinInterventions {
			continue
		}
		before := float64(c.beforeWins) / float64(c.beforeHands)
		after := float64(c.afterWins) / float64(c.afterHands)
		gain := after - before
		if gain < d.cfg.WinRateImprovement {
			continue
		}
		out = append(out, Indicator{
			Pattern:     "intervention_correlation",
			Strength:    clamp01(gain / (2 * d.cfg.WinRateImprovement)),
			Occurrences: c.afterHands,
			Expected:    before,
			Players:     []string{id},
			Evidence: []EvidenceItem{
				evidence("win_rate_before", before, 0),
				evidence("win_rate_after", after, before+d.cfg.WinRateImprovement),
			},
			Description: fmt.Sprintf("%s win rate improves %.0f points after interventions", id, gain*100),
		})
	}
	return out
}
