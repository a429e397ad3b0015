package economy

import (
	"fmt"
	"sort"
	"sync"
)

// Contribution is one player's total stake in a hand. Folded contributions
// stay in the pot; the flag only removes eligibility.
type Contribution struct {
	PlayerID string
	Total    int64
	IsAllIn  bool
	IsFolded bool
}

// SidePot is one layer of the pot with its eligible winners.
type SidePot struct {
	ID       string
	Amount   int64
	Eligible []string
}

// PotTracker accumulates per-player contributions for one hand partitioned
// by street.
type PotTracker struct {
	mu       sync.RWMutex
	handID   string
	byPlayer map[string]*playerContribution
	byStreet map[string]int64
}

type playerContribution struct {
	total    int64
	byStreet map[string]int64
	allIn    bool
	folded   bool
}

// NewPotTracker starts tracking a hand.
func NewPotTracker(handID string) *PotTracker {
	return &PotTracker{
		handID:   handID,
		byPlayer: make(map[string]*playerContribution),
		byStreet: make(map[string]int64),
	}
}

// Add records chips a player put in on a street.
func (pt *PotTracker) Add(playerID, street string, amount int64, allIn bool) error {
	if amount <= 0 {
		return fmt.Errorf("contribution %d: %w", amount, ErrNegativeAmount)
	}
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pc, ok := pt.byPlayer[playerID]
	if !ok {
		pc = &playerContribution{byStreet: make(map[string]int64)}
		pt.byPlayer[playerID] = pc
	}
	pc.total += amount
	pc.byStreet[street] += amount
	if allIn {
		pc.allIn = true
	}
	pt.byStreet[street] += amount
	return nil
}

// MarkFolded flags a player; their chips remain in the pot.
func (pt *PotTracker) MarkFolded(playerID string) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if pc, ok := pt.byPlayer[playerID]; ok {
		pc.folded = true
	} else {
		pt.byPlayer[playerID] = &playerContribution{byStreet: make(map[string]int64), folded: true}
	}
}

// Total returns the whole pot.
func (pt *PotTracker) Total() int64 {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	var total int64
	for _, pc := range pt.byPlayer {
		total += pc.total
	}
	return total
}

// PlayerTotal returns one player's stake.
func (pt *PotTracker) PlayerTotal(playerID string) int64 {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	if pc, ok := pt.byPlayer[playerID]; ok {
		return pc.total
	}
	return 0
}

// StreetTotal returns the chips contributed on one street.
func (pt *PotTracker) StreetTotal(street string) int64 {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return pt.byStreet[street]
}

// Contributions exports the records side-pot computation consumes.
func (pt *PotTracker) Contributions() []Contribution {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	out := make([]Contribution, 0, len(pt.byPlayer))
	for id, pc := range pt.byPlayer {
		out = append(out, Contribution{
			PlayerID: id,
			Total:    pc.total,
			IsAllIn:  pc.allIn,
			IsFolded: pc.folded,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out
}

// ComputeSidePots layers the pot at each distinct all-in threshold, walking
// thresholds in ascending order. Eligibility for a layer is every non-folded
// player whose total reaches that threshold.
func ComputeSidePots(contribs []Contribution) []SidePot {
	if len(contribs) == 0 {
		return nil
	}

	sorted := make([]Contribution, len(contribs))
	copy(sorted, contribs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Total != sorted[j].Total {
			return sorted[i].Total < sorted[j].Total
		}
		return sorted[i].PlayerID < sorted[j].PlayerID
	})

	// Distinct all-in thresholds, ascending.
	var thresholds []int64
	seen := make(map[int64]bool)
	for _, c := range sorted {
		if c.IsAllIn && c.Total > 0 && !seen[c.Total] {
			seen[c.Total] = true
			thresholds = append(thresholds, c.Total)
		}
	}
	sort.Slice(thresholds, func(i, j int) bool { return thresholds[i] < thresholds[j] })

	var pots []SidePot
	var prev int64
	addLayer := func(upper int64) {
		var amount int64
		var eligible []string
		for _, c := range sorted {
			layer := min64(c.Total, upper) - prev
			if layer > 0 {
				amount += layer
			}
			if !c.IsFolded && c.Total >= upper {
				eligible = append(eligible, c.PlayerID)
			}
		}
		if len(eligible) == 0 {
			// A layer funded only by folded players is contested by
			// everyone still live.
			for _, c := range sorted {
				if !c.IsFolded {
					eligible = append(eligible, c.PlayerID)
				}
			}
		}
		if amount > 0 {
			pots = append(pots, SidePot{
				ID:       fmt.Sprintf("pot-%d", len(pots)),
				Amount:   amount,
				Eligible: eligible,
			})
		}
		prev = upper
	}

	for _, threshold := range thresholds {
		if threshold > prev {
			addLayer(threshold)
		}
	}

	// Contributions above the highest all-in form the final pot.
	var top int64
	for _, c := range sorted {
		if c.Total > top {
			top = c.Total
		}
	}
	if top > prev {
		addLayer(top)
	}

	return pots
}

// VerifyConservation asserts the side-pot layers account for every chip
// contributed.
func VerifyConservation(contribs []Contribution, pots []SidePot) error {
	var in, out int64
	for _, c := range contribs {
		in += c.Total
	}
	for _, p := range pots {
		out += p.Amount
	}
	if in != out {
		return fmt.Errorf("pot conservation violated: contributions %d, side pots %d", in, out)
	}
	return nil
}

// Payout is one player's winnings from settlement.
type Payout struct {
	PlayerID string
	Amount   int64
	PotID    string
}

// SettlePots distributes each pot to its winners: floor division, remainder
// one chip at a time in the order the winners were supplied. Winners outside
// a pot's eligible set are skipped; a pot with no eligible winner falls back
// to the supplied ranking function over its eligible set.
func SettlePots(pots []SidePot, winnersByPot map[string][]string, rank func(eligible []string) []string) ([]Payout, error) {
	var payouts []Payout
	for _, pot := range pots {
		winners := filterEligible(winnersByPot[pot.ID], pot.Eligible)
		if len(winners) == 0 {
			if rank == nil {
				return nil, fmt.Errorf("pot %s: no eligible winner and no ranking function", pot.ID)
			}
			winners = rank(pot.Eligible)
			if len(winners) == 0 {
				return nil, fmt.Errorf("pot %s: ranking produced no winner", pot.ID)
			}
		}

		share := pot.Amount / int64(len(winners))
		remainder := pot.Amount % int64(len(winners))
		for i, w := range winners {
			amount := share
			if int64(i) < remainder {
				amount++
			}
			if amount > 0 {
				payouts = append(payouts, Payout{PlayerID: w, Amount: amount, PotID: pot.ID})
			}
		}
	}
	return payouts, nil
}

func filterEligible(winners, eligible []string) []string {
	var out []string
	for _, w := range winners {
		for _, e := range eligible {
			if w == e {
				out = append(out, w)
				break
			}
		}
	}
	return out
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
