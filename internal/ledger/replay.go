package ledger

import "fmt"

// ReplayDivergence describes where a replay stopped matching expectations.
type ReplayDivergence struct {
	Index    int
	PlayerID string
	Reason   string
	Want     int64
	Got      int64
}

// ReplayReport is the outcome of a deterministic replay over an exported
// chain.
type ReplayReport struct {
	EntriesReplayed int
	FinalBalances   map[string]int64
	Divergences     []ReplayDivergence
}

// Valid reports whether the replay reproduced the expected state exactly.
func (r *ReplayReport) Valid() bool {
	return len(r.Divergences) == 0
}

// ReplayEntries walks an exported chain in order, re-deriving every running
// balance and re-checking the hash chain, then compares the result against
// the expected final balances. Divergences are collected, not fatal, so a
// report names every mismatch.
func ReplayEntries(exported []Entry, expectedFinal map[string]int64) (*ReplayReport, error) {
	report := &ReplayReport{FinalBalances: make(map[string]int64)}

	if d := verifyChain(exported); d != nil {
		report.Divergences = append(report.Divergences, ReplayDivergence{
			Index:  d.Index,
			Reason: d.Reason,
		})
		return report, nil
	}

	balances := make(map[string]int64)
	seeded := make(map[string]bool)
	for i, e := range exported {
		if e.Kind == KindInitial {
			if seeded[e.PlayerID] {
				report.Divergences = append(report.Divergences, ReplayDivergence{
					Index: i, PlayerID: e.PlayerID, Reason: "duplicate initial balance",
				})
				continue
			}
			seeded[e.PlayerID] = true
		} else if !seeded[e.PlayerID] {
			report.Divergences = append(report.Divergences, ReplayDivergence{
				Index: i, PlayerID: e.PlayerID, Reason: "entry precedes initial balance",
			})
		}

		balances[e.PlayerID] += e.Amount
		if balances[e.PlayerID] != e.BalanceAfter {
			report.Divergences = append(report.Divergences, ReplayDivergence{
				Index:    i,
				PlayerID: e.PlayerID,
				Reason:   "recomputed balance disagrees with balanceAfter",
				Want:     e.BalanceAfter,
				Got:      balances[e.PlayerID],
			})
		}
		if balances[e.PlayerID] < 0 {
			report.Divergences = append(report.Divergences, ReplayDivergence{
				Index:    i,
				PlayerID: e.PlayerID,
				Reason:   "running balance went negative",
				Got:      balances[e.PlayerID],
			})
		}
		report.EntriesReplayed++
	}

	report.FinalBalances = balances

	for player, want := range expectedFinal {
		got, ok := balances[player]
		if !ok {
			report.Divergences = append(report.Divergences, ReplayDivergence{
				Index: -1, PlayerID: player,
				Reason: "expected subject never appeared", Want: want,
			})
			continue
		}
		if got != want {
			report.Divergences = append(report.Divergences, ReplayDivergence{
				Index: -1, PlayerID: player,
				Reason: "final balance mismatch", Want: want, Got: got,
			})
		}
	}
	for player := range balances {
		if _, ok := expectedFinal[player]; !ok {
			report.Divergences = append(report.Divergences, ReplayDivergence{
				Index: -1, PlayerID: player,
				Reason: fmt.Sprintf("unexpected subject %s in replay", player),
			})
		}
	}

	return report, nil
}
