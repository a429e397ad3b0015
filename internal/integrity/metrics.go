package integrity

import "sort"

// TimingConfig sets the action-timing classification thresholds.
type TimingConfig struct {
	QuickFoldMs int64
	LongTankMs  int64
}

// DefaultTimingConfig matches typical online pacing.
func DefaultTimingConfig() TimingConfig {
	return TimingConfig{QuickFoldMs: 1500, LongTankMs: 20000}
}

// PlayerMetrics is a deterministic per-player summary of an event stream.
type PlayerMetrics struct {
	PlayerID    string
	HandsPlayed int
	HandsWon    int

	VPIP                float64 // voluntarily put chips in preflop
	PFR                 float64 // preflop raise rate
	ThreeBetRate        float64
	CBetRate            float64
	AggressionFactor    float64 // (bets+raises) / calls
	AggressionFrequency float64 // (bets+raises) / all actions
	FoldToRaise         float64
	WTSD                float64 // went to showdown
	WSD                 float64 // won at showdown

	EarlyVPIP           float64
	LateVPIP            float64
	PositionalAwareness float64 // late - early

	HeadsUpAggression  float64
	MultiwayAggression float64
	AggressionDelta    float64

	AvgActionTimeMs float64
	QuickFoldRate   float64
	LongTankRate    float64
	CheckRate       float64

	NetChips    int64
	BiggestWin  int64
	BiggestLoss int64
}

// PairMetrics summarizes the relationship between two players. A is always
// the lexically smaller id so a pair has one canonical record.
type PairMetrics struct {
	PlayerA, PlayerB string

	HandsTogether         int
	HeadsUpConfrontations int
	NetFlowAToB           int64 // positive: chips moved from A to B

	RaisesAOnB int
	RaisesBOnA int
	FoldsAToB  int
	FoldsBToA  int

	ShowdownsTogether int
	ShowdownRate      float64

	ChecksAVsB  int
	ChecksBVsA  int
	ActionsAVsB int
	ActionsBVsA int
}

// handRecord is the per-hand working state during the stream walk.
type handRecord struct {
	handID  string
	players []string
	actions []PlayerActionPayload
	ended   *HandEndedPayload
	awards  []PotAwardedPayload
}

// collectHands groups the stream by hand in first-seen order.
func collectHands(events []Event) []*handRecord {
	byID := make(map[string]*handRecord)
	var order []*handRecord
	for i := range events {
		e := &events[i]
		if e.HandID == "" {
			continue
		}
		h, ok := byID[e.HandID]
		if !ok {
			h = &handRecord{handID: e.HandID}
			byID[e.HandID] = h
			order = append(order, h)
		}
		switch p := e.Payload.(type) {
		case HandStartedPayload:
			for _, hp := range p.Players {
				h.players = append(h.players, hp.PlayerID)
			}
		case PlayerActionPayload:
			h.actions = append(h.actions, p)
		case HandEndedPayload:
			ended := p
			h.ended = &ended
		case PotAwardedPayload:
			h.awards = append(h.awards, p)
		}
	}
	return order
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// ComputeMetrics derives per-player metrics from the stream. The walk is a
// pure function of the input: identical streams yield identical outputs.
func ComputeMetrics(events []Event, timing TimingConfig) map[string]*PlayerMetrics {
	hands := collectHands(events)
	positions := make(map[string]map[string]string) // handID -> player -> position
	for i := range events {
		if p, ok := events[i].Payload.(HandStartedPayload); ok {
			m := make(map[string]string, len(p.Players))
			for _, hp := range p.Players {
				m[hp.PlayerID] = hp.Position
			}
			positions[events[i].HandID] = m
		}
	}

	type counters struct {
		vpipHands, pfrHands             int
		threeBets, threeBetChances      int
		cbets, cbetChances              int
		betsRaises, calls, checks       int
		folds, foldsToRaise, raiseFaced int
		totalActions                    int
		showdowns, showdownWins         int
		earlyHands, earlyVPIP           int
		lateHands, lateVPIP             int
		huAggActions, huBetsRaises      int
		mwAggActions, mwBetsRaises      int
		totalTimeMs                     int64
		quickFolds, longTanks           int
	}
	stats := make(map[string]*counters)
	out := make(map[string]*PlayerMetrics)

	get := func(id string) (*PlayerMetrics, *counters) {
		if _, ok := out[id]; !ok {
			out[id] = &PlayerMetrics{PlayerID: id}
			stats[id] = &counters{}
		}
		return out[id], stats[id]
	}

	for _, h := range hands {
		pos := positions[h.handID]
		vpipThisHand := make(map[string]bool)
		preflopAggressor := ""
		preflopRaises := 0
		sawFlopBet := make(map[string]bool)

		for _, m := range h.players {
			pm, _ := get(m)
			pm.HandsPlayed++
		}

		for _, a := range h.actions {
			_, c := get(a.PlayerID)
			c.totalActions++
			c.totalTimeMs += a.TimeTakenMs
			if a.TimeTakenMs >= timing.LongTankMs {
				c.longTanks++
			}

			aggressive := a.Action == "bet" || a.Action == "raise" ||
				(a.Action == "all-in" && a.FacingBet >= 0 && a.Amount > a.FacingBet)
			if aggressive {
				c.betsRaises++
			}
			if a.HeadsUp {
				c.huAggActions++
				if aggressive {
					c.huBetsRaises++
				}
			} else {
				c.mwAggActions++
				if aggressive {
					c.mwBetsRaises++
				}
			}

			switch a.Action {
			case "call":
				c.calls++
			case "check":
				c.checks++
			case "fold":
				c.folds++
				if a.TimeTakenMs <= timing.QuickFoldMs {
					c.quickFolds++
				}
			}
			if a.FacingBet > 0 {
				c.raiseFaced++
				if a.Action == "fold" {
					c.foldsToRaise++
				}
			}

			if a.Street == "preflop" {
				if a.Action == "call" || a.Action == "bet" || a.Action == "raise" || a.Action == "all-in" {
					vpipThisHand[a.PlayerID] = true
				}
				if a.Action == "raise" || a.Action == "bet" {
					if preflopRaises >= 1 {
						c.threeBetChances++
						c.threeBets++
					}
					preflopRaises++
					preflopAggressor = a.PlayerID
				} else if a.FacingBet > 0 && preflopRaises >= 1 {
					c.threeBetChances++
				}
			}
			if a.Street == "flop" && a.PlayerID == preflopAggressor && !sawFlopBet[a.PlayerID] {
				sawFlopBet[a.PlayerID] = true
				c.cbetChances++
				if a.Action == "bet" {
					c.cbets++
				}
			}
		}

		pfrThisHand := make(map[string]bool)
		for _, a := range h.actions {
			if a.Street == "preflop" && (a.Action == "raise" || a.Action == "bet") {
				pfrThisHand[a.PlayerID] = true
			}
		}

		for _, m := range h.players {
			_, c := get(m)
			if vpipThisHand[m] {
				c.vpipHands++
			}
			if pfrThisHand[m] {
				c.pfrHands++
			}
			switch pos[m] {
			case "early":
				c.earlyHands++
				if vpipThisHand[m] {
					c.earlyVPIP++
				}
			case "late":
				c.lateHands++
				if vpipThisHand[m] {
					c.lateVPIP++
				}
			}
		}

		if h.ended != nil {
			for _, id := range h.ended.ShowdownPlayers {
				_, c := get(id)
				c.showdowns++
			}
			won := make(map[string]bool)
			for _, id := range h.ended.Winners {
				won[id] = true
				pm, _ := get(id)
				pm.HandsWon++
			}
			for _, id := range h.ended.ShowdownPlayers {
				if won[id] {
					_, c := get(id)
					c.showdownWins++
				}
			}
			for id, net := range h.ended.NetChips {
				pm, _ := get(id)
				pm.NetChips += net
				if net > pm.BiggestWin {
					pm.BiggestWin = net
				}
				if net < pm.BiggestLoss {
					pm.BiggestLoss = net
				}
			}
		}
	}

	for id, pm := range out {
		c := stats[id]
		pm.VPIP = ratio(c.vpipHands, pm.HandsPlayed)
		pm.PFR = ratio(c.pfrHands, pm.HandsPlayed)
		pm.ThreeBetRate = ratio(c.threeBets, c.threeBetChances)
		pm.CBetRate = ratio(c.cbets, c.cbetChances)
		if c.calls > 0 {
			pm.AggressionFactor = float64(c.betsRaises) / float64(c.calls)
		} else {
			pm.AggressionFactor = float64(c.betsRaises)
		}
		pm.AggressionFrequency = ratio(c.betsRaises, c.totalActions)
		pm.FoldToRaise = ratio(c.foldsToRaise, c.raiseFaced)
		pm.WTSD = ratio(c.showdowns, pm.HandsPlayed)
		pm.WSD = ratio(c.showdownWins, c.showdowns)
		pm.EarlyVPIP = ratio(c.earlyVPIP, c.earlyHands)
		pm.LateVPIP = ratio(c.lateVPIP, c.lateHands)
		pm.PositionalAwareness = pm.LateVPIP - pm.EarlyVPIP
		pm.HeadsUpAggression = ratio(c.huBetsRaises, c.huAggActions)
		pm.MultiwayAggression = ratio(c.mwBetsRaises, c.mwAggActions)
		pm.AggressionDelta = pm.HeadsUpAggression - pm.MultiwayAggression
		if c.totalActions > 0 {
			pm.AvgActionTimeMs = float64(c.totalTimeMs) / float64(c.totalActions)
		}
		pm.QuickFoldRate = ratio(c.quickFolds, c.folds)
		pm.LongTankRate = ratio(c.longTanks, c.totalActions)
		pm.CheckRate = ratio(c.checks, c.totalActions)
	}
	return out
}

// ComputePairMetrics derives the between-player records for every pair that
// shared a hand, keyed "a|b" with a < b.
func ComputePairMetrics(events []Event) map[string]*PairMetrics {
	hands := collectHands(events)
	flow := ChipFlowMatrix(events)

	out := make(map[string]*PairMetrics)
	pairKey := func(a, b string) (string, bool) {
		if a < b {
			return a + "|" + b, false
		}
		return b + "|" + a, true
	}
	get := func(a, b string) (*PairMetrics, bool) {
		key, swapped := pairKey(a, b)
		pm, ok := out[key]
		if !ok {
			lo, hi := a, b
			if swapped {
				lo, hi = b, a
			}
			pm = &PairMetrics{PlayerA: lo, PlayerB: hi}
			out[key] = pm
		}
		return pm, swapped
	}

	for _, h := range hands {
		for i := 0; i < len(h.players); i++ {
			for j := i + 1; j < len(h.players); j++ {
				pm, _ := get(h.players[i], h.players[j])
				pm.HandsTogether++
			}
		}

		headsUp := len(h.players) == 2
		if headsUp {
			pm, _ := get(h.players[0], h.players[1])
			pm.HeadsUpConfrontations++
		}

		for _, a := range h.actions {
			for _, other := range h.players {
				if other == a.PlayerID {
					continue
				}
				pm, swapped := get(a.PlayerID, other)
				actorIsA := (a.PlayerID == pm.PlayerA)
				_ = swapped
				if actorIsA {
					pm.ActionsAVsB++
				} else {
					pm.ActionsBVsA++
				}
				switch a.Action {
				case "raise", "bet":
					if actorIsA {
						pm.RaisesAOnB++
					} else {
						pm.RaisesBOnA++
					}
				case "fold":
					if actorIsA {
						pm.FoldsAToB++
					} else {
						pm.FoldsBToA++
					}
				case "check":
					if actorIsA {
						pm.ChecksAVsB++
					} else {
						pm.ChecksBVsA++
					}
				}
			}
		}

		if h.ended != nil && len(h.ended.ShowdownPlayers) >= 2 {
			sd := h.ended.ShowdownPlayers
			for i := 0; i < len(sd); i++ {
				for j := i + 1; j < len(sd); j++ {
					pm, _ := get(sd[i], sd[j])
					pm.ShowdownsTogether++
				}
			}
		}
	}

	for _, pm := range out {
		pm.ShowdownRate = ratio(pm.ShowdownsTogether, pm.HandsTogether)
		pm.NetFlowAToB = flow[pm.PlayerA][pm.PlayerB] - flow[pm.PlayerB][pm.PlayerA]
	}
	return out
}

// ChipFlowMatrix apportions every awarded pot equally among its listed
// contributors toward the winner. flow[from][to] is always >= 0.
func ChipFlowMatrix(events []Event) map[string]map[string]int64 {
	flow := make(map[string]map[string]int64)
	for i := range events {
		p, ok := events[i].Payload.(PotAwardedPayload)
		if !ok {
			continue
		}
		var losers []string
		for _, c := range p.Contributors {
			if c != p.WinnerID {
				losers = append(losers, c)
			}
		}
		if len(losers) == 0 {
			continue
		}
		share := p.Amount / int64(len(losers))
		for _, from := range losers {
			if flow[from] == nil {
				flow[from] = make(map[string]int64)
			}
			flow[from][p.WinnerID] += share
		}
	}
	return flow
}

// SortedPlayerIDs gives deterministic iteration order over a metrics map.
func SortedPlayerIDs(metrics map[string]*PlayerMetrics) []string {
	ids := make([]string, 0, len(metrics))
	for id := range metrics {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
