package room

import (
	"errors"

	"github.com/tablestakes/cardroom/internal/economy"
	"github.com/tablestakes/cardroom/internal/game"
	"github.com/tablestakes/cardroom/internal/gameid"
	"github.com/tablestakes/cardroom/internal/integrity"
	"github.com/tablestakes/cardroom/internal/protocol"
	"github.com/tablestakes/cardroom/internal/session"
)

// maybeScheduleAutoStart arms the next-hand timer once the table can deal.
func (r *Room) maybeScheduleAutoStart(ts *tableState) {
	if !r.cfg.AutoStart || ts.autoStartPending || ts.halted {
		return
	}
	if !ts.table.CanStartHand() {
		return
	}
	ts.autoStartPending = true
	r.schedule(r.cfg.AutoStartDelay, func() {
		ts.autoStartPending = false
		if ts.halted || !ts.table.CanStartHand() {
			return
		}
		r.startHand(ts)
	})
}

// startHand deals the next hand and posts blinds. Runs on the serializer.
func (r *Room) startHand(ts *tableState) {
	t := ts.table
	handID := r.deps.IDs.New(gameid.Hand)

	hs, reject := t.StartHand(handID, r.deps.Rand)
	if reject != nil {
		r.log.Warn("hand start rejected", "table", t.ID, "reason", reject.Reason)
		return
	}
	if err := r.deps.Economy.StartHand(handID, t.ID); err != nil {
		r.log.Error("economy hand open failed", "hand", handID, "err", err)
		r.haltTable(ts, err)
		return
	}

	sbSeat, bbSeat := t.Seats[hs.SBSeat], t.Seats[hs.BBSeat]
	if hs.SBAmount > 0 {
		if err := r.deps.Economy.PostBlind(handID, sbSeat.PlayerID, hs.SBAmount, sbSeat.Status == game.SeatAllIn); err != nil {
			r.haltTable(ts, err)
			return
		}
	}
	if hs.BBAmount > 0 {
		if err := r.deps.Economy.PostBlind(handID, bbSeat.PlayerID, hs.BBAmount, bbSeat.Status == game.SeatAllIn); err != nil {
			r.haltTable(ts, err)
			return
		}
	}

	r.commit(ts, true)

	players := make([]protocol.HandStartedPlayer, len(hs.Players))
	collected := make([]integrity.HandPlayer, len(hs.Players))
	for i, s := range hs.Players {
		players[i] = protocol.HandStartedPlayer{
			PlayerID:  s.PlayerID,
			SeatIndex: s.Index,
			Stack:     s.Stack,
		}
		collected[i] = integrity.HandPlayer{
			PlayerID:  s.PlayerID,
			SeatIndex: s.Index,
			Stack:     s.Stack,
			Position:  seatPosition(i, len(hs.Players)),
		}
	}
	if r.deps.Collector != nil {
		r.deps.Collector.Record(t.ID, handID, integrity.HandStartedPayload{
			HandNumber: hs.HandNumber,
			DealerSeat: hs.DealerSeat,
			SmallBlind: t.SmallBlind,
			BigBlind:   t.BigBlind,
			Players:    collected,
		})
	}

	r.log.Info("hand started", "table", t.ID, "hand", handID, "number", hs.HandNumber)
	r.publish(r.newEvent(protocol.EventHandStarted, t.ID, protocol.HandStartedData{
		HandID:     handID,
		HandNumber: hs.HandNumber,
		DealerSeat: hs.DealerSeat,
		SBSeat:     hs.SBSeat,
		BBSeat:     hs.BBSeat,
		Players:    players,
	}))
	r.armActionTimer(ts)
}

// seatPosition classifies the i-th seat clockwise from the dealer.
func seatPosition(i, count int) string {
	switch {
	case count <= 3:
		return "blinds"
	case i < 2:
		return "blinds"
	case i < 2+(count-2)/2:
		return "early"
	default:
		return "late"
	}
}

// armActionTimer starts the action clock for the seat to act.
func (r *Room) armActionTimer(ts *tableState) {
	t := ts.table
	if !t.HandActive() || t.ActiveSeat < 0 {
		return
	}
	ts.actionGen++
	ts.turnStartedAt = r.deps.Clock.Now()
	gen := ts.actionGen
	seatIndex := t.ActiveSeat
	r.schedule(r.cfg.ActionTimeout, func() {
		r.actionTimedOut(ts, gen, seatIndex)
	})
}

// actionTimedOut fires the synthesized action when the clock ran out on the
// same turn it was armed for.
func (r *Room) actionTimedOut(ts *tableState, gen uint64, seatIndex int) {
	if ts.actionGen != gen || ts.halted {
		return
	}
	t := ts.table
	if !t.HandActive() || t.ActiveSeat != seatIndex {
		return
	}
	seat := t.Seats[seatIndex]
	if seat.Status == game.SeatDisconnected {
		// The owner dropped before their turn came up, so no grace timer
		// exists for this seat yet. Arm one under the same generation; a
		// reconnect bumps the generation and cancels it.
		r.schedule(r.cfg.DisconnectGrace, func() {
			r.graceExpired(ts, gen, seatIndex, seat.PlayerID)
		})
		return
	}
	r.log.Info("action timeout", "table", t.ID, "player", seat.PlayerID, "seat", seatIndex)
	r.autoAct(ts, seatIndex)
}

// autoAct applies the server-synthesized action: check when free, else fold.
func (r *Room) autoAct(ts *tableState, seatIndex int) {
	t := ts.table
	seat := t.Seats[seatIndex]
	action := protocol.ActionCheck
	if t.CurrentBet-seat.CurrentBet != 0 {
		action = protocol.ActionFold
	}
	streetBefore := t.Street
	potBefore := t.Pot
	facing := t.CurrentBet - seat.CurrentBet
	headsUp := t.LiveSeatCount() == 2
	opponents := t.LiveSeatCount() - 1
	timeTaken := r.deps.Clock.Now().Sub(ts.turnStartedAt).Milliseconds()

	out, reject := t.ApplyAction(seatIndex, action, 0)
	if reject != nil {
		r.log.Error("synthesized action rejected", "table", t.ID, "seat", seatIndex, "reason", reject.Reason)
		return
	}

	// Synthesized actions feed the integrity stream the same as submitted
	// ones; timing analysis sees the full clock they consumed.
	if r.deps.Collector != nil {
		r.deps.Collector.Record(t.ID, t.HandID, integrity.PlayerActionPayload{
			PlayerID:    seat.PlayerID,
			SeatIndex:   seat.Index,
			Action:      string(out.Action),
			Amount:      out.Paid,
			Street:      streetBefore.String(),
			PotBefore:   potBefore,
			FacingBet:   facing,
			TimeTakenMs: timeTaken,
			HeadsUp:     headsUp,
			Opponents:   opponents,
		})
	}

	events := []*protocol.Event{r.newEvent(protocol.EventPlayerTimedOut, t.ID, protocol.PlayerTimedOutData{
		PlayerID: seat.PlayerID,
		Action:   action,
	})}
	events = append(events, r.applyOutcome(ts, out, streetBefore)...)
	r.publish(events...)
}

func (r *Room) handlePlayerAction(intent *protocol.Intent, sess session.Session) ([]*protocol.Event, *protocol.Reject) {
	payload := intent.PlayerAction
	if payload == nil {
		return nil, protocol.NewReject(protocol.CodeIllegalAction)
	}
	if _, ok := r.members[sess.PlayerID]; !ok {
		return nil, protocol.NewReject(protocol.CodeNotInRoom)
	}
	ts, reject := r.tableFor(intent)
	if reject != nil {
		return nil, reject
	}
	t := ts.table
	if !t.HandActive() {
		return nil, protocol.NewReject(protocol.CodeHandNotActive)
	}
	if intent.TableContext.HandID != t.HandID {
		return nil, protocol.NewRejectf(protocol.CodeInvalidHandID, "hand %s is not in progress", intent.TableContext.HandID)
	}
	seat := t.SeatOf(sess.PlayerID)
	if seat == nil {
		return nil, protocol.NewReject(protocol.CodeNotSeated)
	}

	streetBefore := t.Street
	potBefore := t.Pot
	facing := t.CurrentBet - seat.CurrentBet
	headsUp := t.LiveSeatCount() == 2
	opponents := t.LiveSeatCount() - 1
	timeTaken := r.deps.Clock.Now().Sub(ts.turnStartedAt).Milliseconds()

	out, reject := t.ApplyAction(seat.Index, payload.Action, payload.Amount)
	if reject != nil {
		return nil, reject
	}

	if r.deps.Collector != nil {
		r.deps.Collector.Record(t.ID, t.HandID, integrity.PlayerActionPayload{
			PlayerID:    sess.PlayerID,
			SeatIndex:   seat.Index,
			Action:      string(out.Action),
			Amount:      out.Paid,
			Street:      streetBefore.String(),
			PotBefore:   potBefore,
			FacingBet:   facing,
			TimeTakenMs: timeTaken,
			HeadsUp:     headsUp,
			Opponents:   opponents,
		})
	}

	return r.applyOutcome(ts, out, streetBefore), nil
}

// applyOutcome books the economy movement, commits, and emits the action
// event plus any street or hand-end follow-ups.
func (r *Room) applyOutcome(ts *tableState, out *game.ActionOutcome, streetBefore game.Street) []*protocol.Event {
	t := ts.table
	handID := t.HandID

	if out.Action == protocol.ActionFold {
		if err := r.deps.Economy.PlayerFolded(handID, out.PlayerID); err != nil {
			r.log.Error("fold bookkeeping failed", "player", out.PlayerID, "err", err)
		}
	} else if out.Paid > 0 {
		if err := r.deps.Economy.RecordAction(handID, out.PlayerID, streetBefore.String(), out.Paid, out.IsAllIn); err != nil {
			r.haltTable(ts, err)
			return nil
		}
	}

	r.commit(ts, false)

	events := []*protocol.Event{r.newEvent(protocol.EventActionPerformed, t.ID, protocol.ActionPerformedData{
		HandID:    handID,
		PlayerID:  out.PlayerID,
		SeatIndex: out.SeatIndex,
		Action:    out.Action,
		Amount:    out.Paid,
		NewStack:  out.NewStack,
		PotTotal:  out.PotTotal,
	})}

	for _, sc := range out.StreetChanges {
		events = append(events, r.newEvent(protocol.EventStreetChanged, t.ID, protocol.StreetChangedData{
			HandID:         handID,
			Street:         sc.Street.String(),
			CommunityCards: game.CardStrings(sc.Community),
		}))
		if r.deps.Collector != nil {
			r.deps.Collector.Record(t.ID, handID, integrity.StreetChangedPayload{
				Street:    sc.Street.String(),
				Community: game.CardStrings(sc.Community),
				PotSize:   t.Pot,
			})
		}
	}

	if out.HandOver {
		events = append(events, r.settle(ts, out.EndReason)...)
	} else {
		r.armActionTimer(ts)
	}

	if err := t.CheckInvariants(); err != nil {
		r.haltTable(ts, err)
	}
	return events
}

// afterForcedFold settles or re-arms the clock after a fold that bypassed
// ApplyAction, such as a player leaving mid-hand.
func (r *Room) afterForcedFold(ts *tableState) []*protocol.Event {
	t := ts.table
	if t.Street == game.StreetShowdown {
		reason := protocol.EndShowdown
		if t.LiveSeatCount() <= 1 {
			reason = protocol.EndAllFolded
		}
		return r.settle(ts, reason)
	}
	if t.HandActive() && t.ActiveSeat >= 0 {
		r.armActionTimer(ts)
	}
	return nil
}

// settle closes the hand: side pots, rake, payouts, ledger, events. Any
// settlement failure is unrecoverable and halts the table.
func (r *Room) settle(ts *tableState, reason protocol.EndReason) []*protocol.Event {
	t := ts.table
	handID := t.HandID
	ts.actionGen++ // cancel any pending action timer

	contribs := make([]economy.Contribution, 0)
	for _, sc := range t.Contributions() {
		contribs = append(contribs, economy.Contribution{
			PlayerID: sc.PlayerID,
			Total:    sc.Total,
			IsAllIn:  sc.AllIn,
			IsFolded: sc.Folded,
		})
	}
	pots := economy.ComputeSidePots(contribs)

	var live []string
	for _, s := range t.Seats {
		if s.LiveInHand() {
			live = append(live, s.PlayerID)
		}
	}

	winnersByPot := make(map[string][]string, len(pots))
	for _, pot := range pots {
		if reason == protocol.EndAllFolded {
			winnersByPot[pot.ID] = live
		} else {
			winnersByPot[pot.ID] = t.BestSeats(r.deps.Evaluator, pot.Eligible)
		}
	}

	showdownCount := len(live)
	if reason == protocol.EndAllFolded {
		showdownCount = 1
	}
	result, err := r.deps.Economy.SettleHand(handID, economy.HandClose{
		FinalStreet:       finalBettingStreet(t),
		SawFlop:           len(t.Community) >= 3,
		PlayersAtShowdown: showdownCount,
		WinnersByPot:      winnersByPot,
		Rank: func(eligible []string) []string {
			return t.BestSeats(r.deps.Evaluator, eligible)
		},
	})
	if err != nil {
		if errors.Is(err, economy.ErrAlreadySettled) {
			r.log.Error("settlement replayed", "hand", handID)
			return nil
		}
		r.haltTable(ts, err)
		return nil
	}

	// Credit table stacks to mirror the escrow awards.
	totals := make(map[string]int64)
	for _, p := range result.Payouts {
		if seat := t.SeatOf(p.PlayerID); seat != nil {
			seat.Stack += p.Amount
		}
		totals[p.PlayerID] += p.Amount
		if r.deps.Collector != nil {
			r.deps.Collector.Record(t.ID, handID, integrity.PotAwardedPayload{
				PotID:        p.PotID,
				WinnerID:     p.PlayerID,
				Amount:       p.Amount,
				Contributors: contributorIDs(contribs),
			})
		}
	}
	if r.deps.Collector != nil && result.Rake.RakeAmount > 0 {
		r.deps.Collector.Record(t.ID, handID, integrity.RakeCollectedPayload{Amount: result.Rake.RakeAmount})
	}

	winners := make([]protocol.HandWinner, 0, len(totals))
	for _, s := range t.Seats {
		amount, won := totals[s.PlayerID]
		if !won {
			continue
		}
		w := protocol.HandWinner{PlayerID: s.PlayerID, Amount: amount}
		if reason != protocol.EndAllFolded && len(s.HoleCards) > 0 {
			rank := r.deps.Evaluator.Evaluate(s.HoleCards, t.Community)
			w.HandDescription = r.deps.Evaluator.Describe(rank)
		}
		winners = append(winners, w)
	}

	if r.deps.Collector != nil {
		net := make(map[string]int64)
		for _, c := range contribs {
			net[c.PlayerID] -= c.Total
		}
		for id, amount := range totals {
			net[id] += amount
		}
		winnerIDs := make([]string, 0, len(winners))
		for _, w := range winners {
			winnerIDs = append(winnerIDs, w.PlayerID)
		}
		var showdownPlayers []string
		if reason != protocol.EndAllFolded {
			showdownPlayers = live
		}
		r.deps.Collector.Record(t.ID, handID, integrity.HandEndedPayload{
			Winners:         winnerIDs,
			EndReason:       string(reason),
			PotSize:         result.PotSize,
			FinalStreet:     finalBettingStreet(t),
			ShowdownPlayers: showdownPlayers,
			NetChips:        net,
		})
	}

	t.FinishHand()
	r.commit(ts, true)
	r.log.Info("hand ended", "table", t.ID, "hand", handID,
		"pot", result.PotSize, "rake", result.Rake.RakeAmount, "reason", reason)

	events := []*protocol.Event{r.newEvent(protocol.EventHandEnded, t.ID, protocol.HandEndedData{
		HandID:    handID,
		Winners:   winners,
		EndReason: reason,
		Rake:      result.Rake.RakeAmount,
	})}

	if err := r.deps.Economy.VerifyIntegrity(); err != nil {
		r.haltTable(ts, err)
		return events
	}

	// complete -> waiting after the configured delay.
	r.schedule(r.cfg.AutoStartDelay, func() {
		if ts.halted {
			return
		}
		t.ResetToWaiting()
		r.commit(ts, true)
		if r.cfg.AutoStart && t.CanStartHand() {
			r.startHand(ts)
		}
	})
	return events
}

// finalBettingStreet names the last betting street the hand reached, from
// the dealt community cards.
func finalBettingStreet(t *game.Table) string {
	switch {
	case len(t.Community) >= 5:
		return "river"
	case len(t.Community) == 4:
		return "turn"
	case len(t.Community) >= 3:
		return "flop"
	default:
		return "preflop"
	}
}

func contributorIDs(contribs []economy.Contribution) []string {
	out := make([]string, len(contribs))
	for i, c := range contribs {
		out[i] = c.PlayerID
	}
	return out
}

// haltTable freezes a table after an unrecoverable invariant violation.
// No automatic recovery is attempted.
func (r *Room) haltTable(ts *tableState, err error) {
	ts.halted = true
	ts.actionGen++
	r.log.Error("table halted", "table", ts.table.ID, "err", err)
}
