package room

import (
	"errors"

	"github.com/tablestakes/cardroom/internal/economy"
	"github.com/tablestakes/cardroom/internal/integrity"
	"github.com/tablestakes/cardroom/internal/protocol"
	"github.com/tablestakes/cardroom/internal/session"
	"github.com/tablestakes/cardroom/internal/syncer"
)

// tableFor resolves a table-scoped intent and validates its sequence. An
// intent one behind is stale; more than one ahead means the client counter
// is corrupt.
func (r *Room) tableFor(intent *protocol.Intent) (*tableState, *protocol.Reject) {
	tc := intent.TableContext
	if tc == nil || tc.TableID == "" {
		return nil, protocol.NewReject(protocol.CodeInvalidTableID)
	}
	ts, ok := r.tables[tc.TableID]
	if !ok {
		return nil, protocol.NewRejectf(protocol.CodeInvalidTableID, "table %s not in room", tc.TableID)
	}
	if ts.halted {
		return nil, protocol.NewReject(protocol.CodeMaintenance)
	}
	seq := ts.table.Sequence
	if tc.Sequence < seq {
		return nil, protocol.NewRejectf(protocol.CodeStaleIntent, "sequence %d behind current %d", tc.Sequence, seq)
	}
	if tc.Sequence > seq+1 {
		return nil, protocol.NewRejectf(protocol.CodeSequenceMismatch, "sequence %d ahead of current %d", tc.Sequence, seq)
	}
	return ts, nil
}

func (r *Room) handleJoin(intent *protocol.Intent, sess session.Session) ([]*protocol.Event, *protocol.Reject) {
	payload := intent.JoinRoom
	if payload == nil {
		return nil, protocol.NewReject(protocol.CodeIllegalAction)
	}
	if payload.RoomID != "" && payload.RoomID != r.ID {
		return nil, protocol.NewRejectf(protocol.CodeRoomNotFound, "room %s not served here", payload.RoomID)
	}
	if _, ok := r.members[sess.PlayerID]; ok {
		return nil, protocol.NewReject(protocol.CodeAlreadyInRoom)
	}
	if r.cfg.MaxMembers > 0 && len(r.members) >= r.cfg.MaxMembers {
		return nil, protocol.NewReject(protocol.CodeRoomFull)
	}

	r.members[sess.PlayerID] = &member{
		playerID:    sess.PlayerID,
		displayName: sess.DisplayName,
		sessionID:   sess.ID,
		seatIndex:   -1,
		spectator:   payload.AsSpectator,
	}
	r.deps.Sessions.SetLocation(sess.ID, r.ID, "", -1, payload.AsSpectator)
	r.log.Info("player joined", "player", sess.PlayerID, "spectator", payload.AsSpectator)

	joined := r.newEvent(protocol.EventRoomJoined, "", protocol.RoomJoinedData{
		RoomID:      r.ID,
		PlayerID:    sess.PlayerID,
		AsSpectator: payload.AsSpectator,
	}).For(sess.PlayerID)
	presence := r.newEvent(protocol.EventPlayerJoined, "", protocol.PlayerPresenceData{
		RoomID:      r.ID,
		PlayerID:    sess.PlayerID,
		DisplayName: sess.DisplayName,
	})
	return []*protocol.Event{joined, presence}, nil
}

func (r *Room) handleLeave(intent *protocol.Intent, sess session.Session) ([]*protocol.Event, *protocol.Reject) {
	m, ok := r.members[sess.PlayerID]
	if !ok {
		return nil, protocol.NewReject(protocol.CodeNotInRoom)
	}

	var events []*protocol.Event
	if m.tableID != "" {
		vacateEvents, reject := r.vacateSeat(m)
		if reject != nil {
			return nil, reject
		}
		events = append(events, vacateEvents...)
	}

	delete(r.members, sess.PlayerID)
	r.deps.Sessions.SetLocation(sess.ID, "", "", -1, false)
	r.log.Info("player left", "player", sess.PlayerID)

	events = append(events,
		r.newEvent(protocol.EventRoomLeft, "", protocol.RoomLeftData{
			RoomID:   r.ID,
			PlayerID: sess.PlayerID,
		}).For(sess.PlayerID),
		r.newEvent(protocol.EventPlayerLeft, "", protocol.PlayerPresenceData{
			RoomID:   r.ID,
			PlayerID: sess.PlayerID,
		}),
	)
	return events, nil
}

func (r *Room) handleTakeSeat(intent *protocol.Intent, sess session.Session) ([]*protocol.Event, *protocol.Reject) {
	payload := intent.TakeSeat
	if payload == nil {
		return nil, protocol.NewReject(protocol.CodeIllegalAction)
	}
	m, ok := r.members[sess.PlayerID]
	if !ok {
		return nil, protocol.NewReject(protocol.CodeNotInRoom)
	}
	ts, reject := r.tableFor(intent)
	if reject != nil {
		return nil, reject
	}
	if payload.BuyInAmount < r.cfg.MinBuyIn {
		return nil, protocol.NewRejectf(protocol.CodeBuyInTooSmall, "minimum buy-in is %d", r.cfg.MinBuyIn)
	}
	if payload.BuyInAmount > r.cfg.MaxBuyIn {
		return nil, protocol.NewRejectf(protocol.CodeBuyInTooLarge, "maximum buy-in is %d", r.cfg.MaxBuyIn)
	}

	tableID := ts.table.ID
	if err := r.deps.Economy.BuyIn(tableID, sess.PlayerID, payload.BuyInAmount); err != nil {
		if errors.Is(err, economy.ErrInsufficientFunds) {
			return nil, protocol.NewReject(protocol.CodeInsufficientFunds)
		}
		r.log.Error("buy-in failed", "player", sess.PlayerID, "err", err)
		return nil, protocol.NewReject(protocol.CodeInternal)
	}
	if reject := ts.table.TakeSeat(sess.PlayerID, sess.DisplayName, payload.SeatIndex, payload.BuyInAmount); reject != nil {
		if err := r.deps.Economy.CashOut(tableID, sess.PlayerID, payload.BuyInAmount); err != nil {
			r.log.Error("buy-in unwind failed", "player", sess.PlayerID, "err", err)
		}
		return nil, reject
	}

	m.tableID = tableID
	m.seatIndex = payload.SeatIndex
	m.spectator = false
	r.deps.Sessions.SetLocation(sess.ID, r.ID, tableID, payload.SeatIndex, false)
	r.commit(ts, true)

	if r.deps.Collector != nil {
		r.deps.Collector.Record(tableID, "", integrity.PlayerJoinedPayload{
			PlayerID:  sess.PlayerID,
			SeatIndex: payload.SeatIndex,
			Stack:     payload.BuyInAmount,
		})
	}

	events := []*protocol.Event{r.newEvent(protocol.EventSeatTaken, tableID, protocol.SeatTakenData{
		TableID:   tableID,
		SeatIndex: payload.SeatIndex,
		PlayerID:  sess.PlayerID,
		Stack:     payload.BuyInAmount,
	})}
	r.maybeScheduleAutoStart(ts)
	return events, nil
}

func (r *Room) handleLeaveSeat(intent *protocol.Intent, sess session.Session) ([]*protocol.Event, *protocol.Reject) {
	m, ok := r.members[sess.PlayerID]
	if !ok {
		return nil, protocol.NewReject(protocol.CodeNotInRoom)
	}
	if _, reject := r.tableFor(intent); reject != nil {
		return nil, reject
	}
	return r.vacateSeat(m)
}

// vacateSeat removes the member's seat, folding them out of a live hand and
// cashing the remaining stack back to their balance.
func (r *Room) vacateSeat(m *member) ([]*protocol.Event, *protocol.Reject) {
	ts, ok := r.tables[m.tableID]
	if !ok {
		return nil, protocol.NewReject(protocol.CodeNotSeated)
	}
	tableID := ts.table.ID

	inHand := ts.table.HandActive()
	vacated, reject := ts.table.LeaveSeat(m.playerID)
	if reject != nil {
		return nil, reject
	}
	if inHand {
		if err := r.deps.Economy.PlayerFolded(ts.table.HandID, m.playerID); err != nil {
			r.log.Error("fold bookkeeping failed", "player", m.playerID, "err", err)
		}
	}
	if vacated.Stack > 0 {
		if err := r.deps.Economy.CashOut(tableID, m.playerID, vacated.Stack); err != nil {
			r.log.Error("cash-out failed", "player", m.playerID, "err", err)
		}
	}

	m.tableID = ""
	m.seatIndex = -1
	r.deps.Sessions.SetLocation(m.sessionID, r.ID, "", -1, false)
	r.deps.Sync.Forget(tableID, m.playerID)
	r.commit(ts, true)

	if r.deps.Collector != nil {
		r.deps.Collector.Record(tableID, ts.table.HandID, integrity.PlayerLeftPayload{
			PlayerID: m.playerID,
			Stack:    vacated.Stack,
		})
	}

	events := []*protocol.Event{r.newEvent(protocol.EventSeatVacated, tableID, protocol.SeatVacatedData{
		TableID:   tableID,
		SeatIndex: vacated.Index,
		PlayerID:  m.playerID,
	})}
	events = append(events, r.afterForcedFold(ts)...)
	return events, nil
}

func (r *Room) handleStandUp(intent *protocol.Intent, sess session.Session) ([]*protocol.Event, *protocol.Reject) {
	if _, ok := r.members[sess.PlayerID]; !ok {
		return nil, protocol.NewReject(protocol.CodeNotInRoom)
	}
	ts, reject := r.tableFor(intent)
	if reject != nil {
		return nil, reject
	}
	if reject := ts.table.StandUp(sess.PlayerID); reject != nil {
		return nil, reject
	}
	r.commit(ts, true)
	seat := ts.table.SeatOf(sess.PlayerID)
	return []*protocol.Event{r.newEvent(protocol.EventPlayerSatOut, ts.table.ID, protocol.SeatStatusData{
		TableID:   ts.table.ID,
		SeatIndex: seat.Index,
		PlayerID:  sess.PlayerID,
	})}, nil
}

func (r *Room) handleSitBack(intent *protocol.Intent, sess session.Session) ([]*protocol.Event, *protocol.Reject) {
	if _, ok := r.members[sess.PlayerID]; !ok {
		return nil, protocol.NewReject(protocol.CodeNotInRoom)
	}
	ts, reject := r.tableFor(intent)
	if reject != nil {
		return nil, reject
	}
	if reject := ts.table.SitBack(sess.PlayerID); reject != nil {
		return nil, reject
	}
	r.commit(ts, true)
	seat := ts.table.SeatOf(sess.PlayerID)
	events := []*protocol.Event{r.newEvent(protocol.EventPlayerSatBack, ts.table.ID, protocol.SeatStatusData{
		TableID:   ts.table.ID,
		SeatIndex: seat.Index,
		PlayerID:  sess.PlayerID,
	})}
	r.maybeScheduleAutoStart(ts)
	return events, nil
}

func (r *Room) handleRequestSync(intent *protocol.Intent, sess session.Session) ([]*protocol.Event, *protocol.Reject) {
	if _, ok := r.members[sess.PlayerID]; !ok {
		return nil, protocol.NewReject(protocol.CodeNotInRoom)
	}
	tc := intent.TableContext
	if tc == nil || tc.TableID == "" {
		return nil, protocol.NewReject(protocol.CodeInvalidTableID)
	}
	ts, ok := r.tables[tc.TableID]
	if !ok {
		return nil, protocol.NewRejectf(protocol.CodeInvalidTableID, "table %s not in room", tc.TableID)
	}

	var fromSequence *uint64
	if intent.RequestSync != nil {
		fromSequence = intent.RequestSync.FromSequence
	}

	resp, err := r.deps.Sync.GenerateSyncResponse(r.roomView(sess.PlayerID), ts.table, sess.PlayerID, fromSequence)
	if err != nil {
		r.log.Error("sync response failed", "player", sess.PlayerID, "err", err)
		return nil, protocol.NewReject(protocol.CodeInternal)
	}
	if resp.Snapshot != nil {
		return []*protocol.Event{
			r.newEvent(protocol.EventSnapshot, ts.table.ID, resp.Snapshot).For(sess.PlayerID),
		}, nil
	}
	return []*protocol.Event{
		r.newEvent(protocol.EventDiff, ts.table.ID, resp.Diff).For(sess.PlayerID),
	}, nil
}

func (r *Room) handleHeartbeat(intent *protocol.Intent, sess session.Session) ([]*protocol.Event, *protocol.Reject) {
	if intent.Heartbeat == nil {
		return nil, protocol.NewReject(protocol.CodeIllegalAction)
	}
	ack, err := r.deps.Sessions.Heartbeat(sess.ID, intent.Heartbeat.ClientTime)
	if err != nil {
		return nil, protocol.NewReject(protocol.CodeInvalidSession)
	}
	return []*protocol.Event{
		r.newEvent(protocol.EventHeartbeatAck, "", protocol.HeartbeatAckData{
			ServerTime: ack.ServerTime,
			ClientTime: ack.ClientTime,
			LatencyMs:  ack.LatencyMs,
		}).For(sess.PlayerID),
	}, nil
}

// roomView projects every table for the viewer.
func (r *Room) roomView(viewerID string) syncer.RoomView {
	view := syncer.RoomView{RoomID: r.ID}
	for _, id := range r.order {
		view.Tables = append(view.Tables, syncer.ProjectTable(r.tables[id].table, viewerID))
	}
	for id, m := range r.members {
		if m.spectator {
			view.Spectators = append(view.Spectators, id)
		} else {
			view.Players = append(view.Players, id)
		}
	}
	return view
}

// NotifyDisconnect routes a session-manager disconnect into the room
// serializer.
func (r *Room) NotifyDisconnect(playerID string) {
	select {
	case r.tasks <- func() { r.playerDisconnected(playerID) }:
	case <-r.done:
	}
}

// NotifyReconnect routes a session resume into the room serializer.
func (r *Room) NotifyReconnect(playerID string) {
	select {
	case r.tasks <- func() { r.playerReconnected(playerID) }:
	case <-r.done:
	}
}

func (r *Room) playerDisconnected(playerID string) {
	m, ok := r.members[playerID]
	if !ok || m.tableID == "" {
		return
	}
	ts, ok := r.tables[m.tableID]
	if !ok {
		return
	}
	t := ts.table

	t.MarkDisconnected(playerID, r.deps.Clock.Now())
	seat := t.SeatOf(playerID)
	if seat == nil {
		return
	}
	r.commit(ts, true)
	r.publish(r.newEvent(protocol.EventPlayerDisconnected, t.ID, protocol.PlayerDisconnectedData{
		PlayerID:              playerID,
		GraceSecondsRemaining: int(r.cfg.DisconnectGrace.Seconds()),
	}))

	// Hold action for the grace window if it is this seat's turn.
	if t.HandActive() && t.ActiveSeat == seat.Index {
		ts.actionGen++
		gen := ts.actionGen
		seatIndex := seat.Index
		r.schedule(r.cfg.DisconnectGrace, func() {
			r.graceExpired(ts, gen, seatIndex, playerID)
		})
	}
}

func (r *Room) playerReconnected(playerID string) {
	m, ok := r.members[playerID]
	if !ok || m.tableID == "" {
		return
	}
	ts, ok := r.tables[m.tableID]
	if !ok {
		return
	}
	t := ts.table

	t.MarkReconnected(playerID)
	seat := t.SeatOf(playerID)
	r.commit(ts, true)
	r.publish(r.newEvent(protocol.EventPlayerReconnected, t.ID, protocol.PlayerReconnectedData{
		PlayerID: playerID,
	}))

	if seat != nil && t.HandActive() && t.ActiveSeat == seat.Index {
		r.armActionTimer(ts)
	}
}

// graceExpired fires the configured auto-action for a seat whose owner
// never came back.
func (r *Room) graceExpired(ts *tableState, gen uint64, seatIndex int, playerID string) {
	if ts.actionGen != gen {
		return
	}
	t := ts.table
	if !t.HandActive() || t.ActiveSeat != seatIndex {
		return
	}
	seat := t.Seats[seatIndex]
	if seat.PlayerID != playerID {
		return
	}
	r.log.Info("disconnect grace expired", "player", playerID, "seat", seatIndex)
	r.autoAct(ts, seatIndex)
}
