package syncer

import "github.com/tablestakes/cardroom/internal/game"

// SeatView is a viewer-specific projection of a seat. HoleCards is nil
// unless the viewer owns the seat or the hand has reached showdown.
type SeatView struct {
	Index            int      `json:"index"`
	PlayerID         string   `json:"playerId,omitempty"`
	DisplayName      string   `json:"displayName,omitempty"`
	Stack            int64    `json:"stack"`
	CurrentBet       int64    `json:"currentBet"`
	TotalBetThisHand int64    `json:"totalBetThisHand"`
	Status           string   `json:"status"`
	HoleCards        []string `json:"holeCards,omitempty"`
	Dealer           bool     `json:"dealer"`
	InHand           bool     `json:"inHand"`
}

// TableView is a viewer-specific projection of a table at one sequence.
type TableView struct {
	TableID    string     `json:"tableId"`
	HandID     string     `json:"handId,omitempty"`
	HandNumber uint64     `json:"handNumber"`
	Street     string     `json:"street"`
	Seats      []SeatView `json:"seats"`
	Community  []string   `json:"community,omitempty"`
	Pot        int64      `json:"pot"`
	CurrentBet int64      `json:"currentBet"`
	MinRaise   int64      `json:"minRaise"`
	DealerSeat int        `json:"dealerSeat"`
	ActiveSeat int        `json:"activeSeat"`
	Sequence   uint64     `json:"sequence"`
}

// RoomView is the room-level projection carried by a full snapshot.
type RoomView struct {
	RoomID     string      `json:"roomId"`
	Tables     []TableView `json:"tables"`
	Players    []string    `json:"players"`
	Spectators []string    `json:"spectators,omitempty"`
}

// ProjectTable builds the viewer's projection. Hole cards leak only to
// their owner until the table reaches showdown.
func ProjectTable(t *game.Table, viewerID string) TableView {
	reveal := t.Street == game.StreetShowdown || t.Street == game.StreetComplete

	view := TableView{
		TableID:    t.ID,
		HandID:     t.HandID,
		HandNumber: t.HandNumber,
		Street:     t.Street.String(),
		Seats:      make([]SeatView, len(t.Seats)),
		Community:  game.CardStrings(t.Community),
		Pot:        t.Pot,
		CurrentBet: t.CurrentBet,
		MinRaise:   t.MinRaise,
		DealerSeat: t.DealerSeat,
		ActiveSeat: t.ActiveSeat,
		Sequence:   t.Sequence,
	}
	for i, s := range t.Seats {
		sv := SeatView{
			Index:            s.Index,
			PlayerID:         s.PlayerID,
			DisplayName:      s.DisplayName,
			Stack:            s.Stack,
			CurrentBet:       s.CurrentBet,
			TotalBetThisHand: s.TotalBetThisHand,
			Status:           s.Status.String(),
			Dealer:           s.Dealer,
			InHand:           s.InHand,
		}
		if len(s.HoleCards) > 0 && (s.PlayerID == viewerID || (reveal && s.LiveInHand())) {
			sv.HoleCards = game.CardStrings(s.HoleCards)
		}
		view.Seats[i] = sv
	}
	return view
}
