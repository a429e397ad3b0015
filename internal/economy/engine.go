package economy

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tablestakes/cardroom/internal/ledger"
)

var (
	ErrAlreadySettled = errors.New("hand already settled")
	ErrUnknownHand    = errors.New("unknown hand")
)

// SettlementResult reports a hand's close-out.
type SettlementResult struct {
	HandID   string
	PotSize  int64
	Rake     RakeResult
	Payouts  []Payout
	SidePots []SidePot
}

// HandClose carries the facts SettleHand needs about how the hand ended.
type HandClose struct {
	FinalStreet       string
	SawFlop           bool
	PlayersAtShowdown int
	WinnersByPot      map[string][]string
	Rank              func(eligible []string) []string
}

type handBook struct {
	tableID string
	tracker *PotTracker
	entries []string
	settled bool
}

// Engine is the hand-level economy surface the room authority drives. It
// wires balances, escrow, pot tracking, rake and the ledger; every chip
// movement lands in the ledger chain.
type Engine struct {
	mu       sync.Mutex
	balances *BalanceManager
	escrow   *EscrowManager
	ledger   *ledger.Manager
	rakeCfg  RakeConfig
	hands    map[string]*handBook
	now      func() time.Time
}

// NewEngine creates an economy engine. now is injected for rake waiver
// expiry checks; nil falls back to the wall clock.
func NewEngine(led *ledger.Manager, rakeCfg RakeConfig, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	balances := NewBalanceManager()
	// The rake account must exist before the first rake entry lands.
	if _, ok := led.Balance(ledger.HouseAccount); !ok {
		led.SetInitialBalance(ledger.HouseAccount, 0)
	}
	return &Engine{
		balances: balances,
		escrow:   NewEscrowManager(balances),
		ledger:   led,
		rakeCfg:  rakeCfg,
		hands:    make(map[string]*handBook),
		now:      now,
	}
}

// Balances exposes the balance book.
func (e *Engine) Balances() *BalanceManager { return e.balances }

// Escrow exposes the escrow book.
func (e *Engine) Escrow() *EscrowManager { return e.escrow }

// Ledger exposes the append-only ledger.
func (e *Engine) Ledger() *ledger.Manager { return e.ledger }

// InitializePlayer creates the balance and the ledger's zeroth entry.
func (e *Engine) InitializePlayer(playerID string, opening int64) error {
	if err := e.balances.CreateBalance(playerID, opening); err != nil {
		return err
	}
	if _, err := e.ledger.SetInitialBalance(playerID, opening); err != nil {
		return err
	}
	return nil
}

// BuyIn locks balance chips into table escrow.
func (e *Engine) BuyIn(tableID, playerID string, amount int64) error {
	return e.escrow.BuyIn(tableID, playerID, amount)
}

// CashOut releases uncommitted escrow back to the balance.
func (e *Engine) CashOut(tableID, playerID string, amount int64) error {
	return e.escrow.CashOut(tableID, playerID, amount)
}

// StartHand opens the pot book for a hand.
func (e *Engine) StartHand(handID, tableID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if book, ok := e.hands[handID]; ok && book.settled {
		return fmt.Errorf("hand %s: %w", handID, ErrAlreadySettled)
	}
	e.hands[handID] = &handBook{tableID: tableID, tracker: NewPotTracker(handID)}
	return nil
}

// PostBlind moves a forced bet into the pot.
func (e *Engine) PostBlind(handID, playerID string, amount int64, allIn bool) error {
	return e.contribute(handID, playerID, "preflop", amount, allIn, ledger.KindBlindPost)
}

// RecordAction moves a voluntary bet into the pot.
func (e *Engine) RecordAction(handID, playerID, street string, amount int64, allIn bool) error {
	return e.contribute(handID, playerID, street, amount, allIn, ledger.KindBet)
}

func (e *Engine) contribute(handID, playerID, street string, amount int64, allIn bool, kind ledger.EntryKind) error {
	if amount <= 0 {
		return fmt.Errorf("contribution %d: %w", amount, ErrNegativeAmount)
	}
	e.mu.Lock()
	book, ok := e.hands[handID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("hand %s: %w", handID, ErrUnknownHand)
	}
	if book.settled {
		return fmt.Errorf("hand %s: %w", handID, ErrAlreadySettled)
	}

	if err := e.escrow.CommitChips(book.tableID, playerID, amount); err != nil {
		return err
	}
	if err := e.escrow.MoveToPot(book.tableID, playerID, amount); err != nil {
		return err
	}
	if err := book.tracker.Add(playerID, street, amount, allIn); err != nil {
		return err
	}
	entry, err := e.ledger.Record(ledger.Entry{
		Kind:     kind,
		Amount:   -amount,
		PlayerID: playerID,
		HandID:   handID,
		TableID:  book.tableID,
	})
	if err != nil {
		return err
	}
	e.mu.Lock()
	book.entries = append(book.entries, entry.ID)
	e.mu.Unlock()
	return nil
}

// PlayerFolded flags the player; their chips stay in the pot.
func (e *Engine) PlayerFolded(handID, playerID string) error {
	e.mu.Lock()
	book, ok := e.hands[handID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("hand %s: %w", handID, ErrUnknownHand)
	}
	book.tracker.MarkFolded(playerID)
	return nil
}

// PotTotal returns the chips in the hand's pot so far.
func (e *Engine) PotTotal(handID string) int64 {
	e.mu.Lock()
	book, ok := e.hands[handID]
	e.mu.Unlock()
	if !ok {
		return 0
	}
	return book.tracker.Total()
}

// SettleHand computes side pots, takes rake from the top layers down, pays
// winners and writes the settlement to the ledger. A second call for the
// same hand fails with ErrAlreadySettled and changes nothing.
func (e *Engine) SettleHand(handID string, hc HandClose) (*SettlementResult, error) {
	e.mu.Lock()
	book, ok := e.hands[handID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("hand %s: %w", handID, ErrUnknownHand)
	}
	if book.settled {
		e.mu.Unlock()
		return nil, fmt.Errorf("hand %s: %w", handID, ErrAlreadySettled)
	}
	e.mu.Unlock()

	contribs := book.tracker.Contributions()
	pots := ComputeSidePots(contribs)
	if err := VerifyConservation(contribs, pots); err != nil {
		return nil, err
	}
	potSize := book.tracker.Total()

	rake := CalculateRake(e.rakeCfg, HandFacts{
		Pot:               potSize,
		FinalStreet:       hc.FinalStreet,
		SawFlop:           hc.SawFlop,
		PlayersAtShowdown: hc.PlayersAtShowdown,
		Now:               e.now(),
	})

	// Rake is consumed from the top layer down; a thin top layer carries
	// the remainder into the next layer so no layer goes negative and
	// payouts plus rake always equal the contributions.
	if rake.RakeAmount > 0 {
		remaining := rake.RakeAmount
		for i := len(pots) - 1; i >= 0 && remaining > 0; i-- {
			take := remaining
			if take > pots[i].Amount {
				take = pots[i].Amount
			}
			pots[i].Amount -= take
			remaining -= take
		}
	}

	payouts, err := SettlePots(pots, hc.WinnersByPot, hc.Rank)
	if err != nil {
		return nil, err
	}

	entryIDs := append([]string(nil), book.entries...)
	for _, p := range payouts {
		if err := e.escrow.AwardPot(book.tableID, p.PlayerID, p.Amount); err != nil {
			return nil, err
		}
		entry, err := e.ledger.Record(ledger.Entry{
			Kind:     ledger.KindPotWin,
			Amount:   p.Amount,
			PlayerID: p.PlayerID,
			HandID:   handID,
			TableID:  book.tableID,
		})
		if err != nil {
			return nil, err
		}
		entryIDs = append(entryIDs, entry.ID)
	}
	if rake.RakeAmount > 0 {
		entry, err := e.ledger.Record(ledger.Entry{
			Kind:     ledger.KindRake,
			Amount:   rake.RakeAmount,
			PlayerID: ledger.HouseAccount,
			HandID:   handID,
			TableID:  book.tableID,
		})
		if err != nil {
			return nil, err
		}
		entryIDs = append(entryIDs, entry.ID)
	}

	if _, err := e.ledger.RecordSettlement(handID, handID, book.tableID, potSize, rake.RakeAmount, rake.PotAfterRake, entryIDs); err != nil {
		if errors.Is(err, ledger.ErrDuplicateSettlement) {
			return nil, fmt.Errorf("hand %s: %w", handID, ErrAlreadySettled)
		}
		return nil, err
	}

	e.mu.Lock()
	book.settled = true
	e.mu.Unlock()

	return &SettlementResult{
		HandID:   handID,
		PotSize:  potSize,
		Rake:     rake,
		Payouts:  payouts,
		SidePots: pots,
	}, nil
}

// GetPlayerStack returns the player's live stack at the table.
func (e *Engine) GetPlayerStack(tableID, playerID string) int64 {
	acct, ok := e.escrow.Account(tableID, playerID)
	if !ok {
		return 0
	}
	return acct.Stack
}

// ReleaseTable unwinds all escrow for a closing table.
func (e *Engine) ReleaseTable(tableID string) error {
	return e.escrow.ReleaseAll(tableID)
}

// VerifyIntegrity checks the ledger chain and per-hand conservation of
// every settled hand. Any failure here is unrecoverable for the table.
func (e *Engine) VerifyIntegrity() error {
	if d := e.ledger.VerifyIntegrity(); d != nil {
		return d
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for handID, book := range e.hands {
		if !book.settled {
			continue
		}
		if err := e.ledger.VerifyHandConservation(handID); err != nil {
			return err
		}
	}
	return nil
}
