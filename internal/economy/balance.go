package economy

import (
	"errors"
	"fmt"
	"sync"
)

// Chip-accounting failures. These map onto the financial-integrity reject
// codes at the protocol boundary.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNegativeAmount    = errors.New("amount must be positive")
	ErrUnknownPlayer     = errors.New("unknown player")
	ErrBalanceExists     = errors.New("balance already exists")
)

// Balance is a player's chip position. Available chips can be spent or
// locked; locked chips back table escrow; pending chips await clearing.
type Balance struct {
	Available int64
	Locked    int64
	Pending   int64
}

// BalanceManager owns every player balance. All amounts are positive
// integers; no operation may drive available negative.
type BalanceManager struct {
	mu       sync.RWMutex
	balances map[string]*Balance
}

// NewBalanceManager creates an empty balance book.
func NewBalanceManager() *BalanceManager {
	return &BalanceManager{balances: make(map[string]*Balance)}
}

// CreateBalance registers a player with an opening available amount.
func (bm *BalanceManager) CreateBalance(playerID string, opening int64) error {
	if opening < 0 {
		return fmt.Errorf("opening balance %d: %w", opening, ErrNegativeAmount)
	}
	bm.mu.Lock()
	defer bm.mu.Unlock()
	if _, ok := bm.balances[playerID]; ok {
		return fmt.Errorf("player %s: %w", playerID, ErrBalanceExists)
	}
	bm.balances[playerID] = &Balance{Available: opening}
	return nil
}

// Get returns a copy of the player's balance.
func (bm *BalanceManager) Get(playerID string) (Balance, error) {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	b, ok := bm.balances[playerID]
	if !ok {
		return Balance{}, fmt.Errorf("player %s: %w", playerID, ErrUnknownPlayer)
	}
	return *b, nil
}

// Credit adds to the player's available chips.
func (bm *BalanceManager) Credit(playerID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("credit %d: %w", amount, ErrNegativeAmount)
	}
	bm.mu.Lock()
	defer bm.mu.Unlock()
	b, ok := bm.balances[playerID]
	if !ok {
		return fmt.Errorf("player %s: %w", playerID, ErrUnknownPlayer)
	}
	b.Available += amount
	return nil
}

// Debit removes from the player's available chips.
func (bm *BalanceManager) Debit(playerID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("debit %d: %w", amount, ErrNegativeAmount)
	}
	bm.mu.Lock()
	defer bm.mu.Unlock()
	b, ok := bm.balances[playerID]
	if !ok {
		return fmt.Errorf("player %s: %w", playerID, ErrUnknownPlayer)
	}
	if b.Available < amount {
		return fmt.Errorf("debit %d from %d available: %w", amount, b.Available, ErrInsufficientFunds)
	}
	b.Available -= amount
	return nil
}

// Lock moves chips from available to locked.
func (bm *BalanceManager) Lock(playerID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("lock %d: %w", amount, ErrNegativeAmount)
	}
	bm.mu.Lock()
	defer bm.mu.Unlock()
	b, ok := bm.balances[playerID]
	if !ok {
		return fmt.Errorf("player %s: %w", playerID, ErrUnknownPlayer)
	}
	if b.Available < amount {
		return fmt.Errorf("lock %d from %d available: %w", amount, b.Available, ErrInsufficientFunds)
	}
	b.Available -= amount
	b.Locked += amount
	return nil
}

// Unlock moves chips from locked back to available.
func (bm *BalanceManager) Unlock(playerID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("unlock %d: %w", amount, ErrNegativeAmount)
	}
	bm.mu.Lock()
	defer bm.mu.Unlock()
	b, ok := bm.balances[playerID]
	if !ok {
		return fmt.Errorf("player %s: %w", playerID, ErrUnknownPlayer)
	}
	if b.Locked < amount {
		return fmt.Errorf("unlock %d from %d locked: %w", amount, b.Locked, ErrInsufficientFunds)
	}
	b.Locked -= amount
	b.Available += amount
	return nil
}

// SpendLocked consumes locked chips, e.g. when escrowed chips leave for the
// pot permanently.
func (bm *BalanceManager) SpendLocked(playerID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("spend %d: %w", amount, ErrNegativeAmount)
	}
	bm.mu.Lock()
	defer bm.mu.Unlock()
	b, ok := bm.balances[playerID]
	if !ok {
		return fmt.Errorf("player %s: %w", playerID, ErrUnknownPlayer)
	}
	if b.Locked < amount {
		return fmt.Errorf("spend %d from %d locked: %w", amount, b.Locked, ErrInsufficientFunds)
	}
	b.Locked -= amount
	return nil
}

// CreditLocked adds chips directly to the locked tier, e.g. pot winnings
// landing in table escrow.
func (bm *BalanceManager) CreditLocked(playerID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("credit %d: %w", amount, ErrNegativeAmount)
	}
	bm.mu.Lock()
	defer bm.mu.Unlock()
	b, ok := bm.balances[playerID]
	if !ok {
		return fmt.Errorf("player %s: %w", playerID, ErrUnknownPlayer)
	}
	b.Locked += amount
	return nil
}

// Transfer atomically debits from and credits to. On any failure neither
// side changes.
func (bm *BalanceManager) Transfer(from, to string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("transfer %d: %w", amount, ErrNegativeAmount)
	}
	bm.mu.Lock()
	defer bm.mu.Unlock()
	src, ok := bm.balances[from]
	if !ok {
		return fmt.Errorf("player %s: %w", from, ErrUnknownPlayer)
	}
	dst, ok := bm.balances[to]
	if !ok {
		return fmt.Errorf("player %s: %w", to, ErrUnknownPlayer)
	}
	if src.Available < amount {
		return fmt.Errorf("transfer %d from %d available: %w", amount, src.Available, ErrInsufficientFunds)
	}
	src.Available -= amount
	dst.Available += amount
	return nil
}
