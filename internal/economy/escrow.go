package economy

import (
	"fmt"
	"sync"
)

// EscrowAccount is a player's chips at one table: stack is spendable at the
// table, committed is already pledged to the current hand.
type EscrowAccount struct {
	TableID   string
	PlayerID  string
	Stack     int64
	Committed int64
}

type escrowKey struct {
	tableID  string
	playerID string
}

// EscrowManager tracks per-(table, player) sub-accounts backed by locked
// balance chips.
type EscrowManager struct {
	mu       sync.RWMutex
	balances *BalanceManager
	accounts map[escrowKey]*EscrowAccount
}

// NewEscrowManager creates an escrow book over the balance manager.
func NewEscrowManager(balances *BalanceManager) *EscrowManager {
	return &EscrowManager{
		balances: balances,
		accounts: make(map[escrowKey]*EscrowAccount),
	}
}

// BuyIn locks amount on the player's balance and adds it to the table stack.
func (em *EscrowManager) BuyIn(tableID, playerID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("buy-in %d: %w", amount, ErrNegativeAmount)
	}
	if err := em.balances.Lock(playerID, amount); err != nil {
		return err
	}
	em.mu.Lock()
	defer em.mu.Unlock()
	key := escrowKey{tableID, playerID}
	acct, ok := em.accounts[key]
	if !ok {
		acct = &EscrowAccount{TableID: tableID, PlayerID: playerID}
		em.accounts[key] = acct
	}
	acct.Stack += amount
	return nil
}

// CashOut returns uncommitted stack chips to the player's available balance.
func (em *EscrowManager) CashOut(tableID, playerID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("cash-out %d: %w", amount, ErrNegativeAmount)
	}
	em.mu.Lock()
	defer em.mu.Unlock()
	acct, ok := em.accounts[escrowKey{tableID, playerID}]
	if !ok {
		return fmt.Errorf("escrow %s/%s: %w", tableID, playerID, ErrUnknownPlayer)
	}
	if amount > acct.Stack-acct.Committed {
		return fmt.Errorf("cash-out %d exceeds free stack %d: %w", amount, acct.Stack-acct.Committed, ErrInsufficientFunds)
	}
	if err := em.balances.Unlock(playerID, amount); err != nil {
		return err
	}
	acct.Stack -= amount
	return nil
}

// CommitChips pledges stack chips to the current hand, blocking cash-out.
func (em *EscrowManager) CommitChips(tableID, playerID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("commit %d: %w", amount, ErrNegativeAmount)
	}
	em.mu.Lock()
	defer em.mu.Unlock()
	acct, ok := em.accounts[escrowKey{tableID, playerID}]
	if !ok {
		return fmt.Errorf("escrow %s/%s: %w", tableID, playerID, ErrUnknownPlayer)
	}
	if acct.Committed+amount > acct.Stack {
		return fmt.Errorf("commit %d exceeds stack %d: %w", amount, acct.Stack-acct.Committed, ErrInsufficientFunds)
	}
	acct.Committed += amount
	return nil
}

// MoveToPot finalizes committed chips into the pot: they leave the stack and
// the player's locked balance.
func (em *EscrowManager) MoveToPot(tableID, playerID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("move %d: %w", amount, ErrNegativeAmount)
	}
	em.mu.Lock()
	defer em.mu.Unlock()
	acct, ok := em.accounts[escrowKey{tableID, playerID}]
	if !ok {
		return fmt.Errorf("escrow %s/%s: %w", tableID, playerID, ErrUnknownPlayer)
	}
	if amount > acct.Committed {
		return fmt.Errorf("move %d exceeds committed %d: %w", amount, acct.Committed, ErrInsufficientFunds)
	}
	if err := em.balances.SpendLocked(playerID, amount); err != nil {
		return err
	}
	acct.Committed -= amount
	acct.Stack -= amount
	return nil
}

// AwardPot credits pot winnings to the player's stack and locked balance.
func (em *EscrowManager) AwardPot(tableID, playerID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("award %d: %w", amount, ErrNegativeAmount)
	}
	em.mu.Lock()
	defer em.mu.Unlock()
	acct, ok := em.accounts[escrowKey{tableID, playerID}]
	if !ok {
		return fmt.Errorf("escrow %s/%s: %w", tableID, playerID, ErrUnknownPlayer)
	}
	if err := em.balances.CreditLocked(playerID, amount); err != nil {
		return err
	}
	acct.Stack += amount
	return nil
}

// Account returns a copy of the escrow account, or false when absent.
func (em *EscrowManager) Account(tableID, playerID string) (EscrowAccount, bool) {
	em.mu.RLock()
	defer em.mu.RUnlock()
	acct, ok := em.accounts[escrowKey{tableID, playerID}]
	if !ok {
		return EscrowAccount{}, false
	}
	return *acct, true
}

// ReleaseAll unwinds a table's escrow back to player balances, e.g. when a
// room closes. Committed chips of an aborted hand are returned too.
func (em *EscrowManager) ReleaseAll(tableID string) error {
	em.mu.Lock()
	defer em.mu.Unlock()
	for key, acct := range em.accounts {
		if key.tableID != tableID || acct.Stack == 0 {
			continue
		}
		if err := em.balances.Unlock(acct.PlayerID, acct.Stack); err != nil {
			return err
		}
		acct.Stack = 0
		acct.Committed = 0
	}
	return nil
}
