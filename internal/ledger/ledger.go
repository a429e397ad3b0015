package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tablestakes/cardroom/internal/gameid"
)

// EntryKind classifies a ledger movement.
type EntryKind string

const (
	KindInitial   EntryKind = "initial-balance"
	KindBuyIn     EntryKind = "buy-in"
	KindCashOut   EntryKind = "cash-out"
	KindBlindPost EntryKind = "blind-post"
	KindBet       EntryKind = "bet"
	KindPotWin    EntryKind = "pot-win"
	KindRake      EntryKind = "rake"
	KindTransfer  EntryKind = "transfer"
)

// HouseAccount is the subject used for rake entries.
const HouseAccount = "house"

var (
	ErrDuplicateSettlement = errors.New("duplicate settlement")
	ErrUnknownSubject      = errors.New("unknown subject")
)

// Entry is one append-only ledger record. Amount is signed: debits against
// the subject are negative, credits positive. Hash chains to the previous
// entry regardless of subject.
type Entry struct {
	ID           string    `json:"id"`
	Kind         EntryKind `json:"kind"`
	Amount       int64     `json:"amount"`
	PlayerID     string    `json:"playerId"`
	HandID       string    `json:"handId,omitempty"`
	TableID      string    `json:"tableId,omitempty"`
	ClubID       string    `json:"clubId,omitempty"`
	BalanceAfter int64     `json:"balanceAfter"`
	Timestamp    time.Time `json:"timestamp"`
	PreviousHash string    `json:"previousHash"`
	Hash         string    `json:"hash"`
}

// canonical serializes every field except Hash in a fixed order; the digest
// of this string is the entry hash.
func (e *Entry) canonical() string {
	return fmt.Sprintf("%s|%s|%d|%s|%s|%s|%s|%d|%d|%s",
		e.ID, e.Kind, e.Amount, e.PlayerID, e.HandID, e.TableID, e.ClubID,
		e.BalanceAfter, e.Timestamp.UnixNano(), e.PreviousHash)
}

func (e *Entry) computeHash() string {
	sum := sha256.Sum256([]byte(e.canonical()))
	return hex.EncodeToString(sum[:])
}

// Settlement records a hand's financial close-out. SettlementID uniqueness
// is enforced so a replayed close-out is rejected.
type Settlement struct {
	SettlementID string
	HandID       string
	TableID      string
	PotSize      int64
	Rake         int64
	PotAfterRake int64
	EntryIDs     []string
	RecordedAt   time.Time
}

// Manager is the append-only ledger. Writes are globally serialized: the
// hash chain requires a strict append order.
type Manager struct {
	mu          sync.RWMutex
	entries     []Entry
	balances    map[string]int64
	settlements map[string]Settlement
	ids         *gameid.Generator
	now         func() time.Time
}

// NewManager creates an empty ledger. now is injected; nil falls back to the
// wall clock.
func NewManager(ids *gameid.Generator, now func() time.Time) *Manager {
	if ids == nil {
		ids = gameid.NewGenerator(nil, nil)
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{
		balances:    make(map[string]int64),
		settlements: make(map[string]Settlement),
		ids:         ids,
		now:         now,
	}
}

// SetInitialBalance appends the zeroth entry for a subject.
func (m *Manager) SetInitialBalance(playerID string, amount int64) (Entry, error) {
	if amount < 0 {
		return Entry{}, fmt.Errorf("initial balance %d must not be negative", amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[playerID]; ok {
		return Entry{}, fmt.Errorf("subject %s already has an initial balance", playerID)
	}
	return m.append(Entry{Kind: KindInitial, Amount: amount, PlayerID: playerID})
}

// Record appends an entry, filling id, previousHash, hash and balanceAfter.
func (m *Manager) Record(e Entry) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[e.PlayerID]; !ok {
		return Entry{}, fmt.Errorf("subject %s: %w", e.PlayerID, ErrUnknownSubject)
	}
	return m.append(e)
}

// append assumes the write lock is held.
func (m *Manager) append(e Entry) (Entry, error) {
	balance := m.balances[e.PlayerID] + e.Amount
	if balance < 0 {
		return Entry{}, fmt.Errorf("entry would drive %s to %d", e.PlayerID, balance)
	}

	e.ID = m.ids.New(gameid.Ledger)
	e.BalanceAfter = balance
	e.Timestamp = m.now()
	if len(m.entries) > 0 {
		e.PreviousHash = m.entries[len(m.entries)-1].Hash
	}
	e.Hash = e.computeHash()

	m.entries = append(m.entries, e)
	m.balances[e.PlayerID] = balance
	return e, nil
}

// Filter selects entries for Query. Zero values match everything.
type Filter struct {
	PlayerID string
	HandID   string
	TableID  string
	Kind     EntryKind
	From     time.Time
	To       time.Time
}

func (f Filter) matches(e Entry) bool {
	if f.PlayerID != "" && e.PlayerID != f.PlayerID {
		return false
	}
	if f.HandID != "" && e.HandID != f.HandID {
		return false
	}
	if f.TableID != "" && e.TableID != f.TableID {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	return true
}

// Query returns matching entries in append order.
func (m *Manager) Query(f Filter) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Entry
	for _, e := range m.entries {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// Balance returns the subject's current running balance.
func (m *Manager) Balance(playerID string) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.balances[playerID]
	return b, ok
}

// Balances returns a copy of every subject's running balance.
func (m *Manager) Balances() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int64, len(m.balances))
	for k, v := range m.balances {
		out[k] = v
	}
	return out
}

// RecordSettlement registers a hand close-out exactly once per settlementId.
func (m *Manager) RecordSettlement(settlementID, handID, tableID string, potSize, rake, potAfter int64, entryIDs []string) (Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.settlements[settlementID]; ok {
		return Settlement{}, fmt.Errorf("settlement %s: %w", settlementID, ErrDuplicateSettlement)
	}
	s := Settlement{
		SettlementID: settlementID,
		HandID:       handID,
		TableID:      tableID,
		PotSize:      potSize,
		Rake:         rake,
		PotAfterRake: potAfter,
		EntryIDs:     append([]string(nil), entryIDs...),
		RecordedAt:   m.now(),
	}
	m.settlements[settlementID] = s
	return s, nil
}

// SettlementFor returns the recorded settlement for a settlement id.
func (m *Manager) SettlementFor(settlementID string) (Settlement, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.settlements[settlementID]
	return s, ok
}

// Divergence pinpoints the first broken link found by verification.
type Divergence struct {
	Index  int
	Reason string
}

func (d *Divergence) Error() string {
	return fmt.Sprintf("ledger divergence at entry %d: %s", d.Index, d.Reason)
}

// VerifyIntegrity recomputes every hash and chain link, returning the first
// divergence or nil.
func (m *Manager) VerifyIntegrity() *Divergence {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return verifyChain(m.entries)
}

func verifyChain(entries []Entry) *Divergence {
	for i := range entries {
		e := &entries[i]
		if i == 0 {
			if e.PreviousHash != "" {
				return &Divergence{Index: 0, Reason: "first entry has a previous hash"}
			}
		} else if e.PreviousHash != entries[i-1].Hash {
			return &Divergence{Index: i, Reason: "previous-hash link broken"}
		}
		if got := e.computeHash(); got != e.Hash {
			return &Divergence{Index: i, Reason: "entry hash does not match canonical fields"}
		}
	}
	return nil
}

// VerifyHandConservation asserts the hand's entries sum to zero: every chip
// leaving a stack arrives in a payout or the rake account.
func (m *Manager) VerifyHandConservation(handID string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum int64
	var count int
	for _, e := range m.entries {
		if e.HandID != handID {
			continue
		}
		sum += e.Amount
		count++
	}
	if count == 0 {
		return fmt.Errorf("hand %s has no ledger entries", handID)
	}
	if sum != 0 {
		return fmt.Errorf("hand %s violates conservation: entries sum to %d", handID, sum)
	}
	return nil
}

// Export returns the full chain in append order for external replay.
func (m *Manager) Export() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Len returns the number of entries.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
