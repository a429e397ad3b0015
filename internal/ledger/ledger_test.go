package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNow() time.Time {
	return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
}

func seededManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(nil, testNow)
	_, err := m.SetInitialBalance("alice", 1000)
	require.NoError(t, err)
	_, err = m.SetInitialBalance("bob", 1000)
	require.NoError(t, err)
	return m
}

func TestRecordChainsEntries(t *testing.T) {
	m := seededManager(t)

	e1, err := m.Record(Entry{Kind: KindBet, Amount: -50, PlayerID: "alice", HandID: "h1"})
	require.NoError(t, err)
	e2, err := m.Record(Entry{Kind: KindPotWin, Amount: 50, PlayerID: "bob", HandID: "h1"})
	require.NoError(t, err)

	assert.Equal(t, int64(950), e1.BalanceAfter)
	assert.Equal(t, int64(1050), e2.BalanceAfter)
	assert.Equal(t, e1.Hash, e2.PreviousHash)
	assert.Nil(t, m.VerifyIntegrity())
}

func TestRecordUnknownSubject(t *testing.T) {
	m := NewManager(nil, testNow)
	_, err := m.Record(Entry{Kind: KindBet, Amount: -10, PlayerID: "ghost"})
	require.ErrorIs(t, err, ErrUnknownSubject)
}

func TestRecordRejectsOverdraft(t *testing.T) {
	m := seededManager(t)
	_, err := m.Record(Entry{Kind: KindBet, Amount: -2000, PlayerID: "alice"})
	require.Error(t, err)

	// The failed append leaves no trace.
	bal, _ := m.Balance("alice")
	assert.Equal(t, int64(1000), bal)
	assert.Equal(t, 2, m.Len())
}

func TestVerifyIntegrityDetectsTamper(t *testing.T) {
	m := seededManager(t)
	_, err := m.Record(Entry{Kind: KindBet, Amount: -50, PlayerID: "alice", HandID: "h1"})
	require.NoError(t, err)
	_, err = m.Record(Entry{Kind: KindPotWin, Amount: 50, PlayerID: "bob", HandID: "h1"})
	require.NoError(t, err)
	require.Nil(t, m.VerifyIntegrity())

	t.Run("amount edit breaks the entry hash", func(t *testing.T) {
		original := m.entries[2].Amount
		m.entries[2].Amount = -40
		defer func() { m.entries[2].Amount = original }()

		d := m.VerifyIntegrity()
		require.NotNil(t, d)
		assert.Equal(t, 2, d.Index)
		assert.Contains(t, d.Reason, "hash does not match")
	})

	t.Run("re-hashed edit surfaces at the next link", func(t *testing.T) {
		original := m.entries[2]
		m.entries[2].Amount = -40
		m.entries[2].Hash = m.entries[2].computeHash()
		defer func() { m.entries[2] = original }()

		d := m.VerifyIntegrity()
		require.NotNil(t, d)
		assert.Equal(t, 3, d.Index)
		assert.Contains(t, d.Reason, "previous-hash link broken")
	})
}

func TestSettlementIdempotence(t *testing.T) {
	m := seededManager(t)

	_, err := m.RecordSettlement("h1", "h1", "t1", 100, 3, 97, nil)
	require.NoError(t, err)

	_, err = m.RecordSettlement("h1", "h1", "t1", 100, 3, 97, nil)
	require.ErrorIs(t, err, ErrDuplicateSettlement)

	s, ok := m.SettlementFor("h1")
	require.True(t, ok)
	assert.Equal(t, int64(97), s.PotAfterRake)
}

func TestQueryFilters(t *testing.T) {
	m := seededManager(t)
	_, err := m.Record(Entry{Kind: KindBet, Amount: -50, PlayerID: "alice", HandID: "h1", TableID: "t1"})
	require.NoError(t, err)
	_, err = m.Record(Entry{Kind: KindBet, Amount: -50, PlayerID: "bob", HandID: "h1", TableID: "t1"})
	require.NoError(t, err)
	_, err = m.Record(Entry{Kind: KindPotWin, Amount: 100, PlayerID: "bob", HandID: "h1", TableID: "t1"})
	require.NoError(t, err)

	assert.Len(t, m.Query(Filter{PlayerID: "bob"}), 3)
	assert.Len(t, m.Query(Filter{Kind: KindBet}), 2)
	assert.Len(t, m.Query(Filter{HandID: "h1"}), 3)
	assert.Len(t, m.Query(Filter{HandID: "h2"}), 0)
}

func TestVerifyHandConservation(t *testing.T) {
	m := seededManager(t)
	_, err := m.Record(Entry{Kind: KindBet, Amount: -50, PlayerID: "alice", HandID: "h1"})
	require.NoError(t, err)
	_, err = m.Record(Entry{Kind: KindBet, Amount: -50, PlayerID: "bob", HandID: "h1"})
	require.NoError(t, err)
	_, err = m.Record(Entry{Kind: KindPotWin, Amount: 100, PlayerID: "alice", HandID: "h1"})
	require.NoError(t, err)

	require.NoError(t, m.VerifyHandConservation("h1"))
	require.Error(t, m.VerifyHandConservation("h2"))

	// An unmatched bet breaks the zero-sum invariant.
	_, err = m.Record(Entry{Kind: KindBet, Amount: -10, PlayerID: "bob", HandID: "h3"})
	require.NoError(t, err)
	require.Error(t, m.VerifyHandConservation("h3"))
}
