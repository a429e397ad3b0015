package game

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablestakes/cardroom/internal/protocol"
)

func threeHanded(t *testing.T) *Table {
	t.Helper()
	tbl := NewTable("tbl-1", 3, 5, 10)
	require.Nil(t, tbl.TakeSeat("alice", "Alice", 0, 500))
	require.Nil(t, tbl.TakeSeat("bob", "Bob", 1, 500))
	require.Nil(t, tbl.TakeSeat("cara", "Cara", 2, 500))
	return tbl
}

func TestTakeSeat(t *testing.T) {
	tbl := NewTable("tbl-1", 2, 5, 10)

	require.Nil(t, tbl.TakeSeat("alice", "Alice", 0, 500))
	assert.Equal(t, int64(500), tbl.Seats[0].Stack)

	rej := tbl.TakeSeat("bob", "Bob", 5, 500)
	require.NotNil(t, rej)
	assert.Equal(t, protocol.CodeSeatNotFound, rej.Code)

	rej = tbl.TakeSeat("bob", "Bob", 0, 500)
	require.NotNil(t, rej)
	assert.Equal(t, protocol.CodeSeatTaken, rej.Code)

	rej = tbl.TakeSeat("alice", "Alice", 1, 500)
	require.NotNil(t, rej)
	assert.Equal(t, protocol.CodeAlreadySeated, rej.Code)
}

func TestLeaveSeatMidHandFoldsFirst(t *testing.T) {
	tbl := threeHanded(t)
	_, rej := tbl.StartHand("h1", rand.New(rand.NewSource(1)))
	require.Nil(t, rej)

	vacated, rej := tbl.LeaveSeat("bob")
	require.Nil(t, rej)
	assert.Equal(t, "bob", vacated.PlayerID)
	assert.False(t, tbl.Seats[1].Occupied())

	_, rej = tbl.LeaveSeat("bob")
	require.NotNil(t, rej)
	assert.Equal(t, protocol.CodeNotSeated, rej.Code)
}

func TestStandUpAndSitBack(t *testing.T) {
	tbl := threeHanded(t)
	_, rej := tbl.StartHand("h1", rand.New(rand.NewSource(1)))
	require.Nil(t, rej)

	// A seat still contesting the hand cannot stand up.
	rej = tbl.StandUp("alice")
	require.NotNil(t, rej)
	assert.Equal(t, protocol.CodeCannotChangeDuringHand, rej.Code)

	alice := tbl.SeatOf("alice")
	tbl.ForceFold(alice.Index)
	require.Nil(t, tbl.StandUp("alice"))
	assert.Equal(t, SeatSittingOut, alice.Status)

	require.Nil(t, tbl.SitBack("alice"))
	assert.Equal(t, SeatActive, alice.Status)

	rej = tbl.SitBack("alice")
	require.NotNil(t, rej)
	assert.Equal(t, protocol.CodeIllegalAction, rej.Code)
}

func TestMarkDisconnectedAndReconnected(t *testing.T) {
	tbl := threeHanded(t)
	_, rej := tbl.StartHand("h1", rand.New(rand.NewSource(1)))
	require.Nil(t, rej)

	alice := tbl.SeatOf("alice")
	tbl.MarkDisconnected("alice", time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, SeatDisconnected, alice.Status)
	assert.True(t, alice.CanAct(), "a disconnected seat still holds its turn")

	tbl.MarkReconnected("alice")
	assert.Equal(t, SeatActive, alice.Status)
	assert.True(t, alice.DisconnectedAt.IsZero())
}

func TestCheckInvariants(t *testing.T) {
	tbl := threeHanded(t)
	_, rej := tbl.StartHand("h1", rand.New(rand.NewSource(1)))
	require.Nil(t, rej)
	require.NoError(t, tbl.CheckInvariants())

	tbl.Seats[0].Stack = -1
	require.Error(t, tbl.CheckInvariants())
}
