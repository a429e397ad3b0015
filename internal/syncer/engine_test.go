package syncer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablestakes/cardroom/internal/protocol"
)

func TestValidateSequence(t *testing.T) {
	e := NewEngine(DefaultConfig())

	// An unknown table has nothing to validate against.
	assert.Nil(t, e.ValidateSequence("tbl-unknown", 5))

	tbl := dealtTable(t)
	tbl.Sequence = 10
	e.Advance(tbl, []string{"alice"}, true)

	assert.Nil(t, e.ValidateSequence("tbl-1", 10))
	assert.Nil(t, e.ValidateSequence("tbl-1", 11))

	rej := e.ValidateSequence("tbl-1", 9)
	require.NotNil(t, rej)
	assert.Equal(t, protocol.CodeStaleIntent, rej.Code)

	rej = e.ValidateSequence("tbl-1", 12)
	require.NotNil(t, rej)
	assert.Equal(t, protocol.CodeSequenceMismatch, rej.Code)
}

func TestGenerateSyncResponseFullSnapshotWithoutBase(t *testing.T) {
	e := NewEngine(DefaultConfig())
	tbl := dealtTable(t)
	room := RoomView{RoomID: "room-1", Tables: []TableView{{TableID: tbl.ID}}, Players: []string{"alice", "bob", "cara"}}

	resp, err := e.GenerateSyncResponse(room, tbl, "alice", nil)
	require.NoError(t, err)
	require.NotNil(t, resp.Snapshot)
	assert.Nil(t, resp.Diff)
	assert.Equal(t, "alice", resp.Snapshot.ForPlayerID)
	assert.Equal(t, tbl.Sequence, resp.Snapshot.Sequence)
	assert.NotEmpty(t, resp.Snapshot.Snapshot)
}

func TestGenerateSyncResponseDiffFromStoredBase(t *testing.T) {
	e := NewEngine(DefaultConfig())
	tbl := dealtTable(t)
	room := RoomView{RoomID: "room-1", Tables: []TableView{{TableID: tbl.ID}}}

	// First sync stores the base at the current sequence.
	_, err := e.GenerateSyncResponse(room, tbl, "alice", nil)
	require.NoError(t, err)
	base := tbl.Sequence

	_, rej := tbl.ApplyAction(tbl.ActiveSeat, protocol.ActionCall, 0)
	require.Nil(t, rej)
	tbl.Commit()

	resp, err := e.GenerateSyncResponse(room, tbl, "alice", &base)
	require.NoError(t, err)
	require.NotNil(t, resp.Diff)
	assert.Nil(t, resp.Snapshot)
	assert.Equal(t, base, resp.Diff.BaseSequence)
	assert.Equal(t, tbl.Sequence, resp.Diff.Sequence)
	assert.NotEmpty(t, resp.Diff.Operations)
}

func TestGenerateSyncResponseFallsBackPastCadence(t *testing.T) {
	e := NewEngine(Config{SnapshotEvery: 5, MaxHistory: 32})
	tbl := dealtTable(t)
	room := RoomView{RoomID: "room-1", Tables: []TableView{{TableID: tbl.ID}}}

	_, err := e.GenerateSyncResponse(room, tbl, "alice", nil)
	require.NoError(t, err)
	base := tbl.Sequence

	// A client more than a snapshot interval behind gets a full snapshot.
	tbl.Sequence += 6
	resp, err := e.GenerateSyncResponse(room, tbl, "alice", &base)
	require.NoError(t, err)
	require.NotNil(t, resp.Snapshot)
	assert.Nil(t, resp.Diff)
}

func TestForgetDropsViewerHistory(t *testing.T) {
	e := NewEngine(DefaultConfig())
	tbl := dealtTable(t)
	room := RoomView{RoomID: "room-1", Tables: []TableView{{TableID: tbl.ID}}}

	_, err := e.GenerateSyncResponse(room, tbl, "alice", nil)
	require.NoError(t, err)
	base := tbl.Sequence

	e.Forget(tbl.ID, "alice")

	tbl.Sequence++
	resp, err := e.GenerateSyncResponse(room, tbl, "alice", &base)
	require.NoError(t, err)
	require.NotNil(t, resp.Snapshot, "a forgotten viewer cannot be served a diff")
}

func TestAdvanceStoresOnCadence(t *testing.T) {
	e := NewEngine(Config{SnapshotEvery: 10, MaxHistory: 32})
	tbl := dealtTable(t)
	room := RoomView{RoomID: "room-1", Tables: []TableView{{TableID: tbl.ID}}}

	// Sequence 3 is off-cadence and non-structural, so nothing is stored.
	tbl.Sequence = 3
	e.Advance(tbl, []string{"alice"}, false)
	offCadence := uint64(3)

	tbl.Sequence = 10
	e.Advance(tbl, []string{"alice"}, false)
	onCadence := uint64(10)

	tbl.Sequence = 11
	resp, err := e.GenerateSyncResponse(room, tbl, "alice", &offCadence)
	require.NoError(t, err)
	assert.NotNil(t, resp.Snapshot)

	tbl.Sequence = 11
	resp, err = e.GenerateSyncResponse(room, tbl, "alice", &onCadence)
	require.NoError(t, err)
	assert.NotNil(t, resp.Diff)
}

func TestHistoryEviction(t *testing.T) {
	e := NewEngine(Config{SnapshotEvery: 1, MaxHistory: 2})
	tbl := dealtTable(t)
	room := RoomView{RoomID: "room-1", Tables: []TableView{{TableID: tbl.ID}}}

	for seq := uint64(1); seq <= 4; seq++ {
		tbl.Sequence = seq
		e.Advance(tbl, []string{"alice"}, false)
	}

	// Sequences 1 and 2 were evicted; 4 is still held.
	evicted := uint64(2)
	tbl.Sequence = 4
	resp, err := e.GenerateSyncResponse(room, tbl, "alice", &evicted)
	require.NoError(t, err)
	assert.NotNil(t, resp.Snapshot)

	kept := uint64(4)
	tbl.Sequence = 5
	resp, err = e.GenerateSyncResponse(room, tbl, "alice", &kept)
	require.NoError(t, err)
	assert.NotNil(t, resp.Diff)
}
