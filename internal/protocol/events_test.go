package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventMarshalsData(t *testing.T) {
	ev, err := NewEvent(EventSeatTaken, SeatTakenData{
		TableID:   "tbl-1",
		SeatIndex: 2,
		PlayerID:  "alice",
		Stack:     500,
	})
	require.NoError(t, err)
	assert.Equal(t, EventSeatTaken, ev.Type)

	var data SeatTakenData
	require.NoError(t, json.Unmarshal(ev.Data, &data))
	assert.Equal(t, "alice", data.PlayerID)
	assert.Equal(t, int64(500), data.Stack)

	_, err = NewEvent(EventSnapshot, make(chan int))
	require.Error(t, err)
}

func TestMustEventPanicsOnUnmarshalable(t *testing.T) {
	assert.Panics(t, func() { MustEvent(EventSnapshot, make(chan int)) })
}

// Targets steer the in-process fan-out only; they must never reach the wire.
func TestTargetsAreNotSerialized(t *testing.T) {
	ev := MustEvent(EventAck, AckData{IntentMessageID: "msg-1"}).For("alice", "bob")
	assert.Equal(t, []string{"alice", "bob"}, ev.Targets)

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "alice")
	assert.NotContains(t, string(raw), "Targets")
}
