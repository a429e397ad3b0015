package server

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablestakes/cardroom/internal/protocol"
)

func testConn(playerID, roomID string) *Connection {
	c := NewConnection(nil, nil, log.New(io.Discard))
	if playerID != "" {
		c.bind("sess-"+playerID, playerID)
	}
	c.setRoom(roomID)
	return c
}

// queued drains the connection's send queue without blocking.
func queued(c *Connection) []*protocol.Event {
	var out []*protocol.Event
	for {
		select {
		case ev := <-c.send:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func roomEvent(roomID string) *protocol.Event {
	ev := protocol.MustEvent(protocol.EventPlayerJoined, protocol.PlayerPresenceData{
		RoomID:   roomID,
		PlayerID: "alice",
	})
	ev.RoomID = roomID
	return ev
}

func TestPublishBroadcastsByRoom(t *testing.T) {
	hub := NewHub(log.New(io.Discard), nil)
	alice := testConn("alice", "room-1")
	bob := testConn("bob", "room-1")
	carol := testConn("carol", "room-2")
	anon := testConn("", "room-1")
	for _, c := range []*Connection{alice, bob, carol, anon} {
		hub.Register(c)
	}

	hub.Publish(roomEvent("room-1"))

	assert.Len(t, queued(alice), 1)
	assert.Len(t, queued(bob), 1)
	assert.Empty(t, queued(carol), "other rooms stay quiet")
	assert.Empty(t, queued(anon), "unauthenticated connections receive nothing")

	// A room-less event reaches every authenticated connection.
	hub.Publish(roomEvent(""))
	assert.Len(t, queued(alice), 1)
	assert.Len(t, queued(carol), 1)
	assert.Empty(t, queued(anon))
}

func TestPublishHonorsTargets(t *testing.T) {
	hub := NewHub(log.New(io.Discard), nil)
	alice := testConn("alice", "room-1")
	bob := testConn("bob", "room-1")
	hub.Register(alice)
	hub.Register(bob)

	hub.Publish(roomEvent("room-1").For("alice"))

	require.Len(t, queued(alice), 1)
	assert.Empty(t, queued(bob), "targeted events skip everyone else")
}

func TestUnregisterStopsDelivery(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	hub := NewHub(log.New(io.Discard), metrics)
	alice := testConn("alice", "room-1")

	hub.Register(alice)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Connections))

	hub.Unregister(alice)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.Connections))

	hub.Publish(roomEvent("room-1"))
	assert.Empty(t, queued(alice))
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	hub := NewHub(log.New(io.Discard), metrics)
	alice := testConn("alice", "room-1")
	hub.Register(alice)

	for i := 0; i < sendQueueSize; i++ {
		require.True(t, alice.Enqueue(roomEvent("room-1")))
	}
	hub.Publish(roomEvent("room-1"))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EventsDropped))
	assert.Len(t, queued(alice), sendQueueSize, "the overflow event is gone, not queued")

	// With the queue drained, delivery resumes and drops stop counting up.
	hub.Publish(roomEvent("room-1"))
	assert.Len(t, queued(alice), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EventsDropped))
}
