package server

import (
	"sync"

	"github.com/charmbracelet/log"

	"github.com/tablestakes/cardroom/internal/protocol"
)

// Hub fans committed events out to connections. It implements
// room.Publisher; Publish enqueues and returns without blocking the room
// serializer. A connection whose queue is full loses the event and is
// marked stale, and recovers via a request-sync snapshot.
type Hub struct {
	mu      sync.RWMutex
	conns   map[*Connection]bool
	logger  *log.Logger
	metrics *Metrics
}

// NewHub creates an empty hub.
func NewHub(logger *log.Logger, metrics *Metrics) *Hub {
	return &Hub{
		conns:   make(map[*Connection]bool),
		logger:  logger.WithPrefix("hub"),
		metrics: metrics,
	}
}

// Register adds a connection to the fan-out set.
func (h *Hub) Register(c *Connection) {
	h.mu.Lock()
	h.conns[c] = true
	total := len(h.conns)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.Connections.Set(float64(total))
	}
	h.logger.Info("client connected", "total", total)
}

// Unregister removes a connection.
func (h *Hub) Unregister(c *Connection) {
	h.mu.Lock()
	delete(h.conns, c)
	total := len(h.conns)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.Connections.Set(float64(total))
	}
	h.logger.Info("client disconnected", "total", total)
}

// Publish delivers events to their audience: the Targets list when set,
// otherwise every connection in the event's room.
func (h *Hub) Publish(events ...*protocol.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ev := range events {
		for conn := range h.conns {
			if !h.wants(conn, ev) {
				continue
			}
			if conn.Enqueue(ev) {
				if h.metrics != nil {
					h.metrics.EventsTotal.WithLabelValues(string(ev.Type)).Inc()
				}
				continue
			}
			if h.metrics != nil {
				h.metrics.EventsDropped.Inc()
			}
			h.logger.Warn("send queue full, event dropped",
				"player", conn.PlayerID(), "type", ev.Type)
		}
	}
}

func (h *Hub) wants(conn *Connection, ev *protocol.Event) bool {
	player := conn.PlayerID()
	if player == "" {
		return false
	}
	if len(ev.Targets) > 0 {
		for _, id := range ev.Targets {
			if id == player {
				return true
			}
		}
		return false
	}
	return ev.RoomID == "" || conn.RoomID() == ev.RoomID
}
