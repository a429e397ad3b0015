package integrity

import (
	"fmt"
	"sync"
	"time"

	"github.com/tablestakes/cardroom/internal/gameid"
)

// CollectorSession is one table's recording window.
type CollectorSession struct {
	ID        string
	TableID   string
	StartedAt time.Time
	EndedAt   time.Time
}

// Collector records integrity events append-only. Writes are serialized per
// collector; queries return copies so recorded events can never be mutated.
type Collector struct {
	mu       sync.RWMutex
	sessions map[string]*CollectorSession
	byTable  map[string]string // tableID -> open session
	events   []Event
	ids      *gameid.Generator
	now      func() time.Time
}

// NewCollector creates an empty collector. now is injected; nil falls back
// to the wall clock.
func NewCollector(ids *gameid.Generator, now func() time.Time) *Collector {
	if ids == nil {
		ids = gameid.NewGenerator(nil, nil)
	}
	if now == nil {
		now = time.Now
	}
	return &Collector{
		sessions: make(map[string]*CollectorSession),
		byTable:  make(map[string]string),
		ids:      ids,
		now:      now,
	}
}

// StartSession opens a recording window for a table.
func (c *Collector) StartSession(tableID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &CollectorSession{
		ID:        c.ids.New(gameid.Event),
		TableID:   tableID,
		StartedAt: c.now(),
	}
	c.sessions[s.ID] = s
	c.byTable[tableID] = s.ID
	return s.ID
}

// EndSession closes a table's recording window.
func (c *Collector) EndSession(sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[sessionID]
	if !ok {
		return fmt.Errorf("unknown collector session %s", sessionID)
	}
	s.EndedAt = c.now()
	if c.byTable[s.TableID] == sessionID {
		delete(c.byTable, s.TableID)
	}
	return nil
}

// Record appends an event for a table. The open session for the table is
// resolved automatically; events for tables without a session are dropped.
func (c *Collector) Record(tableID, handID string, payload Payload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sessionID, ok := c.byTable[tableID]
	if !ok {
		return
	}
	c.events = append(c.events, Event{
		ID:        c.ids.New(gameid.Event),
		Type:      payload.payloadType(),
		Timestamp: c.now(),
		SessionID: sessionID,
		TableID:   tableID,
		HandID:    handID,
		Payload:   payload,
	})
}

// Events returns a copy of the full stream in record order.
func (c *Collector) Events() []Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// ByHand returns the events of one hand in record order.
func (c *Collector) ByHand(handID string) []Event {
	return c.filter(func(e *Event) bool { return e.HandID == handID })
}

// ByType returns all events of one type.
func (c *Collector) ByType(eventType EventType) []Event {
	return c.filter(func(e *Event) bool { return e.Type == eventType })
}

// ByPlayer returns every event whose payload involves the player.
func (c *Collector) ByPlayer(playerID string) []Event {
	return c.filter(func(e *Event) bool { return eventInvolves(e, playerID) })
}

// ByTimeRange returns events with from <= timestamp < to.
func (c *Collector) ByTimeRange(from, to time.Time) []Event {
	return c.filter(func(e *Event) bool {
		return !e.Timestamp.Before(from) && e.Timestamp.Before(to)
	})
}

// BySession returns one recording window's events.
func (c *Collector) BySession(sessionID string) []Event {
	return c.filter(func(e *Event) bool { return e.SessionID == sessionID })
}

func (c *Collector) filter(keep func(*Event) bool) []Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Event
	for i := range c.events {
		if keep(&c.events[i]) {
			out = append(out, c.events[i])
		}
	}
	return out
}

func eventInvolves(e *Event, playerID string) bool {
	switch p := e.Payload.(type) {
	case HandStartedPayload:
		for _, hp := range p.Players {
			if hp.PlayerID == playerID {
				return true
			}
		}
	case PlayerActionPayload:
		return p.PlayerID == playerID
	case PotAwardedPayload:
		if p.WinnerID == playerID {
			return true
		}
		for _, id := range p.Contributors {
			if id == playerID {
				return true
			}
		}
	case HandEndedPayload:
		if _, ok := p.NetChips[playerID]; ok {
			return true
		}
		for _, id := range p.Winners {
			if id == playerID {
				return true
			}
		}
	case PlayerJoinedPayload:
		return p.PlayerID == playerID
	case PlayerLeftPayload:
		return p.PlayerID == playerID
	case ManagerInterventionPayload:
		return p.TargetPlayerID == playerID || p.AuthorityID == playerID
	}
	return false
}
