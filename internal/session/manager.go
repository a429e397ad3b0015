package session

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/tablestakes/cardroom/internal/gameid"
)

// Manager owns every session and the player reverse index. Callbacks fire
// synchronously from the calling goroutine with the lock released.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	clock    quartz.Clock
	ids      *gameid.Generator
	logger   *log.Logger
	sessions map[string]*Session
	byPlayer map[string]string

	OnDisconnect func(s Session)
	OnReconnect  func(s Session)
	OnExpire     func(s Session)
}

// NewManager creates a session manager. clock may be nil for the real clock.
func NewManager(cfg Config, clock quartz.Clock, ids *gameid.Generator, logger *log.Logger) *Manager {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if ids == nil {
		ids = gameid.NewGenerator(nil, nil)
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Manager{
		cfg:      cfg,
		clock:    clock,
		ids:      ids,
		logger:   logger.WithPrefix("session"),
		sessions: make(map[string]*Session),
		byPlayer: make(map[string]string),
	}
}

// Create registers a new connected session for a player. A player with a
// live connected session cannot open a second one.
func (m *Manager) Create(playerID, displayName string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existingID, ok := m.byPlayer[playerID]; ok {
		if existing := m.sessions[existingID]; existing != nil && existing.Status == StatusConnected {
			return Session{}, fmt.Errorf("player %s: %w", playerID, ErrAlreadyConnected)
		}
	}

	now := m.clock.Now()
	s := &Session{
		ID:            m.ids.New(gameid.Session),
		PlayerID:      playerID,
		DisplayName:   displayName,
		Status:        StatusConnected,
		SeatIndex:     -1,
		ConnectedAt:   now,
		LastHeartbeat: now,
		LastActivity:  now,
	}
	m.sessions[s.ID] = s
	m.byPlayer[playerID] = s.ID
	m.logger.Debug("session created", "session", s.ID, "player", playerID)
	return *s, nil
}

// Validate resolves a session id to a live session.
func (m *Manager) Validate(sessionID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, fmt.Errorf("session %s: %w", sessionID, ErrUnknownSession)
	}
	if s.Status == StatusExpired {
		return Session{}, fmt.Errorf("session %s: %w", sessionID, ErrSessionExpired)
	}
	return *s, nil
}

// Heartbeat updates liveness and measures latency from the client clock.
// Latency clamps at zero so a skewed client clock cannot go negative.
func (m *Manager) Heartbeat(sessionID string, clientTime time.Time) (HeartbeatAck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return HeartbeatAck{}, fmt.Errorf("session %s: %w", sessionID, ErrUnknownSession)
	}
	if s.Status == StatusExpired {
		return HeartbeatAck{}, fmt.Errorf("session %s: %w", sessionID, ErrSessionExpired)
	}

	now := m.clock.Now()
	latency := now.Sub(clientTime).Milliseconds()
	if latency < 0 {
		latency = 0
	}
	s.LastHeartbeat = now
	s.LastActivity = now
	s.LatencyMs = latency
	s.MissedHeartbeats = 0
	return HeartbeatAck{ServerTime: now, ClientTime: clientTime, LatencyMs: latency}, nil
}

// Touch records non-heartbeat activity.
func (m *Manager) Touch(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		s.LastActivity = m.clock.Now()
	}
}

// SetLocation binds the session to a room, table and seat. Pass seatIndex -1
// to clear the seat.
func (m *Manager) SetLocation(sessionID, roomID, tableID string, seatIndex int, spectator bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, ErrUnknownSession)
	}
	s.RoomID = roomID
	s.TableID = tableID
	s.SeatIndex = seatIndex
	s.Spectator = spectator
	return nil
}

// Disconnect marks the session disconnected and starts the grace window.
func (m *Manager) Disconnect(sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("session %s: %w", sessionID, ErrUnknownSession)
	}
	if s.Status != StatusConnected {
		m.mu.Unlock()
		return nil
	}
	s.Status = StatusDisconnected
	s.DisconnectedAt = m.clock.Now()
	snapshot := *s
	m.mu.Unlock()

	m.logger.Info("session disconnected", "session", snapshot.ID, "player", snapshot.PlayerID)
	if m.OnDisconnect != nil {
		m.OnDisconnect(snapshot)
	}
	return nil
}

// Reconnect resumes a disconnected session inside the grace window,
// preserving room, table and seat. Outside the window, or with no prior
// session, a fresh session is created. The bool reports a resume.
func (m *Manager) Reconnect(playerID, displayName string) (Session, bool, error) {
	m.mu.Lock()
	existingID, ok := m.byPlayer[playerID]
	if ok {
		s := m.sessions[existingID]
		if s != nil && s.Status == StatusDisconnected &&
			m.clock.Now().Sub(s.DisconnectedAt) <= m.cfg.DisconnectGrace {
			now := m.clock.Now()
			s.Status = StatusConnected
			s.DisplayName = displayName
			s.LastHeartbeat = now
			s.LastActivity = now
			s.MissedHeartbeats = 0
			s.DisconnectedAt = time.Time{}
			snapshot := *s
			m.mu.Unlock()

			m.logger.Info("session resumed", "session", snapshot.ID, "player", playerID)
			if m.OnReconnect != nil {
				m.OnReconnect(snapshot)
			}
			return snapshot, true, nil
		}
	}
	m.mu.Unlock()

	s, err := m.Create(playerID, displayName)
	return s, false, err
}

// CheckTimeouts scans every session against the heartbeat, grace and
// lifetime rules. The caller drives the cadence.
func (m *Manager) CheckTimeouts() {
	now := m.clock.Now()

	var disconnected, expired []Session
	m.mu.Lock()
	for _, s := range m.sessions {
		switch s.Status {
		case StatusConnected:
			if now.Sub(s.ConnectedAt) > m.cfg.SessionTimeout {
				s.Status = StatusExpired
				expired = append(expired, *s)
				continue
			}
			elapsed := now.Sub(s.LastHeartbeat)
			if elapsed > m.cfg.HeartbeatTimeout {
				s.MissedHeartbeats = int(elapsed / m.cfg.HeartbeatTimeout)
				if s.MissedHeartbeats >= m.cfg.MaxMissedHeartbeats {
					s.Status = StatusDisconnected
					s.DisconnectedAt = now
					disconnected = append(disconnected, *s)
				}
			}
		case StatusDisconnected:
			if now.Sub(s.DisconnectedAt) > m.cfg.DisconnectGrace ||
				now.Sub(s.ConnectedAt) > m.cfg.SessionTimeout {
				s.Status = StatusExpired
				expired = append(expired, *s)
			}
		}
	}
	m.mu.Unlock()

	for _, s := range disconnected {
		m.logger.Info("session timed out", "session", s.ID, "player", s.PlayerID, "missed", s.MissedHeartbeats)
		if m.OnDisconnect != nil {
			m.OnDisconnect(s)
		}
	}
	for _, s := range expired {
		m.logger.Info("session expired", "session", s.ID, "player", s.PlayerID)
		if m.OnExpire != nil {
			m.OnExpire(s)
		}
	}
}

// ByPlayer resolves a player's current session.
func (m *Manager) ByPlayer(playerID string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byPlayer[playerID]
	if !ok {
		return Session{}, false
	}
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Remove drops an expired or abandoned session entirely.
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		if m.byPlayer[s.PlayerID] == sessionID {
			delete(m.byPlayer, s.PlayerID)
		}
		delete(m.sessions, sessionID)
	}
}

// Count returns the number of tracked sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
