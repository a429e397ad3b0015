package session

import (
	"errors"
	"time"
)

var (
	ErrAlreadyConnected = errors.New("player already has a connected session")
	ErrUnknownSession   = errors.New("unknown session")
	ErrSessionExpired   = errors.New("session expired")
)

// Status is a session's lifecycle state.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusExpired      Status = "expired"
)

// Session tracks one player's connection lifecycle. SeatIndex is -1 while
// the player is not seated.
type Session struct {
	ID               string
	PlayerID         string
	DisplayName      string
	Status           Status
	RoomID           string
	TableID          string
	SeatIndex        int
	Spectator        bool
	ConnectedAt      time.Time
	LastHeartbeat    time.Time
	LastActivity     time.Time
	LatencyMs        int64
	MissedHeartbeats int
	DisconnectedAt   time.Time
}

// Seated reports whether the session holds a seat.
func (s *Session) Seated() bool {
	return s.TableID != "" && s.SeatIndex >= 0
}

// Config bounds the session lifecycle.
type Config struct {
	HeartbeatTimeout    time.Duration
	MaxMissedHeartbeats int
	DisconnectGrace     time.Duration
	SessionTimeout      time.Duration
}

// DefaultConfig matches the documented client contract.
func DefaultConfig() Config {
	return Config{
		HeartbeatTimeout:    30 * time.Second,
		MaxMissedHeartbeats: 3,
		DisconnectGrace:     60 * time.Second,
		SessionTimeout:      24 * time.Hour,
	}
}

// HeartbeatAck is returned to the client on every heartbeat.
type HeartbeatAck struct {
	ServerTime time.Time
	ClientTime time.Time
	LatencyMs  int64
}
