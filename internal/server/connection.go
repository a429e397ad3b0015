package server

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/tablestakes/cardroom/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192

	// Outbound queue depth per connection.
	sendQueueSize = 256
)

// Hello is the first frame a client sends after the upgrade.
type Hello struct {
	PlayerName string `json:"playerName"`
	Resume     bool   `json:"resume,omitempty"`
}

// Welcome answers the hello with the client's session.
type Welcome struct {
	SessionID string `json:"sessionId"`
	PlayerID  string `json:"playerId"`
	Resumed   bool   `json:"resumed"`
	RoomID    string `json:"roomId,omitempty"`
	TableID   string `json:"tableId,omitempty"`
	SeatIndex int    `json:"seatIndex"`
}

// Connection wraps one websocket client. The read pump decodes intents and
// hands them to the server; the write pump drains the send queue. Events
// reach the queue through the hub only.
type Connection struct {
	conn      *websocket.Conn
	send      chan *protocol.Event
	server    *Server
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu        sync.RWMutex
	sessionID string
	playerID  string
	roomID    string
}

// NewConnection wraps an upgraded websocket.
func NewConnection(conn *websocket.Conn, srv *Server, logger *log.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		conn:   conn,
		send:   make(chan *protocol.Event, sendQueueSize),
		server: srv,
		logger: logger.WithPrefix("conn"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins the pumps.
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close tears the connection down once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

// Done resolves when the connection has stopped.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Enqueue offers an event to the send queue without blocking. It reports
// whether the event was accepted.
func (c *Connection) Enqueue(ev *protocol.Event) bool {
	select {
	case c.send <- ev:
		return true
	case <-c.ctx.Done():
		return false
	default:
		return false
	}
}

// SessionID returns the session bound at hello time.
func (c *Connection) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// PlayerID returns the authenticated player.
func (c *Connection) PlayerID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID
}

// RoomID returns the room this connection subscribes to.
func (c *Connection) RoomID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID
}

func (c *Connection) bind(sessionID, playerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = sessionID
	c.playerID = playerID
}

func (c *Connection) setRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = roomID
}

func (c *Connection) readPump() {
	defer func() {
		c.server.connectionClosed(c)
		_ = c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if !c.handshake() {
		return
	}

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var intent protocol.Intent
		if err := c.conn.ReadJSON(&intent); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", "error", err)
			}
			return
		}

		// The session is fixed at hello time; a client cannot speak for
		// another session over this connection.
		intent.SessionID = c.SessionID()
		c.server.dispatch(c, &intent)
	}
}

// handshake reads the hello frame and binds a session.
func (c *Connection) handshake() bool {
	var hello Hello
	if err := c.conn.ReadJSON(&hello); err != nil {
		c.logger.Error("failed to read hello", "error", err)
		return false
	}
	if hello.PlayerName == "" {
		c.writeControl("player name required")
		return false
	}

	welcome, err := c.server.register(c, hello)
	if err != nil {
		c.writeControl(err.Error())
		return false
	}
	c.bind(welcome.SessionID, welcome.PlayerID)
	if welcome.RoomID != "" {
		c.setRoom(welcome.RoomID)
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(welcome); err != nil {
		c.logger.Error("failed to write welcome", "error", err)
		return false
	}
	return true
}

func (c *Connection) writeControl(reason string) {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteJSON(map[string]string{"error": reason})
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.logger.Error("failed to write event", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}
