// Package server exposes the room authority over websockets. Clients send
// a hello frame, receive their session, then exchange intents and events.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tablestakes/cardroom/internal/protocol"
	"github.com/tablestakes/cardroom/internal/room"
	"github.com/tablestakes/cardroom/internal/session"
)

// dispatchTimeout bounds one intent's round trip through a room serializer.
const dispatchTimeout = 10 * time.Second

// Server accepts websocket clients and routes their intents to rooms.
type Server struct {
	addr     string
	upgrader websocket.Upgrader
	hub      *Hub
	sessions *session.Manager
	rooms    map[string]*room.Room
	logger   *log.Logger
	metrics  *Metrics
	httpSrv  *http.Server
}

// New creates a server. rooms maps room id to its running room.
func New(addr string, sessions *session.Manager, rooms map[string]*room.Room, logger *log.Logger, reg prometheus.Registerer) *Server {
	metrics := NewMetrics(reg)
	s := &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// For development, allow all origins.
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		hub:      NewHub(logger, metrics),
		sessions: sessions,
		rooms:    rooms,
		logger:   logger.WithPrefix("server"),
		metrics:  metrics,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	s.httpSrv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Hub returns the event fan-out, for wiring as the rooms' publisher.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting websocket server", "addr", s.addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting clients and drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade connection", "error", err)
		return
	}
	client := NewConnection(conn, s, s.logger)
	client.Start()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}

// register binds a hello to a new or resumed session and joins the hub.
func (s *Server) register(c *Connection, hello Hello) (Welcome, error) {
	var (
		sess    session.Session
		resumed bool
		err     error
	)
	if hello.Resume {
		sess, resumed, err = s.sessions.Reconnect(hello.PlayerName, hello.PlayerName)
	} else {
		sess, err = s.sessions.Create(hello.PlayerName, hello.PlayerName)
	}
	if err != nil {
		return Welcome{}, err
	}

	s.hub.Register(c)
	if resumed {
		if r, ok := s.rooms[sess.RoomID]; ok {
			r.NotifyReconnect(sess.PlayerID)
		}
	}
	return Welcome{
		SessionID: sess.ID,
		PlayerID:  sess.PlayerID,
		Resumed:   resumed,
		RoomID:    sess.RoomID,
		TableID:   sess.TableID,
		SeatIndex: sess.SeatIndex,
	}, nil
}

// connectionClosed unbinds the session and tells its room, starting the
// disconnect grace window.
func (s *Server) connectionClosed(c *Connection) {
	s.hub.Unregister(c)

	sessionID := c.SessionID()
	if sessionID == "" {
		return
	}
	sess, err := s.sessions.Validate(sessionID)
	if err != nil {
		return
	}
	if err := s.sessions.Disconnect(sessionID); err != nil {
		return
	}
	if r, ok := s.rooms[sess.RoomID]; ok {
		r.NotifyDisconnect(sess.PlayerID)
	}
}

// dispatch routes one intent to its room. Results come back to the client
// through the hub; rejects for unroutable intents are sent here.
func (s *Server) dispatch(c *Connection, intent *protocol.Intent) {
	if s.metrics != nil {
		s.metrics.IntentsTotal.WithLabelValues(string(intent.Type)).Inc()
	}
	start := time.Now()

	r := s.roomFor(c, intent)
	if r == nil {
		s.rejectDirect(c, intent, protocol.NewReject(protocol.CodeInvalidTableID))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()
	result := r.ProcessIntent(ctx, intent)

	if s.metrics != nil {
		s.metrics.IntentDuration.Observe(time.Since(start).Seconds())
		if result.Reject != nil {
			s.metrics.RejectsTotal.WithLabelValues(fmt.Sprintf("%d", result.Reject.Code)).Inc()
		}
	}
	if result.Reject == nil && intent.Type == protocol.IntentJoinRoom {
		c.setRoom(r.ID)
	}
	if result.Reject == nil && intent.Type == protocol.IntentLeaveRoom {
		c.setRoom("")
	}
}

// roomFor resolves the intent's room: the join target for join-room,
// otherwise the room the connection subscribes to.
func (s *Server) roomFor(c *Connection, intent *protocol.Intent) *room.Room {
	if intent.Type == protocol.IntentJoinRoom && intent.JoinRoom != nil {
		return s.rooms[intent.JoinRoom.RoomID]
	}
	if r, ok := s.rooms[c.RoomID()]; ok {
		return r
	}
	// Heartbeats are valid before joining a room; any room can serve them.
	if intent.Type == protocol.IntentHeartbeat {
		for _, r := range s.rooms {
			return r
		}
	}
	return nil
}

// rejectDirect answers an intent that never reached a room serializer.
func (s *Server) rejectDirect(c *Connection, intent *protocol.Intent, reject *protocol.Reject) {
	if s.metrics != nil {
		s.metrics.RejectsTotal.WithLabelValues(fmt.Sprintf("%d", reject.Code)).Inc()
	}
	ev := protocol.MustEvent(protocol.EventReject, protocol.RejectData{
		IntentMessageID: intent.Header.MessageID,
		Code:            reject.Code,
		Reason:          reject.Reason,
		Details:         reject.Details,
	})
	ev.Header.Timestamp = time.Now()
	if !c.Enqueue(ev) && s.metrics != nil {
		s.metrics.EventsDropped.Inc()
	}
}
