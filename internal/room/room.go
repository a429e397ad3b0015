package room

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/tablestakes/cardroom/internal/economy"
	"github.com/tablestakes/cardroom/internal/game"
	"github.com/tablestakes/cardroom/internal/gameid"
	"github.com/tablestakes/cardroom/internal/integrity"
	"github.com/tablestakes/cardroom/internal/protocol"
	"github.com/tablestakes/cardroom/internal/session"
	"github.com/tablestakes/cardroom/internal/syncer"
)

// Config is the room's table and timing configuration.
type Config struct {
	SmallBlind      int64
	BigBlind        int64
	MinBuyIn        int64
	MaxBuyIn        int64
	MaxSeats        int
	TableCount      int
	MaxMembers      int
	ActionTimeout   time.Duration
	DisconnectGrace time.Duration
	AutoStart       bool
	AutoStartDelay  time.Duration
}

// DefaultConfig is a 5/10 six-max room.
func DefaultConfig() Config {
	return Config{
		SmallBlind:      5,
		BigBlind:        10,
		MinBuyIn:        200,
		MaxBuyIn:        1000,
		MaxSeats:        6,
		TableCount:      1,
		MaxMembers:      60,
		ActionTimeout:   30 * time.Second,
		DisconnectGrace: 60 * time.Second,
		AutoStart:       true,
		AutoStartDelay:  3 * time.Second,
	}
}

// Publisher receives committed events for fan-out. Publish must enqueue and
// return; it may not block the room serializer.
type Publisher interface {
	Publish(events ...*protocol.Event)
}

// Deps are the services a room is wired with.
type Deps struct {
	Sessions  *session.Manager
	Economy   *economy.Engine
	Sync      *syncer.Engine
	Collector *integrity.Collector
	Evaluator game.HandEvaluator
	IDs       *gameid.Generator
	Clock     quartz.Clock
	Logger    *log.Logger
	Rand      *rand.Rand
	Publisher Publisher
}

// Result is the outcome of one processed intent. Events includes the
// ack or reject correlated with the intent's messageId.
type Result struct {
	Events []*protocol.Event
	Reject *protocol.Reject
}

type envelope struct {
	intent *protocol.Intent
	reply  chan Result
}

type member struct {
	playerID    string
	displayName string
	sessionID   string
	tableID     string
	seatIndex   int
	spectator   bool
}

type tableState struct {
	table *game.Table
	// actionGen invalidates stale action timers; it bumps whenever the
	// seat to act changes.
	actionGen        uint64
	turnStartedAt    time.Time
	autoStartPending bool
	halted           bool
}

// Room owns its tables. A single goroutine processes intents and timer
// tasks in arrival order; nothing else touches table state.
type Room struct {
	ID   string
	cfg  Config
	deps Deps
	log  *log.Logger

	intents chan *envelope
	tasks   chan func()
	done    chan struct{}

	members map[string]*member
	tables  map[string]*tableState
	order   []string
}

// New creates a room with its tables. Run must be called before intents are
// accepted.
func New(cfg Config, deps Deps) *Room {
	if deps.IDs == nil {
		deps.IDs = gameid.NewGenerator(nil, nil)
	}
	if deps.Clock == nil {
		deps.Clock = quartz.NewReal()
	}
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard)
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	r := &Room{
		ID:      deps.IDs.New(gameid.Room),
		cfg:     cfg,
		deps:    deps,
		intents: make(chan *envelope, 64),
		tasks:   make(chan func(), 64),
		done:    make(chan struct{}),
		members: make(map[string]*member),
		tables:  make(map[string]*tableState),
	}
	r.log = deps.Logger.WithPrefix("room").With("room", r.ID)

	for i := 0; i < cfg.TableCount; i++ {
		id := deps.IDs.New(gameid.Table)
		r.tables[id] = &tableState{
			table: game.NewTable(id, cfg.MaxSeats, cfg.SmallBlind, cfg.BigBlind),
		}
		r.order = append(r.order, id)
		if deps.Collector != nil {
			deps.Collector.StartSession(id)
		}
	}
	return r
}

// SetPublisher wires the event fan-out. Call before Run.
func (r *Room) SetPublisher(p Publisher) {
	r.deps.Publisher = p
}

// TableIDs lists the room's tables in creation order.
func (r *Room) TableIDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Run processes intents and timer tasks until ctx is cancelled, then drains
// and releases escrow.
func (r *Room) Run(ctx context.Context) error {
	defer r.shutdown()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-r.intents:
			env.reply <- r.handle(env.intent)
		case task := <-r.tasks:
			task()
		}
	}
}

// shutdown rejects queued intents and unwinds table escrow.
func (r *Room) shutdown() {
	close(r.done)
	for {
		select {
		case env := <-r.intents:
			env.reply <- Result{Reject: protocol.NewReject(protocol.CodeRoomClosed)}
		default:
			for id := range r.tables {
				if err := r.deps.Economy.ReleaseTable(id); err != nil {
					r.log.Error("escrow release failed", "table", id, "err", err)
				}
				r.deps.Sync.DropTable(id)
			}
			r.log.Info("room closed")
			return
		}
	}
}

// ProcessIntent submits an intent to the room serializer and waits for the
// outcome. A stopped room rejects with ROOM_CLOSED.
func (r *Room) ProcessIntent(ctx context.Context, intent *protocol.Intent) Result {
	env := &envelope{intent: intent, reply: make(chan Result, 1)}
	select {
	case r.intents <- env:
	case <-r.done:
		return Result{Reject: protocol.NewReject(protocol.CodeRoomClosed)}
	case <-ctx.Done():
		return Result{Reject: protocol.NewReject(protocol.CodeInternal)}
	}
	select {
	case res := <-env.reply:
		return res
	case <-ctx.Done():
		return Result{Reject: protocol.NewReject(protocol.CodeInternal)}
	}
}

// schedule runs fn on the room serializer after d, unless the room stops
// first.
func (r *Room) schedule(d time.Duration, fn func()) {
	r.deps.Clock.AfterFunc(d, func() {
		select {
		case r.tasks <- fn:
		case <-r.done:
		}
	})
}

// handle runs on the serializer goroutine.
func (r *Room) handle(intent *protocol.Intent) Result {
	sess, err := r.deps.Sessions.Validate(intent.SessionID)
	if err != nil {
		code := protocol.CodeInvalidSession
		if errorIsExpired(err) {
			code = protocol.CodeSessionExpired
		}
		return r.rejected(intent, protocol.NewReject(code))
	}
	r.deps.Sessions.Touch(intent.SessionID)

	var (
		events []*protocol.Event
		reject *protocol.Reject
	)
	switch intent.Type {
	case protocol.IntentJoinRoom:
		events, reject = r.handleJoin(intent, sess)
	case protocol.IntentLeaveRoom:
		events, reject = r.handleLeave(intent, sess)
	case protocol.IntentTakeSeat:
		events, reject = r.handleTakeSeat(intent, sess)
	case protocol.IntentLeaveSeat:
		events, reject = r.handleLeaveSeat(intent, sess)
	case protocol.IntentStandUp:
		events, reject = r.handleStandUp(intent, sess)
	case protocol.IntentSitBack:
		events, reject = r.handleSitBack(intent, sess)
	case protocol.IntentPlayerAction:
		events, reject = r.handlePlayerAction(intent, sess)
	case protocol.IntentRequestSync:
		events, reject = r.handleRequestSync(intent, sess)
	case protocol.IntentHeartbeat:
		events, reject = r.handleHeartbeat(intent, sess)
	default:
		reject = protocol.NewRejectf(protocol.CodeIllegalAction, "unknown intent %q", intent.Type)
	}

	if reject != nil {
		return r.rejected(intent, reject)
	}

	ack := r.newEvent(protocol.EventAck, "", protocol.AckData{
		IntentMessageID: intent.Header.MessageID,
	}).For(sess.PlayerID)
	out := append([]*protocol.Event{ack}, events...)
	r.publish(out...)
	return Result{Events: out}
}

func (r *Room) rejected(intent *protocol.Intent, reject *protocol.Reject) Result {
	player := ""
	if sess, err := r.deps.Sessions.Validate(intent.SessionID); err == nil {
		player = sess.PlayerID
	}
	ev := r.newEvent(protocol.EventReject, "", protocol.RejectData{
		IntentMessageID: intent.Header.MessageID,
		Code:            reject.Code,
		Reason:          reject.Reason,
		Details:         reject.Details,
	})
	if player != "" {
		ev.For(player)
	}
	r.publish(ev)
	return Result{Events: []*protocol.Event{ev}, Reject: reject}
}

// newEvent stamps the envelope with a fresh message id and, for
// table-scoped events, the table's committed sequence.
func (r *Room) newEvent(eventType protocol.EventType, tableID string, data any) *protocol.Event {
	ev := protocol.MustEvent(eventType, data)
	ev.RoomID = r.ID
	ev.TableID = tableID
	ev.Header = protocol.Header{
		MessageID: r.deps.IDs.New(gameid.Message),
		Timestamp: r.deps.Clock.Now(),
	}
	if tableID != "" {
		if ts, ok := r.tables[tableID]; ok {
			ev.Header.Sequence = ts.table.Sequence
		}
	}
	return ev
}

func (r *Room) publish(events ...*protocol.Event) {
	if r.deps.Publisher != nil {
		r.deps.Publisher.Publish(events...)
	}
}

// viewerIDs lists every member for snapshot fan-out.
func (r *Room) viewerIDs() []string {
	out := make([]string, 0, len(r.members))
	for id := range r.members {
		out = append(out, id)
	}
	return out
}

// commit bumps the table sequence and feeds the sync engine.
func (r *Room) commit(ts *tableState, structural bool) {
	ts.table.Commit()
	r.deps.Sync.Advance(ts.table, r.viewerIDs(), structural)
}

func errorIsExpired(err error) bool {
	return errors.Is(err, session.ErrSessionExpired)
}
