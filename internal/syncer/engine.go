package syncer

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/tablestakes/cardroom/internal/game"
	"github.com/tablestakes/cardroom/internal/protocol"
)

// Config bounds snapshot storage.
type Config struct {
	// SnapshotEvery stores a snapshot at every Kth sequence in addition to
	// seat-structural changes.
	SnapshotEvery uint64
	// MaxHistory caps stored snapshots per (table, viewer); the oldest
	// sequences are evicted first.
	MaxHistory int
}

// DefaultConfig matches the documented sync cadence.
func DefaultConfig() Config {
	return Config{SnapshotEvery: 10, MaxHistory: 32}
}

type viewerHistory struct {
	views map[uint64]TableView
	order []uint64 // ascending sequences
}

type tableSync struct {
	current  uint64
	byViewer map[string]*viewerHistory
}

// Engine stores viewer-specific snapshots per table and serves full or
// incremental sync responses against them.
type Engine struct {
	mu     sync.Mutex
	cfg    Config
	tables map[string]*tableSync
}

// NewEngine creates a sync engine.
func NewEngine(cfg Config) *Engine {
	if cfg.SnapshotEvery == 0 {
		cfg.SnapshotEvery = 10
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 32
	}
	return &Engine{cfg: cfg, tables: make(map[string]*tableSync)}
}

func (e *Engine) tableSyncFor(tableID string) *tableSync {
	ts, ok := e.tables[tableID]
	if !ok {
		ts = &tableSync{byViewer: make(map[string]*viewerHistory)}
		e.tables[tableID] = ts
	}
	return ts
}

// Advance records a table's new sequence and stores the viewer projections
// when the cadence or a structural change calls for it. viewerIDs is the
// set of players subscribed to the table.
func (e *Engine) Advance(t *game.Table, viewerIDs []string, structural bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ts := e.tableSyncFor(t.ID)
	ts.current = t.Sequence
	if !structural && t.Sequence%e.cfg.SnapshotEvery != 0 {
		return
	}
	for _, viewer := range viewerIDs {
		e.store(ts, viewer, ProjectTable(t, viewer))
	}
}

// StoreSnapshot persists one viewer's projection at the table's sequence.
func (e *Engine) StoreSnapshot(t *game.Table, viewerID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ts := e.tableSyncFor(t.ID)
	ts.current = t.Sequence
	e.store(ts, viewerID, ProjectTable(t, viewerID))
}

// store assumes the lock is held.
func (e *Engine) store(ts *tableSync, viewerID string, view TableView) {
	vh, ok := ts.byViewer[viewerID]
	if !ok {
		vh = &viewerHistory{views: make(map[uint64]TableView)}
		ts.byViewer[viewerID] = vh
	}
	if _, exists := vh.views[view.Sequence]; !exists {
		vh.order = append(vh.order, view.Sequence)
		sort.Slice(vh.order, func(i, j int) bool { return vh.order[i] < vh.order[j] })
	}
	vh.views[view.Sequence] = view
	for len(vh.order) > e.cfg.MaxHistory {
		delete(vh.views, vh.order[0])
		vh.order = vh.order[1:]
	}
}

// Forget drops a viewer's history, typically on leave or expiry.
func (e *Engine) Forget(tableID, viewerID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ts, ok := e.tables[tableID]; ok {
		delete(ts.byViewer, viewerID)
	}
}

// DropTable discards all state for a closed table.
func (e *Engine) DropTable(tableID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.tables, tableID)
}

// ValidateSequence checks an intent's table sequence against the current
// one. Behind means the client acted on stale state; more than one ahead
// means the client's counter is corrupt.
func (e *Engine) ValidateSequence(tableID string, incoming uint64) *protocol.Reject {
	e.mu.Lock()
	defer e.mu.Unlock()
	ts, ok := e.tables[tableID]
	if !ok {
		return nil
	}
	if incoming < ts.current {
		return protocol.NewRejectf(protocol.CodeStaleIntent, "sequence %d behind current %d", incoming, ts.current)
	}
	if incoming > ts.current+1 {
		return protocol.NewRejectf(protocol.CodeSequenceMismatch, "sequence %d ahead of current %d", incoming, ts.current)
	}
	return nil
}

// SyncResponse is either a full snapshot or a diff, never both.
type SyncResponse struct {
	Snapshot *protocol.SnapshotData
	Diff     *protocol.DiffData
}

// GenerateSyncResponse serves a client catching up. With no usable base,
// or a base further behind than the snapshot cadence, the client gets a
// full room snapshot; otherwise an ordered diff against the stored base.
func (e *Engine) GenerateSyncResponse(room RoomView, t *game.Table, viewerID string, clientSequence *uint64) (*SyncResponse, error) {
	cur := ProjectTable(t, viewerID)

	e.mu.Lock()
	ts := e.tableSyncFor(t.ID)
	ts.current = t.Sequence

	var base *TableView
	if clientSequence != nil {
		if vh, ok := ts.byViewer[viewerID]; ok {
			if view, ok := vh.views[*clientSequence]; ok && cur.Sequence-*clientSequence <= e.cfg.SnapshotEvery {
				base = &view
			}
		}
	}
	e.store(ts, viewerID, cur)
	e.mu.Unlock()

	if base == nil {
		for i := range room.Tables {
			if room.Tables[i].TableID == t.ID {
				room.Tables[i] = cur
			}
		}
		raw, err := json.Marshal(room)
		if err != nil {
			return nil, err
		}
		return &SyncResponse{Snapshot: &protocol.SnapshotData{
			ForPlayerID: viewerID,
			Sequence:    cur.Sequence,
			Snapshot:    raw,
		}}, nil
	}

	return &SyncResponse{Diff: &protocol.DiffData{
		BaseSequence: base.Sequence,
		Sequence:     cur.Sequence,
		Operations:   DiffViews(*base, cur),
	}}, nil
}
