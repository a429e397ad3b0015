package moderation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tablestakes/cardroom/internal/gameid"
	"github.com/tablestakes/cardroom/internal/integrity"
)

// TableContext captures the table configuration in force when the bundle's
// hand was played.
type TableContext struct {
	TableID    string `json:"tableId"`
	RoomID     string `json:"roomId"`
	SmallBlind int64  `json:"smallBlind"`
	BigBlind   int64  `json:"bigBlind"`
	MaxSeats   int    `json:"maxSeats"`
}

// HandOutcome summarizes how the bundled hand resolved.
type HandOutcome struct {
	Winners     []string         `json:"winners"`
	EndReason   string           `json:"endReason"`
	PotSize     int64            `json:"potSize"`
	RakeTaken   int64            `json:"rakeTaken"`
	FinalStreet string           `json:"finalStreet"`
	NetChips    map[string]int64 `json:"netChips"`
}

// EvidenceBundle is a self-contained, checksummed package for one hand:
// everything a reviewer needs without access to the live system.
type EvidenceBundle struct {
	BundleID      string                              `json:"bundleId"`
	HandID        string                              `json:"handId"`
	CreatedAt     time.Time                           `json:"createdAt"`
	Table         TableContext                        `json:"table"`
	HandEvents    []integrity.Event                   `json:"handEvents"`
	Replay        *HandReplay                         `json:"replay"`
	PlayerMetrics map[string]*integrity.PlayerMetrics `json:"playerMetrics"`
	Signals       []integrity.DetectionSignal         `json:"signals"`
	Outcome       HandOutcome                         `json:"outcome"`
	Checksum      string                              `json:"checksum"`
}

// BundleBuilder assembles evidence bundles from the collector's stream and
// the detectors' signals.
type BundleBuilder struct {
	ids *gameid.Generator
	now func() time.Time
}

// NewBundleBuilder creates a builder. Pass nil for now to use the wall
// clock.
func NewBundleBuilder(ids *gameid.Generator, now func() time.Time) *BundleBuilder {
	if now == nil {
		now = time.Now
	}
	return &BundleBuilder{ids: ids, now: now}
}

// Build packages one hand. events is the full table stream; only events for
// handID are bundled, but metrics and signals are computed over the whole
// stream so the reviewer sees behavior in context. Signals not involving a
// participant of the hand are filtered out.
func (b *BundleBuilder) Build(events []integrity.Event, handID string, table TableContext, signals []integrity.DetectionSignal) (*EvidenceBundle, error) {
	replay, err := BuildReplay(events, handID)
	if err != nil {
		return nil, err
	}

	var handEvents []integrity.Event
	for _, e := range events {
		if e.HandID == handID {
			handEvents = append(handEvents, e)
		}
	}

	participants := make(map[string]bool, len(replay.InitialState.Stacks))
	for id := range replay.InitialState.Stacks {
		participants[id] = true
	}

	all := integrity.ComputeMetrics(events, integrity.DefaultTimingConfig())
	metrics := make(map[string]*integrity.PlayerMetrics, len(participants))
	for id := range participants {
		if pm, ok := all[id]; ok {
			metrics[id] = pm
		}
	}

	var relevant []integrity.DetectionSignal
	for _, sig := range signals {
		for _, id := range sig.Players {
			if participants[id] {
				relevant = append(relevant, sig)
				break
			}
		}
	}

	bundle := &EvidenceBundle{
		BundleID:      b.ids.New(gameid.Bundle),
		HandID:        handID,
		CreatedAt:     b.now().UTC(),
		Table:         table,
		HandEvents:    handEvents,
		Replay:        replay,
		PlayerMetrics: metrics,
		Signals:       relevant,
		Outcome:       outcomeFrom(handEvents),
	}
	bundle.Checksum = bundleChecksum(bundle)
	return bundle, nil
}

func outcomeFrom(handEvents []integrity.Event) HandOutcome {
	var out HandOutcome
	for _, e := range handEvents {
		switch p := e.Payload.(type) {
		case integrity.HandEndedPayload:
			out.Winners = p.Winners
			out.EndReason = p.EndReason
			out.PotSize = p.PotSize
			out.FinalStreet = p.FinalStreet
			out.NetChips = p.NetChips
		case integrity.RakeCollectedPayload:
			out.RakeTaken += p.Amount
		}
	}
	return out
}

// bundleChecksum digests the bundle's canonical JSON with the checksum
// field cleared. encoding/json sorts map keys, so the digest is stable.
func bundleChecksum(b *EvidenceBundle) string {
	clone := *b
	clone.Checksum = ""
	data, err := json.Marshal(&clone)
	if err != nil {
		// All bundle fields are plain data; marshal cannot fail.
		panic(fmt.Sprintf("marshal evidence bundle: %v", err))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyBundle recomputes the bundle checksum and the inner replay
// checksum. Any edit to bundled evidence fails verification.
func VerifyBundle(b *EvidenceBundle) error {
	if got := bundleChecksum(b); got != b.Checksum {
		return fmt.Errorf("bundle %s checksum mismatch", b.BundleID)
	}
	if b.Replay != nil {
		if err := VerifyReplayDeterminism(b.Replay); err != nil {
			return fmt.Errorf("bundle %s: %w", b.BundleID, err)
		}
	}
	return nil
}
