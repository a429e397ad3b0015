// Package moderation is the read-side human review surface: hand replays,
// evidence bundles, a hash-chained decision log and the case service. It
// never mutates game, ledger or collector state.
package moderation

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tablestakes/cardroom/internal/integrity"
)

var ErrHandNotFound = errors.New("hand not found in event stream")

// ReplayState is the reconstructed table state at one point of a hand.
type ReplayState struct {
	Street    string           `json:"street"`
	Community []string         `json:"community,omitempty"`
	Pot       int64            `json:"pot"`
	Stacks    map[string]int64 `json:"stacks"`
	Folded    map[string]bool  `json:"folded"`
}

func (s *ReplayState) clone() ReplayState {
	out := ReplayState{
		Street:    s.Street,
		Community: append([]string(nil), s.Community...),
		Pot:       s.Pot,
		Stacks:    make(map[string]int64, len(s.Stacks)),
		Folded:    make(map[string]bool, len(s.Folded)),
	}
	for k, v := range s.Stacks {
		out.Stacks[k] = v
	}
	for k, v := range s.Folded {
		out.Folded[k] = v
	}
	return out
}

// hash canonicalizes the state with players sorted by id, so identical
// states hash identically regardless of map order.
func (s *ReplayState) hash() string {
	ids := make([]string, 0, len(s.Stacks))
	for id := range s.Stacks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	fmt.Fprintf(&b, "street=%s|pot=%d|community=%s", s.Street, s.Pot, strings.Join(s.Community, ","))
	for _, id := range ids {
		fmt.Fprintf(&b, "|%s=%d,folded=%t", id, s.Stacks[id], s.Folded[id])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// ReplayStep is one reconstructed transition.
type ReplayStep struct {
	Index         int         `json:"index"`
	Action        string      `json:"action"`
	Diff          string      `json:"diff"`
	SourceEventID string      `json:"sourceEventId"`
	State         ReplayState `json:"state"`
	StateHash     string      `json:"stateHash"`
}

// HandReplay is a deterministic reconstruction of one hand.
type HandReplay struct {
	HandID          string        `json:"handId"`
	InitialState    ReplayState   `json:"initialState"`
	Steps           []ReplayStep  `json:"steps"`
	FinalState      ReplayState   `json:"finalState"`
	Winners         []string      `json:"winners"`
	TotalPotAwarded int64         `json:"totalPotAwarded"`
	Duration        time.Duration `json:"duration"`
	Checksum        string        `json:"checksum"`
}

// BuildReplay reconstructs a hand from the collector's stream. The walk is
// a pure function of the events: the same stream yields a byte-identical
// replay including its checksum.
func BuildReplay(events []integrity.Event, handID string) (*HandReplay, error) {
	var handEvents []integrity.Event
	for _, e := range events {
		if e.HandID == handID {
			handEvents = append(handEvents, e)
		}
	}
	if len(handEvents) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrHandNotFound, handID)
	}

	replay := &HandReplay{HandID: handID}
	state := ReplayState{
		Street: "preflop",
		Stacks: make(map[string]int64),
		Folded: make(map[string]bool),
	}

	var started bool
	for _, e := range handEvents {
		switch p := e.Payload.(type) {
		case integrity.HandStartedPayload:
			for _, hp := range p.Players {
				state.Stacks[hp.PlayerID] = hp.Stack
				state.Folded[hp.PlayerID] = false
			}
			replay.InitialState = state.clone()
			started = true

		case integrity.PlayerActionPayload:
			if !started {
				continue
			}
			if p.Amount > 0 {
				state.Stacks[p.PlayerID] -= p.Amount
				state.Pot += p.Amount
			}
			if p.Action == "fold" {
				state.Folded[p.PlayerID] = true
			}
			replay.addStep(
				fmt.Sprintf("%s %s %d", p.PlayerID, p.Action, p.Amount),
				fmt.Sprintf("stack[%s] -= %d; pot += %d", p.PlayerID, p.Amount, p.Amount),
				e.ID, &state)

		case integrity.StreetChangedPayload:
			if !started {
				continue
			}
			state.Street = p.Street
			state.Community = append([]string(nil), p.Community...)
			replay.addStep(
				fmt.Sprintf("street %s", p.Street),
				fmt.Sprintf("street -> %s; community -> %s", p.Street, strings.Join(p.Community, ",")),
				e.ID, &state)

		case integrity.PotAwardedPayload:
			if !started {
				continue
			}
			state.Stacks[p.WinnerID] += p.Amount
			state.Pot -= p.Amount
			replay.TotalPotAwarded += p.Amount
			replay.addStep(
				fmt.Sprintf("%s wins %d from %s", p.WinnerID, p.Amount, p.PotID),
				fmt.Sprintf("stack[%s] += %d; pot -= %d", p.WinnerID, p.Amount, p.Amount),
				e.ID, &state)

		case integrity.HandEndedPayload:
			replay.Winners = append([]string(nil), p.Winners...)
		}
	}
	if !started {
		return nil, fmt.Errorf("%w: %s has no hand_started event", ErrHandNotFound, handID)
	}

	replay.FinalState = state.clone()
	replay.Duration = handEvents[len(handEvents)-1].Timestamp.Sub(handEvents[0].Timestamp)
	replay.Checksum = replayChecksum(replay)
	return replay, nil
}

func (r *HandReplay) addStep(action, diff, sourceEventID string, state *ReplayState) {
	snapshot := state.clone()
	r.Steps = append(r.Steps, ReplayStep{
		Index:         len(r.Steps),
		Action:        action,
		Diff:          diff,
		SourceEventID: sourceEventID,
		State:         snapshot,
		StateHash:     snapshot.hash(),
	})
}

// replayChecksum digests the hand id and every step's action and state
// hash, in order.
func replayChecksum(r *HandReplay) string {
	var b strings.Builder
	b.WriteString(r.HandID)
	for _, step := range r.Steps {
		b.WriteString("|")
		b.WriteString(step.Action)
		b.WriteString("|")
		b.WriteString(step.StateHash)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// VerifyReplayDeterminism recomputes every state hash and the checksum.
func VerifyReplayDeterminism(r *HandReplay) error {
	for i := range r.Steps {
		if got := r.Steps[i].State.hash(); got != r.Steps[i].StateHash {
			return fmt.Errorf("step %d state hash mismatch", i)
		}
	}
	if got := replayChecksum(r); got != r.Checksum {
		return fmt.Errorf("replay checksum mismatch for hand %s", r.HandID)
	}
	return nil
}
