package moderation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/tablestakes/cardroom/internal/gameid"
)

// DecisionAction classifies a decision-log entry.
type DecisionAction string

const (
	ActionCaseOpened    DecisionAction = "case_opened"
	ActionCaseAssigned  DecisionAction = "case_assigned"
	ActionReplayViewed  DecisionAction = "replay_viewed"
	ActionBundleViewed  DecisionAction = "bundle_viewed"
	ActionAnnotated     DecisionAction = "annotated"
	ActionRecommended   DecisionAction = "recommended"
	ActionCaseDecided   DecisionAction = "case_decided"
	ActionCaseReopened  DecisionAction = "case_reopened"
	ActionCaseEscalated DecisionAction = "case_escalated"
)

// DecisionEntry is one immutable line of the moderation audit trail. Each
// entry's hash covers the previous entry's hash, chaining the log.
type DecisionEntry struct {
	EntryID           string         `json:"entryId"`
	Timestamp         time.Time      `json:"timestamp"`
	ModeratorID       string         `json:"moderatorId"`
	Action            DecisionAction `json:"action"`
	CaseID            string         `json:"caseId"`
	Details           string         `json:"details,omitempty"`
	PreviousEntryHash string         `json:"previousEntryHash"`
	EntryHash         string         `json:"entryHash"`
}

func (e *DecisionEntry) canonical() string {
	return fmt.Sprintf("%s|%d|%s|%s|%s|%s|%s",
		e.EntryID, e.Timestamp.UnixNano(), e.ModeratorID, e.Action,
		e.CaseID, e.Details, e.PreviousEntryHash)
}

func (e *DecisionEntry) computeHash() string {
	sum := sha256.Sum256([]byte(e.canonical()))
	return hex.EncodeToString(sum[:])
}

// genesisDecisionHash seeds the chain before any entry exists.
const genesisDecisionHash = "0000000000000000000000000000000000000000000000000000000000000000"

// DecisionLog is the append-only, hash-chained audit trail of every
// moderation action, including reads.
type DecisionLog struct {
	mu      sync.Mutex
	ids     *gameid.Generator
	now     func() time.Time
	entries []DecisionEntry
}

// NewDecisionLog creates an empty log. Pass nil for now to use the wall
// clock.
func NewDecisionLog(ids *gameid.Generator, now func() time.Time) *DecisionLog {
	if now == nil {
		now = time.Now
	}
	return &DecisionLog{ids: ids, now: now}
}

// Append records one action and returns the stored entry.
func (l *DecisionLog) Append(moderatorID string, action DecisionAction, caseID, details string) DecisionEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := genesisDecisionHash
	if n := len(l.entries); n > 0 {
		prev = l.entries[n-1].EntryHash
	}
	entry := DecisionEntry{
		EntryID:           l.ids.New(gameid.Decision),
		Timestamp:         l.now().UTC(),
		ModeratorID:       moderatorID,
		Action:            action,
		CaseID:            caseID,
		Details:           details,
		PreviousEntryHash: prev,
	}
	entry.EntryHash = entry.computeHash()
	l.entries = append(l.entries, entry)
	return entry
}

// Entries returns a copy of the full trail in append order.
func (l *DecisionLog) Entries() []DecisionEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]DecisionEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// ByCase returns the trail for one case, in append order.
func (l *DecisionLog) ByCase(caseID string) []DecisionEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []DecisionEntry
	for _, e := range l.entries {
		if e.CaseID == caseID {
			out = append(out, e)
		}
	}
	return out
}

// VerifyIntegrity re-walks the chain. It returns the index of the first
// bad entry and the reason, or (-1, "") for an intact log.
func (l *DecisionLog) VerifyIntegrity() (int, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := genesisDecisionHash
	for i := range l.entries {
		e := &l.entries[i]
		if e.PreviousEntryHash != prev {
			return i, fmt.Sprintf("entry %s previous hash mismatch", e.EntryID)
		}
		if e.computeHash() != e.EntryHash {
			return i, fmt.Sprintf("entry %s hash mismatch", e.EntryID)
		}
		prev = e.EntryHash
	}
	return -1, ""
}
