package moderation

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tablestakes/cardroom/internal/gameid"
)

// CaseStatus is a review case's position in its lifecycle.
type CaseStatus string

const (
	StatusPendingReview      CaseStatus = "PENDING_REVIEW"
	StatusUnderInvestigation CaseStatus = "UNDER_INVESTIGATION"
	StatusAwaitingDecision   CaseStatus = "AWAITING_DECISION"
	StatusResolved           CaseStatus = "RESOLVED"
	StatusDismissed          CaseStatus = "DISMISSED"
	StatusEscalated          CaseStatus = "ESCALATED"
)

// Verdict is the terminal decision on a case.
type Verdict string

const (
	VerdictResolved  Verdict = "RESOLVED"
	VerdictDismissed Verdict = "DISMISSED"
	VerdictEscalated Verdict = "ESCALATED"
)

var (
	ErrUnknownCase       = errors.New("unknown case")
	ErrUnknownBundle     = errors.New("unknown bundle")
	ErrInvalidTransition = errors.New("invalid case transition")
	ErrNotAssignee       = errors.New("case is assigned to another moderator")
)

// Annotation is one investigator note.
type Annotation struct {
	ModeratorID string    `json:"moderatorId"`
	Timestamp   time.Time `json:"timestamp"`
	Text        string    `json:"text"`
}

// Case tracks the review of one evidence bundle.
type Case struct {
	ID             string       `json:"id"`
	BundleID       string       `json:"bundleId"`
	HandID         string       `json:"handId"`
	Status         CaseStatus   `json:"status"`
	AssignedTo     string       `json:"assignedTo,omitempty"`
	Annotations    []Annotation `json:"annotations,omitempty"`
	Recommendation string       `json:"recommendation,omitempty"`
	Verdict        Verdict      `json:"verdict,omitempty"`
	VerdictReason  string       `json:"verdictReason,omitempty"`
	OpenedAt       time.Time    `json:"openedAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

func (c *Case) clone() Case {
	out := *c
	out.Annotations = append([]Annotation(nil), c.Annotations...)
	return out
}

// CaseService owns the case lifecycle. Every transition and every evidence
// read goes through the decision log, so the audit trail is complete even
// for cases that end dismissed. A single mutex serializes all writes.
type CaseService struct {
	mu      sync.Mutex
	ids     *gameid.Generator
	now     func() time.Time
	logbook *DecisionLog
	logger  *log.Logger
	cases   map[string]*Case
	bundles map[string]*EvidenceBundle
}

// NewCaseService creates a service writing to the given decision log. Pass
// nil for now to use the wall clock.
func NewCaseService(ids *gameid.Generator, logbook *DecisionLog, logger *log.Logger, now func() time.Time) *CaseService {
	if now == nil {
		now = time.Now
	}
	return &CaseService{
		ids:     ids,
		now:     now,
		logbook: logbook,
		logger:  logger.WithPrefix("cases"),
		cases:   make(map[string]*Case),
		bundles: make(map[string]*EvidenceBundle),
	}
}

// OpenCase registers the bundle and opens a case in PENDING_REVIEW.
// moderatorID identifies who (or which automated reporter) raised it.
func (s *CaseService) OpenCase(moderatorID string, bundle *EvidenceBundle) (Case, error) {
	if err := VerifyBundle(bundle); err != nil {
		return Case{}, fmt.Errorf("open case: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	c := &Case{
		ID:       s.ids.New(gameid.Case),
		BundleID: bundle.BundleID,
		HandID:   bundle.HandID,
		Status:   StatusPendingReview,
		OpenedAt: now,
	}
	c.UpdatedAt = now
	s.cases[c.ID] = c
	s.bundles[bundle.BundleID] = bundle

	s.logbook.Append(moderatorID, ActionCaseOpened, c.ID,
		fmt.Sprintf("bundle=%s hand=%s", bundle.BundleID, bundle.HandID))
	s.logger.Info("case opened", "case", c.ID, "hand", bundle.HandID)
	return c.clone(), nil
}

// Assign moves a pending case to UNDER_INVESTIGATION under moderatorID.
func (s *CaseService) Assign(moderatorID, caseID string) (Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.transition(caseID, StatusUnderInvestigation, StatusPendingReview)
	if err != nil {
		return Case{}, err
	}
	c.AssignedTo = moderatorID
	s.logbook.Append(moderatorID, ActionCaseAssigned, caseID, "")
	return c.clone(), nil
}

// Annotate attaches an investigator note. Only the assignee may annotate,
// and only while the case is under investigation.
func (s *CaseService) Annotate(moderatorID, caseID, text string) (Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.writable(caseID, moderatorID, StatusUnderInvestigation)
	if err != nil {
		return Case{}, err
	}
	c.Annotations = append(c.Annotations, Annotation{
		ModeratorID: moderatorID,
		Timestamp:   s.now().UTC(),
		Text:        text,
	})
	c.UpdatedAt = s.now().UTC()
	s.logbook.Append(moderatorID, ActionAnnotated, caseID, text)
	return c.clone(), nil
}

// Recommend records the investigator's recommendation and moves the case
// to AWAITING_DECISION.
func (s *CaseService) Recommend(moderatorID, caseID, recommendation string) (Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.writable(caseID, moderatorID, StatusUnderInvestigation); err != nil {
		return Case{}, err
	}
	c, err := s.transition(caseID, StatusAwaitingDecision, StatusUnderInvestigation)
	if err != nil {
		return Case{}, err
	}
	c.Recommendation = recommendation
	s.logbook.Append(moderatorID, ActionRecommended, caseID, recommendation)
	return c.clone(), nil
}

// Decide closes an awaiting case with a verdict. The decider need not be
// the assignee; decisions come from a second set of eyes.
func (s *CaseService) Decide(moderatorID, caseID string, verdict Verdict, reason string) (Case, error) {
	var target CaseStatus
	switch verdict {
	case VerdictResolved:
		target = StatusResolved
	case VerdictDismissed:
		target = StatusDismissed
	case VerdictEscalated:
		target = StatusEscalated
	default:
		return Case{}, fmt.Errorf("%w: unknown verdict %q", ErrInvalidTransition, verdict)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.transition(caseID, target, StatusAwaitingDecision)
	if err != nil {
		return Case{}, err
	}
	c.Verdict = verdict
	c.VerdictReason = reason

	action := ActionCaseDecided
	if verdict == VerdictEscalated {
		action = ActionCaseEscalated
	}
	s.logbook.Append(moderatorID, action, caseID, fmt.Sprintf("%s: %s", verdict, reason))
	s.logger.Info("case decided", "case", caseID, "verdict", verdict)
	return c.clone(), nil
}

// Reopen returns a resolved or dismissed case to UNDER_INVESTIGATION.
// Escalated cases live outside this service and cannot be reopened here.
func (s *CaseService) Reopen(moderatorID, caseID, reason string) (Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.transition(caseID, StatusUnderInvestigation, StatusResolved, StatusDismissed)
	if err != nil {
		return Case{}, err
	}
	c.AssignedTo = moderatorID
	c.Verdict = ""
	c.VerdictReason = ""
	c.Recommendation = ""
	s.logbook.Append(moderatorID, ActionCaseReopened, caseID, reason)
	return c.clone(), nil
}

// ViewReplay returns the case's replay and logs the read.
func (s *CaseService) ViewReplay(moderatorID, caseID string) (*HandReplay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bundle, err := s.bundleFor(caseID)
	if err != nil {
		return nil, err
	}
	s.logbook.Append(moderatorID, ActionReplayViewed, caseID, "hand="+bundle.HandID)
	return bundle.Replay, nil
}

// ViewBundle returns the case's evidence bundle and logs the read.
func (s *CaseService) ViewBundle(moderatorID, caseID string) (*EvidenceBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bundle, err := s.bundleFor(caseID)
	if err != nil {
		return nil, err
	}
	s.logbook.Append(moderatorID, ActionBundleViewed, caseID, "bundle="+bundle.BundleID)
	return bundle, nil
}

// Get returns a snapshot of one case.
func (s *CaseService) Get(caseID string) (Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[caseID]
	if !ok {
		return Case{}, fmt.Errorf("%w: %s", ErrUnknownCase, caseID)
	}
	return c.clone(), nil
}

// List returns snapshots of every case with the given status, or all cases
// when status is empty. Order follows case id.
func (s *CaseService) List(status CaseStatus) []Case {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Case
	for _, id := range sortedCaseIDs(s.cases) {
		c := s.cases[id]
		if status == "" || c.Status == status {
			out = append(out, c.clone())
		}
	}
	return out
}

func (s *CaseService) transition(caseID string, to CaseStatus, from ...CaseStatus) (*Case, error) {
	c, ok := s.cases[caseID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCase, caseID)
	}
	allowed := false
	for _, f := range from {
		if c.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
	}
	c.Status = to
	c.UpdatedAt = s.now().UTC()
	return c, nil
}

func (s *CaseService) writable(caseID, moderatorID string, want CaseStatus) (*Case, error) {
	c, ok := s.cases[caseID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCase, caseID)
	}
	if c.Status != want {
		return nil, fmt.Errorf("%w: case is %s", ErrInvalidTransition, c.Status)
	}
	if c.AssignedTo != moderatorID {
		return nil, fmt.Errorf("%w: assigned to %s", ErrNotAssignee, c.AssignedTo)
	}
	return c, nil
}

func (s *CaseService) bundleFor(caseID string) (*EvidenceBundle, error) {
	c, ok := s.cases[caseID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCase, caseID)
	}
	bundle, ok := s.bundles[c.BundleID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBundle, c.BundleID)
	}
	return bundle, nil
}

func sortedCaseIDs(cases map[string]*Case) []string {
	ids := make([]string, 0, len(cases))
	for id := range cases {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
