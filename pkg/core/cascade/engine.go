// Package cascade implements the shift offer cascade: a ranked list of
// candidates is offered a shift one at a time, escalating on decline or
// timeout until a candidate accepts or the pool is exhausted.
package cascade

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/carebridge/shift-cascade/pkg/db"
)

// DefaultOfferWindow is the time budget a candidate has to respond before
// the sweeper treats them as having declined
const DefaultOfferWindow = 30 * time.Minute

// Clock supplies the current time. Production uses the system clock; tests
// substitute a fixed one.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns a Clock backed by time.Now
func SystemClock() Clock { return systemClock{} }

// Notifier receives completed-transition notifications. Calls are
// fire-and-forget: implementations handle their own retries and logging.
type Notifier interface {
	ShiftAvailable(ctx context.Context, shift *db.Shift, deadline time.Time)
	ShiftConfirmed(ctx context.Context, shift *db.Shift)
	ShiftUnfilled(ctx context.Context, shift *db.Shift)
	AssignmentDeclined(ctx context.Context, shift *db.Shift, caregiverID, caregiverName, reason string)
}

// Outcome summarizes where an escalation left the cascade
type Outcome string

const (
	OutcomeEscalated Outcome = "escalated"
	OutcomeExhausted Outcome = "exhausted"
)

// EscalationResult is the cascade summary returned alongside the updated
// shift from DeclineOffer and ExpireOffer
type EscalationResult struct {
	Outcome         Outcome
	DeclinedBy      string
	NextOfferee     *db.Candidate
	NextRespondBy   *time.Time
	CandidatesTried int
}

// Engine owns all shift status and cascade state mutations between a
// cascade starting and the shift reaching accepted or unfilled
type Engine struct {
	store       db.ShiftStore
	notifier    Notifier
	clock       Clock
	offerWindow time.Duration
	logger      *zap.Logger
}

// NewEngine creates a cascade engine. A non-positive offerWindow falls back
// to DefaultOfferWindow.
func NewEngine(store db.ShiftStore, notifier Notifier, clock Clock, offerWindow time.Duration, logger *zap.Logger) *Engine {
	if offerWindow <= 0 {
		offerWindow = DefaultOfferWindow
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &Engine{
		store:       store,
		notifier:    notifier,
		clock:       clock,
		offerWindow: offerWindow,
		logger:      logger,
	}
}

// OfferWindow returns the configured per-candidate offer window
func (e *Engine) OfferWindow() time.Duration {
	return e.offerWindow
}

// StartCascade begins a cascade on a shift with the given ranked candidate
// list and offers the shift to the highest-ranked candidate. The list is
// treated as immutable from here on.
func (e *Engine) StartCascade(ctx context.Context, shiftID string, candidates []db.Candidate) (*db.Shift, error) {
	// Empty list is an upstream precondition violation; reject before
	// touching the store.
	if len(candidates) == 0 {
		return nil, ErrEmptyCandidateList
	}

	now := e.clock.Now()
	shift, err := e.store.ApplyShiftTransition(ctx, shiftID, func(s *db.Shift) error {
		return startCascade(s, candidates, now, e.offerWindow)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start cascade for shift %s: %w", shiftID, err)
	}

	e.logger.Info("Cascade started",
		zap.String("shift_id", shiftID),
		zap.Int("candidate_count", len(candidates)),
		zap.String("first_offeree", shift.CaregiverID))

	e.notifier.ShiftAvailable(ctx, shift, *shift.CascadeState.CurrentOfferExpiresAt)

	return shift, nil
}

// AcceptOffer confirms the live offer for the calling caregiver. The caller
// identity is checked against the current offeree inside the same atomic
// unit that writes the shift, so a stale accept racing an escalation loses
// cleanly with ErrNotCurrentOfferee.
func (e *Engine) AcceptOffer(ctx context.Context, shiftID, callerCaregiverID string) (*db.Shift, error) {
	now := e.clock.Now()
	shift, err := e.store.ApplyShiftTransition(ctx, shiftID, func(s *db.Shift) error {
		return acceptOffer(s, callerCaregiverID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to accept offer for shift %s: %w", shiftID, err)
	}

	e.logger.Info("Offer accepted",
		zap.String("shift_id", shiftID),
		zap.String("caregiver_id", callerCaregiverID))

	e.notifier.ShiftConfirmed(ctx, shift)

	return shift, nil
}

// DeclineOffer records a decline from the calling caregiver and escalates
// the cascade to the next candidate, or terminates it as unfilled when the
// pool is exhausted. Reason is optional free text from the caregiver.
func (e *Engine) DeclineOffer(ctx context.Context, shiftID, callerCaregiverID, reason string) (*db.Shift, *EscalationResult, error) {
	now := e.clock.Now()
	shift, err := e.store.ApplyShiftTransition(ctx, shiftID, func(s *db.Shift) error {
		if s.Status != db.StatusOffered {
			return ErrShiftNotOffered
		}
		offeree, ok := currentOfferee(s)
		if !ok || offeree.CaregiverID != callerCaregiverID {
			return ErrNotCurrentOfferee
		}
		return escalate(s, reason, now, e.offerWindow)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decline offer for shift %s: %w", shiftID, err)
	}

	result := e.summarizeEscalation(shift, callerCaregiverID)
	e.logger.Info("Offer declined",
		zap.String("shift_id", shiftID),
		zap.String("caregiver_id", callerCaregiverID),
		zap.String("outcome", string(result.Outcome)))

	e.notifyEscalation(ctx, shift, result)

	return shift, result, nil
}

// ExpireOffer escalates a shift whose live offer has passed its window.
// Invoked by the expiry sweeper with no caregiver identity; it shares the
// escalation path with DeclineOffer so the invariants hold regardless of
// trigger source. Safe to call concurrently with a racing human decline:
// whichever transaction commits second sees a non-offered shift or a moved
// cursor and fails its precondition check.
func (e *Engine) ExpireOffer(ctx context.Context, shiftID string) (*db.Shift, *EscalationResult, error) {
	now := e.clock.Now()
	var expiredCaregiverID string
	shift, err := e.store.ApplyShiftTransition(ctx, shiftID, func(s *db.Shift) error {
		if s.Status != db.StatusOffered {
			return ErrShiftNotOffered
		}
		cs := s.CascadeState
		if cs == nil || cs.CurrentOfferExpiresAt == nil || now.Before(*cs.CurrentOfferExpiresAt) {
			return ErrOfferNotYetExpired
		}
		if offeree, ok := currentOfferee(s); ok {
			expiredCaregiverID = offeree.CaregiverID
		}
		return escalate(s, "offer expired without response", now, e.offerWindow)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to expire offer for shift %s: %w", shiftID, err)
	}

	result := e.summarizeEscalation(shift, expiredCaregiverID)
	e.logger.Info("Offer expired",
		zap.String("shift_id", shiftID),
		zap.String("caregiver_id", expiredCaregiverID),
		zap.String("outcome", string(result.Outcome)))

	e.notifyEscalation(ctx, shift, result)

	return shift, result, nil
}

// DeclineAssignment handles the direct-assignment decline flow: the shift
// loses its caregiver and the owner is told. Unlike the cascade decline
// there is never a fallback candidate.
func (e *Engine) DeclineAssignment(ctx context.Context, shiftID, callerCaregiverID, reason string) (*db.Shift, error) {
	var declinedName string
	shift, err := e.store.ApplyShiftTransition(ctx, shiftID, func(s *db.Shift) error {
		declinedName = s.CaregiverName
		return declineAssignment(s, callerCaregiverID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decline assignment for shift %s: %w", shiftID, err)
	}

	e.logger.Info("Assignment declined",
		zap.String("shift_id", shiftID),
		zap.String("caregiver_id", callerCaregiverID))

	e.notifier.AssignmentDeclined(ctx, shift, callerCaregiverID, declinedName, reason)

	return shift, nil
}

// GetShift returns the current shift record
func (e *Engine) GetShift(ctx context.Context, shiftID string) (*db.Shift, error) {
	shift, err := e.store.GetShift(ctx, shiftID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch shift %s: %w", shiftID, err)
	}
	return shift, nil
}

// summarizeEscalation derives the escalation summary from the committed
// shift state
func (e *Engine) summarizeEscalation(shift *db.Shift, declinedBy string) *EscalationResult {
	result := &EscalationResult{
		DeclinedBy:      declinedBy,
		CandidatesTried: len(shift.CascadeState.OfferHistory),
	}
	if shift.Status == db.StatusOffered {
		result.Outcome = OutcomeEscalated
		next := shift.CascadeState.RankedCandidates[shift.CascadeState.CurrentOfferIndex]
		result.NextOfferee = &next
		result.NextRespondBy = shift.CascadeState.CurrentOfferExpiresAt
	} else {
		result.Outcome = OutcomeExhausted
	}
	return result
}

// notifyEscalation fires the side-effect notification for a committed
// escalation: the next offeree for an advance, the owner for exhaustion
func (e *Engine) notifyEscalation(ctx context.Context, shift *db.Shift, result *EscalationResult) {
	switch result.Outcome {
	case OutcomeEscalated:
		e.notifier.ShiftAvailable(ctx, shift, *result.NextRespondBy)
	case OutcomeExhausted:
		e.notifier.ShiftUnfilled(ctx, shift)
	}
}
