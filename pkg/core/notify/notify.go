// Package notify constructs and dispatches the notifications produced by
// cascade transitions. Dispatch is best-effort and always happens after the
// transactional write has committed; a failure here is logged and retried a
// bounded number of times, never rolled back into the transition.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carebridge/shift-cascade/pkg/db"
)

// Notification kinds. Each kind has its own typed payload so collaborators
// never have to pick fields out of an untyped map.
const (
	KindShiftAvailable     = "shift_available"
	KindShiftConfirmed     = "shift_confirmed"
	KindShiftUnfilled      = "shift_unfilled"
	KindAssignmentDeclined = "assignment_declined"
)

// ShiftSummary is the shift context embedded in every payload
type ShiftSummary struct {
	ShiftID   string `json:"shiftId"`
	ElderName string `json:"elderName"`
	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// ShiftAvailablePayload is sent to the next offeree when a cascade starts
// or escalates. RespondBy is the absolute deadline of the offer window.
type ShiftAvailablePayload struct {
	Shift     ShiftSummary `json:"shift"`
	RespondBy time.Time    `json:"respondBy"`
}

// ShiftConfirmedPayload is sent to the shift owner when a candidate accepts
type ShiftConfirmedPayload struct {
	Shift         ShiftSummary `json:"shift"`
	CaregiverID   string       `json:"caregiverId"`
	CaregiverName string       `json:"caregiverName"`
}

// ShiftUnfilledPayload is sent to the shift owner when the candidate pool
// is exhausted and manual reassignment is required
type ShiftUnfilledPayload struct {
	Shift           ShiftSummary `json:"shift"`
	CandidatesTried int          `json:"candidatesTried"`
}

// AssignmentDeclinedPayload is sent to the shift owner when a directly
// assigned caregiver declines outside of a cascade
type AssignmentDeclinedPayload struct {
	Shift         ShiftSummary `json:"shift"`
	CaregiverID   string       `json:"caregiverId"`
	CaregiverName string       `json:"caregiverName"`
	Reason        string       `json:"reason,omitempty"`
}

// Sink accepts fire-and-forget notification records addressed to a user.
// The engine does not wait for delivery confirmation.
type Sink interface {
	Enqueue(ctx context.Context, n *db.Notification) error
}

const (
	sinkAttempts = 3
	sinkBackoff  = 200 * time.Millisecond
)

// Dispatcher builds notification records from completed transitions and
// pushes them into a Sink
type Dispatcher struct {
	sink   Sink
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher over the given sink
func NewDispatcher(sink Sink, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{sink: sink, logger: logger}
}

func summarize(shift *db.Shift) ShiftSummary {
	return ShiftSummary{
		ShiftID:   shift.ID,
		ElderName: shift.ElderName,
		Date:      shift.Date,
		StartTime: shift.StartTime,
		EndTime:   shift.EndTime,
	}
}

// ShiftAvailable notifies the new offeree that a shift is theirs to claim
// until the deadline
func (d *Dispatcher) ShiftAvailable(ctx context.Context, shift *db.Shift, deadline time.Time) {
	d.dispatch(ctx, shift.CaregiverID, KindShiftAvailable, ShiftAvailablePayload{
		Shift:     summarize(shift),
		RespondBy: deadline,
	})
}

// ShiftConfirmed notifies the shift owner that coverage is confirmed
func (d *Dispatcher) ShiftConfirmed(ctx context.Context, shift *db.Shift) {
	d.dispatch(ctx, shift.CreatedBy, KindShiftConfirmed, ShiftConfirmedPayload{
		Shift:         summarize(shift),
		CaregiverID:   shift.CaregiverID,
		CaregiverName: shift.CaregiverName,
	})
}

// ShiftUnfilled notifies the shift owner that the pool is exhausted and
// manual reassignment is required
func (d *Dispatcher) ShiftUnfilled(ctx context.Context, shift *db.Shift) {
	tried := 0
	if shift.CascadeState != nil {
		tried = len(shift.CascadeState.OfferHistory)
	}
	d.dispatch(ctx, shift.CreatedBy, KindShiftUnfilled, ShiftUnfilledPayload{
		Shift:           summarize(shift),
		CandidatesTried: tried,
	})
}

// AssignmentDeclined notifies the shift owner that a directly assigned
// caregiver has declined
func (d *Dispatcher) AssignmentDeclined(ctx context.Context, shift *db.Shift, caregiverID, caregiverName, reason string) {
	d.dispatch(ctx, shift.CreatedBy, KindAssignmentDeclined, AssignmentDeclinedPayload{
		Shift:         summarize(shift),
		CaregiverID:   caregiverID,
		CaregiverName: caregiverName,
		Reason:        reason,
	})
}

// dispatch marshals the payload and enqueues it with bounded retry. A sink
// that keeps failing gets the full payload logged at Error so an operator
// can replay the notification by hand.
func (d *Dispatcher) dispatch(ctx context.Context, userID, kind string, payload any) {
	if userID == "" {
		d.logger.Warn("Dropping notification with no recipient", zap.String("kind", kind))
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error("Failed to marshal notification payload",
			zap.String("kind", kind),
			zap.Error(err))
		return
	}

	n := &db.Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		Kind:      kind,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}

	var lastErr error
	for attempt := 1; attempt <= sinkAttempts; attempt++ {
		if lastErr = d.sink.Enqueue(ctx, n); lastErr == nil {
			d.logger.Debug("Notification enqueued",
				zap.String("notification_id", n.ID),
				zap.String("user_id", userID),
				zap.String("kind", kind))
			return
		}
		if attempt < sinkAttempts {
			time.Sleep(sinkBackoff * time.Duration(attempt))
		}
	}

	d.logger.Error("Failed to enqueue notification after retries",
		zap.String("notification_id", n.ID),
		zap.String("user_id", userID),
		zap.String("kind", kind),
		zap.ByteString("payload", body),
		zap.Error(lastErr))
}
