package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/carebridge/shift-cascade/pkg/db"
)

// fakeSink records enqueued notifications and can fail a set number of
// attempts before succeeding
type fakeSink struct {
	failures int
	attempts int
	enqueued []*db.Notification
}

func (s *fakeSink) Enqueue(ctx context.Context, n *db.Notification) error {
	s.attempts++
	if s.attempts <= s.failures {
		return errors.New("sink unavailable")
	}
	s.enqueued = append(s.enqueued, n)
	return nil
}

func notifyShift() *db.Shift {
	return &db.Shift{
		ID:            "shift-1",
		ElderName:     "Margaret Hill",
		Date:          "2025-06-09",
		StartTime:     "09:00",
		EndTime:       "17:00",
		CreatedBy:     "owner-1",
		CaregiverID:   "cg-a",
		CaregiverName: "Alice Adams",
		Status:        db.StatusOffered,
	}
}

func TestShiftAvailable_AddressedToOfferee(t *testing.T) {
	sink := &fakeSink{}
	d := NewDispatcher(sink, zap.NewNop())

	deadline := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	d.ShiftAvailable(context.Background(), notifyShift(), deadline)

	require.Len(t, sink.enqueued, 1)
	n := sink.enqueued[0]
	assert.Equal(t, "cg-a", n.UserID)
	assert.Equal(t, KindShiftAvailable, n.Kind)
	assert.NotEmpty(t, n.ID)

	var payload ShiftAvailablePayload
	require.NoError(t, json.Unmarshal(n.Payload, &payload))
	assert.Equal(t, "shift-1", payload.Shift.ShiftID)
	assert.Equal(t, "Margaret Hill", payload.Shift.ElderName)
	assert.True(t, payload.RespondBy.Equal(deadline))
}

func TestShiftConfirmed_AddressedToOwner(t *testing.T) {
	sink := &fakeSink{}
	d := NewDispatcher(sink, zap.NewNop())

	d.ShiftConfirmed(context.Background(), notifyShift())

	require.Len(t, sink.enqueued, 1)
	n := sink.enqueued[0]
	assert.Equal(t, "owner-1", n.UserID)
	assert.Equal(t, KindShiftConfirmed, n.Kind)

	var payload ShiftConfirmedPayload
	require.NoError(t, json.Unmarshal(n.Payload, &payload))
	assert.Equal(t, "Alice Adams", payload.CaregiverName)
}

func TestShiftUnfilled_CountsCandidatesTried(t *testing.T) {
	sink := &fakeSink{}
	d := NewDispatcher(sink, zap.NewNop())

	shift := notifyShift()
	shift.Status = db.StatusUnfilled
	shift.CaregiverID = ""
	shift.CascadeState = &db.CascadeState{
		OfferHistory: []db.OfferRecord{
			{CaregiverID: "cg-a", Response: db.ResponseDeclined},
			{CaregiverID: "cg-b", Response: db.ResponseDeclined},
			{CaregiverID: "cg-c", Response: db.ResponseDeclined},
		},
	}
	d.ShiftUnfilled(context.Background(), shift)

	require.Len(t, sink.enqueued, 1)
	var payload ShiftUnfilledPayload
	require.NoError(t, json.Unmarshal(sink.enqueued[0].Payload, &payload))
	assert.Equal(t, 3, payload.CandidatesTried)
}

func TestAssignmentDeclined_CarriesReason(t *testing.T) {
	sink := &fakeSink{}
	d := NewDispatcher(sink, zap.NewNop())

	d.AssignmentDeclined(context.Background(), notifyShift(), "cg-a", "Alice Adams", "double booked")

	require.Len(t, sink.enqueued, 1)
	var payload AssignmentDeclinedPayload
	require.NoError(t, json.Unmarshal(sink.enqueued[0].Payload, &payload))
	assert.Equal(t, "double booked", payload.Reason)
}

func TestDispatch_RetriesTransientSinkFailure(t *testing.T) {
	sink := &fakeSink{failures: 2}
	d := NewDispatcher(sink, zap.NewNop())

	d.ShiftConfirmed(context.Background(), notifyShift())

	assert.Equal(t, 3, sink.attempts)
	assert.Len(t, sink.enqueued, 1)
}

func TestDispatch_GivesUpAfterBoundedRetries(t *testing.T) {
	sink := &fakeSink{failures: 10}
	d := NewDispatcher(sink, zap.NewNop())

	d.ShiftConfirmed(context.Background(), notifyShift())

	assert.Equal(t, sinkAttempts, sink.attempts)
	assert.Empty(t, sink.enqueued)
}

func TestDispatch_DropsEmptyRecipient(t *testing.T) {
	sink := &fakeSink{}
	d := NewDispatcher(sink, zap.NewNop())

	shift := notifyShift()
	shift.CreatedBy = ""
	d.ShiftConfirmed(context.Background(), shift)

	assert.Zero(t, sink.attempts)
}
