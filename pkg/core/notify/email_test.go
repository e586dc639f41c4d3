package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebridge/shift-cascade/pkg/db"
)

type fakeEmailSender struct {
	to      string
	subject string
	body    string
	err     error
}

func (s *fakeEmailSender) SendEmail(to, subject, body string) error {
	s.to, s.subject, s.body = to, subject, body
	return s.err
}

func emailNotification(t *testing.T, kind string, payload any) *db.Notification {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return &db.Notification{
		ID:      "n-1",
		UserID:  "alice@example.com",
		Kind:    kind,
		Payload: body,
	}
}

func TestEmailSink_ShiftAvailable(t *testing.T) {
	sender := &fakeEmailSender{}
	sink := NewEmailSink(sender)

	n := emailNotification(t, KindShiftAvailable, ShiftAvailablePayload{
		Shift: ShiftSummary{
			ShiftID:   "shift-1",
			ElderName: "Margaret Hill",
			Date:      "2025-06-09",
			StartTime: "09:00",
			EndTime:   "17:00",
		},
		RespondBy: time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC),
	})
	require.NoError(t, sink.Enqueue(context.Background(), n))

	assert.Equal(t, "alice@example.com", sender.to)
	assert.Equal(t, "Shift available: 2025-06-09 09:00-17:00", sender.subject)
	assert.Contains(t, sender.body, "Margaret Hill")
	assert.Contains(t, sender.body, "accept or decline")
}

func TestEmailSink_ShiftUnfilled(t *testing.T) {
	sender := &fakeEmailSender{}
	sink := NewEmailSink(sender)

	n := emailNotification(t, KindShiftUnfilled, ShiftUnfilledPayload{
		Shift:           ShiftSummary{ElderName: "Margaret Hill", Date: "2025-06-09", StartTime: "09:00", EndTime: "17:00"},
		CandidatesTried: 3,
	})
	require.NoError(t, sink.Enqueue(context.Background(), n))

	assert.Contains(t, sender.subject, "Action required")
	assert.Contains(t, sender.body, "All 3 candidates")
	assert.Contains(t, sender.body, "Manual reassignment is required")
}

func TestEmailSink_AssignmentDeclinedReason(t *testing.T) {
	sender := &fakeEmailSender{}
	sink := NewEmailSink(sender)

	n := emailNotification(t, KindAssignmentDeclined, AssignmentDeclinedPayload{
		Shift:         ShiftSummary{ElderName: "Margaret Hill", Date: "2025-06-09"},
		CaregiverName: "Alice Adams",
		Reason:        "double booked",
	})
	require.NoError(t, sink.Enqueue(context.Background(), n))

	assert.Contains(t, sender.body, "Alice Adams has declined")
	assert.Contains(t, sender.body, "Reason: double booked")
}

func TestEmailSink_UnknownKind(t *testing.T) {
	sink := NewEmailSink(&fakeEmailSender{})

	err := sink.Enqueue(context.Background(), &db.Notification{Kind: "mystery", Payload: []byte("{}")})
	assert.Error(t, err)
}

func TestEmailSink_SendFailure(t *testing.T) {
	sender := &fakeEmailSender{err: errors.New("smtp refused")}
	sink := NewEmailSink(sender)

	n := emailNotification(t, KindShiftConfirmed, ShiftConfirmedPayload{
		Shift: ShiftSummary{Date: "2025-06-09", StartTime: "09:00", EndTime: "17:00"},
	})
	err := sink.Enqueue(context.Background(), n)
	assert.Error(t, err)
}
