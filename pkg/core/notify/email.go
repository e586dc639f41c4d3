package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/carebridge/shift-cascade/pkg/db"
)

// EmailSender is the transport slice of the Gmail client the sink needs
type EmailSender interface {
	SendEmail(to, subject, body string) error
}

// EmailSink renders notifications as plain-text email. Recipient user IDs
// are email addresses in this deployment, so no directory lookup is needed.
type EmailSink struct {
	sender EmailSender
}

// NewEmailSink creates a sink over an email transport
func NewEmailSink(sender EmailSender) *EmailSink {
	return &EmailSink{sender: sender}
}

// Enqueue implements Sink by sending the notification immediately
func (s *EmailSink) Enqueue(ctx context.Context, n *db.Notification) error {
	subject, body, err := render(n)
	if err != nil {
		return err
	}
	if err := s.sender.SendEmail(n.UserID, subject, body); err != nil {
		return fmt.Errorf("failed to send notification email: %w", err)
	}
	return nil
}

func render(n *db.Notification) (subject, body string, err error) {
	switch n.Kind {
	case KindShiftAvailable:
		var p ShiftAvailablePayload
		if err := json.Unmarshal(n.Payload, &p); err != nil {
			return "", "", fmt.Errorf("failed to decode %s payload: %w", n.Kind, err)
		}
		subject = fmt.Sprintf("Shift available: %s %s-%s", p.Shift.Date, p.Shift.StartTime, p.Shift.EndTime)
		body = fmt.Sprintf(
			"A shift caring for %s on %s (%s-%s) is available to you.\n\nPlease accept or decline by %s. After that the shift will be offered to the next caregiver.",
			p.Shift.ElderName, p.Shift.Date, p.Shift.StartTime, p.Shift.EndTime,
			p.RespondBy.Format("Mon Jan 2 15:04 MST"))
	case KindShiftConfirmed:
		var p ShiftConfirmedPayload
		if err := json.Unmarshal(n.Payload, &p); err != nil {
			return "", "", fmt.Errorf("failed to decode %s payload: %w", n.Kind, err)
		}
		subject = fmt.Sprintf("Shift confirmed: %s %s-%s", p.Shift.Date, p.Shift.StartTime, p.Shift.EndTime)
		body = fmt.Sprintf(
			"%s has accepted the shift caring for %s on %s (%s-%s).",
			p.CaregiverName, p.Shift.ElderName, p.Shift.Date, p.Shift.StartTime, p.Shift.EndTime)
	case KindShiftUnfilled:
		var p ShiftUnfilledPayload
		if err := json.Unmarshal(n.Payload, &p); err != nil {
			return "", "", fmt.Errorf("failed to decode %s payload: %w", n.Kind, err)
		}
		subject = fmt.Sprintf("Action required: shift unfilled on %s", p.Shift.Date)
		body = fmt.Sprintf(
			"No caregiver accepted the shift caring for %s on %s (%s-%s). All %d candidates declined or did not respond.\n\nManual reassignment is required.",
			p.Shift.ElderName, p.Shift.Date, p.Shift.StartTime, p.Shift.EndTime, p.CandidatesTried)
	case KindAssignmentDeclined:
		var p AssignmentDeclinedPayload
		if err := json.Unmarshal(n.Payload, &p); err != nil {
			return "", "", fmt.Errorf("failed to decode %s payload: %w", n.Kind, err)
		}
		subject = fmt.Sprintf("Caregiver declined shift on %s", p.Shift.Date)
		body = fmt.Sprintf(
			"%s has declined the shift caring for %s on %s (%s-%s).",
			p.CaregiverName, p.Shift.ElderName, p.Shift.Date, p.Shift.StartTime, p.Shift.EndTime)
		if p.Reason != "" {
			body += fmt.Sprintf("\n\nReason: %s", p.Reason)
		}
	default:
		return "", "", fmt.Errorf("unknown notification kind %q", n.Kind)
	}
	return subject, body, nil
}
