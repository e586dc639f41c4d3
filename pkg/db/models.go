package db

import "time"

// ShiftStatus is the lifecycle status of a shift record
type ShiftStatus string

const (
	StatusScheduled           ShiftStatus = "scheduled"
	StatusOffered             ShiftStatus = "offered"
	StatusAccepted            ShiftStatus = "accepted"
	StatusDeclined            ShiftStatus = "declined"
	StatusUnfilled            ShiftStatus = "unfilled"
	StatusInProgress          ShiftStatus = "in_progress"
	StatusCompleted           ShiftStatus = "completed"
	StatusNoShow              ShiftStatus = "no_show"
	StatusPendingConfirmation ShiftStatus = "pending_confirmation"
)

// OfferResponse is a candidate's recorded answer to an offer
type OfferResponse string

const (
	ResponsePending  OfferResponse = "pending"
	ResponseDeclined OfferResponse = "declined"
	ResponseAccepted OfferResponse = "accepted"
)

// Candidate is one entry in a cascade's ranked candidate list
type Candidate struct {
	CaregiverID   string `json:"caregiverId"`
	CaregiverName string `json:"caregiverName"`
}

// OfferRecord is one entry in a cascade's offer history.
// RespondedAt is nil while the response is still pending.
type OfferRecord struct {
	CaregiverID string        `json:"caregiverId"`
	Response    OfferResponse `json:"response"`
	RespondedAt *time.Time    `json:"respondedAt,omitempty"`
	Reason      string        `json:"reason,omitempty"`
}

// CascadeState is the escalation cursor for one shift.
// RankedCandidates is immutable once the cascade has started and is never
// re-sorted. OfferHistory is append-only, except that a pending entry is
// updated in place when the candidate responds or times out.
type CascadeState struct {
	RankedCandidates      []Candidate
	CurrentOfferIndex     int
	CurrentOfferExpiresAt *time.Time
	OfferHistory          []OfferRecord
}

// Shift represents a database shift record.
// CaregiverID/CaregiverName hold the currently offered or confirmed
// caregiver and are empty while the shift is unfilled.
// CascadeState is nil until a cascade has been started.
type Shift struct {
	ID            string
	ElderID       string
	ElderName     string
	GroupID       string
	AgencyID      string
	Date          string
	StartTime     string
	EndTime       string
	CreatedBy     string
	CaregiverID   string
	CaregiverName string
	Status        ShiftStatus
	CascadeState  *CascadeState
}

// Notification represents a database notification record. Rows are written
// fire-and-forget for a delivery collaborator to drain; the engine never
// reads them back.
type Notification struct {
	ID        string
	UserID    string
	Kind      string
	Payload   []byte
	CreatedAt time.Time
}
