package cascade

import (
	"fmt"
	"time"

	"github.com/carebridge/shift-cascade/pkg/db"
)

// The transition functions below are pure mutations on a shift record. They
// are always executed inside the store's transaction via
// db.ShiftStore.ApplyShiftTransition, so the preconditions they check hold
// against the freshly-read state, not whatever the caller last saw.

// currentOfferee returns the candidate holding the live offer
func currentOfferee(shift *db.Shift) (db.Candidate, bool) {
	cs := shift.CascadeState
	if cs == nil || cs.CurrentOfferIndex < 0 || cs.CurrentOfferIndex >= len(cs.RankedCandidates) {
		return db.Candidate{}, false
	}
	return cs.RankedCandidates[cs.CurrentOfferIndex], true
}

// startCascade initializes cascade state on a shift and offers to the
// highest-ranked candidate.
func startCascade(shift *db.Shift, candidates []db.Candidate, now time.Time, window time.Duration) error {
	if len(candidates) == 0 {
		return ErrEmptyCandidateList
	}
	if shift.CascadeState != nil || shift.Status == db.StatusOffered {
		return ErrCascadeAlreadyActive
	}

	ranked := make([]db.Candidate, len(candidates))
	copy(ranked, candidates)

	expiresAt := now.Add(window)
	shift.CascadeState = &db.CascadeState{
		RankedCandidates:      ranked,
		CurrentOfferIndex:     0,
		CurrentOfferExpiresAt: &expiresAt,
		OfferHistory: []db.OfferRecord{
			{CaregiverID: ranked[0].CaregiverID, Response: db.ResponsePending},
		},
	}
	shift.Status = db.StatusOffered
	shift.CaregiverID = ranked[0].CaregiverID
	shift.CaregiverName = ranked[0].CaregiverName

	return nil
}

// acceptOffer confirms the live offer for the calling candidate. Terminal:
// no further cascade transitions apply afterwards.
func acceptOffer(shift *db.Shift, callerCaregiverID string, now time.Time) error {
	if shift.Status != db.StatusOffered {
		return ErrShiftNotOffered
	}
	offeree, ok := currentOfferee(shift)
	if !ok {
		return fmt.Errorf("shift %s is offered but has no live offeree", shift.ID)
	}
	if offeree.CaregiverID != callerCaregiverID {
		return ErrNotCurrentOfferee
	}

	cs := shift.CascadeState
	respondedAt := now
	cs.OfferHistory[cs.CurrentOfferIndex].Response = db.ResponseAccepted
	cs.OfferHistory[cs.CurrentOfferIndex].RespondedAt = &respondedAt
	cs.CurrentOfferExpiresAt = nil

	shift.Status = db.StatusAccepted
	shift.CaregiverID = offeree.CaregiverID
	shift.CaregiverName = offeree.CaregiverName

	return nil
}

// escalate records a decline for the live offer and either advances the
// cascade to the next candidate or terminates it as unfilled. Both the
// human decline and the sweeper expiry funnel through this single function
// so the two triggers cannot diverge.
func escalate(shift *db.Shift, reason string, now time.Time, window time.Duration) error {
	if shift.Status != db.StatusOffered {
		return ErrShiftNotOffered
	}
	if _, ok := currentOfferee(shift); !ok {
		return fmt.Errorf("shift %s is offered but has no live offeree", shift.ID)
	}

	cs := shift.CascadeState
	respondedAt := now
	cs.OfferHistory[cs.CurrentOfferIndex].Response = db.ResponseDeclined
	cs.OfferHistory[cs.CurrentOfferIndex].RespondedAt = &respondedAt
	cs.OfferHistory[cs.CurrentOfferIndex].Reason = reason

	next := cs.CurrentOfferIndex + 1
	if next < len(cs.RankedCandidates) {
		nextCandidate := cs.RankedCandidates[next]
		expiresAt := now.Add(window)
		cs.CurrentOfferIndex = next
		cs.CurrentOfferExpiresAt = &expiresAt
		cs.OfferHistory = append(cs.OfferHistory, db.OfferRecord{
			CaregiverID: nextCandidate.CaregiverID,
			Response:    db.ResponsePending,
		})
		shift.CaregiverID = nextCandidate.CaregiverID
		shift.CaregiverName = nextCandidate.CaregiverName
		return nil
	}

	// Pool exhausted
	cs.CurrentOfferExpiresAt = nil
	shift.Status = db.StatusUnfilled
	shift.CaregiverID = ""
	shift.CaregiverName = ""

	return nil
}

// declineAssignment handles the direct-assignment decline flow for shifts
// that were assigned without a cascade. There is never a fallback candidate:
// the shift simply loses its caregiver and the owner is told.
func declineAssignment(shift *db.Shift, callerCaregiverID string) error {
	if shift.Status != db.StatusScheduled && shift.Status != db.StatusPendingConfirmation {
		return ErrShiftNotDeclinable
	}
	if shift.CaregiverID != callerCaregiverID {
		return ErrNotCurrentOfferee
	}

	shift.Status = db.StatusDeclined
	shift.CaregiverID = ""
	shift.CaregiverName = ""

	return nil
}
