package cascade

import "errors"

// Business-rule rejections. These are precondition violations surfaced
// synchronously to the caller; the engine never retries them.
var (
	// ErrNotCurrentOfferee means the caller does not hold the live offer,
	// either because the cascade already escalated past them or because
	// they were never the offeree.
	ErrNotCurrentOfferee = errors.New("caller is not the current offeree")

	// ErrShiftNotOffered means the shift is not in the offered status, so
	// no cascade transition applies.
	ErrShiftNotOffered = errors.New("shift is not in offered status")

	// ErrOfferNotYetExpired means a sweep asked to expire an offer whose
	// window is still open.
	ErrOfferNotYetExpired = errors.New("offer window has not yet expired")

	// ErrEmptyCandidateList means a cascade was started with no candidates.
	ErrEmptyCandidateList = errors.New("ranked candidate list is empty")

	// ErrCascadeAlreadyActive means a cascade was started on a shift that
	// already has one.
	ErrCascadeAlreadyActive = errors.New("cascade already active for shift")

	// ErrShiftNotDeclinable means the direct-assignment decline was invoked
	// on a shift that is neither scheduled nor pending confirmation.
	ErrShiftNotDeclinable = errors.New("shift is not in a declinable status")
)
