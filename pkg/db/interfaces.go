package db

import (
	"context"
	"errors"
	"time"
)

// ErrShiftNotFound is returned by stores when no shift exists for an ID
var ErrShiftNotFound = errors.New("shift not found")

// TransitionFunc receives the freshly-read shift inside the store's
// transaction and mutates it into its next state, or returns an error to
// abort the transition. Errors from TransitionFunc are surfaced to the
// caller without retry.
type TransitionFunc func(shift *Shift) error

// ShiftStore defines the interface for shift database operations
type ShiftStore interface {
	GetShift(ctx context.Context, shiftID string) (*Shift, error)
	InsertShift(ctx context.Context, shift *Shift) error

	// ApplyShiftTransition executes fn as a single atomic read-modify-write
	// on the shift record. Two concurrent transitions on the same shift are
	// serialized by the store; transient contention is retried internally.
	ApplyShiftTransition(ctx context.Context, shiftID string, fn TransitionFunc) (*Shift, error)

	// ListExpiredOffers returns shifts whose live offer has passed its
	// expiry at the given instant.
	ListExpiredOffers(ctx context.Context, now time.Time) ([]Shift, error)
}

// NotificationStore defines the interface for notification database operations
type NotificationStore interface {
	InsertNotification(ctx context.Context, n *Notification) error
}

// Database defines the interface for all database operations.
// The postgres-backed DB implements this interface; tests use in-memory fakes.
type Database interface {
	ShiftStore
	NotificationStore
}
