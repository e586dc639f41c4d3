package sweeper

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/carebridge/shift-cascade/pkg/core/cascade"
	"github.com/carebridge/shift-cascade/pkg/db"
)

type fakeLister struct {
	shifts []db.Shift
	err    error
}

func (l *fakeLister) ListExpiredOffers(ctx context.Context, now time.Time) ([]db.Shift, error) {
	return l.shifts, l.err
}

// fakeExpirer maps shift IDs to canned expiry outcomes
type fakeExpirer struct {
	outcomes map[string]cascade.Outcome
	errs     map[string]error
	calls    []string
}

func (e *fakeExpirer) ExpireOffer(ctx context.Context, shiftID string) (*db.Shift, *cascade.EscalationResult, error) {
	e.calls = append(e.calls, shiftID)
	if err, ok := e.errs[shiftID]; ok {
		return nil, nil, err
	}
	return &db.Shift{ID: shiftID}, &cascade.EscalationResult{Outcome: e.outcomes[shiftID]}, nil
}

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func expiredShifts(ids ...string) []db.Shift {
	shifts := make([]db.Shift, len(ids))
	for i, id := range ids {
		shifts[i] = db.Shift{ID: id, Status: db.StatusOffered}
	}
	return shifts
}

func TestSweep_CountsOutcomes(t *testing.T) {
	lister := &fakeLister{shifts: expiredShifts("s1", "s2", "s3")}
	expirer := &fakeExpirer{outcomes: map[string]cascade.Outcome{
		"s1": cascade.OutcomeEscalated,
		"s2": cascade.OutcomeEscalated,
		"s3": cascade.OutcomeExhausted,
	}}
	s := New(lister, expirer, &fixedClock{now: time.Now()}, time.Minute, zap.NewNop())

	result, err := s.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Scanned)
	assert.Equal(t, 2, result.Escalated)
	assert.Equal(t, 1, result.Exhausted)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, []string{"s1", "s2", "s3"}, expirer.calls)
}

func TestSweep_RacedShiftsAreSkipped(t *testing.T) {
	lister := &fakeLister{shifts: expiredShifts("accepted", "moved", "refreshed", "gone")}
	expirer := &fakeExpirer{errs: map[string]error{
		"accepted":  fmt.Errorf("failed to expire: %w", cascade.ErrShiftNotOffered),
		"moved":     fmt.Errorf("failed to expire: %w", cascade.ErrNotCurrentOfferee),
		"refreshed": fmt.Errorf("failed to expire: %w", cascade.ErrOfferNotYetExpired),
		"gone":      fmt.Errorf("failed to expire: %w", db.ErrShiftNotFound),
	}}
	s := New(lister, expirer, &fixedClock{now: time.Now()}, time.Minute, zap.NewNop())

	result, err := s.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, result.Scanned)
	assert.Equal(t, 4, result.Skipped)
	assert.Equal(t, 0, result.Failed)
}

func TestSweep_UnexpectedErrorCountsAsFailed(t *testing.T) {
	lister := &fakeLister{shifts: expiredShifts("broken", "ok")}
	expirer := &fakeExpirer{
		outcomes: map[string]cascade.Outcome{"ok": cascade.OutcomeEscalated},
		errs:     map[string]error{"broken": errors.New("connection reset")},
	}
	s := New(lister, expirer, &fixedClock{now: time.Now()}, time.Minute, zap.NewNop())

	result, err := s.Sweep(context.Background())
	require.NoError(t, err)

	// One failure must not stop the rest of the pass
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Escalated)
	assert.Len(t, expirer.calls, 2)
}

func TestSweep_ListError(t *testing.T) {
	lister := &fakeLister{err: errors.New("database down")}
	s := New(lister, &fakeExpirer{}, &fixedClock{now: time.Now()}, time.Minute, zap.NewNop())

	_, err := s.Sweep(context.Background())
	assert.Error(t, err)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	lister := &fakeLister{}
	s := New(lister, &fakeExpirer{}, &fixedClock{now: time.Now()}, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
