// Package sweeper reclaims abandoned offers. It periodically scans for
// shifts whose offer window has lapsed and pushes each through the same
// escalation path as an explicit decline.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/carebridge/shift-cascade/pkg/core/cascade"
	"github.com/carebridge/shift-cascade/pkg/db"
)

// DefaultInterval keeps reclaim latency for an abandoned offer under a
// minute
const DefaultInterval = 30 * time.Second

// Expirer is the slice of the cascade engine the sweeper needs
type Expirer interface {
	ExpireOffer(ctx context.Context, shiftID string) (*db.Shift, *cascade.EscalationResult, error)
}

// ExpiredLister is the slice of the shift store the sweeper needs
type ExpiredLister interface {
	ListExpiredOffers(ctx context.Context, now time.Time) ([]db.Shift, error)
}

// Result summarizes one sweep pass
type Result struct {
	Scanned   int
	Escalated int
	Exhausted int
	Skipped   int
	Failed    int
}

// Sweeper drives offer expiry on a recurring timer
type Sweeper struct {
	store    ExpiredLister
	engine   Expirer
	clock    cascade.Clock
	interval time.Duration
	logger   *zap.Logger
}

// New creates a sweeper. A non-positive interval falls back to
// DefaultInterval.
func New(store ExpiredLister, engine Expirer, clock cascade.Clock, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clock == nil {
		clock = cascade.SystemClock()
	}
	return &Sweeper{
		store:    store,
		engine:   engine,
		clock:    clock,
		interval: interval,
		logger:   logger,
	}
}

// Sweep runs a single pass: list lapsed offers, expire each. A shift that
// was accepted or declined between the scan and the expiry call loses its
// precondition check inside the engine and is counted as skipped, not
// failed. Safe to run concurrently with itself and with user traffic.
func (s *Sweeper) Sweep(ctx context.Context) (*Result, error) {
	now := s.clock.Now()
	expired, err := s.store.ListExpiredOffers(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired offers: %w", err)
	}

	result := &Result{Scanned: len(expired)}
	for i := range expired {
		shiftID := expired[i].ID
		_, escalation, err := s.engine.ExpireOffer(ctx, shiftID)
		if err != nil {
			// A racing accept/decline won the row first. Nothing to do.
			if errors.Is(err, cascade.ErrShiftNotOffered) ||
				errors.Is(err, cascade.ErrNotCurrentOfferee) ||
				errors.Is(err, cascade.ErrOfferNotYetExpired) ||
				errors.Is(err, db.ErrShiftNotFound) {
				result.Skipped++
				continue
			}
			result.Failed++
			s.logger.Error("Failed to expire offer",
				zap.String("shift_id", shiftID),
				zap.Error(err))
			continue
		}

		switch escalation.Outcome {
		case cascade.OutcomeEscalated:
			result.Escalated++
		case cascade.OutcomeExhausted:
			result.Exhausted++
		}
	}

	if result.Scanned > 0 {
		s.logger.Info("Sweep pass completed",
			zap.Int("scanned", result.Scanned),
			zap.Int("escalated", result.Escalated),
			zap.Int("exhausted", result.Exhausted),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed))
	}

	return result, nil
}

// Run sweeps on the configured interval until the context is cancelled.
// The first pass runs immediately so a restart does not wait a full tick
// to reclaim already-lapsed offers.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("Sweeper running", zap.Duration("interval", s.interval))

	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("Sweep pass failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sweeper stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("Sweep pass failed", zap.Error(err))
			}
		}
	}
}
