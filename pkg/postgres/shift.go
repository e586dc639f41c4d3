package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/carebridge/shift-cascade/pkg/db"
)

const (
	txAttempts = 3
	txBackoff  = 100 * time.Millisecond
)

const shiftColumns = `
	id, elder_id, elder_name, group_id, agency_id,
	shift_date, start_time, end_time, created_by,
	caregiver_id, caregiver_name, status,
	current_offer_index, current_offer_expires_at,
	ranked_candidates, offer_history
`

// GetShift retrieves a single shift record
func (d *DB) GetShift(ctx context.Context, shiftID string) (*db.Shift, error) {
	row := d.pool.QueryRow(ctx, `SELECT `+shiftColumns+` FROM shift WHERE id = $1`, shiftID)
	shift, err := scanShift(row)
	if err != nil {
		return nil, err
	}
	return shift, nil
}

// InsertShift inserts a new shift record
func (d *DB) InsertShift(ctx context.Context, shift *db.Shift) error {
	candidates, history, offerIndex, expiresAt, err := encodeCascadeState(shift)
	if err != nil {
		return err
	}

	_, err = d.pool.Exec(ctx, `
		INSERT INTO shift (`+shiftColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		shift.ID, shift.ElderID, shift.ElderName, shift.GroupID, shift.AgencyID,
		shift.Date, shift.StartTime, shift.EndTime, shift.CreatedBy,
		shift.CaregiverID, shift.CaregiverName, string(shift.Status),
		offerIndex, expiresAt, candidates, history,
	)
	if err != nil {
		return fmt.Errorf("failed to insert shift: %w", err)
	}

	return nil
}

// ApplyShiftTransition executes fn as a single atomic read-modify-write on
// the shift row. The row is locked with SELECT ... FOR UPDATE so concurrent
// transitions on the same shift serialize; fn sees the freshly-read state.
// Transient contention (serialization failure, deadlock) is retried up to
// txAttempts times with backoff. Errors returned by fn are business-logic
// rejections and surface directly without retry.
func (d *DB) ApplyShiftTransition(ctx context.Context, shiftID string, fn db.TransitionFunc) (*db.Shift, error) {
	var lastErr error
	for attempt := 1; attempt <= txAttempts; attempt++ {
		shift, err := d.applyShiftTransitionOnce(ctx, shiftID, fn)
		if err == nil {
			return shift, nil
		}
		if !isTransient(err) {
			return nil, err
		}
		lastErr = err
		if attempt < txAttempts {
			time.Sleep(txBackoff * time.Duration(attempt))
		}
	}
	return nil, fmt.Errorf("shift transition did not commit after %d attempts: %w", txAttempts, lastErr)
}

func (d *DB) applyShiftTransitionOnce(ctx context.Context, shiftID string, fn db.TransitionFunc) (*db.Shift, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+shiftColumns+` FROM shift WHERE id = $1 FOR UPDATE`, shiftID)
	shift, err := scanShift(row)
	if err != nil {
		return nil, err
	}

	if err := fn(shift); err != nil {
		return nil, err
	}

	candidates, history, offerIndex, expiresAt, err := encodeCascadeState(shift)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE shift SET
			caregiver_id = $2,
			caregiver_name = $3,
			status = $4,
			current_offer_index = $5,
			current_offer_expires_at = $6,
			ranked_candidates = $7,
			offer_history = $8,
			updated_at = NOW()
		WHERE id = $1
	`,
		shift.ID,
		shift.CaregiverID, shift.CaregiverName, string(shift.Status),
		offerIndex, expiresAt, candidates, history,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update shift: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit shift transition: %w", err)
	}

	return shift, nil
}

// ListExpiredOffers returns shifts with a live offer whose window has
// passed at the given instant
func (d *DB) ListExpiredOffers(ctx context.Context, now time.Time) ([]db.Shift, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT `+shiftColumns+`
		FROM shift
		WHERE status = $1 AND current_offer_expires_at IS NOT NULL AND current_offer_expires_at <= $2
		ORDER BY current_offer_expires_at
	`, string(db.StatusOffered), now)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired offers: %w", err)
	}
	defer rows.Close()

	var shifts []db.Shift
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, *shift)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expired offers: %w", err)
	}

	return shifts, nil
}

// scanShift reads one shift row, reconstructing CascadeState when the
// cascade columns are populated
func scanShift(row pgx.Row) (*db.Shift, error) {
	var (
		shift      db.Shift
		status     string
		offerIndex *int
		expiresAt  *time.Time
		candidates []byte
		history    []byte
	)

	err := row.Scan(
		&shift.ID, &shift.ElderID, &shift.ElderName, &shift.GroupID, &shift.AgencyID,
		&shift.Date, &shift.StartTime, &shift.EndTime, &shift.CreatedBy,
		&shift.CaregiverID, &shift.CaregiverName, &status,
		&offerIndex, &expiresAt, &candidates, &history,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.ErrShiftNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan shift: %w", err)
	}

	shift.Status = db.ShiftStatus(status)

	if candidates != nil && offerIndex != nil {
		cs := &db.CascadeState{
			CurrentOfferIndex:     *offerIndex,
			CurrentOfferExpiresAt: expiresAt,
		}
		if err := json.Unmarshal(candidates, &cs.RankedCandidates); err != nil {
			return nil, fmt.Errorf("failed to decode ranked candidates for shift %s: %w", shift.ID, err)
		}
		if history != nil {
			if err := json.Unmarshal(history, &cs.OfferHistory); err != nil {
				return nil, fmt.Errorf("failed to decode offer history for shift %s: %w", shift.ID, err)
			}
		}
		shift.CascadeState = cs
	}

	return &shift, nil
}

// encodeCascadeState flattens a shift's cascade state into its column
// representation. All values are nil for shifts without a cascade.
func encodeCascadeState(shift *db.Shift) (candidates, history []byte, offerIndex *int, expiresAt *time.Time, err error) {
	cs := shift.CascadeState
	if cs == nil {
		return nil, nil, nil, nil, nil
	}

	candidates, err = json.Marshal(cs.RankedCandidates)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to encode ranked candidates: %w", err)
	}
	history, err = json.Marshal(cs.OfferHistory)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to encode offer history: %w", err)
	}

	idx := cs.CurrentOfferIndex
	return candidates, history, &idx, cs.CurrentOfferExpiresAt, nil
}

// isTransient reports whether an error is infrastructure contention worth
// retrying, as opposed to a business rejection
func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure, deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
