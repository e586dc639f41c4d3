package postgres

import (
	"context"
	"fmt"

	"github.com/carebridge/shift-cascade/pkg/db"
)

// InsertNotification appends a notification record to the outbox table.
// Rows are drained by the delivery collaborator; the engine never reads
// them back.
func (d *DB) InsertNotification(ctx context.Context, n *db.Notification) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO notification (id, user_id, kind, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, n.ID, n.UserID, n.Kind, n.Payload, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// Enqueue implements the notify.Sink interface over the outbox table
func (d *DB) Enqueue(ctx context.Context, n *db.Notification) error {
	return d.InsertNotification(ctx, n)
}
