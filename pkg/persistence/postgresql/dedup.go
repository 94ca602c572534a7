package postgresql

import (
	"context"
	"database/sql"
	"time"

	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/fluxa-io/fluxa/pkg/persistence"
)

// ProcessedEventRepository implements the deduplication store on the
// processed_events table. The composite primary key plus ON CONFLICT DO
// NOTHING gives idempotent marking without a separate existence check.
type ProcessedEventRepository struct {
	db *sql.DB
}

func (r *ProcessedEventRepository) IsProcessed(ctx context.Context, eventID, workflowID string) (bool, error) {
	var exists bool

	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM processed_events WHERE event_id = $1 AND workflow_id = $2
		)
	`, eventID, workflowID).Scan(&exists)
	if err != nil {
		return false, persistence.NewStoreError("IsProcessed", "processed_event", eventID, err)
	}

	return exists, nil
}

func (r *ProcessedEventRepository) MarkProcessed(ctx context.Context, event *models.ProcessedEvent) error {
	if event.ProcessedAt.IsZero() {
		event.ProcessedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO processed_events (event_id, workflow_id, user_id, summary, processed_at, event_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id, workflow_id) DO NOTHING
	`, event.EventID, event.WorkflowID, nullString(event.UserID), nullString(event.Summary),
		event.ProcessedAt, event.EventTimestamp)
	if err != nil {
		return persistence.NewStoreError("MarkProcessed", "processed_event", event.EventID, err)
	}

	return nil
}

func (r *ProcessedEventRepository) Sweep(ctx context.Context, olderThan time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM processed_events WHERE processed_at < $1`, olderThan)
	if err != nil {
		return 0, persistence.NewStoreError("Sweep", "processed_event", "", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, persistence.NewStoreError("Sweep", "processed_event", "", err)
	}

	return int(removed), nil
}
