package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/fluxa-io/fluxa/pkg/persistence"
)

// TriggerStateRepository persists last-fired markers and polling checkpoints.
type TriggerStateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *TriggerStateRepository) LastFired(ctx context.Context, workflowID, triggerID string) (*time.Time, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT last_fired FROM trigger_markers
		WHERE workflow_id = $1 AND trigger_id = $2
	`, workflowID, triggerID)

	var lastFired time.Time

	err := row.Scan(&lastFired)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, persistence.NewStoreError("LastFired", "trigger_marker", workflowID, err)
	}

	return &lastFired, nil
}

func (r *TriggerStateRepository) SetLastFired(ctx context.Context, workflowID, triggerID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trigger_markers (workflow_id, trigger_id, last_fired)
		VALUES ($1, $2, $3)
		ON CONFLICT (workflow_id, trigger_id) DO UPDATE SET last_fired = EXCLUDED.last_fired
	`, workflowID, triggerID, at)
	if err != nil {
		return persistence.NewStoreError("SetLastFired", "trigger_marker", workflowID, err)
	}

	return nil
}

func (r *TriggerStateRepository) Checkpoint(ctx context.Context, source string) (string, error) {
	row := r.db.QueryRowContext(ctx, `SELECT value FROM trigger_checkpoints WHERE source = $1`, source)

	var value string

	err := row.Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}

	if err != nil {
		return "", persistence.NewStoreError("Checkpoint", "trigger_checkpoint", source, err)
	}

	return value, nil
}

func (r *TriggerStateRepository) SetCheckpoint(ctx context.Context, source, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trigger_checkpoints (source, value)
		VALUES ($1, $2)
		ON CONFLICT (source) DO UPDATE SET value = EXCLUDED.value
	`, source, value)
	if err != nil {
		return persistence.NewStoreError("SetCheckpoint", "trigger_checkpoint", source, err)
	}

	return nil
}
