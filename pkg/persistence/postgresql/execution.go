package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/fluxa-io/fluxa/pkg/persistence"
)

// ExecutionRepository handles run history database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *ExecutionRepository) Save(ctx context.Context, record *models.ExecutionRecord) error {
	steps, err := json.Marshal(record.Steps)
	if err != nil {
		return persistence.NewStoreError("Save", "execution", record.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO executions (id, workflow_id, trigger_user_id, status, message, steps, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			message = EXCLUDED.message,
			steps = EXCLUDED.steps,
			finished_at = EXCLUDED.finished_at
	`, record.ID, record.WorkflowID, nullString(record.TriggerUserID), record.Status,
		nullString(record.Message), steps, record.StartedAt, record.FinishedAt)
	if err != nil {
		return persistence.NewStoreError("Save", "execution", record.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, trigger_user_id, status, message, steps, started_at, finished_at
		FROM executions WHERE id = $1
	`, id)

	record, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewStoreError("GetByID", "execution", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewStoreError("GetByID", "execution", id, err)
	}

	return record, nil
}

func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, workflow_id, trigger_user_id, status, message, steps, started_at, finished_at
		FROM executions WHERE workflow_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, workflowID, limit)
	if err != nil {
		return nil, persistence.NewStoreError("ListByWorkflow", "execution", workflowID, err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	records := make([]*models.ExecutionRecord, 0)

	for rows.Next() {
		record, err := scanExecution(rows)
		if err != nil {
			return nil, persistence.NewStoreError("ListByWorkflow", "execution", workflowID, err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("ListByWorkflow", "execution", workflowID, err)
	}

	return records, nil
}

func (r *ExecutionRepository) Sweep(ctx context.Context, olderThan time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM executions
		WHERE started_at < $1 AND status IN ('succeeded', 'failed')
	`, olderThan)
	if err != nil {
		return 0, persistence.NewStoreError("Sweep", "execution", "", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, persistence.NewStoreError("Sweep", "execution", "", err)
	}

	return int(removed), nil
}

func scanExecution(row rowScanner) (*models.ExecutionRecord, error) {
	record := &models.ExecutionRecord{}

	var steps []byte

	var triggerUserID, message sql.NullString

	var finishedAt sql.NullTime

	err := row.Scan(&record.ID, &record.WorkflowID, &triggerUserID, &record.Status,
		&message, &steps, &record.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(steps, &record.Steps); err != nil {
		return nil, err
	}

	record.TriggerUserID = triggerUserID.String
	record.Message = message.String

	if finishedAt.Valid {
		record.FinishedAt = &finishedAt.Time
	}

	return record, nil
}
