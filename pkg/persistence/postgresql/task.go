package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/fluxa-io/fluxa/pkg/persistence"
)

// TaskRepository handles background task database operations.
type TaskRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const taskColumns = `id, task_type, payload, priority, status, scheduled_at,
	current_retries, max_retries, result, error, created_at, updated_at`

func (r *TaskRepository) Enqueue(ctx context.Context, task *models.BackgroundTask) error {
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}

	if task.ScheduledAt.IsZero() {
		task.ScheduledAt = now
	}

	payload, err := json.Marshal(task.Payload)
	if err != nil {
		return persistence.NewStoreError("Enqueue", "task", task.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO background_tasks
			(id, task_type, payload, priority, status, scheduled_at,
			 current_retries, max_retries, result, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, task.ID, task.Type, payload, task.Priority, task.Status, task.ScheduledAt,
		task.CurrentRetries, task.MaxRetries, nullString(task.Result), nullString(task.Error),
		task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return persistence.NewStoreError("Enqueue", "task", task.ID, err)
	}

	return nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (*models.BackgroundTask, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM background_tasks WHERE id = $1`, id)

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewStoreError("GetByID", "task", id, persistence.ErrTaskNotFound)
	}

	if err != nil {
		return nil, persistence.NewStoreError("GetByID", "task", id, err)
	}

	return task, nil
}

// ClaimNext atomically claims the next due task. The inner SELECT holds a row
// lock with SKIP LOCKED so concurrent consumers never race on the same row.
func (r *TaskRepository) ClaimNext(ctx context.Context, now time.Time) (*models.BackgroundTask, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE background_tasks SET status = 'running', updated_at = NOW()
		WHERE id = (
			SELECT id FROM background_tasks
			WHERE status IN ('pending', 'retry') AND scheduled_at <= $1
			ORDER BY priority ASC, scheduled_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+taskColumns, now)

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, persistence.NewStoreError("ClaimNext", "task", "", err)
	}

	return task, nil
}

func (r *TaskRepository) Update(ctx context.Context, task *models.BackgroundTask) error {
	stored, err := r.GetByID(ctx, task.ID)
	if err != nil {
		return err
	}

	if stored.Status != task.Status && !stored.CanTransitionTo(task.Status) {
		return persistence.NewStoreError("Update", "task", task.ID, persistence.ErrInvalidTransition)
	}

	task.UpdatedAt = time.Now().UTC()

	payload, err := json.Marshal(task.Payload)
	if err != nil {
		return persistence.NewStoreError("Update", "task", task.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE background_tasks SET
			payload = $2, priority = $3, status = $4, scheduled_at = $5,
			current_retries = $6, max_retries = $7, result = $8, error = $9, updated_at = $10
		WHERE id = $1
	`, task.ID, payload, task.Priority, task.Status, task.ScheduledAt,
		task.CurrentRetries, task.MaxRetries, nullString(task.Result), nullString(task.Error),
		task.UpdatedAt)
	if err != nil {
		return persistence.NewStoreError("Update", "task", task.ID, err)
	}

	return nil
}

func (r *TaskRepository) List(ctx context.Context, statuses ...models.TaskStatus) ([]*models.BackgroundTask, error) {
	query := `SELECT ` + taskColumns + ` FROM background_tasks`
	args := make([]any, 0, len(statuses))

	if len(statuses) > 0 {
		placeholders := make([]string, 0, len(statuses))
		for i, status := range statuses {
			placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
			args = append(args, status)
		}

		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}

	query += ` ORDER BY priority ASC, scheduled_at ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewStoreError("List", "task", "", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	tasks := make([]*models.BackgroundTask, 0)

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, persistence.NewStoreError("List", "task", "", err)
		}

		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("List", "task", "", err)
	}

	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.BackgroundTask, error) {
	task := &models.BackgroundTask{}

	var payload []byte

	var result, errMsg sql.NullString

	err := row.Scan(&task.ID, &task.Type, &payload, &task.Priority, &task.Status,
		&task.ScheduledAt, &task.CurrentRetries, &task.MaxRetries,
		&result, &errMsg, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &task.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode task payload: %w", err)
		}
	}

	task.Result = result.String
	task.Error = errMsg.String

	return task, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
