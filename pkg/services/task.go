package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/fluxa-io/fluxa/pkg/persistence"
)

// DefaultMaxRetries applies when an enqueue request does not set a budget.
const DefaultMaxRetries = 3

// Task manages the background task queue from the API side. Execution lives
// in pkg/queue.
type Task struct {
	persistence persistence.Persistence
	validate    *validator.Validate
}

func NewTask(p persistence.Persistence) *Task {
	return &Task{
		persistence: p,
		validate:    validator.New(),
	}
}

// EnqueueRequest describes a task to add to the queue.
type EnqueueRequest struct {
	Type        models.TaskType   `json:"type"     validate:"required"`
	Payload     map[string]string `json:"payload"`
	Priority    int               `json:"priority"`
	ScheduledAt *time.Time        `json:"scheduled_at,omitempty"`
	MaxRetries  *int              `json:"max_retries,omitempty"`
}

// Enqueue adds a pending task to the queue and returns it.
func (t *Task) Enqueue(ctx context.Context, req EnqueueRequest) (*models.BackgroundTask, error) {
	if err := t.validate.Struct(req); err != nil {
		return nil, NewValidationError("Enqueue", "INVALID_TASK", err.Error(), ErrInvalidRequest)
	}

	now := time.Now().UTC()

	task := &models.BackgroundTask{
		ID:          uuid.New().String(),
		Type:        req.Type,
		Payload:     req.Payload,
		Priority:    req.Priority,
		Status:      models.TaskStatusPending,
		ScheduledAt: now,
		MaxRetries:  DefaultMaxRetries,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if req.ScheduledAt != nil {
		task.ScheduledAt = req.ScheduledAt.UTC()
	}

	if req.MaxRetries != nil {
		task.MaxRetries = *req.MaxRetries
	}

	if err := t.persistence.TaskRepository().Enqueue(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return task, nil
}

// Get returns one task by id.
func (t *Task) Get(ctx context.Context, id string) (*models.BackgroundTask, error) {
	return t.persistence.TaskRepository().GetByID(ctx, id)
}

// List returns tasks filtered to the given statuses; no statuses means all.
func (t *Task) List(ctx context.Context, statuses ...models.TaskStatus) ([]*models.BackgroundTask, error) {
	return t.persistence.TaskRepository().List(ctx, statuses...)
}

// Cancel moves a non-terminal task to cancelled. A task the worker already
// claimed finishes its in-flight attempt, but cancelled is terminal so the
// attempt's outcome cannot overwrite it.
func (t *Task) Cancel(ctx context.Context, id string) (*models.BackgroundTask, error) {
	task, err := t.persistence.TaskRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !task.CanTransitionTo(models.TaskStatusCancelled) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotCancelable, task.Status)
	}

	task.Status = models.TaskStatusCancelled
	task.UpdatedAt = time.Now().UTC()

	if err := t.persistence.TaskRepository().Update(ctx, task); err != nil {
		return nil, err
	}

	return task, nil
}
