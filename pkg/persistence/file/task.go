package file

import (
	"context"
	"slices"
	"time"

	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/fluxa-io/fluxa/pkg/persistence"
)

const taskKind = "tasks"

// TaskRepository handles background task file operations.
type TaskRepository struct {
	store *Persistence
}

func (r *TaskRepository) Enqueue(_ context.Context, task *models.BackgroundTask) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}

	if task.ScheduledAt.IsZero() {
		task.ScheduledAt = now
	}

	if err := r.store.writeJSON(taskKind, task.ID, task); err != nil {
		return persistence.NewStoreError("Enqueue", "task", task.ID, err)
	}

	return nil
}

func (r *TaskRepository) GetByID(_ context.Context, id string) (*models.BackgroundTask, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.getLocked(id)
}

func (r *TaskRepository) getLocked(id string) (*models.BackgroundTask, error) {
	task := &models.BackgroundTask{}

	err := r.store.readJSON(taskKind, id, task)
	if isNotExist(err) {
		return nil, persistence.NewStoreError("GetByID", "task", id, persistence.ErrTaskNotFound)
	}

	if err != nil {
		return nil, persistence.NewStoreError("GetByID", "task", id, err)
	}

	return task, nil
}

// ClaimNext selects the due {pending, retry} task with the lowest
// (priority, scheduled_at) and moves it to running under the repository lock,
// so two consumers can never claim the same task.
func (r *TaskRepository) ClaimNext(_ context.Context, now time.Time) (*models.BackgroundTask, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	names, err := r.store.listNames(taskKind)
	if err != nil {
		return nil, persistence.NewStoreError("ClaimNext", "task", "", err)
	}

	var candidate *models.BackgroundTask

	for _, name := range names {
		task, err := r.getLocked(name)
		if err != nil {
			return nil, err
		}

		if !task.IsDue(now) {
			continue
		}

		if candidate == nil || dequeueBefore(task, candidate) {
			candidate = task
		}
	}

	if candidate == nil {
		return nil, nil
	}

	if !candidate.CanTransitionTo(models.TaskStatusRunning) {
		return nil, persistence.NewStoreError("ClaimNext", "task", candidate.ID, persistence.ErrInvalidTransition)
	}

	candidate.Status = models.TaskStatusRunning
	candidate.UpdatedAt = time.Now().UTC()

	if err := r.store.writeJSON(taskKind, candidate.ID, candidate); err != nil {
		return nil, persistence.NewStoreError("ClaimNext", "task", candidate.ID, err)
	}

	return candidate, nil
}

// dequeueBefore orders by priority ascending, then scheduled time ascending.
func dequeueBefore(a, b *models.BackgroundTask) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}

	return a.ScheduledAt.Before(b.ScheduledAt)
}

func (r *TaskRepository) Update(_ context.Context, task *models.BackgroundTask) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, err := r.getLocked(task.ID)
	if err != nil {
		return err
	}

	if stored.Status != task.Status && !stored.CanTransitionTo(task.Status) {
		return persistence.NewStoreError("Update", "task", task.ID, persistence.ErrInvalidTransition)
	}

	task.UpdatedAt = time.Now().UTC()

	if err := r.store.writeJSON(taskKind, task.ID, task); err != nil {
		return persistence.NewStoreError("Update", "task", task.ID, err)
	}

	return nil
}

func (r *TaskRepository) List(_ context.Context, statuses ...models.TaskStatus) ([]*models.BackgroundTask, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	names, err := r.store.listNames(taskKind)
	if err != nil {
		return nil, persistence.NewStoreError("List", "task", "", err)
	}

	tasks := make([]*models.BackgroundTask, 0, len(names))

	for _, name := range names {
		task, err := r.getLocked(name)
		if err != nil {
			return nil, err
		}

		if len(statuses) > 0 && !slices.Contains(statuses, task.Status) {
			continue
		}

		tasks = append(tasks, task)
	}

	slices.SortFunc(tasks, func(a, b *models.BackgroundTask) int {
		if dequeueBefore(a, b) {
			return -1
		}

		return 1
	})

	return tasks, nil
}
