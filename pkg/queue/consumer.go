// Package queue runs the background task consumer. Tasks execute one at a
// time on a single goroutine because the heaviest handlers drive the local
// inference engine, which holds a single loaded model.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fluxa-io/fluxa/pkg/eventbus"
	"github.com/fluxa-io/fluxa/pkg/events"
	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/fluxa-io/fluxa/pkg/persistence"
	"github.com/fluxa-io/fluxa/pkg/protocol"
)

const (
	// DefaultPollInterval is how long the consumer sleeps when the queue is
	// drained.
	DefaultPollInterval = 5 * time.Second

	// RetryBackoff is the fixed delay before a failed attempt re-runs.
	RetryBackoff = 60 * time.Second
)

type Consumer struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventPublisher
	logger      *slog.Logger
	interval    time.Duration

	mu       sync.Mutex
	handlers map[models.TaskType]protocol.TaskHandler
	running  map[string]context.CancelFunc
}

func NewConsumer(p persistence.Persistence, bus eventbus.EventPublisher, logger *slog.Logger) *Consumer {
	return &Consumer{
		persistence: p,
		eventBus:    bus,
		logger:      logger.With("module", "task_consumer"),
		interval:    DefaultPollInterval,
		handlers:    make(map[models.TaskType]protocol.TaskHandler),
		running:     make(map[string]context.CancelFunc),
	}
}

// RegisterHandler installs the handler for a task type. Claiming a task with
// no registered handler fails it terminally.
func (c *Consumer) RegisterHandler(taskType models.TaskType, handler protocol.TaskHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers[taskType] = handler
}

// SetInterval overrides the poll interval. Call before Start.
func (c *Consumer) SetInterval(interval time.Duration) {
	if interval > 0 {
		c.interval = interval
	}
}

// Start drains the queue, then polls until the context is cancelled.
func (c *Consumer) Start(ctx context.Context) {
	c.logger.Info("Starting task consumer", "interval", c.interval)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		for {
			if ctx.Err() != nil {
				c.logger.Info("Task consumer stopping")
				return
			}

			processed, err := c.ProcessNext(ctx, time.Now().UTC())
			if err != nil {
				c.logger.Error("Failed to claim next task", "error", err)
				break
			}

			if !processed {
				break
			}
		}

		select {
		case <-ctx.Done():
			c.logger.Info("Task consumer stopping")
			return
		case <-ticker.C:
		}
	}
}

// ProcessNext claims and executes the highest-priority due task. It reports
// whether a task was processed; false with a nil error means the queue had
// nothing due.
func (c *Consumer) ProcessNext(ctx context.Context, now time.Time) (bool, error) {
	repo := c.persistence.TaskRepository()

	task, err := repo.ClaimNext(ctx, now)
	if err != nil {
		return false, err
	}

	if task == nil {
		return false, nil
	}

	logger := c.logger.With("task_id", task.ID, "task_type", task.Type)
	logger.Info("Executing task", "priority", task.Priority, "retries", task.CurrentRetries)

	handler := c.handler(task.Type)
	if handler == nil {
		c.finalize(ctx, task, models.TaskStatusFailed, "", fmt.Sprintf("no handler registered for task type %q", task.Type))
		return true, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.track(task.ID, cancel)

	result, err := handler(runCtx, task)

	c.untrack(task.ID)
	cancel()

	switch {
	case err == nil:
		logger.Info("Task completed")
		c.finalize(ctx, task, models.TaskStatusCompleted, result, "")
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		// Consumer shutdown mid-task: requeue without burning a retry.
		task.Status = models.TaskStatusRetry
		task.ScheduledAt = now
		task.UpdatedAt = time.Now().UTC()

		if updateErr := repo.Update(context.WithoutCancel(ctx), task); updateErr != nil {
			logger.Error("Failed to requeue task on shutdown", "error", updateErr)
		}
	case errors.Is(err, context.Canceled):
		logger.Info("Task cancelled")
		c.finalize(ctx, task, models.TaskStatusCancelled, "", "cancelled")
	case errors.Is(err, protocol.ErrResourceExhausted):
		// Retrying cannot make the model fit; fail now with the remediation
		// in the error text.
		logger.Error("Task failed, model does not fit", "error", err)
		c.finalize(ctx, task, models.TaskStatusFailed, "", err.Error()+": use a smaller model")
	case task.CanRetry():
		c.requeue(ctx, task, now, err)
	default:
		logger.Error("Task failed, retry budget exhausted", "error", err, "retries", task.CurrentRetries)
		c.finalize(ctx, task, models.TaskStatusFailed, "", err.Error())
	}

	return true, nil
}

// Cancel moves a task out of any non-terminal state. A running task gets its
// context cancelled and finishes as cancelled once the handler returns.
func (c *Consumer) Cancel(ctx context.Context, taskID string) error {
	repo := c.persistence.TaskRepository()

	task, err := repo.GetByID(ctx, taskID)
	if err != nil {
		return err
	}

	if task.Status == models.TaskStatusRunning {
		c.mu.Lock()
		cancel, ok := c.running[taskID]
		c.mu.Unlock()

		if ok {
			cancel()
			return nil
		}
	}

	if !task.CanTransitionTo(models.TaskStatusCancelled) {
		return persistence.NewStoreError("Cancel", "task", taskID, persistence.ErrInvalidTransition)
	}

	task.Status = models.TaskStatusCancelled
	task.UpdatedAt = time.Now().UTC()

	if err := repo.Update(ctx, task); err != nil {
		return err
	}

	c.logger.Info("Task cancelled", "task_id", taskID)

	return nil
}

func (c *Consumer) handler(taskType models.TaskType) protocol.TaskHandler {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.handlers[taskType]
}

func (c *Consumer) track(taskID string, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.running[taskID] = cancel
}

func (c *Consumer) untrack(taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.running, taskID)
}

func (c *Consumer) requeue(ctx context.Context, task *models.BackgroundTask, now time.Time, cause error) {
	task.CurrentRetries++
	task.Status = models.TaskStatusRetry
	task.ScheduledAt = now.Add(RetryBackoff)
	task.Error = cause.Error()
	task.UpdatedAt = time.Now().UTC()

	c.logger.Warn("Task failed, requeueing",
		"task_id", task.ID,
		"error", cause,
		"retry", task.CurrentRetries,
		"max_retries", task.MaxRetries,
		"next_attempt", task.ScheduledAt,
	)

	if err := c.persistence.TaskRepository().Update(ctx, task); err != nil {
		c.logger.Error("Failed to requeue task", "task_id", task.ID, "error", err)
	}
}

func (c *Consumer) finalize(ctx context.Context, task *models.BackgroundTask, status models.TaskStatus, result, errMessage string) {
	task.Status = status
	task.Result = result
	task.Error = errMessage
	task.UpdatedAt = time.Now().UTC()

	if err := c.persistence.TaskRepository().Update(ctx, task); err != nil {
		c.logger.Error("Failed to persist task outcome", "task_id", task.ID, "status", status, "error", err)
		return
	}

	c.publishOutcome(ctx, task)
}

func (c *Consumer) publishOutcome(ctx context.Context, task *models.BackgroundTask) {
	if c.eventBus == nil {
		return
	}

	var event eventbus.Event

	switch task.Status {
	case models.TaskStatusCompleted:
		event = events.TaskCompleted{
			BaseEvent: events.NewBaseEvent(events.TaskCompletedEvent, ""),
			TaskID:    task.ID,
			TaskType:  task.Type,
			Result:    task.Result,
		}
	case models.TaskStatusFailed:
		event = events.TaskFailed{
			BaseEvent: events.NewBaseEvent(events.TaskFailedEvent, ""),
			TaskID:    task.ID,
			TaskType:  task.Type,
			Error:     task.Error,
			Retries:   task.CurrentRetries,
		}
	default:
		return
	}

	if err := c.eventBus.Publish(ctx, task.ID, event); err != nil {
		c.logger.Warn("Failed to publish task event", "task_id", task.ID, "error", err)
	}
}
