package models

import (
	"time"
)

// TaskStatus is the lifecycle state of a background task. Transitions are
// monotonic except the Retry re-queue; a terminal task never transitions.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusRetry     TaskStatus = "retry"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// TaskType names the handler that executes a background task.
type TaskType string

const (
	TaskTypeChatGeneration TaskType = "chat_generation"
	TaskTypeImageAnalysis  TaskType = "image_analysis"
	TaskTypeScheduledJob   TaskType = "scheduled_job"
)

// BackgroundTask is a discrete, independently retryable unit of work processed
// outside any live workflow run. Lower Priority values dequeue first.
type BackgroundTask struct {
	ID             string            `json:"id"`
	Type           TaskType          `json:"type"     validate:"required"`
	Payload        map[string]string `json:"payload,omitempty"`
	Priority       int               `json:"priority"`
	Status         TaskStatus        `json:"status"`
	ScheduledAt    time.Time         `json:"scheduled_at"`
	CurrentRetries int               `json:"current_retries"`
	MaxRetries     int               `json:"max_retries"`
	Result         string            `json:"result,omitempty"`
	Error          string            `json:"error,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// CanTransitionTo enforces the task state machine.
func (t *BackgroundTask) CanTransitionTo(next TaskStatus) bool {
	if t.Status.IsTerminal() {
		return false
	}

	switch t.Status {
	case TaskStatusPending, TaskStatusRetry:
		return next == TaskStatusRunning || next == TaskStatusCancelled
	case TaskStatusRunning:
		return next == TaskStatusCompleted || next == TaskStatusRetry ||
			next == TaskStatusFailed || next == TaskStatusCancelled
	default:
		return false
	}
}

// IsDue reports whether the task is eligible for the consumer at now.
func (t *BackgroundTask) IsDue(now time.Time) bool {
	if t.Status != TaskStatusPending && t.Status != TaskStatusRetry {
		return false
	}

	return !t.ScheduledAt.After(now)
}

// CanRetry reports whether a failed attempt should re-queue instead of
// terminating the task.
func (t *BackgroundTask) CanRetry() bool {
	return t.CurrentRetries < t.MaxRetries
}
