package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackgroundTask_TerminalStatesNeverTransition(t *testing.T) {
	for _, status := range []TaskStatus{TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled} {
		task := &BackgroundTask{Status: status}

		for _, next := range []TaskStatus{
			TaskStatusPending, TaskStatusRunning, TaskStatusRetry,
			TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled,
		} {
			assert.False(t, task.CanTransitionTo(next),
				"terminal %s must not transition to %s", status, next)
		}
	}
}

func TestBackgroundTask_Transitions(t *testing.T) {
	task := &BackgroundTask{Status: TaskStatusPending}
	assert.True(t, task.CanTransitionTo(TaskStatusRunning))
	assert.True(t, task.CanTransitionTo(TaskStatusCancelled))
	assert.False(t, task.CanTransitionTo(TaskStatusCompleted))

	task.Status = TaskStatusRunning
	assert.True(t, task.CanTransitionTo(TaskStatusCompleted))
	assert.True(t, task.CanTransitionTo(TaskStatusRetry))
	assert.True(t, task.CanTransitionTo(TaskStatusFailed))

	// Retry re-queues like pending.
	task.Status = TaskStatusRetry
	assert.True(t, task.CanTransitionTo(TaskStatusRunning))
	assert.True(t, task.CanTransitionTo(TaskStatusCancelled))
}

func TestBackgroundTask_IsDue(t *testing.T) {
	now := time.Now().UTC()

	task := &BackgroundTask{Status: TaskStatusPending, ScheduledAt: now.Add(-time.Second)}
	assert.True(t, task.IsDue(now))

	task.ScheduledAt = now.Add(time.Minute)
	assert.False(t, task.IsDue(now), "future tasks are not due")

	task.Status = TaskStatusRunning
	task.ScheduledAt = now.Add(-time.Minute)
	assert.False(t, task.IsDue(now), "only pending and retry tasks are due")
}

func TestBackgroundTask_CanRetry(t *testing.T) {
	task := &BackgroundTask{MaxRetries: 2}

	assert.True(t, task.CanRetry())

	task.CurrentRetries = 2
	assert.False(t, task.CanRetry())
}
