package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/fluxa-io/fluxa/pkg/persistence/file"
)

func TestTask_EnqueueAppliesDefaults(t *testing.T) {
	service := NewTask(file.NewPersistence(t.TempDir()))
	ctx := context.Background()

	task, err := service.Enqueue(ctx, EnqueueRequest{
		Type:    models.TaskTypeChatGeneration,
		Payload: map[string]string{"prompt": "hello"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, models.TaskStatusPending, task.Status)
	assert.Equal(t, DefaultMaxRetries, task.MaxRetries)
	assert.False(t, task.ScheduledAt.After(time.Now().UTC()))

	stored, err := service.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, stored.ID)
}

func TestTask_EnqueueRequiresType(t *testing.T) {
	service := NewTask(file.NewPersistence(t.TempDir()))

	_, err := service.Enqueue(context.Background(), EnqueueRequest{})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestTask_EnqueueHonorsSchedule(t *testing.T) {
	service := NewTask(file.NewPersistence(t.TempDir()))
	ctx := context.Background()

	later := time.Now().UTC().Add(time.Hour)
	retries := 1

	task, err := service.Enqueue(ctx, EnqueueRequest{
		Type:        models.TaskTypeScheduledJob,
		ScheduledAt: &later,
		MaxRetries:  &retries,
	})
	require.NoError(t, err)

	assert.True(t, task.ScheduledAt.Equal(later))
	assert.Equal(t, 1, task.MaxRetries)
}

func TestTask_CancelTerminalTaskConflicts(t *testing.T) {
	service := NewTask(file.NewPersistence(t.TempDir()))
	ctx := context.Background()

	task, err := service.Enqueue(ctx, EnqueueRequest{Type: models.TaskTypeChatGeneration})
	require.NoError(t, err)

	cancelled, err := service.Cancel(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCancelled, cancelled.Status)

	_, err = service.Cancel(ctx, task.ID)
	require.Error(t, err)
	assert.True(t, IsConflictError(err))
}
