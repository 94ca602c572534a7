package queue_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fluxa-io/fluxa/pkg/mocks"
	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/fluxa-io/fluxa/pkg/persistence"
	"github.com/fluxa-io/fluxa/pkg/persistence/file"
	"github.com/fluxa-io/fluxa/pkg/protocol"
	"github.com/fluxa-io/fluxa/pkg/queue"
)

func newConsumer(t *testing.T) (*queue.Consumer, persistence.Persistence) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return queue.NewConsumer(store, nil, logger), store
}

func newTask(id string, priority, maxRetries int, scheduledAt time.Time) *models.BackgroundTask {
	now := time.Now().UTC()

	return &models.BackgroundTask{
		ID:          id,
		Type:        models.TaskTypeChatGeneration,
		Payload:     map[string]string{"prompt": "hello"},
		Priority:    priority,
		Status:      models.TaskStatusPending,
		ScheduledAt: scheduledAt,
		MaxRetries:  maxRetries,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestConsumer_RetryBoundTerminatesAtFailed(t *testing.T) {
	consumer, store := newConsumer(t)
	ctx := context.Background()
	now := time.Now().UTC()

	attempts := 0
	consumer.RegisterHandler(models.TaskTypeChatGeneration, func(_ context.Context, _ *models.BackgroundTask) (string, error) {
		attempts++
		return "", errors.New("provider unavailable")
	})

	require.NoError(t, store.TaskRepository().Enqueue(ctx, newTask("task-1", 5, 2, now)))

	// First attempt fails and requeues with backoff.
	processed, err := consumer.ProcessNext(ctx, now)
	require.NoError(t, err)
	require.True(t, processed)

	task, err := store.TaskRepository().GetByID(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusRetry, task.Status)
	assert.Equal(t, 1, task.CurrentRetries)
	assert.Equal(t, "provider unavailable", task.Error)

	// Not due again until the backoff elapses.
	processed, err = consumer.ProcessNext(ctx, now.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, processed)

	// Second attempt burns the last retry.
	processed, err = consumer.ProcessNext(ctx, now.Add(queue.RetryBackoff+time.Second))
	require.NoError(t, err)
	require.True(t, processed)

	// Third attempt exceeds max_retries=2 and terminates.
	processed, err = consumer.ProcessNext(ctx, now.Add(2*queue.RetryBackoff+2*time.Second))
	require.NoError(t, err)
	require.True(t, processed)

	task, err = store.TaskRepository().GetByID(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, task.Status)
	assert.Equal(t, 2, task.CurrentRetries)
	assert.Equal(t, 3, attempts)

	// Terminal tasks never re-enter the queue.
	processed, err = consumer.ProcessNext(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestConsumer_PriorityOrdersExecution(t *testing.T) {
	consumer, store := newConsumer(t)
	ctx := context.Background()
	now := time.Now().UTC()

	var order []string
	consumer.RegisterHandler(models.TaskTypeChatGeneration, func(_ context.Context, task *models.BackgroundTask) (string, error) {
		order = append(order, task.ID)
		return "ok", nil
	})

	require.NoError(t, store.TaskRepository().Enqueue(ctx, newTask("task-low", 5, 0, now)))
	require.NoError(t, store.TaskRepository().Enqueue(ctx, newTask("task-high", 1, 0, now)))

	for range 2 {
		processed, err := consumer.ProcessNext(ctx, now.Add(time.Second))
		require.NoError(t, err)
		require.True(t, processed)
	}

	assert.Equal(t, []string{"task-high", "task-low"}, order)
}

func TestConsumer_ResourceExhaustedFailsWithoutRetry(t *testing.T) {
	consumer, store := newConsumer(t)
	ctx := context.Background()
	now := time.Now().UTC()

	consumer.RegisterHandler(models.TaskTypeChatGeneration, func(_ context.Context, _ *models.BackgroundTask) (string, error) {
		return "", protocol.ErrResourceExhausted
	})

	require.NoError(t, store.TaskRepository().Enqueue(ctx, newTask("task-1", 1, 3, now)))

	processed, err := consumer.ProcessNext(ctx, now)
	require.NoError(t, err)
	require.True(t, processed)

	task, err := store.TaskRepository().GetByID(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, task.Status)
	assert.Equal(t, 0, task.CurrentRetries)
	assert.Contains(t, task.Error, "use a smaller model")
}

func TestConsumer_MissingHandlerFailsTask(t *testing.T) {
	consumer, store := newConsumer(t)
	ctx := context.Background()
	now := time.Now().UTC()

	task := newTask("task-1", 1, 3, now)
	task.Type = models.TaskTypeScheduledJob
	require.NoError(t, store.TaskRepository().Enqueue(ctx, task))

	processed, err := consumer.ProcessNext(ctx, now)
	require.NoError(t, err)
	require.True(t, processed)

	failed, err := store.TaskRepository().GetByID(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "no handler registered")
}

func TestConsumer_ChatGenerationHandlerStoresResult(t *testing.T) {
	consumer, store := newConsumer(t)
	ctx := context.Background()
	now := time.Now().UTC()

	engine := &mocks.MockInferenceEngine{}
	engine.On("GenerateText", mock.Anything, "hello").Return(mocks.StreamChunks("generated ", "answer"), nil)

	consumer.RegisterHandler(models.TaskTypeChatGeneration, queue.NewChatGenerationHandler(engine))

	require.NoError(t, store.TaskRepository().Enqueue(ctx, newTask("task-1", 1, 0, now)))

	processed, err := consumer.ProcessNext(ctx, now)
	require.NoError(t, err)
	require.True(t, processed)

	task, err := store.TaskRepository().GetByID(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, task.Status)
	assert.Equal(t, "generated answer", task.Result)
}

func TestConsumer_CancelPendingTask(t *testing.T) {
	consumer, store := newConsumer(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.TaskRepository().Enqueue(ctx, newTask("task-1", 1, 0, now)))

	require.NoError(t, consumer.Cancel(ctx, "task-1"))

	task, err := store.TaskRepository().GetByID(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCancelled, task.Status)

	// Cancelled is terminal.
	err = consumer.Cancel(ctx, "task-1")
	require.Error(t, err)
	assert.True(t, persistence.IsInvalidTransition(err))

	processed, err := consumer.ProcessNext(ctx, now.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestConsumer_CancelUnknownTask(t *testing.T) {
	consumer, _ := newConsumer(t)

	err := consumer.Cancel(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, persistence.IsTaskNotFound(err))
}
