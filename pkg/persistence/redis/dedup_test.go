package redis_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/fluxa-io/fluxa/pkg/persistence/redis"
)

func setupDedupStore(t *testing.T, retention time.Duration) (*redis.DedupStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := redis.NewDedupStoreWithClient(logger, client, retention)

	t.Cleanup(func() {
		require.NoError(t, store.Close(context.Background()))
		mr.Close()
	})

	return store, mr
}

func TestDedupStore_MarkAndCheck(t *testing.T) {
	store, _ := setupDedupStore(t, time.Hour)
	ctx := context.Background()

	event := &models.ProcessedEvent{
		EventID:     "msg-1",
		WorkflowID:  "wf-1",
		UserID:      "user-1",
		ProcessedAt: time.Now().UTC(),
	}

	processed, err := store.IsProcessed(ctx, "msg-1", "wf-1")
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, store.MarkProcessed(ctx, event))

	processed, err = store.IsProcessed(ctx, "msg-1", "wf-1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestDedupStore_MarkIsIdempotent(t *testing.T) {
	store, _ := setupDedupStore(t, time.Hour)
	ctx := context.Background()

	event := &models.ProcessedEvent{
		EventID:     "msg-1",
		WorkflowID:  "wf-1",
		ProcessedAt: time.Now().UTC(),
	}

	require.NoError(t, store.MarkProcessed(ctx, event))
	require.NoError(t, store.MarkProcessed(ctx, event))

	processed, err := store.IsProcessed(ctx, "msg-1", "wf-1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestDedupStore_PairsAreIndependent(t *testing.T) {
	store, _ := setupDedupStore(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.MarkProcessed(ctx, &models.ProcessedEvent{
		EventID:    "msg-1",
		WorkflowID: "wf-1",
	}))

	// Same event against another workflow, and another event against the
	// same workflow, both stay unprocessed.
	processed, err := store.IsProcessed(ctx, "msg-1", "wf-2")
	require.NoError(t, err)
	assert.False(t, processed)

	processed, err = store.IsProcessed(ctx, "msg-2", "wf-1")
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestDedupStore_RetentionExpiry(t *testing.T) {
	store, mr := setupDedupStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.MarkProcessed(ctx, &models.ProcessedEvent{
		EventID:    "msg-1",
		WorkflowID: "wf-1",
	}))

	mr.FastForward(2 * time.Minute)

	processed, err := store.IsProcessed(ctx, "msg-1", "wf-1")
	require.NoError(t, err)
	assert.False(t, processed)
}
