// Package redis provides a Redis-backed deduplication store. Marked events
// carry the retention window as a key TTL, so expiry replaces the periodic
// sweep the SQL and file backends need.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/fluxa-io/fluxa/pkg/persistence"
)

const keyPrefix = "fluxa:dedup:"

// DedupStore implements persistence.ProcessedEventRepository on Redis.
type DedupStore struct {
	client    goredis.UniversalClient
	retention time.Duration
	logger    *slog.Logger
}

// NewDedupStore connects to Redis and returns the store. Retention bounds how
// long a processed marker blocks re-processing; zero means no expiry.
func NewDedupStore(ctx context.Context, logger *slog.Logger, addr, password string, db int, retention time.Duration) (*DedupStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &DedupStore{
		client:    client,
		retention: retention,
		logger:    logger.With("module", "redis_dedup"),
	}, nil
}

// NewDedupStoreWithClient wraps an existing client, mainly for tests.
func NewDedupStoreWithClient(logger *slog.Logger, client goredis.UniversalClient, retention time.Duration) *DedupStore {
	return &DedupStore{
		client:    client,
		retention: retention,
		logger:    logger.With("module", "redis_dedup"),
	}
}

func dedupKey(eventID, workflowID string) string {
	return keyPrefix + eventID + ":" + workflowID
}

func (s *DedupStore) IsProcessed(ctx context.Context, eventID, workflowID string) (bool, error) {
	count, err := s.client.Exists(ctx, dedupKey(eventID, workflowID)).Result()
	if err != nil {
		return false, persistence.NewStoreError("IsProcessed", "processed_event", eventID, err)
	}

	return count > 0, nil
}

// MarkProcessed records the (event, workflow) pair. SetNX keeps the first
// marker's payload and timestamp, so re-marking the same pair is a no-op.
func (s *DedupStore) MarkProcessed(ctx context.Context, event *models.ProcessedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return persistence.NewStoreError("MarkProcessed", "processed_event", event.EventID, err)
	}

	key := dedupKey(event.EventID, event.WorkflowID)

	created, err := s.client.SetNX(ctx, key, payload, s.retention).Result()
	if err != nil {
		return persistence.NewStoreError("MarkProcessed", "processed_event", event.EventID, err)
	}

	if !created {
		s.logger.DebugContext(ctx, "Event already marked processed",
			"event_id", event.EventID, "workflow_id", event.WorkflowID)
	}

	return nil
}

// Sweep is a no-op: keys expire on their own once the retention TTL passes.
func (s *DedupStore) Sweep(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

// HealthCheck verifies the Redis connection is healthy.
func (s *DedupStore) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	return nil
}

func (s *DedupStore) Close(_ context.Context) error {
	return s.client.Close()
}
