// Package cmd provides common initialization for the fluxa binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fluxa-io/fluxa/pkg/persistence"
	"github.com/fluxa-io/fluxa/pkg/persistence/file"
	"github.com/fluxa-io/fluxa/pkg/persistence/postgresql"
	"github.com/fluxa-io/fluxa/pkg/persistence/redis"
)

// NewPersistence builds the store matching the database URL scheme:
// postgres:// / postgresql:// runs on PostgreSQL, anything else is treated as
// a directory path for the file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch provider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to initialize postgresql persistence: %w", err))
		}

		return p
	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://"))
	}
}

// WithRedisDedup overlays the processed-event guard onto a Redis store while
// everything else stays on the base persistence. An empty URL is a no-op.
func WithRedisDedup(logger *slog.Logger, base persistence.Persistence, redisURL string) persistence.Persistence {
	if redisURL == "" {
		return base
	}

	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		panic(fmt.Errorf("bad redis URL: %w", err))
	}

	dedup := redis.NewDedupStoreWithClient(logger, goredis.NewClient(opts), persistence.DefaultDedupRetention)

	return &dedupOverlay{Persistence: base, dedup: dedup}
}

type dedupOverlay struct {
	persistence.Persistence

	dedup *redis.DedupStore
}

func (o *dedupOverlay) ProcessedEventRepository() persistence.ProcessedEventRepository {
	return o.dedup
}

func (o *dedupOverlay) HealthCheck(ctx context.Context) error {
	if err := o.dedup.HealthCheck(ctx); err != nil {
		return err
	}

	return o.Persistence.HealthCheck(ctx)
}

func (o *dedupOverlay) Close(ctx context.Context) error {
	if err := o.dedup.Close(ctx); err != nil {
		return err
	}

	return o.Persistence.Close(ctx)
}

func provider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return scheme
}
