package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/fluxa-io/fluxa/pkg/cmd"
	"github.com/fluxa-io/fluxa/pkg/log"
	"github.com/fluxa-io/fluxa/pkg/otelhelper"
	"github.com/fluxa-io/fluxa/pkg/trigger"
)

func main() {
	command := &cli.Command{
		Name:                  "fluxa-agent",
		Usage:                 "Evaluate workflow triggers and run fired workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "agent-id",
				Aliases: []string{"id"},
				Usage:   "Custom agent ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("AGENT_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis connection URL for the processed-event dedup store",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "adapters-path",
				Usage:   "Path to the directory containing platform adapter plugins",
				Value:   "./adapters",
				Sources: cli.EnvVars("ADAPTERS_PATH"),
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "How often the evaluator runs a trigger cycle",
				Value:   trigger.DefaultPollInterval,
				Sources: cli.EnvVars("POLL_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			agentID := command.String("agent-id")
			if agentID == "" {
				agentID = "agent-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("fluxa-agent").With("agent_id", agentID)

			logger.InfoContext(ctx, "Initializing Fluxa Agent")

			tracer, err := otelhelper.NewTracer(ctx, "fluxa-agent")
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}

			persistence := cmd.WithRedisDedup(
				logger,
				cmd.NewPersistence(ctx, logger, command.String("database-url")),
				command.String("redis-url"),
			)
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "fluxa-agent", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			adapters := cmd.LoadAdapters(logger, command.String("adapters-path"))
			if adapters.Email == nil && adapters.Chat == nil {
				slog.Warn("No email or chat adapter loaded; only schedule and geofence triggers will fire")
			}

			agent := NewAgent(agentID, persistence, eventBus, adapters, tracer, logger)
			agent.evaluator.SetInterval(command.Duration("poll-interval"))
			agent.Start(ctx)

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
