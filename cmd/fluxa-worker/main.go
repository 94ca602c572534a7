package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/fluxa-io/fluxa/pkg/cmd"
	"github.com/fluxa-io/fluxa/pkg/log"
	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/fluxa-io/fluxa/pkg/queue"
)

func main() {
	command := &cli.Command{
		Name:                  "fluxa-worker",
		Usage:                 "Execute queued background tasks",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
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
			&cli.StringFlag{
				Name:    "model-path",
				Usage:   "Model file the inference engine loads at startup",
				Sources: cli.EnvVars("MODEL_PATH"),
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "How often the consumer checks for due tasks",
				Value:   queue.DefaultPollInterval,
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

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("fluxa-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Fluxa Worker")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "fluxa-worker", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			adapters := cmd.LoadAdapters(logger, command.String("adapters-path"))
			if adapters.Engine == nil {
				return errors.New("no inference engine plugin loaded; tasks cannot run")
			}

			if modelPath := command.String("model-path"); modelPath != "" {
				if err := adapters.Engine.Load(ctx, modelPath); err != nil {
					return err
				}
			}

			consumer := queue.NewConsumer(persistence, eventBus, logger)
			consumer.SetInterval(command.Duration("poll-interval"))
			consumer.RegisterHandler(models.TaskTypeChatGeneration, queue.NewChatGenerationHandler(adapters.Engine))
			consumer.RegisterHandler(models.TaskTypeImageAnalysis, queue.NewImageAnalysisHandler(adapters.Engine))

			wCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			done := make(chan struct{})

			go func() {
				consumer.Start(wCtx)
				close(done)
			}()

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-signals:
				logger.Info("Received signal, shutting down gracefully", "signal", sig)
			case <-ctx.Done():
			}

			cancel()
			<-done

			logger.Info("Worker stopped")

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
