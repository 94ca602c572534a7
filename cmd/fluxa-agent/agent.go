package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fluxa-io/fluxa/pkg/cmd"
	"github.com/fluxa-io/fluxa/pkg/eventbus"
	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/fluxa-io/fluxa/pkg/persistence"
	"github.com/fluxa-io/fluxa/pkg/trigger"
	"github.com/fluxa-io/fluxa/pkg/workflow"
	"go.opentelemetry.io/otel/trace"
)

// Agent hosts the trigger evaluator and the suspension scheduler and runs
// fired workflows inline through the action executor.
type Agent struct {
	id          string
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	executor    *workflow.Executor
	evaluator   *trigger.Evaluator
	resumer     *workflow.Resumer
	lifecycle   *eventbus.LifecycleLogger
	logger      *slog.Logger
}

func NewAgent(
	id string,
	p persistence.Persistence,
	eventBus eventbus.EventBus,
	adapters cmd.Adapters,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Agent {
	executor := workflow.NewExecutor(p, eventBus, adapters.Workflow(), tracer, logger)

	callback := func(ctx context.Context, wf *models.Workflow, tr *models.Trigger, vars models.VariableContext) {
		if _, err := executor.Run(ctx, wf, tr, vars); err != nil {
			logger.ErrorContext(ctx, "Workflow run failed",
				"workflow_id", wf.ID, "trigger_id", tr.ID, "error", err)
		}
	}

	sources := trigger.Sources{
		Email:     adapters.Email,
		Chat:      adapters.Chat,
		Geofencer: adapters.Geofencer,
	}

	return &Agent{
		id:          id,
		persistence: p,
		eventBus:    eventBus,
		executor:    executor,
		evaluator:   trigger.NewEvaluator(p, sources, callback, eventBus, logger),
		resumer:     workflow.NewResumer(p, executor, logger),
		lifecycle:   eventbus.NewLifecycleLogger(eventBus, logger),
		logger:      logger.With("module", "agent"),
	}
}

// Start runs the evaluator and resumer loops until a termination signal
// arrives, then drains in-flight runs before returning.
func (a *Agent) Start(ctx context.Context) {
	aCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.logger.InfoContext(ctx, "Starting agent")

	if err := a.lifecycle.Start(aCtx); err != nil {
		a.logger.ErrorContext(ctx, "Failed to subscribe to lifecycle events", "error", err)
	}

	go a.evaluator.Start(aCtx)
	go a.resumer.Start(aCtx)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signals:
		a.logger.Info("Received signal, shutting down gracefully", "signal", sig)
	case <-ctx.Done():
	}

	cancel()
	a.evaluator.Wait()

	a.logger.Info("Agent stopped")
}
