package eventbus

import (
	"context"
	"log/slog"

	"github.com/fluxa-io/fluxa/pkg/events"
)

// lifecycleEvents is every event type published on the bus.
var lifecycleEvents = []events.EventType{
	events.TriggerFiredEvent,
	events.RunStartedEvent,
	events.RunSucceededEvent,
	events.RunFailedEvent,
	events.RunSuspendedEvent,
	events.RunResumedEvent,
	events.TaskCompletedEvent,
	events.TaskFailedEvent,
}

// LifecycleLogger consumes the run and task lifecycle stream and logs one
// structured line per event. On a brokered bus it gives operators a single
// ordered feed across the agent and worker processes.
type LifecycleLogger struct {
	bus    EventSubscriber
	logger *slog.Logger
}

func NewLifecycleLogger(bus EventSubscriber, logger *slog.Logger) *LifecycleLogger {
	return &LifecycleLogger{
		bus:    bus,
		logger: logger.With("module", "lifecycle_logger"),
	}
}

// Start registers the handler for every lifecycle event type and begins
// consuming. It returns once the subscription is established.
func (l *LifecycleLogger) Start(ctx context.Context) error {
	for _, eventType := range lifecycleEvents {
		if err := l.bus.Handle(eventType, l.handle); err != nil {
			return err
		}
	}

	return l.bus.Subscribe(ctx)
}

func (l *LifecycleLogger) handle(ctx context.Context, event any) error {
	switch e := event.(type) {
	case *events.TriggerFired:
		l.logger.InfoContext(ctx, "Trigger fired",
			"workflow_id", e.WorkflowID, "trigger_id", e.TriggerID, "trigger_kind", e.TriggerKind, "event_id", e.EventID)
	case *events.RunStarted:
		l.logger.InfoContext(ctx, "Run started",
			"workflow_id", e.WorkflowID, "run_id", e.RunID, "trigger_id", e.TriggerID)
	case *events.RunSucceeded:
		l.logger.InfoContext(ctx, "Run succeeded",
			"workflow_id", e.WorkflowID, "run_id", e.RunID, "steps", e.Steps, "duration", e.Duration)
	case *events.RunFailed:
		l.logger.WarnContext(ctx, "Run failed",
			"workflow_id", e.WorkflowID, "run_id", e.RunID, "error", e.Error, "duration", e.Duration)
	case *events.RunSuspended:
		l.logger.InfoContext(ctx, "Run suspended",
			"workflow_id", e.WorkflowID, "run_id", e.RunID, "reason", e.Reason)
	case *events.RunResumed:
		l.logger.InfoContext(ctx, "Run resumed",
			"workflow_id", e.WorkflowID, "run_id", e.RunID, "resume_index", e.ResumeIndex)
	case *events.TaskCompleted:
		l.logger.InfoContext(ctx, "Task completed",
			"task_id", e.TaskID, "task_type", e.TaskType)
	case *events.TaskFailed:
		l.logger.WarnContext(ctx, "Task failed",
			"task_id", e.TaskID, "task_type", e.TaskType, "error", e.Error, "retries", e.Retries)
	default:
		l.logger.WarnContext(ctx, "Unrecognized lifecycle event", "event", event)
	}

	return nil
}
