// Package persistence provides the data storage abstraction shared by the
// trigger evaluator, the action pipeline, and the background task consumer.
// Implementations guard every read-modify-write internally so concurrent
// loops never claim the same task or double-fire the same trigger.
package persistence

import (
	"context"
	"time"

	"github.com/fluxa-io/fluxa/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	TaskRepository() TaskRepository
	ProcessedEventRepository() ProcessedEventRepository
	ExecutionRepository() ExecutionRepository
	ApprovalRepository() ApprovalRepository
	ContinuationRepository() ContinuationRepository
	TriggerStateRepository() TriggerStateRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definitions.
type WorkflowRepository interface {
	List(ctx context.Context) ([]*models.Workflow, error)
	ListEnabled(ctx context.Context) ([]*models.Workflow, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}

// TaskRepository stores background tasks. ClaimNext atomically selects the
// due {pending, retry} task with the lowest (priority, scheduled_at) order,
// moves it to running, and returns it; it returns nil when nothing is due.
type TaskRepository interface {
	Enqueue(ctx context.Context, task *models.BackgroundTask) error
	GetByID(ctx context.Context, id string) (*models.BackgroundTask, error)
	ClaimNext(ctx context.Context, now time.Time) (*models.BackgroundTask, error)
	Update(ctx context.Context, task *models.BackgroundTask) error
	List(ctx context.Context, statuses ...models.TaskStatus) ([]*models.BackgroundTask, error)
}

// DefaultDedupRetention is how long processed-event markers are kept before
// the periodic sweep deletes them.
const DefaultDedupRetention = 30 * 24 * time.Hour

// ProcessedEventRepository is the deduplication store gating email and chat
// triggers. MarkProcessed is idempotent for a fixed (eventID, workflowID)
// pair; Sweep deletes records older than the retention cutoff.
type ProcessedEventRepository interface {
	IsProcessed(ctx context.Context, eventID, workflowID string) (bool, error)
	MarkProcessed(ctx context.Context, event *models.ProcessedEvent) error
	Sweep(ctx context.Context, olderThan time.Time) (int, error)
}

// ExecutionRepository stores one record per workflow run.
type ExecutionRepository interface {
	Save(ctx context.Context, record *models.ExecutionRecord) error
	GetByID(ctx context.Context, id string) (*models.ExecutionRecord, error)
	ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionRecord, error)
	Sweep(ctx context.Context, olderThan time.Time) (int, error)
}

// ApprovalRepository stores pending-approval suspension records.
type ApprovalRepository interface {
	Save(ctx context.Context, approval *models.PendingApproval) error
	GetByID(ctx context.Context, id string) (*models.PendingApproval, error)
	ListPending(ctx context.Context) ([]*models.PendingApproval, error)
	ListExpired(ctx context.Context, now time.Time) ([]*models.PendingApproval, error)
}

// ContinuationRepository stores delayed-run resume points.
type ContinuationRepository interface {
	Save(ctx context.Context, continuation *models.Continuation) error
	ListDue(ctx context.Context, now time.Time) ([]*models.Continuation, error)
	Delete(ctx context.Context, id string) error
}

// TriggerStateRepository keeps per-(workflow, trigger) last-fired markers and
// per-source polling checkpoints so trigger evaluation survives restarts.
type TriggerStateRepository interface {
	LastFired(ctx context.Context, workflowID, triggerID string) (*time.Time, error)
	SetLastFired(ctx context.Context, workflowID, triggerID string, at time.Time) error
	Checkpoint(ctx context.Context, source string) (string, error)
	SetCheckpoint(ctx context.Context, source, value string) error
}
