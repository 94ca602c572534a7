package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/fluxa-io/fluxa/pkg/persistence"
)

// DefaultResumeInterval is the scheduler tick driving delayed-run re-entry
// and approval expiry.
const DefaultResumeInterval = 30 * time.Second

// dedupSweepInterval throttles the processed-event retention sweep; it scans
// the store, so it runs far less often than the resume tick.
const dedupSweepInterval = time.Hour

// Resumer re-enters suspended runs: due delay continuations resume the
// pipeline, and approvals past their deadline are auto-denied. It also hosts
// the processed-event retention sweep, sharing the scheduler tick.
type Resumer struct {
	persistence persistence.Persistence
	executor    *Executor
	logger      *slog.Logger
	interval    time.Duration
	retention   time.Duration
	lastSweep   time.Time
}

func NewResumer(p persistence.Persistence, executor *Executor, logger *slog.Logger) *Resumer {
	return &Resumer{
		persistence: p,
		executor:    executor,
		logger:      logger.With("module", "workflow_resumer"),
		interval:    DefaultResumeInterval,
		retention:   persistence.DefaultDedupRetention,
	}
}

// Start blocks, ticking until the context ends.
func (r *Resumer) Start(ctx context.Context) {
	r.logger.InfoContext(ctx, "Starting run resumer", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "Run resumer stopped")

			return
		case <-ticker.C:
			r.Tick(ctx, time.Now().UTC())
		}
	}
}

// Tick processes everything due at now. Errors are logged and retried on the
// next tick, never fatal.
func (r *Resumer) Tick(ctx context.Context, now time.Time) {
	r.resumeContinuations(ctx, now)
	r.expireApprovals(ctx, now)
	r.sweepProcessedEvents(ctx, now)
}

// sweepProcessedEvents deletes dedup markers older than the retention window,
// at most once per dedupSweepInterval.
func (r *Resumer) sweepProcessedEvents(ctx context.Context, now time.Time) {
	if !r.lastSweep.IsZero() && now.Sub(r.lastSweep) < dedupSweepInterval {
		return
	}

	r.lastSweep = now

	removed, err := r.persistence.ProcessedEventRepository().Sweep(ctx, now.Add(-r.retention))
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to sweep processed events", "error", err)

		return
	}

	if removed > 0 {
		r.logger.InfoContext(ctx, "Swept processed events", "removed", removed, "retention", r.retention)
	}
}

func (r *Resumer) resumeContinuations(ctx context.Context, now time.Time) {
	due, err := r.persistence.ContinuationRepository().ListDue(ctx, now)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to list due continuations", "error", err)

		return
	}

	for _, continuation := range due {
		logger := r.logger.With("workflow_id", continuation.WorkflowID, "run_id", continuation.RunID)

		// Delete first so a resume crash cannot double-run the tail.
		if err := r.persistence.ContinuationRepository().Delete(ctx, continuation.ID); err != nil {
			logger.ErrorContext(ctx, "Failed to claim continuation", "error", err)

			continue
		}

		workflow, err := r.persistence.WorkflowRepository().GetByID(ctx, continuation.WorkflowID)
		if err != nil {
			logger.ErrorContext(ctx, "Workflow gone, dropping continuation", "error", err)
			r.failOrphanedRun(ctx, continuation.RunID, "workflow deleted while delayed")

			continue
		}

		logger.InfoContext(ctx, "Resuming delayed run", "resume_index", continuation.ResumeIndex)

		if err := r.executor.Resume(ctx, workflow, continuation.RunID, continuation.Context, continuation.ResumeIndex); err != nil {
			logger.ErrorContext(ctx, "Failed to resume run", "error", err)
		}
	}
}

// expireApprovals auto-denies every approval past its deadline and fails the
// suspended run.
func (r *Resumer) expireApprovals(ctx context.Context, now time.Time) {
	expired, err := r.persistence.ApprovalRepository().ListExpired(ctx, now)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to list expired approvals", "error", err)

		return
	}

	for _, approval := range expired {
		logger := r.logger.With("workflow_id", approval.WorkflowID, "run_id", approval.RunID,
			"approval_id", approval.ID)

		approval.Status = models.ApprovalStatusExpired
		resolvedAt := now
		approval.ResolvedAt = &resolvedAt

		if err := r.persistence.ApprovalRepository().Save(ctx, approval); err != nil {
			logger.ErrorContext(ctx, "Failed to expire approval", "error", err)

			continue
		}

		logger.InfoContext(ctx, "Approval timed out, denying run")

		workflow, err := r.persistence.WorkflowRepository().GetByID(ctx, approval.WorkflowID)
		if err != nil {
			r.failOrphanedRun(ctx, approval.RunID, "approval timed out")

			continue
		}

		if err := r.executor.ResumeDenied(ctx, workflow, approval, "approval timed out"); err != nil {
			logger.ErrorContext(ctx, "Failed to deny run", "error", err)
		}
	}
}

func (r *Resumer) failOrphanedRun(ctx context.Context, runID, message string) {
	record, err := r.persistence.ExecutionRepository().GetByID(ctx, runID)
	if err != nil {
		return
	}

	record.Finalize(models.RunStatusFailed, message)

	if err := r.persistence.ExecutionRepository().Save(ctx, record); err != nil {
		r.logger.ErrorContext(ctx, "Failed to finalize orphaned run", "run_id", runID, "error", err)
	}
}
