package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/fluxa-io/fluxa/pkg/persistence"
	"github.com/fluxa-io/fluxa/pkg/workflow"
)

// Approval resolves pending-approval gates. Approving executes the gated
// action and resumes the suspended run; denying fails it.
type Approval struct {
	persistence persistence.Persistence
	executor    *workflow.Executor
	logger      *slog.Logger
}

func NewApproval(p persistence.Persistence, executor *workflow.Executor, logger *slog.Logger) *Approval {
	return &Approval{
		persistence: p,
		executor:    executor,
		logger:      logger.With("module", "approval_service"),
	}
}

// ListPending returns the unresolved approvals assigned to approverID.
func (a *Approval) ListPending(ctx context.Context, approverID string) ([]*models.PendingApproval, error) {
	pending, err := a.persistence.ApprovalRepository().ListPending(ctx)
	if err != nil {
		return nil, err
	}

	mine := make([]*models.PendingApproval, 0, len(pending))

	for _, approval := range pending {
		if approval.ApproverUserID == approverID {
			mine = append(mine, approval)
		}
	}

	return mine, nil
}

// Approve resolves the approval positively: the gated action executes, then
// the run continues from its resume point.
func (a *Approval) Approve(ctx context.Context, approverID, approvalID string) error {
	approval, wf, err := a.take(ctx, approverID, approvalID, models.ApprovalStatusApproved)
	if err != nil {
		return err
	}

	a.logger.Info("Approval granted", "approval_id", approvalID, "run_id", approval.RunID)

	return a.executor.ResumeApproved(ctx, wf, approval)
}

// Deny resolves the approval negatively and fails the run.
func (a *Approval) Deny(ctx context.Context, approverID, approvalID string) error {
	approval, wf, err := a.take(ctx, approverID, approvalID, models.ApprovalStatusDenied)
	if err != nil {
		return err
	}

	a.logger.Info("Approval denied", "approval_id", approvalID, "run_id", approval.RunID)

	return a.executor.ResumeDenied(ctx, wf, approval, fmt.Sprintf("denied by %s", approverID))
}

// take validates and persists the resolution, returning the approval and its
// workflow. Expired approvals are left to the deadline sweep.
func (a *Approval) take(ctx context.Context, approverID, approvalID string, resolution models.ApprovalStatus) (*models.PendingApproval, *models.Workflow, error) {
	approval, err := a.persistence.ApprovalRepository().GetByID(ctx, approvalID)
	if err != nil {
		return nil, nil, err
	}

	if approval.ApproverUserID != approverID {
		return nil, nil, ErrPermissionDenied
	}

	now := time.Now().UTC()

	if approval.Status != models.ApprovalStatusPending {
		return nil, nil, fmt.Errorf("%w: %s", ErrAlreadyResolved, approval.Status)
	}

	if approval.IsExpired(now) {
		return nil, nil, ErrApprovalExpired
	}

	wf, err := a.persistence.WorkflowRepository().GetByID(ctx, approval.WorkflowID)
	if err != nil {
		return nil, nil, err
	}

	approval.Status = resolution
	approval.ResolvedAt = &now

	if err := a.persistence.ApprovalRepository().Save(ctx, approval); err != nil {
		return nil, nil, err
	}

	return approval, wf, nil
}
