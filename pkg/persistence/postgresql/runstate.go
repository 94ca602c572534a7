package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/fluxa-io/fluxa/pkg/persistence"
)

// ApprovalRepository handles pending approval database operations.
type ApprovalRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *ApprovalRepository) Save(ctx context.Context, approval *models.PendingApproval) error {
	pendingAction, err := json.Marshal(approval.PendingAction)
	if err != nil {
		return persistence.NewStoreError("Save", "approval", approval.ID, err)
	}

	varContext, err := json.Marshal(approval.Context)
	if err != nil {
		return persistence.NewStoreError("Save", "approval", approval.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO approvals (id, workflow_id, run_id, approver_user_id, pending_action,
			resume_index, context, deadline, status, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			resolved_at = EXCLUDED.resolved_at
	`, approval.ID, approval.WorkflowID, approval.RunID, approval.ApproverUserID, pendingAction,
		approval.ResumeIndex, varContext, approval.Deadline, approval.Status,
		approval.CreatedAt, approval.ResolvedAt)
	if err != nil {
		return persistence.NewStoreError("Save", "approval", approval.ID, err)
	}

	return nil
}

func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*models.PendingApproval, error) {
	row := r.db.QueryRowContext(ctx, approvalSelect+` WHERE id = $1`, id)

	approval, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewStoreError("GetByID", "approval", id, persistence.ErrApprovalNotFound)
	}

	if err != nil {
		return nil, persistence.NewStoreError("GetByID", "approval", id, err)
	}

	return approval, nil
}

func (r *ApprovalRepository) ListPending(ctx context.Context) ([]*models.PendingApproval, error) {
	rows, err := r.db.QueryContext(ctx, approvalSelect+`
		WHERE status = 'pending'
		ORDER BY created_at
	`)
	if err != nil {
		return nil, persistence.NewStoreError("ListPending", "approval", "", err)
	}

	return r.collectApprovals(ctx, rows, "ListPending")
}

func (r *ApprovalRepository) ListExpired(ctx context.Context, now time.Time) ([]*models.PendingApproval, error) {
	rows, err := r.db.QueryContext(ctx, approvalSelect+`
		WHERE status = 'pending' AND deadline < $1
		ORDER BY deadline
	`, now)
	if err != nil {
		return nil, persistence.NewStoreError("ListExpired", "approval", "", err)
	}

	return r.collectApprovals(ctx, rows, "ListExpired")
}

func (r *ApprovalRepository) collectApprovals(ctx context.Context, rows *sql.Rows, op string) ([]*models.PendingApproval, error) {
	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	approvals := make([]*models.PendingApproval, 0)

	for rows.Next() {
		approval, err := scanApproval(rows)
		if err != nil {
			return nil, persistence.NewStoreError(op, "approval", "", err)
		}

		approvals = append(approvals, approval)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError(op, "approval", "", err)
	}

	return approvals, nil
}

const approvalSelect = `
	SELECT id, workflow_id, run_id, approver_user_id, pending_action,
		resume_index, context, deadline, status, created_at, resolved_at
	FROM approvals
`

func scanApproval(row rowScanner) (*models.PendingApproval, error) {
	approval := &models.PendingApproval{}

	var pendingAction, varContext []byte

	var resolvedAt sql.NullTime

	err := row.Scan(&approval.ID, &approval.WorkflowID, &approval.RunID, &approval.ApproverUserID,
		&pendingAction, &approval.ResumeIndex, &varContext, &approval.Deadline,
		&approval.Status, &approval.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(pendingAction, &approval.PendingAction); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(varContext, &approval.Context); err != nil {
		return nil, err
	}

	if resolvedAt.Valid {
		approval.ResolvedAt = &resolvedAt.Time
	}

	return approval, nil
}

// ContinuationRepository handles delayed run resume points.
type ContinuationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *ContinuationRepository) Save(ctx context.Context, continuation *models.Continuation) error {
	varContext, err := json.Marshal(continuation.Context)
	if err != nil {
		return persistence.NewStoreError("Save", "continuation", continuation.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO continuations (id, workflow_id, run_id, resume_index, context, resume_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			resume_index = EXCLUDED.resume_index,
			context = EXCLUDED.context,
			resume_at = EXCLUDED.resume_at
	`, continuation.ID, continuation.WorkflowID, continuation.RunID, continuation.ResumeIndex,
		varContext, continuation.ResumeAt, continuation.CreatedAt)
	if err != nil {
		return persistence.NewStoreError("Save", "continuation", continuation.ID, err)
	}

	return nil
}

func (r *ContinuationRepository) ListDue(ctx context.Context, now time.Time) ([]*models.Continuation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, workflow_id, run_id, resume_index, context, resume_at, created_at
		FROM continuations
		WHERE resume_at <= $1
		ORDER BY resume_at
	`, now)
	if err != nil {
		return nil, persistence.NewStoreError("ListDue", "continuation", "", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	continuations := make([]*models.Continuation, 0)

	for rows.Next() {
		continuation := &models.Continuation{}

		var varContext []byte

		err := rows.Scan(&continuation.ID, &continuation.WorkflowID, &continuation.RunID,
			&continuation.ResumeIndex, &varContext, &continuation.ResumeAt, &continuation.CreatedAt)
		if err != nil {
			return nil, persistence.NewStoreError("ListDue", "continuation", "", err)
		}

		if err := json.Unmarshal(varContext, &continuation.Context); err != nil {
			return nil, persistence.NewStoreError("ListDue", "continuation", continuation.ID, err)
		}

		continuations = append(continuations, continuation)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("ListDue", "continuation", "", err)
	}

	return continuations, nil
}

func (r *ContinuationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM continuations WHERE id = $1`, id)
	if err != nil {
		return persistence.NewStoreError("Delete", "continuation", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("Delete", "continuation", id, err)
	}

	if affected == 0 {
		return persistence.NewStoreError("Delete", "continuation", id, persistence.ErrContinuationNotFound)
	}

	return nil
}
