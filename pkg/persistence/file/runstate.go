package file

import (
	"context"
	"time"

	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/fluxa-io/fluxa/pkg/persistence"
)

const (
	approvalKind     = "approvals"
	continuationKind = "continuations"
)

// ApprovalRepository handles pending approval file operations.
type ApprovalRepository struct {
	store *Persistence
}

func (r *ApprovalRepository) Save(_ context.Context, approval *models.PendingApproval) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if err := r.store.writeJSON(approvalKind, approval.ID, approval); err != nil {
		return persistence.NewStoreError("Save", "approval", approval.ID, err)
	}

	return nil
}

func (r *ApprovalRepository) GetByID(_ context.Context, id string) (*models.PendingApproval, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	approval := &models.PendingApproval{}

	err := r.store.readJSON(approvalKind, id, approval)
	if isNotExist(err) {
		return nil, persistence.NewStoreError("GetByID", "approval", id, persistence.ErrApprovalNotFound)
	}

	if err != nil {
		return nil, persistence.NewStoreError("GetByID", "approval", id, err)
	}

	return approval, nil
}

func (r *ApprovalRepository) ListPending(ctx context.Context) ([]*models.PendingApproval, error) {
	return r.list(ctx, func(a *models.PendingApproval) bool {
		return a.Status == models.ApprovalStatusPending
	})
}

func (r *ApprovalRepository) ListExpired(ctx context.Context, now time.Time) ([]*models.PendingApproval, error) {
	return r.list(ctx, func(a *models.PendingApproval) bool {
		return a.IsExpired(now)
	})
}

func (r *ApprovalRepository) list(_ context.Context, keep func(*models.PendingApproval) bool) ([]*models.PendingApproval, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	names, err := r.store.listNames(approvalKind)
	if err != nil {
		return nil, persistence.NewStoreError("List", "approval", "", err)
	}

	approvals := make([]*models.PendingApproval, 0)

	for _, name := range names {
		approval := &models.PendingApproval{}
		if err := r.store.readJSON(approvalKind, name, approval); err != nil {
			continue
		}

		if keep(approval) {
			approvals = append(approvals, approval)
		}
	}

	return approvals, nil
}

// ContinuationRepository handles delay continuation file operations.
type ContinuationRepository struct {
	store *Persistence
}

func (r *ContinuationRepository) Save(_ context.Context, continuation *models.Continuation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if err := r.store.writeJSON(continuationKind, continuation.ID, continuation); err != nil {
		return persistence.NewStoreError("Save", "continuation", continuation.ID, err)
	}

	return nil
}

func (r *ContinuationRepository) ListDue(_ context.Context, now time.Time) ([]*models.Continuation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	names, err := r.store.listNames(continuationKind)
	if err != nil {
		return nil, persistence.NewStoreError("ListDue", "continuation", "", err)
	}

	due := make([]*models.Continuation, 0)

	for _, name := range names {
		continuation := &models.Continuation{}
		if err := r.store.readJSON(continuationKind, name, continuation); err != nil {
			continue
		}

		if continuation.IsDue(now) {
			due = append(due, continuation)
		}
	}

	return due, nil
}

func (r *ContinuationRepository) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	err := r.store.removeJSON(continuationKind, id)
	if isNotExist(err) {
		return persistence.NewStoreError("Delete", "continuation", id, persistence.ErrContinuationNotFound)
	}

	return err
}
