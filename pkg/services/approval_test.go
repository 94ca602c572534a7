package services

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fluxa-io/fluxa/pkg/mocks"
	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/fluxa-io/fluxa/pkg/persistence"
	"github.com/fluxa-io/fluxa/pkg/persistence/file"
	"github.com/fluxa-io/fluxa/pkg/workflow"
)

type approvalFixture struct {
	service *Approval
	store   persistence.Persistence
	email   *mocks.MockEmailAdapter
	wf      *models.Workflow
	runID   string
}

// suspendedRun stores a workflow whose single approval gate suspended a run,
// and returns everything a resolution test needs.
func suspendedRun(t *testing.T) *approvalFixture {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	email := &mocks.MockEmailAdapter{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	executor := workflow.NewExecutor(store, nil, workflow.Adapters{Email: email}, nil, logger)
	ctx := context.Background()

	wf := validWorkflow("Gated")
	wf.ID = "wf-1"
	wf.Owner = "user-1"
	wf.Triggers[0].ID = "t1"
	wf.Actions = []*models.Action{
		{
			ID:   "a1",
			Kind: models.ActionKindRequireApproval,
			Approval: &models.ApprovalAction{
				ApproverUserID: "manager-1",
				TimeoutMinutes: 60,
				PendingAction: &models.Action{
					ID:    "a1-pending",
					Kind:  models.ActionKindSendEmail,
					Email: &models.EmailAction{To: "all@corp", Subject: "s", Body: "b"},
				},
			},
		},
	}
	require.NoError(t, store.WorkflowRepository().Save(ctx, wf))

	record, err := executor.Run(ctx, wf, wf.Triggers[0], models.VariableContext{})
	require.NoError(t, err)
	require.Equal(t, models.RunStatusAwaitingApproval, record.Status)

	return &approvalFixture{
		service: NewApproval(store, executor, logger),
		store:   store,
		email:   email,
		wf:      wf,
		runID:   record.ID,
	}
}

func pendingApprovalID(t *testing.T, f *approvalFixture) string {
	t.Helper()

	pending, err := f.store.ApprovalRepository().ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)

	return pending[0].ID
}

func TestApproval_ApproveRunsGatedActionAndResumes(t *testing.T) {
	f := suspendedRun(t)
	ctx := context.Background()
	approvalID := pendingApprovalID(t, f)

	f.email.On("Send", mock.Anything, "all@corp", "s", "b").Return(nil)

	require.NoError(t, f.service.Approve(ctx, "manager-1", approvalID))

	f.email.AssertExpectations(t)

	record, err := f.store.ExecutionRepository().GetByID(ctx, f.runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSucceeded, record.Status)

	resolved, err := f.store.ApprovalRepository().GetByID(ctx, approvalID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusApproved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
}

func TestApproval_DenyFailsRunWithoutRunningAction(t *testing.T) {
	f := suspendedRun(t)
	ctx := context.Background()
	approvalID := pendingApprovalID(t, f)

	require.NoError(t, f.service.Deny(ctx, "manager-1", approvalID))

	f.email.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	record, err := f.store.ExecutionRepository().GetByID(ctx, f.runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, record.Status)
	assert.Contains(t, record.Message, "denied by manager-1")
}

func TestApproval_OnlyAssignedApproverMayResolve(t *testing.T) {
	f := suspendedRun(t)
	ctx := context.Background()
	approvalID := pendingApprovalID(t, f)

	err := f.service.Approve(ctx, "intruder", approvalID)
	require.Error(t, err)
	assert.True(t, IsPermissionDenied(err))
}

func TestApproval_ResolvingTwiceConflicts(t *testing.T) {
	f := suspendedRun(t)
	ctx := context.Background()
	approvalID := pendingApprovalID(t, f)

	require.NoError(t, f.service.Deny(ctx, "manager-1", approvalID))

	err := f.service.Approve(ctx, "manager-1", approvalID)
	require.Error(t, err)
	assert.True(t, IsConflictError(err))
}

func TestApproval_ListPendingFiltersByApprover(t *testing.T) {
	f := suspendedRun(t)
	ctx := context.Background()

	mine, err := f.service.ListPending(ctx, "manager-1")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	other, err := f.service.ListPending(ctx, "manager-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}
