package workflow_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/fluxa-io/fluxa/pkg/workflow"
)

func newResumerFixture(t *testing.T) (*workflow.Resumer, *executorFixture) {
	t.Helper()

	f := newExecutorFixture(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return workflow.NewResumer(f.store, f.executor, logger), f
}

func TestResumer_ResumesDueContinuation(t *testing.T) {
	resumer, f := newResumerFixture(t)
	ctx := context.Background()

	f.chat.On("SendMessage", mock.Anything, "chat-9", "after the delay").Return(nil)

	wf := pipelineWorkflow(
		&models.Action{
			ID:    "a1",
			Kind:  models.ActionKindDelay,
			Delay: &models.DelayAction{Minutes: 30},
		},
		&models.Action{
			ID:   "a2",
			Kind: models.ActionKindSendChatMessage,
			Chat: &models.ChatAction{ChatID: "chat-9", Text: "after the delay"},
		},
	)
	require.NoError(t, f.store.WorkflowRepository().Save(ctx, wf))

	record, err := f.executor.Run(ctx, wf, wf.Triggers[0], models.VariableContext{})
	require.NoError(t, err)
	require.Equal(t, models.RunStatusRunning, record.Status)

	// Before the delay elapses nothing resumes.
	resumer.Tick(ctx, time.Now().UTC())
	f.chat.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)

	// Past the delay the tail runs and the continuation is consumed.
	resumer.Tick(ctx, time.Now().UTC().Add(31*time.Minute))

	final, err := f.store.ExecutionRepository().GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSucceeded, final.Status)
	require.Len(t, final.Steps, 2)

	due, err := f.store.ContinuationRepository().ListDue(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)

	// A later tick does not run the tail twice.
	resumer.Tick(ctx, time.Now().UTC().Add(time.Hour))
	f.chat.AssertNumberOfCalls(t, "SendMessage", 1)
}

func TestResumer_SweepsDedupRecordsPastRetention(t *testing.T) {
	resumer, f := newResumerFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	events := f.store.ProcessedEventRepository()

	require.NoError(t, events.MarkProcessed(ctx, &models.ProcessedEvent{
		EventID:     "stale-1",
		WorkflowID:  "wf-1",
		ProcessedAt: now.Add(-40 * 24 * time.Hour),
	}))
	require.NoError(t, events.MarkProcessed(ctx, &models.ProcessedEvent{
		EventID:     "fresh-1",
		WorkflowID:  "wf-1",
		ProcessedAt: now.Add(-time.Hour),
	}))

	resumer.Tick(ctx, now)

	stale, err := events.IsProcessed(ctx, "stale-1", "wf-1")
	require.NoError(t, err)
	assert.False(t, stale)

	fresh, err := events.IsProcessed(ctx, "fresh-1", "wf-1")
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestResumer_ExpiredApprovalDeniesRun(t *testing.T) {
	resumer, f := newResumerFixture(t)
	ctx := context.Background()

	wf := pipelineWorkflow(&models.Action{
		ID:   "a1",
		Kind: models.ActionKindRequireApproval,
		Approval: &models.ApprovalAction{
			ApproverUserID: "manager-1",
			TimeoutMinutes: 10,
			PendingAction: &models.Action{
				ID:    "a1-pending",
				Kind:  models.ActionKindSendEmail,
				Email: &models.EmailAction{To: "all@corp", Subject: "s", Body: "b"},
			},
		},
	})
	require.NoError(t, f.store.WorkflowRepository().Save(ctx, wf))

	record, err := f.executor.Run(ctx, wf, wf.Triggers[0], models.VariableContext{})
	require.NoError(t, err)
	require.Equal(t, models.RunStatusAwaitingApproval, record.Status)

	// Within the deadline the approval stays pending.
	resumer.Tick(ctx, time.Now().UTC())

	pending, err := f.store.ApprovalRepository().ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	// Past the deadline the policy is auto-deny.
	resumer.Tick(ctx, time.Now().UTC().Add(11*time.Minute))

	pending, err = f.store.ApprovalRepository().ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	final, err := f.store.ExecutionRepository().GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, final.Status)
	assert.Contains(t, final.Message, "timed out")
	f.email.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
