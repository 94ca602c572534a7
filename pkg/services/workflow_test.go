package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/fluxa-io/fluxa/pkg/persistence"
	"github.com/fluxa-io/fluxa/pkg/persistence/file"
)

func validWorkflow(name string) *models.Workflow {
	return &models.Workflow{
		Name: name,
		Type: models.WorkflowTypePersonal,
		Triggers: []*models.Trigger{
			{Kind: models.TriggerKindChatCommand, ChatCommand: &models.ChatCommandTrigger{Command: "/go"}},
		},
		Actions: []*models.Action{
			{ID: "a1", Kind: models.ActionKindSendChatMessage, Chat: &models.ChatAction{ChatID: "c-1", Text: "hi"}},
		},
		IsEnabled: true,
	}
}

func TestWorkflow_CreateAssignsIdentity(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()))
	ctx := context.Background()

	created, err := service.Create(ctx, "user-1", validWorkflow("Morning Digest"))
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "user-1", created.Owner)
	assert.NotEmpty(t, created.Triggers[0].ID)
	assert.False(t, created.CreatedAt.IsZero())
}

func TestWorkflow_CreateRejectsMissingTrigger(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()))

	wf := validWorkflow("Broken")
	wf.Triggers = nil

	_, err := service.Create(context.Background(), "user-1", wf)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestWorkflow_CreateRejectsDuplicateNamePerOwner(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()))
	ctx := context.Background()

	_, err := service.Create(ctx, "user-1", validWorkflow("Digest"))
	require.NoError(t, err)

	_, err = service.Create(ctx, "user-1", validWorkflow("Digest"))
	require.Error(t, err)
	assert.True(t, IsConflictError(err))

	// A different owner can reuse the name.
	_, err = service.Create(ctx, "user-2", validWorkflow("Digest"))
	require.NoError(t, err)
}

func TestWorkflow_GetEnforcesVisibility(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()))
	ctx := context.Background()

	created, err := service.Create(ctx, "user-1", validWorkflow("Private"))
	require.NoError(t, err)

	_, err = service.Get(ctx, "user-1", created.ID)
	require.NoError(t, err)

	_, err = service.Get(ctx, "stranger", created.ID)
	require.Error(t, err)
	assert.True(t, IsPermissionDenied(err))

	// Sharing opens it up.
	_, err = service.Share(ctx, "user-1", created.ID, "stranger", []models.Permission{models.PermissionView})
	require.NoError(t, err)

	shared, err := service.Get(ctx, "stranger", created.ID)
	require.NoError(t, err)
	assert.Contains(t, shared.SharedWith, "stranger")
}

func TestWorkflow_UpdateKeepsOwnership(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()))
	ctx := context.Background()

	created, err := service.Create(ctx, "user-1", validWorkflow("Digest"))
	require.NoError(t, err)

	edited := validWorkflow("Digest v2")
	edited.ID = created.ID
	edited.Owner = "hijacker"

	updated, err := service.Update(ctx, "user-1", edited)
	require.NoError(t, err)
	assert.Equal(t, "user-1", updated.Owner)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	_, err = service.Update(ctx, "hijacker", edited)
	require.Error(t, err)
	assert.True(t, IsPermissionDenied(err))
}

func TestWorkflow_DeleteIsOwnerOnly(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()))
	ctx := context.Background()

	created, err := service.Create(ctx, "user-1", validWorkflow("Digest"))
	require.NoError(t, err)

	err = service.Delete(ctx, "stranger", created.ID)
	require.Error(t, err)
	assert.True(t, IsPermissionDenied(err))

	require.NoError(t, service.Delete(ctx, "user-1", created.ID))

	_, err = service.Get(ctx, "user-1", created.ID)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflow_SetEnabled(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()))
	ctx := context.Background()

	created, err := service.Create(ctx, "user-1", validWorkflow("Digest"))
	require.NoError(t, err)
	require.True(t, created.IsEnabled)

	disabled, err := service.SetEnabled(ctx, "user-1", created.ID, false)
	require.NoError(t, err)
	assert.False(t, disabled.IsEnabled)

	_, err = service.SetEnabled(ctx, "stranger", created.ID, true)
	require.Error(t, err)
	assert.True(t, IsPermissionDenied(err))
}

func TestWorkflow_ShareRejectsUnknownPermission(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()))
	ctx := context.Background()

	created, err := service.Create(ctx, "user-1", validWorkflow("Digest"))
	require.NoError(t, err)

	_, err = service.Share(ctx, "user-1", created.ID, "user-2", []models.Permission{"admin"})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}
