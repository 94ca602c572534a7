package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/fluxa-io/fluxa/pkg/persistence/file"
)

func exportFixture(t *testing.T) (*Export, *Workflow) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	return NewExport(store), NewWorkflow(store)
}

func exportedWorkflow(name string) *ExportedWorkflow {
	wf := validWorkflow(name)

	return &ExportedWorkflow{
		Name:     wf.Name,
		Type:     wf.Type,
		Triggers: wf.Triggers,
		Actions:  wf.Actions,
	}
}

func TestExport_IncludesOnlyOwnedWorkflowsWithProvenance(t *testing.T) {
	exporter, workflows := exportFixture(t)
	ctx := context.Background()

	created, err := workflows.Create(ctx, "user-1", validWorkflow("Mine"))
	require.NoError(t, err)
	_, err = workflows.Share(ctx, "user-1", created.ID, "friend", []models.Permission{models.PermissionView})
	require.NoError(t, err)

	_, err = workflows.Create(ctx, "user-2", validWorkflow("Theirs"))
	require.NoError(t, err)

	doc, err := exporter.Export(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, ExportVersion, doc.Version)
	assert.Equal(t, "user-1", doc.ExportedBy)
	require.Len(t, doc.Workflows, 1)

	entry := doc.Workflows[0]
	assert.Equal(t, "Mine", entry.Name)
	assert.Contains(t, entry.Permissions, "friend")
	assert.Equal(t, created.ID, entry.Metadata.OriginalID)
	assert.Equal(t, "user-1", entry.Metadata.OriginalCreatedBy)
	assert.Equal(t, created.CreatedAt, entry.Metadata.OriginalCreatedAt)
	assert.False(t, entry.Metadata.ExportedAt.IsZero())
}

func TestImport_AssignsFreshIdentityAndStripsSharing(t *testing.T) {
	exporter, workflows := exportFixture(t)
	ctx := context.Background()

	entry := exportedWorkflow("Travel Plan")
	entry.IsPublic = true
	entry.Permissions = map[string][]models.Permission{"old-friend": {models.PermissionEdit}}
	entry.Metadata = WorkflowMetadata{
		OriginalID:        "old-id",
		OriginalCreatedBy: "user-1",
		OriginalCreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(&ExportDocument{Version: 1, Workflows: []*ExportedWorkflow{entry}})
	require.NoError(t, err)

	imported, err := exporter.Import(ctx, "user-2", data, false)
	require.NoError(t, err)
	require.Len(t, imported, 1)

	wf := imported[0]
	assert.NotEqual(t, "old-id", wf.ID)
	assert.Equal(t, "user-2", wf.Owner)
	assert.False(t, wf.IsEnabled)
	assert.False(t, wf.IsPublic)
	assert.Empty(t, wf.Permissions)
	assert.Empty(t, wf.SharedWith)
	assert.True(t, wf.CreatedAt.After(entry.Metadata.OriginalCreatedAt))

	stored, err := workflows.Get(ctx, "user-2", wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "Travel Plan", stored.Name)
}

func TestImport_NameCollisionRenamesUnlessOverwriting(t *testing.T) {
	exporter, workflows := exportFixture(t)
	ctx := context.Background()

	existing, err := workflows.Create(ctx, "user-1", validWorkflow("Digest"))
	require.NoError(t, err)

	data, err := json.Marshal(&ExportDocument{Version: 1, Workflows: []*ExportedWorkflow{exportedWorkflow("Digest")}})
	require.NoError(t, err)

	renamed, err := exporter.Import(ctx, "user-1", data, false)
	require.NoError(t, err)
	assert.Equal(t, "Digest (imported)", renamed[0].Name)

	overwritten, err := exporter.Import(ctx, "user-1", data, true)
	require.NoError(t, err)
	assert.Equal(t, "Digest", overwritten[0].Name)
	assert.Equal(t, existing.ID, overwritten[0].ID)
}

func TestImport_RejectsMalformedDocument(t *testing.T) {
	exporter, _ := exportFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		data string
	}{
		{"not json", "not json at all"},
		{"wrong version", `{"version": 99, "workflows": [{"name": "x", "triggers": [], "actions": []}]}`},
		{"no workflows", `{"version": 1, "workflows": []}`},
		{"missing actions", `{"version": 1, "workflows": [{"name": "Valid Name", "triggers": [{}]}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := exporter.Import(ctx, "user-1", []byte(tc.data), false)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestImport_InvalidWorkflowRejectsWholeBatch(t *testing.T) {
	exporter, workflows := exportFixture(t)
	ctx := context.Background()

	good := exportedWorkflow("Good")
	bad := exportedWorkflow("Bad")
	bad.Triggers[0].ChatCommand = nil // payload missing for its kind

	data, err := json.Marshal(&ExportDocument{Version: 1, Workflows: []*ExportedWorkflow{good, bad}})
	require.NoError(t, err)

	_, err = exporter.Import(ctx, "user-1", data, false)
	require.Error(t, err)

	listed, err := workflows.ListVisible(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestExportImport_RoundTripPreservesDefinition(t *testing.T) {
	exporter, workflows := exportFixture(t)
	ctx := context.Background()

	_, err := workflows.Create(ctx, "user-1", validWorkflow("Round Trip"))
	require.NoError(t, err)

	doc, err := exporter.Export(ctx, "user-1")
	require.NoError(t, err)

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	imported, err := exporter.Import(ctx, "user-2", data, false)
	require.NoError(t, err)
	require.Len(t, imported, 1)
	assert.Equal(t, "Round Trip", imported[0].Name)
	assert.Len(t, imported[0].Triggers, 1)
	assert.Len(t, imported[0].Actions, 1)
}
