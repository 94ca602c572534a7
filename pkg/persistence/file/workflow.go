package file

import (
	"context"
	"time"

	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/fluxa-io/fluxa/pkg/persistence"
)

const workflowKind = "workflows"

// WorkflowRepository handles workflow file operations.
type WorkflowRepository struct {
	store *Persistence
}

func (r *WorkflowRepository) List(ctx context.Context) ([]*models.Workflow, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.listLocked(ctx)
}

func (r *WorkflowRepository) listLocked(_ context.Context) ([]*models.Workflow, error) {
	names, err := r.store.listNames(workflowKind)
	if err != nil {
		return nil, persistence.NewStoreError("List", "workflow", "", err)
	}

	workflows := make([]*models.Workflow, 0, len(names))

	for _, name := range names {
		workflow := &models.Workflow{}
		if err := r.store.readJSON(workflowKind, name, workflow); err != nil {
			return nil, persistence.NewStoreError("List", "workflow", name, err)
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func (r *WorkflowRepository) ListEnabled(ctx context.Context) ([]*models.Workflow, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	all, err := r.listLocked(ctx)
	if err != nil {
		return nil, err
	}

	enabled := make([]*models.Workflow, 0, len(all))

	for _, workflow := range all {
		if workflow.IsEnabled {
			enabled = append(enabled, workflow)
		}
	}

	return enabled, nil
}

func (r *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	workflow := &models.Workflow{}

	err := r.store.readJSON(workflowKind, id, workflow)
	if isNotExist(err) {
		return nil, persistence.NewStoreError("GetByID", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, persistence.NewStoreError("GetByID", "workflow", id, err)
	}

	return workflow, nil
}

func (r *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	workflow.UpdatedAt = time.Now().UTC()

	if err := r.store.writeJSON(workflowKind, workflow.ID, workflow); err != nil {
		return persistence.NewStoreError("Save", "workflow", workflow.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	err := r.store.removeJSON(workflowKind, id)
	if isNotExist(err) {
		return persistence.NewStoreError("Delete", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	return err
}
