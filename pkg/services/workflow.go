package services

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/fluxa-io/fluxa/pkg/persistence"
)

// ErrWorkflowNotFound is returned when a workflow is not found.
var ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

type Workflow struct {
	persistence persistence.Persistence
	validate    *validator.Validate
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(p persistence.Persistence) *Workflow {
	return &Workflow{
		persistence: p,
		validate:    validator.New(),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	if err := w.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Create validates and stores a new workflow owned by ownerID. The id and
// timestamps are assigned here; client-supplied values are ignored.
func (w *Workflow) Create(ctx context.Context, ownerID string, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	workflow.ID = uuid.New().String()
	workflow.Owner = ownerID
	now := time.Now().UTC()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	for _, trigger := range workflow.Triggers {
		if trigger.ID == "" {
			trigger.ID = uuid.New().String()
		}
	}

	if err := w.checkWorkflow(ctx, workflow, ""); err != nil {
		return nil, err
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	return workflow, nil
}

// Get returns a workflow visible to requesterID: owned, shared, or public.
func (w *Workflow) Get(ctx context.Context, requesterID, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !w.canView(workflow, requesterID) {
		return nil, ErrPermissionDenied
	}

	return workflow, nil
}

// ListVisible returns every workflow requesterID may see.
func (w *Workflow) ListVisible(ctx context.Context, requesterID string) ([]*models.Workflow, error) {
	workflows, err := w.persistence.WorkflowRepository().List(ctx)
	if err != nil {
		return nil, err
	}

	visible := make([]*models.Workflow, 0, len(workflows))

	for _, workflow := range workflows {
		if w.canView(workflow, requesterID) {
			visible = append(visible, workflow)
		}
	}

	return visible, nil
}

// Update replaces the definition of an existing workflow. The requester needs
// the edit permission; ownership and creation time survive the update.
func (w *Workflow) Update(ctx context.Context, requesterID string, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	existing, err := w.persistence.WorkflowRepository().GetByID(ctx, workflow.ID)
	if err != nil {
		return nil, err
	}

	if !existing.HasPermission(requesterID, models.PermissionEdit) {
		return nil, ErrPermissionDenied
	}

	workflow.Owner = existing.Owner
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = time.Now().UTC()

	if err := w.checkWorkflow(ctx, workflow, workflow.ID); err != nil {
		return nil, err
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return workflow, nil
}

// Delete removes a workflow. Owner only.
func (w *Workflow) Delete(ctx context.Context, requesterID, id string) error {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return err
	}

	if workflow.Owner != requesterID {
		return ErrPermissionDenied
	}

	return w.persistence.WorkflowRepository().Delete(ctx, id)
}

// SetEnabled flips the enabled flag. Requires the edit permission.
func (w *Workflow) SetEnabled(ctx context.Context, requesterID, id string, enabled bool) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !workflow.HasPermission(requesterID, models.PermissionEdit) {
		return nil, ErrPermissionDenied
	}

	workflow.IsEnabled = enabled
	workflow.UpdatedAt = time.Now().UTC()

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

// Share grants capabilities on a workflow to another user. Owner only.
func (w *Workflow) Share(ctx context.Context, requesterID, id, userID string, grants []models.Permission) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow.Owner != requesterID {
		return nil, ErrPermissionDenied
	}

	for _, grant := range grants {
		if !slices.Contains(models.KnownPermissions, grant) {
			return nil, fmt.Errorf("%w: %q", models.ErrUnknownPermission, grant)
		}
	}

	if workflow.Permissions == nil {
		workflow.Permissions = make(map[string][]models.Permission)
	}

	workflow.Permissions[userID] = grants

	if !slices.Contains(workflow.SharedWith, userID) {
		workflow.SharedWith = append(workflow.SharedWith, userID)
	}

	workflow.UpdatedAt = time.Now().UTC()

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

// Runs returns the recent execution history of a workflow the requester can
// see, most recent first.
func (w *Workflow) Runs(ctx context.Context, requesterID, id string, limit int) ([]*models.ExecutionRecord, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !w.canView(workflow, requesterID) {
		return nil, ErrPermissionDenied
	}

	return w.persistence.ExecutionRepository().ListByWorkflow(ctx, id, limit)
}

// CanRun reports whether requesterID may launch the workflow manually.
func (w *Workflow) CanRun(workflow *models.Workflow, requesterID string) bool {
	return workflow.HasPermission(requesterID, models.PermissionRun)
}

// checkWorkflow runs struct validation, domain validation, and the per-owner
// unique-name check. excludeID skips the workflow itself on updates.
func (w *Workflow) checkWorkflow(ctx context.Context, workflow *models.Workflow, excludeID string) error {
	if err := w.validate.Struct(workflow); err != nil {
		return NewValidationError("checkWorkflow", "INVALID_WORKFLOW", err.Error(), ErrInvalidRequest)
	}

	if err := workflow.Validate(); err != nil {
		return err
	}

	existing, err := w.persistence.WorkflowRepository().List(ctx)
	if err != nil {
		return err
	}

	for _, other := range existing {
		if other.ID != excludeID && other.Owner == workflow.Owner && other.Name == workflow.Name {
			return fmt.Errorf("%w: %q", ErrNameConflict, workflow.Name)
		}
	}

	return nil
}

func (w *Workflow) canView(workflow *models.Workflow, requesterID string) bool {
	if workflow.IsPublic || workflow.Owner == requesterID {
		return true
	}

	if slices.Contains(workflow.SharedWith, requesterID) {
		return true
	}

	return workflow.HasPermission(requesterID, models.PermissionView)
}
