// Package web provides the HTTP handlers for the workflow API.
package web

import "github.com/fluxa-io/fluxa/pkg/models"

// CreateWorkflowRequest is the request body for creating a workflow.
type CreateWorkflowRequest struct {
	Name        string              `json:"name"        validate:"required,min=3"`
	Description string              `json:"description"`
	Type        models.WorkflowType `json:"type"        validate:"required,oneof=personal team cross_user"`
	Triggers    []*models.Trigger   `json:"triggers"    validate:"required,min=1"`
	Actions     []*models.Action    `json:"actions"     validate:"required,min=1"`
	Variables   map[string]string   `json:"variables,omitempty"`
	IsEnabled   bool                `json:"is_enabled"`
}

// UpdateWorkflowRequest replaces the full definition of a workflow.
type UpdateWorkflowRequest struct {
	Name        string              `json:"name"        validate:"required,min=3"`
	Description string              `json:"description"`
	Type        models.WorkflowType `json:"type"        validate:"required,oneof=personal team cross_user"`
	Triggers    []*models.Trigger   `json:"triggers"    validate:"required,min=1"`
	Actions     []*models.Action    `json:"actions"     validate:"required,min=1"`
	Variables   map[string]string   `json:"variables,omitempty"`
	IsEnabled   bool                `json:"is_enabled"`
}

// ShareWorkflowRequest grants permissions on a workflow to another user.
type ShareWorkflowRequest struct {
	UserID      string              `json:"user_id"     validate:"required"`
	Permissions []models.Permission `json:"permissions" validate:"required,min=1"`
}

// RunWorkflowRequest launches a run manually. TriggerID selects which trigger
// context the run reports; empty means the first trigger. Variables seed the
// run's variable context on top of the workflow defaults.
type RunWorkflowRequest struct {
	TriggerID string            `json:"trigger_id,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`
}
