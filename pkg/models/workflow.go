// Package models defines the core domain models for trigger-driven workflow automation.
package models

import (
	"errors"
	"slices"
	"time"
)

// WorkflowType represents the ownership scope of a workflow.
type WorkflowType string

const (
	WorkflowTypePersonal  WorkflowType = "personal"   // Owned and run by a single user
	WorkflowTypeTeam      WorkflowType = "team"       // Shared with a fixed set of users
	WorkflowTypeCrossUser WorkflowType = "cross_user" // Triggered by one user, acting for others
)

// Permission grants a capability on a workflow to a non-owner user.
type Permission string

const (
	PermissionView Permission = "view"
	PermissionRun  Permission = "run"
	PermissionEdit Permission = "edit"
)

// KnownPermissions lists every permission the validator accepts.
var KnownPermissions = []Permission{PermissionView, PermissionRun, PermissionEdit}

// Workflow binds triggers to an ordered action list sharing one variable context.
type Workflow struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name"        validate:"required,min=3"`
	Description string                  `json:"description"`
	Owner       string                  `json:"owner"       validate:"required"`
	Type        WorkflowType            `json:"type"        validate:"required,oneof=personal team cross_user"`
	Triggers    []*Trigger              `json:"triggers"    validate:"required,min=1"`
	Actions     []*Action               `json:"actions"     validate:"required,min=1"`
	Variables   map[string]string       `json:"variables,omitempty"`
	IsPublic    bool                    `json:"is_public"`
	IsEnabled   bool                    `json:"is_enabled"`
	Permissions map[string][]Permission `json:"permissions,omitempty"`
	SharedWith  []string                `json:"shared_with,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

var (
	// ErrNoTriggers is returned when a workflow is saved without any trigger.
	ErrNoTriggers = errors.New("workflow requires at least one trigger")

	// ErrNoActions is returned when a workflow is saved without any action.
	ErrNoActions = errors.New("workflow requires at least one action")

	// ErrUnknownPermission is returned when a permission grant is not a known capability.
	ErrUnknownPermission = errors.New("unknown permission")
)

// Validate checks the structural invariants that hold for every persisted workflow.
func (w *Workflow) Validate() error {
	if len(w.Triggers) == 0 {
		return ErrNoTriggers
	}

	if len(w.Actions) == 0 {
		return ErrNoActions
	}

	for _, trigger := range w.Triggers {
		if err := trigger.Validate(); err != nil {
			return err
		}
	}

	for _, action := range w.Actions {
		if err := action.Validate(); err != nil {
			return err
		}
	}

	for _, grants := range w.Permissions {
		for _, p := range grants {
			if !slices.Contains(KnownPermissions, p) {
				return ErrUnknownPermission
			}
		}
	}

	return nil
}

// HasPermission reports whether userID may perform the given capability.
// The owner always retains full permission regardless of the grant map.
func (w *Workflow) HasPermission(userID string, permission Permission) bool {
	if userID == w.Owner {
		return true
	}

	return slices.Contains(w.Permissions[userID], permission)
}

// GeofenceTriggers returns the geofence triggers of the workflow, keyed by region.
func (w *Workflow) GeofenceTriggers() []*Trigger {
	triggers := make([]*Trigger, 0)

	for _, trigger := range w.Triggers {
		if trigger.Kind.IsGeofence() {
			triggers = append(triggers, trigger)
		}
	}

	return triggers
}
