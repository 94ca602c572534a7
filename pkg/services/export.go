package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/fluxa-io/fluxa/pkg/persistence"
)

// ExportVersion is the document format version written by Export and the only
// version Import accepts.
const ExportVersion = 1

// exportSchema gates imported documents before any of them is unmarshalled
// into domain models. Per-workflow semantics are checked after unmarshalling
// by the usual validation path.
const exportSchema = `{
	"type": "object",
	"required": ["version", "workflows"],
	"properties": {
		"version": {"type": "integer", "minimum": 1, "maximum": 1},
		"exported_at": {"type": "string"},
		"exported_by": {"type": "string"},
		"workflows": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["name", "triggers", "actions"],
				"properties": {
					"name": {"type": "string", "minLength": 3},
					"triggers": {"type": "array", "minItems": 1},
					"actions": {"type": "array", "minItems": 1},
					"metadata": {"type": "object"}
				}
			}
		}
	}
}`

// WorkflowMetadata records where an exported workflow came from. It is
// provenance only: Import never reuses it for identity.
type WorkflowMetadata struct {
	OriginalID        string    `json:"original_id"`
	OriginalCreatedBy string    `json:"original_created_by"`
	OriginalCreatedAt time.Time `json:"original_created_at"`
	ExportedAt        time.Time `json:"exported_at"`
}

// ExportedWorkflow is one portable workflow entry. Sharing state travels in
// the document so the source installation stays inspectable; Import strips it.
type ExportedWorkflow struct {
	Name        string                         `json:"name"`
	Description string                         `json:"description,omitempty"`
	Type        models.WorkflowType            `json:"workflow_type"`
	Triggers    []*models.Trigger              `json:"triggers"`
	Actions     []*models.Action               `json:"actions"`
	Variables   map[string]string              `json:"variables,omitempty"`
	IsPublic    bool                           `json:"is_public"`
	Permissions map[string][]models.Permission `json:"permissions,omitempty"`
	Metadata    WorkflowMetadata               `json:"metadata"`
}

// ExportDocument is the portable workflow bundle format.
type ExportDocument struct {
	Version    int                 `json:"version"`
	ExportedAt time.Time           `json:"exported_at"`
	ExportedBy string              `json:"exported_by"`
	Workflows  []*ExportedWorkflow `json:"workflows"`
}

// Export bundles workflows for transfer between installations. Import gives
// them fresh identities under the importing user.
type Export struct {
	persistence persistence.Persistence
}

func NewExport(p persistence.Persistence) *Export {
	return &Export{persistence: p}
}

// Export returns the document holding every workflow owned by userID, each
// entry carrying its sharing flags and a provenance metadata block.
func (e *Export) Export(ctx context.Context, userID string) (*ExportDocument, error) {
	workflows, err := e.persistence.WorkflowRepository().List(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	owned := make([]*ExportedWorkflow, 0, len(workflows))

	for _, wf := range workflows {
		if wf.Owner != userID {
			continue
		}

		owned = append(owned, &ExportedWorkflow{
			Name:        wf.Name,
			Description: wf.Description,
			Type:        wf.Type,
			Triggers:    wf.Triggers,
			Actions:     wf.Actions,
			Variables:   wf.Variables,
			IsPublic:    wf.IsPublic,
			Permissions: wf.Permissions,
			Metadata: WorkflowMetadata{
				OriginalID:        wf.ID,
				OriginalCreatedBy: wf.Owner,
				OriginalCreatedAt: wf.CreatedAt,
				ExportedAt:        now,
			},
		})
	}

	return &ExportDocument{
		Version:    ExportVersion,
		ExportedAt: now,
		ExportedBy: userID,
		Workflows:  owned,
	}, nil
}

// Import validates and installs the workflows of an export document under
// userID. Every workflow gets a fresh id, is disabled, and has the document's
// sharing and public flags stripped. A name collision with an existing
// workflow of the importer either replaces it (overwriteExisting) or imports
// under a suffixed name.
func (e *Export) Import(ctx context.Context, userID string, data []byte, overwriteExisting bool) ([]*models.Workflow, error) {
	if err := validateExportDocument(data); err != nil {
		return nil, err
	}

	var doc ExportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExportDocument, err)
	}

	existing, err := e.persistence.WorkflowRepository().List(ctx)
	if err != nil {
		return nil, err
	}

	names := make(map[string]*models.Workflow)

	for _, wf := range existing {
		if wf.Owner == userID {
			names[wf.Name] = wf
		}
	}

	now := time.Now().UTC()
	imported := make([]*models.Workflow, 0, len(doc.Workflows))

	// Validate the whole batch before saving anything, so a bad entry cannot
	// leave a partial import behind. Sharing flags are dropped here: the entry's
	// is_public and permissions never reach the new installation.
	for _, entry := range doc.Workflows {
		wf := &models.Workflow{
			ID:          uuid.New().String(),
			Name:        entry.Name,
			Description: entry.Description,
			Owner:       userID,
			Type:        entry.Type,
			Triggers:    entry.Triggers,
			Actions:     entry.Actions,
			Variables:   entry.Variables,
			IsEnabled:   false,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		for _, trigger := range wf.Triggers {
			trigger.ID = uuid.New().String()
		}

		if collided, ok := names[wf.Name]; ok {
			if overwriteExisting {
				wf.ID = collided.ID
				wf.CreatedAt = collided.CreatedAt
			} else {
				wf.Name = importedName(wf.Name, names)
			}
		}

		if err := wf.Validate(); err != nil {
			return nil, fmt.Errorf("%w: workflow %q: %w", ErrInvalidExportDocument, wf.Name, err)
		}

		names[wf.Name] = wf
		imported = append(imported, wf)
	}

	for _, wf := range imported {
		if err := e.persistence.WorkflowRepository().Save(ctx, wf); err != nil {
			return nil, fmt.Errorf("failed to save imported workflow %q: %w", wf.Name, err)
		}
	}

	return imported, nil
}

func validateExportDocument(data []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(exportSchema)
	dataLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidExportDocument, err)
	}

	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidExportDocument, strings.Join(descriptions, "; "))
	}

	return nil
}

// importedName finds a free "<name> (imported)", "<name> (imported 2)", ...
func importedName(name string, taken map[string]*models.Workflow) string {
	candidate := name + " (imported)"

	for n := 2; ; n++ {
		if _, ok := taken[candidate]; !ok {
			return candidate
		}

		candidate = fmt.Sprintf("%s (imported %d)", name, n)
	}
}
