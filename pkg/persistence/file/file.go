// Package file provides file-based persistence, one JSON document per record.
// A single mutex guards all read-modify-write sequences so the evaluator loop,
// the task consumer, and manual runs never race on the same record.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fluxa-io/fluxa/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local file system.
type Persistence struct {
	root string
	mu   sync.Mutex

	workflows     *WorkflowRepository
	tasks         *TaskRepository
	events        *ProcessedEventRepository
	executions    *ExecutionRepository
	approvals     *ApprovalRepository
	continuations *ContinuationRepository
	triggerState  *TriggerStateRepository
}

// NewPersistence creates file persistence rooted at the given directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.workflows = &WorkflowRepository{store: p}
	p.tasks = &TaskRepository{store: p}
	p.events = &ProcessedEventRepository{store: p}
	p.executions = &ExecutionRepository{store: p}
	p.approvals = &ApprovalRepository{store: p}
	p.continuations = &ContinuationRepository{store: p}
	p.triggerState = &TriggerStateRepository{store: p}

	return p
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflows
}

func (p *Persistence) TaskRepository() persistence.TaskRepository {
	return p.tasks
}

func (p *Persistence) ProcessedEventRepository() persistence.ProcessedEventRepository {
	return p.events
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executions
}

func (p *Persistence) ApprovalRepository() persistence.ApprovalRepository {
	return p.approvals
}

func (p *Persistence) ContinuationRepository() persistence.ContinuationRepository {
	return p.continuations
}

func (p *Persistence) TriggerStateRepository() persistence.TriggerStateRepository {
	return p.triggerState
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close is a no-op for file persistence.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// writeJSON persists a record under <root>/<kind>/<name>.json.
func (p *Persistence) writeJSON(kind, name string, value any) error {
	dir := filepath.Join(p.root, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", kind, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", kind, err)
	}

	return os.WriteFile(filepath.Join(dir, name+".json"), data, 0o644)
}

// readJSON loads a record, reporting os.ErrNotExist when absent.
func (p *Persistence) readJSON(kind, name string, out any) error {
	data, err := os.ReadFile(filepath.Join(p.root, kind, name+".json"))
	if err != nil {
		return err
	}

	return json.Unmarshal(data, out)
}

func (p *Persistence) removeJSON(kind, name string) error {
	return os.Remove(filepath.Join(p.root, kind, name+".json"))
}

// listNames returns the record names stored under a kind directory.
func (p *Persistence) listNames(kind string) ([]string, error) {
	dir := filepath.Join(p.root, kind)

	root := os.DirFS(dir)

	files, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	names := make([]string, 0, len(files))
	for _, file := range files {
		names = append(names, strings.TrimSuffix(file, ".json"))
	}

	return names, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
