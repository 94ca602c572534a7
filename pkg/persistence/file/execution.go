package file

import (
	"context"
	"slices"
	"time"

	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/fluxa-io/fluxa/pkg/persistence"
)

const executionKind = "executions"

// ExecutionRepository handles run history file operations.
type ExecutionRepository struct {
	store *Persistence
}

func (r *ExecutionRepository) Save(_ context.Context, record *models.ExecutionRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if err := r.store.writeJSON(executionKind, record.ID, record); err != nil {
		return persistence.NewStoreError("Save", "execution", record.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(_ context.Context, id string) (*models.ExecutionRecord, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	record := &models.ExecutionRecord{}

	err := r.store.readJSON(executionKind, id, record)
	if isNotExist(err) {
		return nil, persistence.NewStoreError("GetByID", "execution", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewStoreError("GetByID", "execution", id, err)
	}

	return record, nil
}

func (r *ExecutionRepository) ListByWorkflow(_ context.Context, workflowID string, limit int) ([]*models.ExecutionRecord, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	names, err := r.store.listNames(executionKind)
	if err != nil {
		return nil, persistence.NewStoreError("ListByWorkflow", "execution", workflowID, err)
	}

	records := make([]*models.ExecutionRecord, 0)

	for _, name := range names {
		record := &models.ExecutionRecord{}
		if err := r.store.readJSON(executionKind, name, record); err != nil {
			continue
		}

		if record.WorkflowID == workflowID {
			records = append(records, record)
		}
	}

	// Most recent first.
	slices.SortFunc(records, func(a, b *models.ExecutionRecord) int {
		return b.StartedAt.Compare(a.StartedAt)
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	return records, nil
}

func (r *ExecutionRepository) Sweep(_ context.Context, olderThan time.Time) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	names, err := r.store.listNames(executionKind)
	if err != nil {
		return 0, persistence.NewStoreError("Sweep", "execution", "", err)
	}

	removed := 0

	for _, name := range names {
		record := &models.ExecutionRecord{}
		if err := r.store.readJSON(executionKind, name, record); err != nil {
			continue
		}

		if record.StartedAt.Before(olderThan) && record.Status.IsFinal() {
			if err := r.store.removeJSON(executionKind, name); err == nil {
				removed++
			}
		}
	}

	return removed, nil
}
