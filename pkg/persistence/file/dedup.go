package file

import (
	"context"
	"net/url"
	"time"

	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/fluxa-io/fluxa/pkg/persistence"
)

const eventKind = "processed_events"

// ProcessedEventRepository implements the deduplication store on files, one
// record per (eventID, workflowID) pair.
type ProcessedEventRepository struct {
	store *Persistence
}

// eventFileName makes the composite key file-system safe: provider event ids
// can contain path separators.
func eventFileName(eventID, workflowID string) string {
	return url.QueryEscape(eventID) + "__" + url.QueryEscape(workflowID)
}

func (r *ProcessedEventRepository) IsProcessed(_ context.Context, eventID, workflowID string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	event := &models.ProcessedEvent{}

	err := r.store.readJSON(eventKind, eventFileName(eventID, workflowID), event)
	if isNotExist(err) {
		return false, nil
	}

	if err != nil {
		return false, persistence.NewStoreError("IsProcessed", "processed_event", eventID, err)
	}

	return true, nil
}

// MarkProcessed is idempotent: marking an already-marked pair keeps the
// original record and does not create a second one.
func (r *ProcessedEventRepository) MarkProcessed(_ context.Context, event *models.ProcessedEvent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	name := eventFileName(event.EventID, event.WorkflowID)

	existing := &models.ProcessedEvent{}
	if err := r.store.readJSON(eventKind, name, existing); err == nil {
		return nil
	}

	if event.ProcessedAt.IsZero() {
		event.ProcessedAt = time.Now().UTC()
	}

	if err := r.store.writeJSON(eventKind, name, event); err != nil {
		return persistence.NewStoreError("MarkProcessed", "processed_event", event.EventID, err)
	}

	return nil
}

// Sweep deletes records processed before the cutoff and reports how many.
func (r *ProcessedEventRepository) Sweep(_ context.Context, olderThan time.Time) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	names, err := r.store.listNames(eventKind)
	if err != nil {
		return 0, persistence.NewStoreError("Sweep", "processed_event", "", err)
	}

	removed := 0

	for _, name := range names {
		event := &models.ProcessedEvent{}
		if err := r.store.readJSON(eventKind, name, event); err != nil {
			continue
		}

		if event.ProcessedAt.Before(olderThan) {
			if err := r.store.removeJSON(eventKind, name); err == nil {
				removed++
			}
		}
	}

	return removed, nil
}
