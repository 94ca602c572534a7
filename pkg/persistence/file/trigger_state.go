package file

import (
	"context"
	"time"

	"github.com/fluxa-io/fluxa/pkg/persistence"
)

const triggerStateKind = "trigger_state"

// TriggerStateRepository keeps last-fired markers and polling checkpoints in
// two documents under trigger_state/.
type TriggerStateRepository struct {
	store *Persistence
}

func (r *TriggerStateRepository) LastFired(_ context.Context, workflowID, triggerID string) (*time.Time, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	markers, err := r.readMarkers()
	if err != nil {
		return nil, err
	}

	at, ok := markers[markerKey(workflowID, triggerID)]
	if !ok {
		return nil, nil
	}

	return &at, nil
}

func (r *TriggerStateRepository) SetLastFired(_ context.Context, workflowID, triggerID string, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	markers, err := r.readMarkers()
	if err != nil {
		return err
	}

	markers[markerKey(workflowID, triggerID)] = at

	if err := r.store.writeJSON(triggerStateKind, "last_fired", markers); err != nil {
		return persistence.NewStoreError("SetLastFired", "trigger_state", workflowID, err)
	}

	return nil
}

func (r *TriggerStateRepository) Checkpoint(_ context.Context, source string) (string, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	checkpoints, err := r.readCheckpoints()
	if err != nil {
		return "", err
	}

	return checkpoints[source], nil
}

func (r *TriggerStateRepository) SetCheckpoint(_ context.Context, source, value string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	checkpoints, err := r.readCheckpoints()
	if err != nil {
		return err
	}

	checkpoints[source] = value

	if err := r.store.writeJSON(triggerStateKind, "checkpoints", checkpoints); err != nil {
		return persistence.NewStoreError("SetCheckpoint", "trigger_state", source, err)
	}

	return nil
}

func (r *TriggerStateRepository) readMarkers() (map[string]time.Time, error) {
	markers := make(map[string]time.Time)

	err := r.store.readJSON(triggerStateKind, "last_fired", &markers)
	if err != nil && !isNotExist(err) {
		return nil, persistence.NewStoreError("LastFired", "trigger_state", "", err)
	}

	return markers, nil
}

func (r *TriggerStateRepository) readCheckpoints() (map[string]string, error) {
	checkpoints := make(map[string]string)

	err := r.store.readJSON(triggerStateKind, "checkpoints", &checkpoints)
	if err != nil && !isNotExist(err) {
		return nil, persistence.NewStoreError("Checkpoint", "trigger_state", "", err)
	}

	return checkpoints, nil
}

func markerKey(workflowID, triggerID string) string {
	return workflowID + ":" + triggerID
}
