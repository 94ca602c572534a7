package models

import "time"

// ProcessedEvent marks that a given external event already fired a given
// workflow. The composite (EventID, WorkflowID) key is the deduplication
// guarantee: one record per pair, created before the run outcome is known.
type ProcessedEvent struct {
	EventID        string    `json:"event_id"`
	WorkflowID     string    `json:"workflow_id"`
	UserID         string    `json:"user_id,omitempty"`
	Summary        string    `json:"summary,omitempty"`
	ProcessedAt    time.Time `json:"processed_at"`
	EventTimestamp time.Time `json:"event_timestamp"`
}

// DedupKey returns the composite key used by every dedup store implementation.
func (e *ProcessedEvent) DedupKey() string {
	return e.EventID + ":" + e.WorkflowID
}
