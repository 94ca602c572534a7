package models

import "time"

// RunStatus is the lifecycle state of one workflow run.
type RunStatus string

const (
	RunStatusPending          RunStatus = "pending"
	RunStatusRunning          RunStatus = "running"
	RunStatusAwaitingApproval RunStatus = "awaiting_approval"
	RunStatusSucceeded        RunStatus = "succeeded"
	RunStatusFailed           RunStatus = "failed"
)

// IsFinal reports whether the run reached a terminal state.
func (s RunStatus) IsFinal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed
}

// StepLog records the outcome of one executed action within a run.
type StepLog struct {
	Index    int        `json:"index"`
	ActionID string     `json:"action_id,omitempty"`
	Kind     ActionKind `json:"kind"`
	Status   string     `json:"status"`
	Message  string     `json:"message,omitempty"`
	Output   string     `json:"output,omitempty"`
	At       time.Time  `json:"at"`
}

// ExecutionRecord is the append-only history entry for one workflow run.
// It is created when the run starts and finalized exactly once at run end.
type ExecutionRecord struct {
	ID            string     `json:"id"`
	WorkflowID    string     `json:"workflow_id"`
	TriggerUserID string     `json:"trigger_user_id,omitempty"`
	Status        RunStatus  `json:"status"`
	Message       string     `json:"message,omitempty"`
	Steps         []StepLog  `json:"steps"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// AppendStep adds a step outcome to the ordered log.
func (r *ExecutionRecord) AppendStep(step StepLog) {
	step.Index = len(r.Steps)
	step.At = time.Now().UTC()
	r.Steps = append(r.Steps, step)
}

// Finalize moves the record into a terminal state. Finalizing an already
// final record is a no-op so the recorder stays append-only.
func (r *ExecutionRecord) Finalize(status RunStatus, message string) {
	if r.Status.IsFinal() {
		return
	}

	now := time.Now().UTC()
	r.Status = status
	r.Message = message
	r.FinishedAt = &now
}
