package models

import "time"

// Continuation is the persisted resume point for a delay action: workflow id,
// index of the next action, and a snapshot of the variable context. The
// scheduler tick re-enters the pipeline when ResumeAt passes, so a pending
// delay survives process restarts instead of living in a sleeping goroutine.
type Continuation struct {
	ID          string          `json:"id"`
	WorkflowID  string          `json:"workflow_id"`
	RunID       string          `json:"run_id"`
	ResumeIndex int             `json:"resume_index"`
	Context     VariableContext `json:"context"`
	ResumeAt    time.Time       `json:"resume_at"`
	CreatedAt   time.Time       `json:"created_at"`
}

// IsDue reports whether the delayed run should resume at now.
func (c *Continuation) IsDue(now time.Time) bool {
	return !c.ResumeAt.After(now)
}
