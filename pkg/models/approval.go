package models

import "time"

// ApprovalStatus is the resolution state of a pending approval.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusDenied   ApprovalStatus = "denied"
	ApprovalStatusExpired  ApprovalStatus = "expired"
)

// PendingApproval suspends a run at a require_approval action. ResumeIndex is
// the position of the next top-level action after the gate; Context snapshots
// the variable context at suspension time. Past Deadline the sweep auto-denies.
type PendingApproval struct {
	ID             string          `json:"id"`
	WorkflowID     string          `json:"workflow_id"`
	RunID          string          `json:"run_id"`
	ApproverUserID string          `json:"approver_user_id"`
	PendingAction  *Action         `json:"pending_action"`
	ResumeIndex    int             `json:"resume_index"`
	Context        VariableContext `json:"context"`
	Deadline       time.Time       `json:"deadline"`
	Status         ApprovalStatus  `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
}

// IsExpired reports whether the approval passed its deadline unresolved.
func (a *PendingApproval) IsExpired(now time.Time) bool {
	return a.Status == ApprovalStatusPending && now.After(a.Deadline)
}
