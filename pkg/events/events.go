// Package events defines the event types published on the run lifecycle bus.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/fluxa-io/fluxa/pkg/models"
)

type EventType string

const Topic = "fluxa.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Trigger events.
	TriggerFiredEvent EventType = "trigger.fired"

	// Run lifecycle events.
	RunStartedEvent   EventType = "run.started"
	RunSucceededEvent EventType = "run.succeeded"
	RunFailedEvent    EventType = "run.failed"
	RunSuspendedEvent EventType = "run.suspended"
	RunResumedEvent   EventType = "run.resumed"

	// Background task events.
	TaskCompletedEvent EventType = "task.completed"
	TaskFailedEvent    EventType = "task.failed"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

// TriggerFired is published once per fired (workflow, trigger) pair.
type TriggerFired struct {
	BaseEvent

	TriggerID   string             `json:"trigger_id"`
	TriggerKind models.TriggerKind `json:"trigger_kind"`
	EventID     string             `json:"event_id,omitempty"`
	UserID      string             `json:"user_id,omitempty"`
}

func (e TriggerFired) GetType() EventType {
	return TriggerFiredEvent
}

type RunStarted struct {
	BaseEvent

	RunID     string `json:"run_id"`
	TriggerID string `json:"trigger_id,omitempty"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunSucceeded struct {
	BaseEvent

	RunID    string        `json:"run_id"`
	Steps    int           `json:"steps"`
	Duration time.Duration `json:"duration"`
}

func (e RunSucceeded) GetType() EventType {
	return RunSucceededEvent
}

type RunFailed struct {
	BaseEvent

	RunID    string        `json:"run_id"`
	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}

// SuspensionReason says why a run left the running state without finishing.
type SuspensionReason string

const (
	SuspensionReasonDelay    SuspensionReason = "delay"
	SuspensionReasonApproval SuspensionReason = "approval"
)

type RunSuspended struct {
	BaseEvent

	RunID    string           `json:"run_id"`
	Reason   SuspensionReason `json:"reason"`
	ResumeAt *time.Time       `json:"resume_at,omitempty"`
}

func (e RunSuspended) GetType() EventType {
	return RunSuspendedEvent
}

type RunResumed struct {
	BaseEvent

	RunID       string `json:"run_id"`
	ResumeIndex int    `json:"resume_index"`
}

func (e RunResumed) GetType() EventType {
	return RunResumedEvent
}

type TaskCompleted struct {
	BaseEvent

	TaskID   string          `json:"task_id"`
	TaskType models.TaskType `json:"task_type"`
	Result   string          `json:"result,omitempty"`
}

func (e TaskCompleted) GetType() EventType {
	return TaskCompletedEvent
}

type TaskFailed struct {
	BaseEvent

	TaskID   string          `json:"task_id"`
	TaskType models.TaskType `json:"task_type"`
	Error    string          `json:"error"`
	Retries  int             `json:"retries"`
}

func (e TaskFailed) GetType() EventType {
	return TaskFailedEvent
}
