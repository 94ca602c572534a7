package models

import (
	"errors"
	"fmt"
)

// TriggerKind enumerates the closed set of trigger variants. Adding a kind
// means extending every switch that dispatches on it.
type TriggerKind string

const (
	TriggerKindEmailReceived TriggerKind = "email_received"
	TriggerKindChatCommand   TriggerKind = "chat_command"
	TriggerKindChatMessage   TriggerKind = "chat_message"
	TriggerKindGeofenceEnter TriggerKind = "geofence_enter"
	TriggerKindGeofenceExit  TriggerKind = "geofence_exit"
	TriggerKindGeofenceDwell TriggerKind = "geofence_dwell"
	TriggerKindTimeSchedule  TriggerKind = "time_schedule"
)

// IsGeofence reports whether the kind is one of the geofence transition kinds.
func (k TriggerKind) IsGeofence() bool {
	return k == TriggerKindGeofenceEnter || k == TriggerKindGeofenceExit || k == TriggerKindGeofenceDwell
}

// EmailTrigger matches incoming email events. Empty filters match everything.
type EmailTrigger struct {
	FromFilter    string `json:"from_filter,omitempty"`
	SubjectFilter string `json:"subject_filter,omitempty"`
	BodyFilter    string `json:"body_filter,omitempty"`
}

// ChatCommandTrigger fires on an exact chat command such as "/summarize".
type ChatCommandTrigger struct {
	Command string `json:"command" validate:"required"`
}

// ChatMessageTrigger fires on chat messages containing the match condition.
type ChatMessageTrigger struct {
	MatchCondition string `json:"match_condition" validate:"required"`
}

// GeofenceTrigger describes a circular region registered with the OS location
// subsystem. GeofenceID is globally unique and joins OS transition events back
// to the owning (workflow, trigger) pair.
type GeofenceTrigger struct {
	GeofenceID   string  `json:"geofence_id" validate:"required"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radius_meters" validate:"gt=0"`
	PlaceID      string  `json:"place_id,omitempty"`
}

// Trigger is a tagged union: Kind selects exactly one populated payload.
type Trigger struct {
	ID          string              `json:"id"`
	Kind        TriggerKind         `json:"kind" validate:"required"`
	Email       *EmailTrigger       `json:"email,omitempty"`
	ChatCommand *ChatCommandTrigger `json:"chat_command,omitempty"`
	ChatMessage *ChatMessageTrigger `json:"chat_message,omitempty"`
	Geofence    *GeofenceTrigger    `json:"geofence,omitempty"`
	Schedule    *TimeSchedule       `json:"schedule,omitempty"`
}

var ErrTriggerPayloadMismatch = errors.New("trigger payload does not match kind")

// Validate ensures the payload matching Kind is present and well-formed.
func (t *Trigger) Validate() error {
	switch t.Kind {
	case TriggerKindEmailReceived:
		if t.Email == nil {
			return fmt.Errorf("%w: %s", ErrTriggerPayloadMismatch, t.Kind)
		}
	case TriggerKindChatCommand:
		if t.ChatCommand == nil || t.ChatCommand.Command == "" {
			return fmt.Errorf("%w: %s", ErrTriggerPayloadMismatch, t.Kind)
		}
	case TriggerKindChatMessage:
		if t.ChatMessage == nil || t.ChatMessage.MatchCondition == "" {
			return fmt.Errorf("%w: %s", ErrTriggerPayloadMismatch, t.Kind)
		}
	case TriggerKindGeofenceEnter, TriggerKindGeofenceExit, TriggerKindGeofenceDwell:
		if t.Geofence == nil || t.Geofence.GeofenceID == "" {
			return fmt.Errorf("%w: %s", ErrTriggerPayloadMismatch, t.Kind)
		}
	case TriggerKindTimeSchedule:
		if t.Schedule == nil {
			return fmt.Errorf("%w: %s", ErrTriggerPayloadMismatch, t.Kind)
		}

		return t.Schedule.Validate()
	default:
		return fmt.Errorf("unknown trigger kind: %q", t.Kind)
	}

	return nil
}
