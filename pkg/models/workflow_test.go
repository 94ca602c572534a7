package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validWorkflow() *Workflow {
	return &Workflow{
		ID:    "wf-1",
		Name:  "Urgent mail relay",
		Owner: "user-1",
		Type:  WorkflowTypePersonal,
		Triggers: []*Trigger{
			{
				ID:    "t-1",
				Kind:  TriggerKindEmailReceived,
				Email: &EmailTrigger{SubjectFilter: "urgent"},
			},
		},
		Actions: []*Action{
			{
				ID:   "a-1",
				Kind: ActionKindSendChatMessage,
				Chat: &ChatAction{ChatID: "{{chat_id}}", Text: "New urgent mail: {{email_subject}}"},
			},
		},
		IsEnabled: true,
	}
}

func TestWorkflow_Validate(t *testing.T) {
	workflow := validWorkflow()
	require.NoError(t, workflow.Validate())

	noTriggers := validWorkflow()
	noTriggers.Triggers = nil
	assert.ErrorIs(t, noTriggers.Validate(), ErrNoTriggers)

	noActions := validWorkflow()
	noActions.Actions = nil
	assert.ErrorIs(t, noActions.Validate(), ErrNoActions)

	badPermission := validWorkflow()
	badPermission.Permissions = map[string][]Permission{"user-2": {"administrate"}}
	assert.ErrorIs(t, badPermission.Validate(), ErrUnknownPermission)
}

func TestWorkflow_OwnerAlwaysHasFullPermission(t *testing.T) {
	workflow := validWorkflow()
	workflow.Permissions = map[string][]Permission{
		"user-2": {PermissionView},
	}

	for _, p := range KnownPermissions {
		assert.True(t, workflow.HasPermission("user-1", p), "owner retains %s", p)
	}

	assert.True(t, workflow.HasPermission("user-2", PermissionView))
	assert.False(t, workflow.HasPermission("user-2", PermissionEdit))
	assert.False(t, workflow.HasPermission("user-3", PermissionView))
}

func TestTrigger_PayloadMustMatchKind(t *testing.T) {
	trigger := &Trigger{ID: "t-1", Kind: TriggerKindGeofenceEnter}
	assert.ErrorIs(t, trigger.Validate(), ErrTriggerPayloadMismatch)

	trigger.Geofence = &GeofenceTrigger{GeofenceID: "geo-1", RadiusMeters: 100}
	assert.NoError(t, trigger.Validate())

	unknown := &Trigger{ID: "t-2", Kind: "carrier_pigeon"}
	assert.Error(t, unknown.Validate())
}

func TestAction_RecursiveValidation(t *testing.T) {
	action := &Action{
		ID:   "a-1",
		Kind: ActionKindRequireApproval,
		Approval: &ApprovalAction{
			ApproverUserID: "boss",
			TimeoutMinutes: 30,
			PendingAction: &Action{
				ID:   "a-2",
				Kind: ActionKindSendEmail,
				// Missing payload: the nested action must fail validation.
			},
		},
	}

	assert.ErrorIs(t, action.Validate(), ErrActionPayloadMismatch)

	action.Approval.PendingAction.Email = &EmailAction{To: "ceo@example.com", Body: "ship it"}
	assert.NoError(t, action.Validate())
}

func TestWorkflow_JSONRoundTripKeepsTaggedVariants(t *testing.T) {
	workflow := validWorkflow()
	workflow.Triggers = append(workflow.Triggers, &Trigger{
		ID:   "t-2",
		Kind: TriggerKindTimeSchedule,
		Schedule: &TimeSchedule{
			ScheduleType: ScheduleTypeDaily,
			TimeOfDay:    "09:30",
		},
	})

	raw, err := json.Marshal(workflow)
	require.NoError(t, err)

	var decoded Workflow

	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.NoError(t, decoded.Validate())

	require.Len(t, decoded.Triggers, 2)
	assert.Equal(t, TriggerKindEmailReceived, decoded.Triggers[0].Kind)
	assert.Equal(t, "urgent", decoded.Triggers[0].Email.SubjectFilter)
	assert.Equal(t, ScheduleTypeDaily, decoded.Triggers[1].Schedule.ScheduleType)
}

func TestVariableContext_CloneIsIndependent(t *testing.T) {
	vars := NewVariableContext(map[string]string{"a": "1"})
	snapshot := vars.Clone()

	vars.Set("a", "2")
	vars.Set("b", "3")

	assert.Equal(t, "1", snapshot.Get("a"))
	assert.Equal(t, "", snapshot.Get("b"))
}
