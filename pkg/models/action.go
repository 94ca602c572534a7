package models

import (
	"errors"
	"fmt"
)

// ActionKind enumerates the closed set of action variants.
type ActionKind string

const (
	// Leaf actions backed by the inference engine.
	ActionKindAIAnalyze          ActionKind = "ai_analyze"
	ActionKindAITranslate        ActionKind = "ai_translate"
	ActionKindAISummarize        ActionKind = "ai_summarize"
	ActionKindAIExtractKeywords  ActionKind = "ai_extract_keywords"
	ActionKindAISentiment        ActionKind = "ai_sentiment"
	ActionKindAIGenerateResponse ActionKind = "ai_generate_response"

	// Leaf actions backed by messaging adapters.
	ActionKindSendEmail       ActionKind = "send_email"
	ActionKindReplyEmail      ActionKind = "reply_email"
	ActionKindSendChatMessage ActionKind = "send_chat_message"
	ActionKindBroadcast       ActionKind = "broadcast"

	// Control-flow actions.
	ActionKindConditional     ActionKind = "conditional"
	ActionKindDelay           ActionKind = "delay"
	ActionKindRequireApproval ActionKind = "require_approval"
)

// IsControlFlow reports whether the kind alters pipeline progression rather
// than producing an output.
func (k ActionKind) IsControlFlow() bool {
	return k == ActionKindConditional || k == ActionKindDelay || k == ActionKindRequireApproval
}

// IsAI reports whether the kind runs through the inference engine.
func (k ActionKind) IsAI() bool {
	switch k {
	case ActionKindAIAnalyze, ActionKindAITranslate, ActionKindAISummarize,
		ActionKindAIExtractKeywords, ActionKindAISentiment, ActionKindAIGenerateResponse:
		return true
	default:
		return false
	}
}

// AIAction configures an inference-engine action. Input and Prompt are
// templates resolved against the run's variable context.
type AIAction struct {
	Input          string `json:"input" validate:"required"`
	Prompt         string `json:"prompt,omitempty"`
	TargetLanguage string `json:"target_language,omitempty"` // translate only
}

// EmailAction configures send_email and reply_email. For replies MessageIDVar
// names the context variable holding the message id to reply to.
type EmailAction struct {
	To           string `json:"to,omitempty"`
	Subject      string `json:"subject,omitempty"`
	Body         string `json:"body" validate:"required"`
	MessageIDVar string `json:"message_id_var,omitempty"`
}

// ChatAction configures send_chat_message.
type ChatAction struct {
	ChatID string `json:"chat_id" validate:"required"`
	Text   string `json:"text"    validate:"required"`
}

// BroadcastAction fans content out to every (user, platform) combination
// independently. Partial failures do not abort the remaining targets.
type BroadcastAction struct {
	TargetUserIDs []string `json:"target_user_ids" validate:"required,min=1"`
	Platforms     []string `json:"platforms"       validate:"required,min=1"`
	Content       string   `json:"content"         validate:"required"`
}

// ConditionalAction evaluates Condition against the variable context and
// executes exactly one of the two branch actions inline.
type ConditionalAction struct {
	Condition   Condition `json:"condition"`
	TrueAction  *Action   `json:"true_action,omitempty"`
	FalseAction *Action   `json:"false_action,omitempty"`
}

// DelayAction suspends the run. Execution resumes from a persisted
// continuation on a scheduler tick, never by sleeping in-process.
type DelayAction struct {
	Minutes int `json:"minutes" validate:"gt=0"`
}

// ApprovalAction halts the run until the approver resolves it. On deadline
// with no response the run is denied and terminated.
type ApprovalAction struct {
	ApproverUserID string  `json:"approver_user_id" validate:"required"`
	PendingAction  *Action `json:"pending_action"   validate:"required"`
	TimeoutMinutes int     `json:"timeout_minutes"  validate:"gt=0"`
}

// Action is a recursive tagged union: Kind selects exactly one populated
// payload. Leaf actions may declare OutputVariable, which merges the action's
// result into the run's variable context under that name.
type Action struct {
	ID             string      `json:"id"`
	Kind           ActionKind  `json:"kind" validate:"required"`
	OutputVariable string      `json:"output_variable,omitempty"`

	AI          *AIAction          `json:"ai,omitempty"`
	Email       *EmailAction       `json:"email,omitempty"`
	Chat        *ChatAction        `json:"chat,omitempty"`
	Broadcast   *BroadcastAction   `json:"broadcast,omitempty"`
	Conditional *ConditionalAction `json:"conditional,omitempty"`
	Delay       *DelayAction       `json:"delay,omitempty"`
	Approval    *ApprovalAction    `json:"approval,omitempty"`
}

var ErrActionPayloadMismatch = errors.New("action payload does not match kind")

// Validate ensures the payload matching Kind is present, recursing into
// branch and pending actions.
func (a *Action) Validate() error {
	switch a.Kind {
	case ActionKindAIAnalyze, ActionKindAITranslate, ActionKindAISummarize,
		ActionKindAIExtractKeywords, ActionKindAISentiment, ActionKindAIGenerateResponse:
		if a.AI == nil || a.AI.Input == "" {
			return fmt.Errorf("%w: %s", ErrActionPayloadMismatch, a.Kind)
		}
	case ActionKindSendEmail:
		if a.Email == nil || a.Email.To == "" || a.Email.Body == "" {
			return fmt.Errorf("%w: %s", ErrActionPayloadMismatch, a.Kind)
		}
	case ActionKindReplyEmail:
		if a.Email == nil || a.Email.Body == "" {
			return fmt.Errorf("%w: %s", ErrActionPayloadMismatch, a.Kind)
		}
	case ActionKindSendChatMessage:
		if a.Chat == nil || a.Chat.Text == "" {
			return fmt.Errorf("%w: %s", ErrActionPayloadMismatch, a.Kind)
		}
	case ActionKindBroadcast:
		if a.Broadcast == nil || len(a.Broadcast.TargetUserIDs) == 0 || len(a.Broadcast.Platforms) == 0 {
			return fmt.Errorf("%w: %s", ErrActionPayloadMismatch, a.Kind)
		}
	case ActionKindConditional:
		if a.Conditional == nil {
			return fmt.Errorf("%w: %s", ErrActionPayloadMismatch, a.Kind)
		}

		if err := a.Conditional.Condition.Validate(); err != nil {
			return err
		}

		for _, branch := range []*Action{a.Conditional.TrueAction, a.Conditional.FalseAction} {
			if branch == nil {
				continue
			}

			if err := branch.Validate(); err != nil {
				return err
			}
		}
	case ActionKindDelay:
		if a.Delay == nil || a.Delay.Minutes <= 0 {
			return fmt.Errorf("%w: %s", ErrActionPayloadMismatch, a.Kind)
		}
	case ActionKindRequireApproval:
		if a.Approval == nil || a.Approval.PendingAction == nil || a.Approval.ApproverUserID == "" {
			return fmt.Errorf("%w: %s", ErrActionPayloadMismatch, a.Kind)
		}

		return a.Approval.PendingAction.Validate()
	default:
		return fmt.Errorf("unknown action kind: %q", a.Kind)
	}

	return nil
}
