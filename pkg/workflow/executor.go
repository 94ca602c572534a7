// Package workflow runs a workflow's ordered action list against its variable
// context, handling branching, delays, and approval gates.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/fluxa-io/fluxa/pkg/eventbus"
	"github.com/fluxa-io/fluxa/pkg/events"
	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/fluxa-io/fluxa/pkg/otelhelper"
	"github.com/fluxa-io/fluxa/pkg/persistence"
	"github.com/fluxa-io/fluxa/pkg/protocol"
	"github.com/fluxa-io/fluxa/pkg/template"
)

// DefaultRunTimeout bounds one pipeline run end to end. Suspended time (delay
// continuations, pending approvals) does not count against it.
const DefaultRunTimeout = 10 * time.Minute

// Adapters bundles the external collaborators leaf actions dispatch to.
type Adapters struct {
	Email  protocol.EmailAdapter
	Chat   protocol.ChatAdapter
	Engine protocol.InferenceEngine
}

// Executor drives the action pipeline state machine for one workflow run at a
// time. It is safe for concurrent use; per-run state lives on the stack.
type Executor struct {
	persistence persistence.Persistence
	adapters    Adapters
	eventBus    eventbus.EventPublisher
	tracer      trace.Tracer
	logger      *slog.Logger
	runTimeout  time.Duration
}

func NewExecutor(p persistence.Persistence, bus eventbus.EventPublisher, adapters Adapters, tracer trace.Tracer, logger *slog.Logger) *Executor {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("fluxa")
	}

	return &Executor{
		persistence: p,
		adapters:    adapters,
		eventBus:    bus,
		tracer:      tracer,
		logger:      logger.With("module", "workflow_executor"),
		runTimeout:  DefaultRunTimeout,
	}
}

// stepOutcome is the result of one executed action. A suspended outcome means
// the run state was persisted elsewhere (continuation or approval record) and
// the pipeline must stop advancing.
type stepOutcome struct {
	output    string
	status    string
	suspended bool
	reason    events.SuspensionReason
	resumeAt  *time.Time
}

// Run starts a fresh pipeline run. Seed variables come from the trigger event
// and win over the workflow's initial variables on key collisions. The run's
// outcome lands in the returned execution record, not in the error value;
// only infrastructure failures (persistence) surface as errors.
func (e *Executor) Run(ctx context.Context, workflow *models.Workflow, trigger *models.Trigger, seed models.VariableContext) (*models.ExecutionRecord, error) {
	vars := models.NewVariableContext(workflow.Variables)
	for key, value := range seed {
		vars.Set(key, value)
	}

	record := &models.ExecutionRecord{
		ID:            generateRunID(),
		WorkflowID:    workflow.ID,
		TriggerUserID: vars.Get("trigger_user_id"),
		Status:        models.RunStatusRunning,
		StartedAt:     time.Now().UTC(),
	}

	if err := e.persistence.ExecutionRepository().Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create execution record: %w", err)
	}

	triggerID := ""
	if trigger != nil {
		triggerID = trigger.ID
	}

	e.publish(ctx, workflow.ID, events.RunStarted{
		BaseEvent: events.NewBaseEvent(events.RunStartedEvent, workflow.ID),
		RunID:     record.ID,
		TriggerID: triggerID,
	})

	e.advance(ctx, workflow, record, vars, 0)

	return record, nil
}

// Resume re-enters a suspended run at the given action index, used by the
// resumer for due delay continuations.
func (e *Executor) Resume(ctx context.Context, workflow *models.Workflow, runID string, vars models.VariableContext, resumeIndex int) error {
	record, err := e.persistence.ExecutionRepository().GetByID(ctx, runID)
	if err != nil {
		return err
	}

	record.Status = models.RunStatusRunning

	e.publish(ctx, workflow.ID, events.RunResumed{
		BaseEvent:   events.NewBaseEvent(events.RunResumedEvent, workflow.ID),
		RunID:       record.ID,
		ResumeIndex: resumeIndex,
	})

	e.advance(ctx, workflow, record, vars, resumeIndex)

	return nil
}

// ResumeApproved executes the approval's pending action as the next single
// action, then continues the remaining pipeline.
func (e *Executor) ResumeApproved(ctx context.Context, workflow *models.Workflow, approval *models.PendingApproval) error {
	record, err := e.persistence.ExecutionRepository().GetByID(ctx, approval.RunID)
	if err != nil {
		return err
	}

	record.Status = models.RunStatusRunning
	vars := approval.Context.Clone()

	e.publish(ctx, workflow.ID, events.RunResumed{
		BaseEvent:   events.NewBaseEvent(events.RunResumedEvent, workflow.ID),
		RunID:       record.ID,
		ResumeIndex: approval.ResumeIndex,
	})

	if !e.step(ctx, workflow, record, vars, approval.PendingAction, approval.ResumeIndex-1) {
		return nil
	}

	e.advance(ctx, workflow, record, vars, approval.ResumeIndex)

	return nil
}

// ResumeDenied terminates the run after a denied or expired approval.
func (e *Executor) ResumeDenied(ctx context.Context, workflow *models.Workflow, approval *models.PendingApproval, message string) error {
	record, err := e.persistence.ExecutionRepository().GetByID(ctx, approval.RunID)
	if err != nil {
		return err
	}

	e.failRun(ctx, workflow.ID, record, message)

	return nil
}

// advance runs the top-level action list from index and finalizes the record
// unless a step suspends or fails first.
func (e *Executor) advance(ctx context.Context, workflow *models.Workflow, record *models.ExecutionRecord, vars models.VariableContext, index int) {
	ctx, cancel := context.WithTimeout(ctx, e.runTimeout)
	defer cancel()

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.run",
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.RunIDKey, record.ID),
	)
	defer span.End()

	for i := index; i < len(workflow.Actions); i++ {
		if !e.step(ctx, workflow, record, vars, workflow.Actions[i], i) {
			return
		}
	}

	record.Finalize(models.RunStatusSucceeded, "")

	// The run deadline may have expired on the last step; the terminal
	// record still has to land.
	saveCtx := context.WithoutCancel(ctx)

	if err := e.persistence.ExecutionRepository().Save(saveCtx, record); err != nil {
		e.logger.ErrorContext(ctx, "Failed to save execution record", "run_id", record.ID, "error", err)
	}

	e.publish(saveCtx, workflow.ID, events.RunSucceeded{
		BaseEvent: events.NewBaseEvent(events.RunSucceededEvent, workflow.ID),
		RunID:     record.ID,
		Steps:     len(record.Steps),
		Duration:  time.Since(record.StartedAt),
	})
}

// step executes one action and appends its log entry. It returns false when
// the run must stop advancing, having already persisted the record.
func (e *Executor) step(ctx context.Context, workflow *models.Workflow, record *models.ExecutionRecord, vars models.VariableContext, action *models.Action, index int) bool {
	logger := e.logger.With("workflow_id", workflow.ID, "run_id", record.ID,
		"action_id", action.ID, "action_kind", action.Kind)

	outcome, err := e.executeAction(ctx, workflow, record, vars, action, index)
	if err != nil {
		logger.ErrorContext(ctx, "Action failed", "error", err)
		record.AppendStep(models.StepLog{
			ActionID: action.ID,
			Kind:     action.Kind,
			Status:   "failed",
			Message:  err.Error(),
		})
		e.failRun(ctx, workflow.ID, record, err.Error())

		return false
	}

	if action.OutputVariable != "" && !outcome.suspended {
		vars.Set(action.OutputVariable, outcome.output)
	}

	status := outcome.status
	if status == "" {
		status = "succeeded"
	}

	record.AppendStep(models.StepLog{
		ActionID: action.ID,
		Kind:     action.Kind,
		Status:   status,
		Output:   outcome.output,
	})

	if outcome.suspended {
		if err := e.persistence.ExecutionRepository().Save(ctx, record); err != nil {
			logger.ErrorContext(ctx, "Failed to save suspended run", "error", err)
		}

		e.publish(ctx, workflow.ID, events.RunSuspended{
			BaseEvent: events.NewBaseEvent(events.RunSuspendedEvent, workflow.ID),
			RunID:     record.ID,
			Reason:    outcome.reason,
			ResumeAt:  outcome.resumeAt,
		})

		return false
	}

	return true
}

func (e *Executor) failRun(ctx context.Context, workflowID string, record *models.ExecutionRecord, message string) {
	record.Finalize(models.RunStatusFailed, message)

	// The run often fails because ctx was cancelled or timed out; the
	// failure record must be written regardless.
	saveCtx := context.WithoutCancel(ctx)

	if err := e.persistence.ExecutionRepository().Save(saveCtx, record); err != nil {
		e.logger.ErrorContext(ctx, "Failed to save execution record", "run_id", record.ID, "error", err)
	}

	e.publish(saveCtx, workflowID, events.RunFailed{
		BaseEvent: events.NewBaseEvent(events.RunFailedEvent, workflowID),
		RunID:     record.ID,
		Error:     message,
		Duration:  time.Since(record.StartedAt),
	})
}

func (e *Executor) executeAction(ctx context.Context, workflow *models.Workflow, record *models.ExecutionRecord, vars models.VariableContext, action *models.Action, index int) (stepOutcome, error) {
	if err := ctx.Err(); err != nil {
		return stepOutcome{}, fmt.Errorf("run aborted: %w", err)
	}

	switch action.Kind {
	case models.ActionKindAIAnalyze, models.ActionKindAITranslate, models.ActionKindAISummarize,
		models.ActionKindAIExtractKeywords, models.ActionKindAISentiment, models.ActionKindAIGenerateResponse:
		return e.executeAI(ctx, vars, action)
	case models.ActionKindSendEmail:
		if e.adapters.Email == nil {
			return stepOutcome{}, errors.New("email adapter not configured")
		}

		to := template.Resolve(action.Email.To, vars)
		subject := template.Resolve(action.Email.Subject, vars)
		body := template.Resolve(action.Email.Body, vars)

		if err := e.adapters.Email.Send(ctx, to, subject, body); err != nil {
			return stepOutcome{}, fmt.Errorf("send email to %s: %w", to, err)
		}

		return stepOutcome{output: "sent to " + to}, nil
	case models.ActionKindReplyEmail:
		if e.adapters.Email == nil {
			return stepOutcome{}, errors.New("email adapter not configured")
		}

		messageID := vars.Get(action.Email.MessageIDVar)
		if messageID == "" {
			return stepOutcome{}, fmt.Errorf("reply email: variable %q holds no message id", action.Email.MessageIDVar)
		}

		body := template.Resolve(action.Email.Body, vars)

		if err := e.adapters.Email.Reply(ctx, messageID, body); err != nil {
			return stepOutcome{}, fmt.Errorf("reply to %s: %w", messageID, err)
		}

		return stepOutcome{output: "replied to " + messageID}, nil
	case models.ActionKindSendChatMessage:
		if e.adapters.Chat == nil {
			return stepOutcome{}, errors.New("chat adapter not configured")
		}

		chatID := template.Resolve(action.Chat.ChatID, vars)
		text := template.Resolve(action.Chat.Text, vars)

		if err := e.adapters.Chat.SendMessage(ctx, chatID, text); err != nil {
			return stepOutcome{}, fmt.Errorf("send chat message to %s: %w", chatID, err)
		}

		return stepOutcome{output: "sent to " + chatID}, nil
	case models.ActionKindBroadcast:
		return e.executeBroadcast(ctx, vars, action.Broadcast)
	case models.ActionKindConditional:
		return e.executeConditional(ctx, workflow, record, vars, action, index)
	case models.ActionKindDelay:
		return e.suspendDelay(ctx, workflow, record, vars, action, index)
	case models.ActionKindRequireApproval:
		return e.suspendApproval(ctx, workflow, record, vars, action, index)
	default:
		return stepOutcome{}, fmt.Errorf("unknown action kind: %q", action.Kind)
	}
}

func (e *Executor) executeAI(ctx context.Context, vars models.VariableContext, action *models.Action) (stepOutcome, error) {
	if e.adapters.Engine == nil {
		return stepOutcome{}, errors.New("inference engine not configured")
	}

	input := template.Resolve(action.AI.Input, vars)
	prompt := buildPrompt(action.Kind, input, action.AI, vars)

	stream, err := e.adapters.Engine.GenerateText(ctx, prompt)
	if err != nil {
		if errors.Is(err, protocol.ErrResourceExhausted) {
			return stepOutcome{}, fmt.Errorf("%w: use a smaller model", err)
		}

		return stepOutcome{}, fmt.Errorf("inference failed: %w", err)
	}

	output, err := e.collectStream(ctx, stream)
	if err != nil {
		return stepOutcome{}, fmt.Errorf("inference failed: %w", err)
	}

	return stepOutcome{output: output}, nil
}

// collectStream drains a generation stream. When the context ends first it
// cancels the engine and returns the context error rather than leaking the
// producing goroutine.
func (e *Executor) collectStream(ctx context.Context, stream <-chan protocol.GenerationChunk) (string, error) {
	var builder strings.Builder

	for {
		select {
		case chunk, ok := <-stream:
			if !ok {
				return builder.String(), nil
			}

			if chunk.Err != nil {
				return "", chunk.Err
			}

			builder.WriteString(chunk.Text)
		case <-ctx.Done():
			e.adapters.Engine.Cancel()

			return "", ctx.Err()
		}
	}
}

// executeBroadcast fans content out per (user, platform). One failed target
// never aborts the rest; failures are aggregated into the step output and the
// action only fails when no target was reached.
func (e *Executor) executeBroadcast(ctx context.Context, vars models.VariableContext, broadcast *models.BroadcastAction) (stepOutcome, error) {
	content := template.Resolve(broadcast.Content, vars)

	var failures []string

	delivered := 0
	total := len(broadcast.TargetUserIDs) * len(broadcast.Platforms)

	for _, userID := range broadcast.TargetUserIDs {
		for _, platform := range broadcast.Platforms {
			var err error

			switch {
			case platform == "email" && e.adapters.Email == nil:
				err = errors.New("email adapter not configured")
			case platform == "email":
				err = e.adapters.Email.Send(ctx, userID, "Broadcast", content)
			case e.adapters.Chat == nil:
				err = errors.New("chat adapter not configured")
			default:
				err = e.adapters.Chat.SendMessage(ctx, userID, content)
			}

			if err != nil {
				failures = append(failures, fmt.Sprintf("%s/%s: %v", userID, platform, err))

				continue
			}

			delivered++
		}
	}

	if delivered == 0 && total > 0 {
		return stepOutcome{}, fmt.Errorf("broadcast reached no targets: %s", strings.Join(failures, "; "))
	}

	output := fmt.Sprintf("delivered %d/%d", delivered, total)
	if len(failures) > 0 {
		output += " (failed: " + strings.Join(failures, "; ") + ")"
	}

	return stepOutcome{output: output}, nil
}

// executeConditional evaluates the condition and folds exactly one branch
// inline. A missing branch is a no-op, not an error.
func (e *Executor) executeConditional(ctx context.Context, workflow *models.Workflow, record *models.ExecutionRecord, vars models.VariableContext, action *models.Action, index int) (stepOutcome, error) {
	matched, err := action.Conditional.Condition.Evaluate(vars)
	if err != nil {
		return stepOutcome{}, fmt.Errorf("condition evaluation: %w", err)
	}

	branch := action.Conditional.FalseAction
	if matched {
		branch = action.Conditional.TrueAction
	}

	if branch == nil {
		return stepOutcome{output: fmt.Sprintf("condition %t, no branch", matched), status: "skipped"}, nil
	}

	outcome, err := e.executeAction(ctx, workflow, record, vars, branch, index)
	if err != nil {
		return stepOutcome{}, err
	}

	if branch.OutputVariable != "" && !outcome.suspended {
		vars.Set(branch.OutputVariable, outcome.output)
	}

	return outcome, nil
}

// suspendDelay persists a continuation instead of sleeping, so the pending
// delay survives a process restart.
func (e *Executor) suspendDelay(ctx context.Context, workflow *models.Workflow, record *models.ExecutionRecord, vars models.VariableContext, action *models.Action, index int) (stepOutcome, error) {
	now := time.Now().UTC()
	resumeAt := now.Add(time.Duration(action.Delay.Minutes) * time.Minute)

	continuation := &models.Continuation{
		ID:          uuid.New().String(),
		WorkflowID:  workflow.ID,
		RunID:       record.ID,
		ResumeIndex: index + 1,
		Context:     vars.Clone(),
		ResumeAt:    resumeAt,
		CreatedAt:   now,
	}

	if err := e.persistence.ContinuationRepository().Save(ctx, continuation); err != nil {
		return stepOutcome{}, fmt.Errorf("failed to persist delay continuation: %w", err)
	}

	return stepOutcome{
		output:    fmt.Sprintf("resuming at %s", resumeAt.Format(time.RFC3339)),
		status:    "suspended",
		suspended: true,
		reason:    events.SuspensionReasonDelay,
		resumeAt:  &resumeAt,
	}, nil
}

// suspendApproval persists the pending-approval record and halts the run in
// the awaiting_approval sub-state.
func (e *Executor) suspendApproval(ctx context.Context, workflow *models.Workflow, record *models.ExecutionRecord, vars models.VariableContext, action *models.Action, index int) (stepOutcome, error) {
	now := time.Now().UTC()
	deadline := now.Add(time.Duration(action.Approval.TimeoutMinutes) * time.Minute)

	approval := &models.PendingApproval{
		ID:             uuid.New().String(),
		WorkflowID:     workflow.ID,
		RunID:          record.ID,
		ApproverUserID: action.Approval.ApproverUserID,
		PendingAction:  action.Approval.PendingAction,
		ResumeIndex:    index + 1,
		Context:        vars.Clone(),
		Deadline:       deadline,
		Status:         models.ApprovalStatusPending,
		CreatedAt:      now,
	}

	if err := e.persistence.ApprovalRepository().Save(ctx, approval); err != nil {
		return stepOutcome{}, fmt.Errorf("failed to persist pending approval: %w", err)
	}

	record.Status = models.RunStatusAwaitingApproval

	return stepOutcome{
		output:    "awaiting approval from " + action.Approval.ApproverUserID,
		status:    "suspended",
		suspended: true,
		reason:    events.SuspensionReasonApproval,
		resumeAt:  &deadline,
	}, nil
}

func (e *Executor) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.eventBus == nil {
		return
	}

	if err := e.eventBus.Publish(ctx, key, event); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func buildPrompt(kind models.ActionKind, input string, ai *models.AIAction, vars models.VariableContext) string {
	if ai.Prompt != "" {
		return template.Resolve(ai.Prompt, vars) + "\n\n" + input
	}

	switch kind {
	case models.ActionKindAIAnalyze:
		return "Analyze the following content and describe its key points:\n\n" + input
	case models.ActionKindAITranslate:
		language := ai.TargetLanguage
		if language == "" {
			language = "English"
		}

		return "Translate the following text to " + language + ":\n\n" + input
	case models.ActionKindAISummarize:
		return "Summarize the following content in a few sentences:\n\n" + input
	case models.ActionKindAIExtractKeywords:
		return "Extract the most relevant keywords from the following content, comma separated:\n\n" + input
	case models.ActionKindAISentiment:
		return "Classify the sentiment of the following content as positive, negative, or neutral. Answer with the single word only:\n\n" + input
	case models.ActionKindAIGenerateResponse:
		return "Write an appropriate response to the following message:\n\n" + input
	default:
		return input
	}
}

func generateRunID() string {
	return "run-" + uuid.New().String()[:8]
}
