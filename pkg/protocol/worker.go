package protocol

import (
	"context"

	"github.com/fluxa-io/fluxa/pkg/models"
)

// TaskHandler executes one background task and returns its result string.
// Returning protocol.ErrResourceExhausted (wrapped or not) fails the task
// terminally; any other error re-queues it until the retry budget runs out.
type TaskHandler func(ctx context.Context, task *models.BackgroundTask) (string, error)

// TriggerCallback is invoked by the evaluator once per fired (workflow,
// trigger) pair, with the seed variable context built from the trigger event.
type TriggerCallback func(ctx context.Context, workflow *models.Workflow, trigger *models.Trigger, vars models.VariableContext)
