// Package protocol defines the contracts for the external collaborators the
// engine consumes: email and chat providers, the on-device inference engine,
// and the OS geofencing subsystem. Implementations live outside this module;
// tests use the generated mocks in pkg/mocks.
package protocol

import (
	"context"
	"time"
)

// EmailEvent is one received email as reported by the provider. ID is stable
// across polls and is the deduplication key together with the workflow id.
type EmailEvent struct {
	ID        string
	From      string
	Subject   string
	Body      string
	Timestamp time.Time
}

// EmailAdapter wraps the email provider client. ListNew returns events newer
// than the given checkpoint in arrival order; the empty checkpoint means
// everything available. The evaluator persists the checkpoint between cycles.
type EmailAdapter interface {
	ListNew(ctx context.Context, checkpoint string) ([]EmailEvent, error)
	Send(ctx context.Context, to, subject, body string) error
	Reply(ctx context.Context, messageID, body string) error
}
