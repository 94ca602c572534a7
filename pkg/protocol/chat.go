package protocol

import (
	"context"
	"time"
)

// ChatEvent is one incoming chat message. ID is stable across polls.
type ChatEvent struct {
	ID        string
	ChatID    string
	From      string
	Text      string
	Timestamp time.Time
}

// ChatAdapter wraps the chat-bot client. PollUpdates returns messages after
// the given offset; the returned events carry the offsets the evaluator
// checkpoints for the next cycle.
type ChatAdapter interface {
	PollUpdates(ctx context.Context, offset string) ([]ChatEvent, error)
	SendMessage(ctx context.Context, chatID, text string) error
}
