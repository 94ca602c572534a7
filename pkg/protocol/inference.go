package protocol

import (
	"context"
	"errors"
)

// ErrResourceExhausted means the requested model cannot be loaded within the
// device memory limits. Callers surface it with a remediation message instead
// of retrying.
var ErrResourceExhausted = errors.New("model does not fit in available memory")

// GenerationChunk is one streamed piece of model output. Err, when set, is
// the terminal condition of the stream; no further chunks follow it.
type GenerationChunk struct {
	Text string
	Err  error
}

// InferenceEngine wraps the on-device language model. Generate calls return a
// channel the engine closes when generation finishes; consumers that stop
// reading must call Cancel so the engine abandons the stream cooperatively.
type InferenceEngine interface {
	Load(ctx context.Context, modelPath string) error
	GenerateText(ctx context.Context, prompt string) (<-chan GenerationChunk, error)
	GenerateMultimodal(ctx context.Context, prompt string, image []byte) (<-chan GenerationChunk, error)
	Cancel()
}
