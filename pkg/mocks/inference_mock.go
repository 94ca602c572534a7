package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/fluxa-io/fluxa/pkg/protocol"
)

// MockInferenceEngine is a mock implementation of protocol.InferenceEngine.
type MockInferenceEngine struct {
	mock.Mock
}

func (m *MockInferenceEngine) Load(ctx context.Context, modelPath string) error {
	args := m.Called(ctx, modelPath)

	return args.Error(0)
}

func (m *MockInferenceEngine) GenerateText(ctx context.Context, prompt string) (<-chan protocol.GenerationChunk, error) {
	args := m.Called(ctx, prompt)

	stream, _ := args.Get(0).(<-chan protocol.GenerationChunk)

	return stream, args.Error(1)
}

func (m *MockInferenceEngine) GenerateMultimodal(ctx context.Context, prompt string, image []byte) (<-chan protocol.GenerationChunk, error) {
	args := m.Called(ctx, prompt, image)

	stream, _ := args.Get(0).(<-chan protocol.GenerationChunk)

	return stream, args.Error(1)
}

func (m *MockInferenceEngine) Cancel() {
	m.Called()
}

// StreamChunks builds a closed generation stream from literal text chunks,
// for wiring into mock expectations.
func StreamChunks(chunks ...string) <-chan protocol.GenerationChunk {
	stream := make(chan protocol.GenerationChunk, len(chunks))

	for _, chunk := range chunks {
		stream <- protocol.GenerationChunk{Text: chunk}
	}

	close(stream)

	return stream
}

// StreamError builds a stream that fails after the given text chunks.
func StreamError(err error, chunks ...string) <-chan protocol.GenerationChunk {
	stream := make(chan protocol.GenerationChunk, len(chunks)+1)

	for _, chunk := range chunks {
		stream <- protocol.GenerationChunk{Text: chunk}
	}

	stream <- protocol.GenerationChunk{Err: err}
	close(stream)

	return stream
}
