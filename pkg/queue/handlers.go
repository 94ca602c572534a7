package queue

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/fluxa-io/fluxa/pkg/protocol"
)

// NewChatGenerationHandler handles chat_generation tasks: a single prompt in
// the payload, streamed through the local model.
func NewChatGenerationHandler(engine protocol.InferenceEngine) protocol.TaskHandler {
	return func(ctx context.Context, task *models.BackgroundTask) (string, error) {
		prompt := task.Payload["prompt"]
		if prompt == "" {
			return "", errors.New("chat generation task requires a prompt payload")
		}

		stream, err := engine.GenerateText(ctx, prompt)
		if err != nil {
			return "", err
		}

		return collectStream(ctx, engine, stream)
	}
}

// NewImageAnalysisHandler handles image_analysis tasks. The image travels
// base64-encoded in the payload because task payloads are string maps.
func NewImageAnalysisHandler(engine protocol.InferenceEngine) protocol.TaskHandler {
	return func(ctx context.Context, task *models.BackgroundTask) (string, error) {
		encoded := task.Payload["image"]
		if encoded == "" {
			return "", errors.New("image analysis task requires an image payload")
		}

		image, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return "", fmt.Errorf("bad image payload: %w", err)
		}

		prompt := task.Payload["prompt"]
		if prompt == "" {
			prompt = "Describe this image."
		}

		stream, err := engine.GenerateMultimodal(ctx, prompt, image)
		if err != nil {
			return "", err
		}

		return collectStream(ctx, engine, stream)
	}
}

// collectStream drains a generation stream, cancelling the engine if the
// context ends first.
func collectStream(ctx context.Context, engine protocol.InferenceEngine, stream <-chan protocol.GenerationChunk) (string, error) {
	var out strings.Builder

	for {
		select {
		case <-ctx.Done():
			engine.Cancel()
			return "", ctx.Err()
		case chunk, ok := <-stream:
			if !ok {
				return out.String(), nil
			}

			if chunk.Err != nil {
				return "", chunk.Err
			}

			out.WriteString(chunk.Text)
		}
	}
}
