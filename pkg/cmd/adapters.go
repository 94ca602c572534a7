package cmd

import (
	"log/slog"
	"os"
	"path/filepath"
	"plugin"

	"github.com/fluxa-io/fluxa/pkg/protocol"
	"github.com/fluxa-io/fluxa/pkg/workflow"
)

// Adapters bundles the platform collaborators a binary may wire: the mail
// client, the chat client, the on-device inference engine, and the OS
// geofencing subsystem.
type Adapters struct {
	Email     protocol.EmailAdapter
	Chat      protocol.ChatAdapter
	Engine    protocol.InferenceEngine
	Geofencer protocol.Geofencer
}

// Workflow narrows the set to the adapters the action executor dispatches to.
func (a Adapters) Workflow() workflow.Adapters {
	return workflow.Adapters{Email: a.Email, Chat: a.Chat, Engine: a.Engine}
}

// LoadAdapters loads platform adapter plugins from adaptersPath. Each adapter
// is a Go plugin named after its concern (email.so, chat.so, engine.so,
// geofencer.so) exporting the matching symbol. A missing plugin leaves its
// slot nil: triggers for that source are not polled and actions that need it
// fail at run time.
func LoadAdapters(logger *slog.Logger, adaptersPath string) Adapters {
	l := logger.With("module", "adapter_loader", "path", adaptersPath)

	return Adapters{
		Email:     loadAdapter[protocol.EmailAdapter](l, adaptersPath, "email", "EmailAdapter"),
		Chat:      loadAdapter[protocol.ChatAdapter](l, adaptersPath, "chat", "ChatAdapter"),
		Engine:    loadAdapter[protocol.InferenceEngine](l, adaptersPath, "engine", "InferenceEngine"),
		Geofencer: loadAdapter[protocol.Geofencer](l, adaptersPath, "geofencer", "Geofencer"),
	}
}

func loadAdapter[T any](logger *slog.Logger, adaptersPath, name, symbolName string) T {
	var zero T

	path := filepath.Join(adaptersPath, name+".so")
	if _, err := os.Stat(path); err != nil {
		logger.Info("Adapter plugin not present, slot stays unconfigured", "adapter", name)

		return zero
	}

	plg, err := plugin.Open(path)
	if err != nil {
		panic(err)
	}

	symbol, err := plg.Lookup(symbolName)
	if err != nil {
		panic(err)
	}

	// Plugins export either the value itself or a package-level variable,
	// which Lookup surfaces as a pointer.
	if cast, ok := symbol.(T); ok {
		logger.Info("Loaded adapter plugin", "adapter", name)

		return cast
	}

	if ptr, ok := symbol.(*T); ok {
		logger.Info("Loaded adapter plugin", "adapter", name)

		return *ptr
	}

	panic("adapter plugin " + name + " does not implement " + symbolName)
}
