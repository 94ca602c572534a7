// Package mocks provides testify mocks for the protocol interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/fluxa-io/fluxa/pkg/protocol"
)

// MockEmailAdapter is a mock implementation of protocol.EmailAdapter.
type MockEmailAdapter struct {
	mock.Mock
}

func (m *MockEmailAdapter) ListNew(ctx context.Context, checkpoint string) ([]protocol.EmailEvent, error) {
	args := m.Called(ctx, checkpoint)

	events, _ := args.Get(0).([]protocol.EmailEvent)

	return events, args.Error(1)
}

func (m *MockEmailAdapter) Send(ctx context.Context, to, subject, body string) error {
	args := m.Called(ctx, to, subject, body)

	return args.Error(0)
}

func (m *MockEmailAdapter) Reply(ctx context.Context, messageID, body string) error {
	args := m.Called(ctx, messageID, body)

	return args.Error(0)
}

// MockChatAdapter is a mock implementation of protocol.ChatAdapter.
type MockChatAdapter struct {
	mock.Mock
}

func (m *MockChatAdapter) PollUpdates(ctx context.Context, offset string) ([]protocol.ChatEvent, error) {
	args := m.Called(ctx, offset)

	events, _ := args.Get(0).([]protocol.ChatEvent)

	return events, args.Error(1)
}

func (m *MockChatAdapter) SendMessage(ctx context.Context, chatID, text string) error {
	args := m.Called(ctx, chatID, text)

	return args.Error(0)
}

// MockGeofencer is a mock implementation of protocol.Geofencer.
type MockGeofencer struct {
	mock.Mock
}

func (m *MockGeofencer) RegisterRegions(ctx context.Context, regions []protocol.GeofenceRegion) error {
	args := m.Called(ctx, regions)

	return args.Error(0)
}

func (m *MockGeofencer) SetTransitionCallback(callback protocol.TransitionCallback) {
	m.Called(callback)
}
