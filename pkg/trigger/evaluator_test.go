package trigger_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fluxa-io/fluxa/pkg/mocks"
	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/fluxa-io/fluxa/pkg/persistence"
	"github.com/fluxa-io/fluxa/pkg/persistence/file"
	"github.com/fluxa-io/fluxa/pkg/protocol"
	"github.com/fluxa-io/fluxa/pkg/trigger"
)

type fire struct {
	workflowID string
	triggerID  string
	vars       models.VariableContext
}

// fireRecorder captures dispatched fires. When gate is set, the callback
// blocks until the gate closes, which keeps the workflow's inflight slot held.
type fireRecorder struct {
	mu    sync.Mutex
	gate  chan struct{}
	fires []fire
}

func (r *fireRecorder) callback(_ context.Context, wf *models.Workflow, tr *models.Trigger, vars models.VariableContext) {
	r.mu.Lock()
	r.fires = append(r.fires, fire{workflowID: wf.ID, triggerID: tr.ID, vars: vars.Clone()})
	gate := r.gate
	r.mu.Unlock()

	if gate != nil {
		<-gate
	}
}

func (r *fireRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.fires)
}

func (r *fireRecorder) all() []fire {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]fire(nil), r.fires...)
}

func newEvaluator(t *testing.T, sources trigger.Sources, rec *fireRecorder) (*trigger.Evaluator, persistence.Persistence) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return trigger.NewEvaluator(store, sources, rec.callback, nil, logger), store
}

func triggeredWorkflow(id string, tr *models.Trigger) *models.Workflow {
	return &models.Workflow{
		ID:       id,
		Name:     "Workflow " + id,
		Owner:    "user-1",
		Type:     models.WorkflowTypePersonal,
		Triggers: []*models.Trigger{tr},
		Actions: []*models.Action{
			{ID: "a1", Kind: models.ActionKindSendChatMessage, Chat: &models.ChatAction{ChatID: "chat-1", Text: "hi"}},
		},
		IsEnabled: true,
	}
}

func TestEvaluator_EmailEventFiresAtMostOnceAcrossPolls(t *testing.T) {
	rec := &fireRecorder{}
	email := &mocks.MockEmailAdapter{}
	evaluator, store := newEvaluator(t, trigger.Sources{Email: email}, rec)
	ctx := context.Background()

	wf := triggeredWorkflow("wf-1", &models.Trigger{
		ID:    "t1",
		Kind:  models.TriggerKindEmailReceived,
		Email: &models.EmailTrigger{FromFilter: "boss@corp"},
	})
	require.NoError(t, store.WorkflowRepository().Save(ctx, wf))

	now := time.Now().UTC()
	ev := protocol.EmailEvent{ID: "m-1", From: "boss@corp.example", Subject: "Q3", Body: "numbers", Timestamp: now}

	email.On("ListNew", mock.Anything, "").Return([]protocol.EmailEvent{ev}, nil).Once()
	// The provider re-delivers the same event on the next poll.
	email.On("ListNew", mock.Anything, "m-1").Return([]protocol.EmailEvent{ev}, nil).Once()

	evaluator.Cycle(ctx, now)
	evaluator.Wait()
	evaluator.Cycle(ctx, now.Add(30*time.Second))
	evaluator.Wait()

	require.Equal(t, 1, rec.count())
	assert.Equal(t, "wf-1", rec.all()[0].workflowID)
	assert.Equal(t, "Q3", rec.all()[0].vars.Get("email_subject"))
	assert.Equal(t, "boss@corp.example", rec.all()[0].vars.Get("trigger_user_id"))

	seen, err := store.ProcessedEventRepository().IsProcessed(ctx, "m-1", "wf-1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestEvaluator_EmailFiltersAreSubstringMatches(t *testing.T) {
	rec := &fireRecorder{}
	email := &mocks.MockEmailAdapter{}
	evaluator, store := newEvaluator(t, trigger.Sources{Email: email}, rec)
	ctx := context.Background()

	wf := triggeredWorkflow("wf-1", &models.Trigger{
		ID:    "t1",
		Kind:  models.TriggerKindEmailReceived,
		Email: &models.EmailTrigger{SubjectFilter: "urgent"},
	})
	require.NoError(t, store.WorkflowRepository().Save(ctx, wf))

	now := time.Now().UTC()
	email.On("ListNew", mock.Anything, "").Return([]protocol.EmailEvent{
		{ID: "m-1", From: "ops@corp", Subject: "URGENT: server down", Timestamp: now},
		{ID: "m-2", From: "news@corp", Subject: "weekly digest", Timestamp: now},
	}, nil).Once()

	evaluator.Cycle(ctx, now)
	evaluator.Wait()

	require.Equal(t, 1, rec.count())
	assert.Equal(t, "m-1", rec.all()[0].vars.Get("email_id"))

	checkpoint, err := store.TriggerStateRepository().Checkpoint(ctx, "email")
	require.NoError(t, err)
	assert.Equal(t, "m-2", checkpoint)
}

func TestEvaluator_DailyScheduleFiresWithinToleranceOncePerDay(t *testing.T) {
	rec := &fireRecorder{}
	evaluator, store := newEvaluator(t, trigger.Sources{}, rec)
	ctx := context.Background()

	wf := triggeredWorkflow("wf-1", &models.Trigger{
		ID:       "t1",
		Kind:     models.TriggerKindTimeSchedule,
		Schedule: &models.TimeSchedule{ScheduleType: models.ScheduleTypeDaily, TimeOfDay: "09:30"},
	})
	require.NoError(t, store.WorkflowRepository().Save(ctx, wf))

	day := time.Date(2026, 3, 4, 9, 31, 0, 0, time.UTC)

	evaluator.Cycle(ctx, day)
	evaluator.Wait()
	require.Equal(t, 1, rec.count())
	assert.Equal(t, day.Format(time.RFC3339), rec.all()[0].vars.Get("trigger_timestamp"))
	assert.Equal(t, "user-1", rec.all()[0].vars.Get("trigger_user_id"))

	// Same day again: the last-fired marker blocks a second fire.
	evaluator.Cycle(ctx, day.Add(30*time.Second))
	evaluator.Wait()
	assert.Equal(t, 1, rec.count())

	// Next day within tolerance fires again.
	evaluator.Cycle(ctx, day.Add(24*time.Hour))
	evaluator.Wait()
	assert.Equal(t, 2, rec.count())
}

func TestEvaluator_DailyScheduleOutsideToleranceDoesNotFire(t *testing.T) {
	rec := &fireRecorder{}
	evaluator, store := newEvaluator(t, trigger.Sources{}, rec)
	ctx := context.Background()

	wf := triggeredWorkflow("wf-1", &models.Trigger{
		ID:       "t1",
		Kind:     models.TriggerKindTimeSchedule,
		Schedule: &models.TimeSchedule{ScheduleType: models.ScheduleTypeDaily, TimeOfDay: "09:30"},
	})
	require.NoError(t, store.WorkflowRepository().Save(ctx, wf))

	evaluator.Cycle(ctx, time.Date(2026, 3, 4, 9, 32, 0, 0, time.UTC))
	evaluator.Wait()

	assert.Equal(t, 0, rec.count())
}

func TestEvaluator_ChatCommandMatchesLeadingToken(t *testing.T) {
	rec := &fireRecorder{}
	chat := &mocks.MockChatAdapter{}
	evaluator, store := newEvaluator(t, trigger.Sources{Chat: chat}, rec)
	ctx := context.Background()

	wf := triggeredWorkflow("wf-1", &models.Trigger{
		ID:          "t1",
		Kind:        models.TriggerKindChatCommand,
		ChatCommand: &models.ChatCommandTrigger{Command: "/summarize"},
	})
	require.NoError(t, store.WorkflowRepository().Save(ctx, wf))

	now := time.Now().UTC()
	chat.On("PollUpdates", mock.Anything, "").Return([]protocol.ChatEvent{
		{ID: "u-1", ChatID: "c-1", From: "user-1", Text: "/summarize today", Timestamp: now},
		{ID: "u-2", ChatID: "c-1", From: "user-1", Text: "/summarizeall", Timestamp: now},
	}, nil).Once()

	evaluator.Cycle(ctx, now)
	evaluator.Wait()

	require.Equal(t, 1, rec.count())
	assert.Equal(t, "/summarize today", rec.all()[0].vars.Get("chat_text"))

	offset, err := store.TriggerStateRepository().Checkpoint(ctx, "chat")
	require.NoError(t, err)
	assert.Equal(t, "u-2", offset)
}

func TestEvaluator_ChatMessageMatchesSubstring(t *testing.T) {
	rec := &fireRecorder{}
	chat := &mocks.MockChatAdapter{}
	evaluator, store := newEvaluator(t, trigger.Sources{Chat: chat}, rec)
	ctx := context.Background()

	wf := triggeredWorkflow("wf-1", &models.Trigger{
		ID:          "t1",
		Kind:        models.TriggerKindChatMessage,
		ChatMessage: &models.ChatMessageTrigger{MatchCondition: "lunch"},
	})
	require.NoError(t, store.WorkflowRepository().Save(ctx, wf))

	now := time.Now().UTC()
	chat.On("PollUpdates", mock.Anything, "").Return([]protocol.ChatEvent{
		{ID: "u-1", ChatID: "c-1", From: "user-2", Text: "anyone up for Lunch?", Timestamp: now},
	}, nil).Once()

	evaluator.Cycle(ctx, now)
	evaluator.Wait()

	require.Equal(t, 1, rec.count())
	assert.Equal(t, "user-2", rec.all()[0].vars.Get("trigger_user_id"))
}

func TestEvaluator_AdapterFailureSkipsCycleNotFatal(t *testing.T) {
	rec := &fireRecorder{}
	email := &mocks.MockEmailAdapter{}
	evaluator, store := newEvaluator(t, trigger.Sources{Email: email}, rec)
	ctx := context.Background()

	wf := triggeredWorkflow("wf-1", &models.Trigger{
		ID:    "t1",
		Kind:  models.TriggerKindEmailReceived,
		Email: &models.EmailTrigger{},
	})
	require.NoError(t, store.WorkflowRepository().Save(ctx, wf))

	now := time.Now().UTC()
	email.On("ListNew", mock.Anything, "").Return(nil, assert.AnError).Once()
	email.On("ListNew", mock.Anything, "").Return([]protocol.EmailEvent{
		{ID: "m-1", From: "a@b", Subject: "s", Timestamp: now},
	}, nil).Once()

	evaluator.Cycle(ctx, now)
	evaluator.Wait()
	assert.Equal(t, 0, rec.count())

	// The checkpoint did not move, so the next cycle retries from scratch.
	evaluator.Cycle(ctx, now.Add(30*time.Second))
	evaluator.Wait()
	assert.Equal(t, 1, rec.count())
}

func TestEvaluator_BusyWorkflowDefersEventUnmarked(t *testing.T) {
	gate := make(chan struct{})
	rec := &fireRecorder{gate: gate}
	email := &mocks.MockEmailAdapter{}
	evaluator, store := newEvaluator(t, trigger.Sources{Email: email}, rec)
	ctx := context.Background()

	wf := triggeredWorkflow("wf-1", &models.Trigger{
		ID:    "t1",
		Kind:  models.TriggerKindEmailReceived,
		Email: &models.EmailTrigger{},
	})
	require.NoError(t, store.WorkflowRepository().Save(ctx, wf))

	now := time.Now().UTC()
	email.On("ListNew", mock.Anything, "").Return([]protocol.EmailEvent{
		{ID: "m-1", From: "a@b", Subject: "first", Timestamp: now},
	}, nil).Once()
	email.On("ListNew", mock.Anything, "m-1").Return([]protocol.EmailEvent{
		{ID: "m-2", From: "a@b", Subject: "second", Timestamp: now},
	}, nil).Once()
	// The provider re-delivers m-2 after the checkpoint moved past it.
	email.On("ListNew", mock.Anything, "m-2").Return([]protocol.EmailEvent{
		{ID: "m-2", From: "a@b", Subject: "second", Timestamp: now},
	}, nil).Once()

	evaluator.Cycle(ctx, now)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 10*time.Millisecond)

	// The first run still holds the workflow's slot, so m-2 is deferred and
	// stays unmarked.
	evaluator.Cycle(ctx, now.Add(30*time.Second))

	seen, err := store.ProcessedEventRepository().IsProcessed(ctx, "m-2", "wf-1")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Equal(t, 1, rec.count())

	close(gate)
	evaluator.Wait()

	// Once the slot frees up, a re-delivered m-2 fires.
	evaluator.Cycle(ctx, now.Add(time.Minute))
	evaluator.Wait()
	assert.Equal(t, 2, rec.count())
}

func TestEvaluator_GeofenceTransitionFiresMatchingPairs(t *testing.T) {
	rec := &fireRecorder{}
	evaluator, store := newEvaluator(t, trigger.Sources{}, rec)
	ctx := context.Background()

	enter := triggeredWorkflow("wf-enter", &models.Trigger{
		ID:       "t1",
		Kind:     models.TriggerKindGeofenceEnter,
		Geofence: &models.GeofenceTrigger{GeofenceID: "geo-home", RadiusMeters: 100, PlaceID: "home"},
	})
	exit := triggeredWorkflow("wf-exit", &models.Trigger{
		ID:       "t1",
		Kind:     models.TriggerKindGeofenceExit,
		Geofence: &models.GeofenceTrigger{GeofenceID: "geo-home", RadiusMeters: 100},
	})
	require.NoError(t, store.WorkflowRepository().Save(ctx, enter))
	require.NoError(t, store.WorkflowRepository().Save(ctx, exit))

	evaluator.HandleTransition(ctx, "geo-home", models.TriggerKindGeofenceEnter)
	evaluator.Wait()

	require.Equal(t, 1, rec.count())
	assert.Equal(t, "wf-enter", rec.all()[0].workflowID)
	assert.Equal(t, "geofence_enter", rec.all()[0].vars.Get("transition"))
	assert.Equal(t, "home", rec.all()[0].vars.Get("place_id"))
}

func TestEvaluator_SyncRegistrationsAggregatesTransitionMask(t *testing.T) {
	rec := &fireRecorder{}
	geofencer := &mocks.MockGeofencer{}
	evaluator, store := newEvaluator(t, trigger.Sources{Geofencer: geofencer}, rec)
	ctx := context.Background()

	home := triggeredWorkflow("wf-1", &models.Trigger{
		ID:       "t1",
		Kind:     models.TriggerKindGeofenceEnter,
		Geofence: &models.GeofenceTrigger{GeofenceID: "geo-home", Latitude: 1, Longitude: 2, RadiusMeters: 100},
	})
	homeExit := triggeredWorkflow("wf-2", &models.Trigger{
		ID:       "t1",
		Kind:     models.TriggerKindGeofenceExit,
		Geofence: &models.GeofenceTrigger{GeofenceID: "geo-home", Latitude: 1, Longitude: 2, RadiusMeters: 100},
	})
	office := triggeredWorkflow("wf-3", &models.Trigger{
		ID:       "t1",
		Kind:     models.TriggerKindGeofenceDwell,
		Geofence: &models.GeofenceTrigger{GeofenceID: "geo-office", Latitude: 3, Longitude: 4, RadiusMeters: 50},
	})
	require.NoError(t, store.WorkflowRepository().Save(ctx, home))
	require.NoError(t, store.WorkflowRepository().Save(ctx, homeExit))
	require.NoError(t, store.WorkflowRepository().Save(ctx, office))

	geofencer.On("RegisterRegions", mock.Anything, mock.MatchedBy(func(regions []protocol.GeofenceRegion) bool {
		if len(regions) != 2 {
			return false
		}

		return regions[0].ID == "geo-home" && len(regions[0].TransitionMask) == 2 &&
			regions[1].ID == "geo-office" && len(regions[1].TransitionMask) == 1
	})).Return(nil).Once()

	require.NoError(t, evaluator.SyncRegistrations(ctx))
	geofencer.AssertExpectations(t)
}
