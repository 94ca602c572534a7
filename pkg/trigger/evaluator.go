// Package trigger polls the external event sources and decides which
// workflows fire. Email and chat events pass through the processed-event
// guard so each (event, workflow) pair fires at most once; time schedules use
// per-trigger last-fired markers; geofence transitions arrive asynchronously
// through HandleTransition.
package trigger

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fluxa-io/fluxa/pkg/eventbus"
	"github.com/fluxa-io/fluxa/pkg/events"
	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/fluxa-io/fluxa/pkg/persistence"
	"github.com/fluxa-io/fluxa/pkg/protocol"
)

// DefaultPollInterval is how often the evaluator runs a full cycle.
const DefaultPollInterval = 30 * time.Second

const (
	emailCheckpointSource = "email"
	chatCheckpointSource  = "chat"
)

// Sources bundles the event source adapters. Nil members disable the
// corresponding trigger kinds.
type Sources struct {
	Email     protocol.EmailAdapter
	Chat      protocol.ChatAdapter
	Geofencer protocol.Geofencer
}

type Evaluator struct {
	persistence persistence.Persistence
	sources     Sources
	callback    protocol.TriggerCallback
	eventBus    eventbus.EventPublisher
	logger      *slog.Logger
	interval    time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

func NewEvaluator(
	p persistence.Persistence,
	sources Sources,
	callback protocol.TriggerCallback,
	bus eventbus.EventPublisher,
	logger *slog.Logger,
) *Evaluator {
	return &Evaluator{
		persistence: p,
		sources:     sources,
		callback:    callback,
		eventBus:    bus,
		logger:      logger.With("module", "trigger_evaluator"),
		interval:    DefaultPollInterval,
		inflight:    make(map[string]struct{}),
	}
}

// SetInterval overrides the poll interval. Call before Start.
func (e *Evaluator) SetInterval(interval time.Duration) {
	if interval > 0 {
		e.interval = interval
	}
}

// Start registers geofence regions, installs the transition callback, and
// polls until the context is cancelled.
func (e *Evaluator) Start(ctx context.Context) {
	if e.sources.Geofencer != nil {
		e.sources.Geofencer.SetTransitionCallback(func(cbCtx context.Context, geofenceID string, kind models.TriggerKind) {
			e.HandleTransition(cbCtx, geofenceID, kind)
		})

		if err := e.SyncRegistrations(ctx); err != nil {
			e.logger.Error("Failed to register geofence regions", "error", err)
		}
	}

	e.logger.Info("Starting trigger evaluator", "interval", e.interval)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.Cycle(ctx, time.Now().UTC())

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Trigger evaluator stopping")
			return
		case now := <-ticker.C:
			e.Cycle(ctx, now.UTC())
		}
	}
}

// Wait blocks until every run dispatched by the evaluator has returned. Used
// on shutdown and by tests.
func (e *Evaluator) Wait() {
	e.wg.Wait()
}

// Cycle runs one evaluation pass over every enabled workflow. Source adapter
// failures skip that source for this cycle and are never fatal.
func (e *Evaluator) Cycle(ctx context.Context, now time.Time) {
	workflows, err := e.persistence.WorkflowRepository().ListEnabled(ctx)
	if err != nil {
		e.logger.Error("Failed to list enabled workflows", "error", err)
		return
	}

	e.evaluateSchedules(ctx, now, workflows)

	if e.sources.Email != nil {
		e.pollEmail(ctx, now, workflows)
	}

	if e.sources.Chat != nil {
		e.pollChat(ctx, now, workflows)
	}
}

func (e *Evaluator) evaluateSchedules(ctx context.Context, now time.Time, workflows []*models.Workflow) {
	states := e.persistence.TriggerStateRepository()

	for _, wf := range workflows {
		for _, tr := range wf.Triggers {
			if tr.Kind != models.TriggerKindTimeSchedule || tr.Schedule == nil {
				continue
			}

			lastFired, err := states.LastFired(ctx, wf.ID, tr.ID)
			if err != nil {
				e.logger.Error("Failed to load last-fired marker", "workflow_id", wf.ID, "trigger_id", tr.ID, "error", err)
				continue
			}

			due, err := tr.Schedule.MatchesAt(now, lastFired)
			if err != nil {
				e.logger.Error("Bad schedule configuration", "workflow_id", wf.ID, "trigger_id", tr.ID, "error", err)
				continue
			}

			if !due {
				continue
			}

			if !e.claim(wf.ID) {
				e.logger.Debug("Workflow busy, schedule fire deferred", "workflow_id", wf.ID)
				continue
			}

			// Marker first: a crash after dispatch cannot re-fire the same
			// window on restart.
			if err := states.SetLastFired(ctx, wf.ID, tr.ID, now); err != nil {
				e.logger.Error("Failed to persist last-fired marker", "workflow_id", wf.ID, "error", err)
				e.release(wf.ID)

				continue
			}

			seed := models.VariableContext{
				"trigger_timestamp": now.Format(time.RFC3339),
				"trigger_user_id":   wf.Owner,
			}
			e.launch(ctx, wf, tr, seed, "", wf.Owner)
		}
	}
}

func (e *Evaluator) pollEmail(ctx context.Context, now time.Time, workflows []*models.Workflow) {
	states := e.persistence.TriggerStateRepository()

	checkpoint, err := states.Checkpoint(ctx, emailCheckpointSource)
	if err != nil {
		e.logger.Error("Failed to load email checkpoint", "error", err)
		return
	}

	emails, err := e.sources.Email.ListNew(ctx, checkpoint)
	if err != nil {
		e.logger.Error("Email poll failed, skipping cycle", "error", err)
		return
	}

	for _, ev := range emails {
		for _, wf := range workflows {
			for _, tr := range wf.Triggers {
				if tr.Kind != models.TriggerKindEmailReceived || tr.Email == nil {
					continue
				}

				if !matchesEmail(tr.Email, ev) {
					continue
				}

				seed := models.VariableContext{
					"email_id":        ev.ID,
					"email_from":      ev.From,
					"email_subject":   ev.Subject,
					"email_body":      ev.Body,
					"trigger_user_id": ev.From,
				}
				e.fireDeduped(ctx, now, wf, tr, ev.ID, ev.From, ev.Timestamp, seed)
			}
		}

		checkpoint = ev.ID
	}

	if len(emails) > 0 {
		if err := states.SetCheckpoint(ctx, emailCheckpointSource, checkpoint); err != nil {
			e.logger.Error("Failed to persist email checkpoint", "error", err)
		}
	}
}

func (e *Evaluator) pollChat(ctx context.Context, now time.Time, workflows []*models.Workflow) {
	states := e.persistence.TriggerStateRepository()

	offset, err := states.Checkpoint(ctx, chatCheckpointSource)
	if err != nil {
		e.logger.Error("Failed to load chat offset", "error", err)
		return
	}

	messages, err := e.sources.Chat.PollUpdates(ctx, offset)
	if err != nil {
		e.logger.Error("Chat poll failed, skipping cycle", "error", err)
		return
	}

	for _, ev := range messages {
		for _, wf := range workflows {
			for _, tr := range wf.Triggers {
				if !matchesChat(tr, ev.Text) {
					continue
				}

				seed := models.VariableContext{
					"chat_id":         ev.ChatID,
					"chat_from":       ev.From,
					"chat_text":       ev.Text,
					"trigger_user_id": ev.From,
				}
				e.fireDeduped(ctx, now, wf, tr, ev.ID, ev.From, ev.Timestamp, seed)
			}
		}

		offset = ev.ID
	}

	if len(messages) > 0 {
		if err := states.SetCheckpoint(ctx, chatCheckpointSource, offset); err != nil {
			e.logger.Error("Failed to persist chat offset", "error", err)
		}
	}
}

// fireDeduped gates the fire on the processed-event guard. The guard record
// is written before the run is dispatched, so the pair gets at most one fire
// attempt regardless of the run outcome. A busy workflow skips the fire and
// leaves the event unmarked, so a re-delivered event can still fire later.
func (e *Evaluator) fireDeduped(
	ctx context.Context,
	now time.Time,
	wf *models.Workflow,
	tr *models.Trigger,
	eventID, userID string,
	eventTime time.Time,
	seed models.VariableContext,
) {
	if !e.claim(wf.ID) {
		e.logger.Debug("Workflow busy, event deferred", "workflow_id", wf.ID, "event_id", eventID)
		return
	}

	dedup := e.persistence.ProcessedEventRepository()

	seen, err := dedup.IsProcessed(ctx, eventID, wf.ID)
	if err != nil {
		e.logger.Error("Dedup lookup failed", "event_id", eventID, "workflow_id", wf.ID, "error", err)
		e.release(wf.ID)

		return
	}

	if seen {
		e.release(wf.ID)
		return
	}

	mark := &models.ProcessedEvent{
		EventID:        eventID,
		WorkflowID:     wf.ID,
		UserID:         userID,
		ProcessedAt:    now,
		EventTimestamp: eventTime,
	}
	if err := dedup.MarkProcessed(ctx, mark); err != nil {
		e.logger.Error("Failed to mark event processed", "event_id", eventID, "workflow_id", wf.ID, "error", err)
		e.release(wf.ID)

		return
	}

	e.launch(ctx, wf, tr, seed, eventID, userID)
}

// HandleTransition is the entrypoint for asynchronous geofence transitions.
// Every enabled (workflow, trigger) pair registered for this region and kind
// fires independently.
func (e *Evaluator) HandleTransition(ctx context.Context, geofenceID string, kind models.TriggerKind) {
	if !kind.IsGeofence() {
		e.logger.Warn("Ignoring non-geofence transition", "geofence_id", geofenceID, "kind", kind)
		return
	}

	workflows, err := e.persistence.WorkflowRepository().ListEnabled(ctx)
	if err != nil {
		e.logger.Error("Failed to list workflows for transition", "geofence_id", geofenceID, "error", err)
		return
	}

	for _, wf := range workflows {
		for _, tr := range wf.Triggers {
			if tr.Kind != kind || tr.Geofence == nil || tr.Geofence.GeofenceID != geofenceID {
				continue
			}

			if !e.claim(wf.ID) {
				e.logger.Debug("Workflow busy, transition dropped", "workflow_id", wf.ID, "geofence_id", geofenceID)
				continue
			}

			seed := models.VariableContext{
				"geofence_id":     geofenceID,
				"transition":      string(kind),
				"place_id":        tr.Geofence.PlaceID,
				"trigger_user_id": wf.Owner,
			}
			e.launch(ctx, wf, tr, seed, "", wf.Owner)
		}
	}
}

// SyncRegistrations rebuilds the OS geofence registration set from the
// current enabled workflows. The whole set is replaced atomically, so stale
// regions from deleted or disabled workflows drop out.
func (e *Evaluator) SyncRegistrations(ctx context.Context) error {
	if e.sources.Geofencer == nil {
		return nil
	}

	workflows, err := e.persistence.WorkflowRepository().ListEnabled(ctx)
	if err != nil {
		return err
	}

	byID := make(map[string]*protocol.GeofenceRegion)

	for _, wf := range workflows {
		for _, tr := range wf.Triggers {
			if !tr.Kind.IsGeofence() || tr.Geofence == nil {
				continue
			}

			region, ok := byID[tr.Geofence.GeofenceID]
			if !ok {
				region = &protocol.GeofenceRegion{
					ID:           tr.Geofence.GeofenceID,
					Latitude:     tr.Geofence.Latitude,
					Longitude:    tr.Geofence.Longitude,
					RadiusMeters: tr.Geofence.RadiusMeters,
				}
				byID[tr.Geofence.GeofenceID] = region
			}

			if !containsKind(region.TransitionMask, tr.Kind) {
				region.TransitionMask = append(region.TransitionMask, tr.Kind)
			}
		}
	}

	regions := make([]protocol.GeofenceRegion, 0, len(byID))
	for _, region := range byID {
		regions = append(regions, *region)
	}

	sort.Slice(regions, func(i, j int) bool { return regions[i].ID < regions[j].ID })

	e.logger.Info("Registering geofence regions", "count", len(regions))

	return e.sources.Geofencer.RegisterRegions(ctx, regions)
}

// claim reserves the per-workflow inflight slot. A stuck run delays further
// fires only for its own workflow.
func (e *Evaluator) claim(workflowID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, busy := e.inflight[workflowID]; busy {
		return false
	}

	e.inflight[workflowID] = struct{}{}

	return true
}

func (e *Evaluator) release(workflowID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.inflight, workflowID)
}

// launch dispatches the fire on its own goroutine. The caller must already
// hold the workflow's inflight slot.
func (e *Evaluator) launch(ctx context.Context, wf *models.Workflow, tr *models.Trigger, seed models.VariableContext, eventID, userID string) {
	e.logger.Info("Trigger fired", "workflow_id", wf.ID, "trigger_id", tr.ID, "kind", tr.Kind)

	e.wg.Add(1)

	go func() {
		defer e.wg.Done()
		defer e.release(wf.ID)

		e.publishFired(ctx, wf, tr, eventID, userID)
		e.callback(ctx, wf, tr, seed)
	}()
}

func (e *Evaluator) publishFired(ctx context.Context, wf *models.Workflow, tr *models.Trigger, eventID, userID string) {
	if e.eventBus == nil {
		return
	}

	event := events.TriggerFired{
		BaseEvent:   events.NewBaseEvent(events.TriggerFiredEvent, wf.ID),
		TriggerID:   tr.ID,
		TriggerKind: tr.Kind,
		EventID:     eventID,
		UserID:      userID,
	}
	if err := e.eventBus.Publish(ctx, wf.ID, event); err != nil {
		e.logger.Warn("Failed to publish trigger event", "workflow_id", wf.ID, "error", err)
	}
}

func matchesEmail(filter *models.EmailTrigger, ev protocol.EmailEvent) bool {
	return containsFold(ev.From, filter.FromFilter) &&
		containsFold(ev.Subject, filter.SubjectFilter) &&
		containsFold(ev.Body, filter.BodyFilter)
}

func matchesChat(tr *models.Trigger, text string) bool {
	switch tr.Kind {
	case models.TriggerKindChatCommand:
		if tr.ChatCommand == nil {
			return false
		}

		fields := strings.Fields(text)

		return len(fields) > 0 && fields[0] == tr.ChatCommand.Command
	case models.TriggerKindChatMessage:
		if tr.ChatMessage == nil {
			return false
		}

		return containsFold(text, tr.ChatMessage.MatchCondition)
	default:
		return false
	}
}

// containsFold is a case-insensitive substring match; the empty needle
// matches everything.
func containsFold(haystack, needle string) bool {
	if needle == "" {
		return true
	}

	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func containsKind(mask []models.TriggerKind, kind models.TriggerKind) bool {
	for _, k := range mask {
		if k == kind {
			return true
		}
	}

	return false
}
