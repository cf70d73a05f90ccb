// Package activator turns inbound trigger events into flow sessions.
package activator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukex/taskpipe/pkg/eventbus"
	"github.com/dukex/taskpipe/pkg/events"
	"github.com/dukex/taskpipe/pkg/flows"
	"github.com/dukex/taskpipe/pkg/models"
	"github.com/dukex/taskpipe/pkg/trigger"
)

var ErrInvalidTriggerEvent = errors.New("trigger event requires an event name")

// Activator matches inbound trigger events against the known flows and starts
// a flow session for every match.
type Activator struct {
	id       string
	eventBus eventbus.EventBus
	flows    flows.Repository
	logger   *slog.Logger
}

func NewActivator(id string, flowRepository flows.Repository, eventBus eventbus.EventBus, logger *slog.Logger) *Activator {
	return &Activator{
		id:       id,
		eventBus: eventBus,
		flows:    flowRepository,
		logger:   logger.With("module", "activator"),
	}
}

// Register binds the trigger event handler on the event bus.
func (a *Activator) Register() error {
	return a.eventBus.Handle(events.TriggerReceivedEvent, a.handleTriggerReceived)
}

// Start subscribes to trigger events and blocks until ctx is done.
func (a *Activator) Start(ctx context.Context) error {
	a.logger.InfoContext(ctx, "Starting activator")

	err := a.Register()
	if err != nil {
		return err
	}

	err = a.eventBus.Subscribe(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	<-ctx.Done()
	a.logger.Info("Activator context cancelled, stopping...")

	return nil
}

func (a *Activator) handleTriggerReceived(ctx context.Context, event any) error {
	received, ok := event.(*events.TriggerReceived)
	if !ok {
		a.logger.ErrorContext(ctx, "Invalid event type for TriggerReceived")

		return nil
	}

	return a.activate(ctx, received.Event)
}

// activate publishes a FlowTriggered event for every flow eligible for ev.
// Publishing continues past individual failures; the first one is returned.
func (a *Activator) activate(ctx context.Context, ev models.TriggerEvent) error {
	logger := a.logger.With("event_name", ev.EventName)

	if ev.EventName == "" {
		logger.ErrorContext(ctx, "Invalid trigger event")

		return ErrInvalidTriggerEvent
	}

	all, err := a.flows.All(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to list flows", "error", err)

		return err
	}

	eligible := trigger.EligibleFlows(ev, all)

	logger.InfoContext(ctx, "Matched trigger event", "flows", len(eligible))

	var firstErr error

	for _, flow := range eligible {
		if err := a.publishFlowTriggered(ctx, flow, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// Fire starts flow directly, bypassing matching. Scheduled flows arrive here.
func (a *Activator) Fire(ctx context.Context, flow *models.Flow, ev models.TriggerEvent) {
	_ = a.publishFlowTriggered(ctx, flow, ev)
}

// Emit routes an event produced inside the process through the bus, so it is
// matched like any external trigger.
func (a *Activator) Emit(ctx context.Context, ev models.TriggerEvent) {
	event := events.TriggerReceived{
		BaseEvent: events.NewBaseEvent(events.TriggerReceivedEvent),
		Event:     ev,
	}

	if err := a.eventBus.Publish(ctx, ev.EventName, event); err != nil {
		a.logger.ErrorContext(ctx, "Failed to publish TriggerReceived event", "event_name", ev.EventName, "error", err)
	}
}

func (a *Activator) publishFlowTriggered(ctx context.Context, flow *models.Flow, ev models.TriggerEvent) error {
	event := events.FlowTriggered{
		BaseEvent:     events.NewBaseEvent(events.FlowTriggeredEvent),
		FlowID:        flow.ID,
		FlowSessionID: a.eventBus.GenerateID(),
		Trigger:       ev,
	}

	logger := a.logger.With("flow_id", flow.ID, "flow_session_id", event.FlowSessionID)

	if err := a.eventBus.Publish(ctx, event.FlowSessionID, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish FlowTriggered event", "error", err)

		return err
	}

	logger.InfoContext(ctx, "Flow triggered", "event_id", event.ID)

	return nil
}
