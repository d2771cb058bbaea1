package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/homestream/homestream/internal/automation"
	"github.com/homestream/homestream/internal/infrastructure/logging"
	"github.com/homestream/homestream/internal/notify"
)

// Dispatcher delivers a normalized notification to its audience.
type Dispatcher interface {
	Dispatch(ctx context.Context, n notify.Notification) error
}

// Evaluator runs automations against incoming events.
type Evaluator interface {
	Evaluate(ctx context.Context, userID, deviceID int64, state map[string]any) error
	HandleTrigger(ctx context.Context, userID int64, trigger automation.TriggerType) error
}

// EventMetrics receives a data point per accepted event. nil disables
// reporting.
type EventMetrics interface {
	WriteEventMetric(source, eventType string)
}

// Event sources, recorded in logs and metrics.
const (
	sourceBroker    = "broker"
	sourceQueue     = "queue"
	sourceTelemetry = "telemetry"
	sourceInternal  = "internal"
)

// Multiplexer funnels every event source into one processing path:
// normalize, deliver, and evaluate automations.
//
// Sources are at-least-once, so processing must tolerate redelivery: a
// redelivered event produces a duplicate notification (accepted) and a
// duplicate evaluation (idempotent at the rule layer). Malformed and
// unknown events are dropped with a warning, never redelivered; only
// infrastructure failures propagate as errors so the source retries.
type Multiplexer struct {
	dispatcher Dispatcher
	engine     Evaluator
	logger     *logging.Logger
	metrics    EventMetrics
}

// NewMultiplexer creates the ingestion funnel. metrics may be nil.
// engine may be nil at construction and wired later with SetEvaluator;
// the engine and the multiplexer reference each other, so one of them
// has to be attached after the fact.
func NewMultiplexer(dispatcher Dispatcher, engine Evaluator, logger *logging.Logger, metrics EventMetrics) *Multiplexer {
	return &Multiplexer{
		dispatcher: dispatcher,
		engine:     engine,
		logger:     logger,
		metrics:    metrics,
	}
}

// SetEvaluator attaches the automation engine. Must be called before any
// handler runs.
func (m *Multiplexer) SetEvaluator(engine Evaluator) {
	m.engine = engine
}

// HandleBrokerEvent consumes one log-broker message. Satisfies the
// consumer's handler contract: a nil return commits the offset, an error
// leaves the message for redelivery.
func (m *Multiplexer) HandleBrokerEvent(ctx context.Context, topic string, _, value []byte) error {
	var ev Event
	if err := json.Unmarshal(value, &ev); err != nil {
		m.logger.Warn("dropping malformed broker event", "topic", topic, "error", err)
		return nil
	}
	return m.process(ctx, sourceBroker, ev)
}

// HandleQueueMessage consumes one work-queue ingress message. Trigger
// requests go straight to the automation engine; everything else takes
// the normal event path. A nil return acknowledges the message.
func (m *Multiplexer) HandleQueueMessage(ctx context.Context, payload []byte) error {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		m.logger.Warn("dropping malformed queue message", "error", err)
		return nil
	}

	if probe.Type == triggerRequestType {
		return m.handleTriggerRequest(ctx, payload)
	}

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		m.logger.Warn("dropping malformed queue event", "error", err)
		return nil
	}
	return m.process(ctx, sourceQueue, ev)
}

// HandleTelemetry consumes one message from the sensor feed. Telemetry
// is fire-and-forget; failures are logged, never retried.
func (m *Multiplexer) HandleTelemetry(topic string, payload []byte) error {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		m.logger.Warn("dropping malformed telemetry event", "topic", topic, "error", err)
		return nil
	}
	if err := m.process(context.Background(), sourceTelemetry, ev); err != nil {
		m.logger.Error("telemetry event processing failed", "topic", topic, "error", err)
	}
	return nil
}

// Submit re-injects a notification produced inside this process, such as
// an automation execution report. It skips normalization and automation
// evaluation and goes straight to delivery.
func (m *Multiplexer) Submit(ctx context.Context, n notify.Notification) error {
	if m.metrics != nil {
		m.metrics.WriteEventMetric(sourceInternal, n.Type)
	}
	return m.dispatcher.Dispatch(ctx, n)
}

func (m *Multiplexer) handleTriggerRequest(ctx context.Context, payload []byte) error {
	var req triggerRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		m.logger.Warn("dropping malformed trigger request", "error", err)
		return nil
	}
	if req.UserID <= 0 || !automation.TriggerType(req.Trigger).Valid() {
		m.logger.Warn("dropping invalid trigger request",
			"user_id", req.UserID,
			"trigger", req.Trigger,
		)
		return nil
	}

	if err := m.engine.HandleTrigger(ctx, req.UserID, automation.TriggerType(req.Trigger)); err != nil {
		return fmt.Errorf("handling %s trigger for user %d: %w", req.Trigger, req.UserID, err)
	}
	if m.metrics != nil {
		m.metrics.WriteEventMetric(sourceQueue, triggerRequestType)
	}
	return nil
}

// process runs one event through normalization, delivery, and automation
// evaluation. Delivery is best effort; an automation storage failure is
// returned so the source redelivers.
func (m *Multiplexer) process(ctx context.Context, source string, ev Event) error {
	n, ok := normalize(ev)
	if !ok {
		m.logger.Warn("dropping unroutable event",
			"source", source,
			"type", ev.Type,
			"user_id", ev.UserID,
		)
		return nil
	}

	if m.metrics != nil {
		m.metrics.WriteEventMetric(source, ev.Type)
	}

	if err := m.dispatcher.Dispatch(ctx, n); err != nil {
		// Local delivery already happened; only the relay mirror can
		// fail here. Redelivering would duplicate local notifications,
		// so log and move on.
		m.logger.Error("notification dispatch incomplete", "type", n.Type, "error", err)
	}

	if ev.Type == notify.TypeDeviceStateChanged {
		if err := m.engine.Evaluate(ctx, ev.UserID, ev.DeviceID, ev.State); err != nil {
			return fmt.Errorf("evaluating automations: %w", err)
		}
	}
	return nil
}
