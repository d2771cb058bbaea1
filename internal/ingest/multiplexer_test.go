package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/homestream/homestream/internal/automation"
	"github.com/homestream/homestream/internal/infrastructure/logging"
	"github.com/homestream/homestream/internal/notify"
)

// fakeDispatcher records dispatched notifications.
type fakeDispatcher struct {
	dispatched []notify.Notification
	fail       bool
}

func (f *fakeDispatcher) Dispatch(_ context.Context, n notify.Notification) error {
	if f.fail {
		return errors.New("relay down")
	}
	f.dispatched = append(f.dispatched, n)
	return nil
}

// fakeEvaluator records automation calls.
type fakeEvaluator struct {
	evaluated []evaluateCall
	triggered []triggerCall
	fail      bool
}

type evaluateCall struct {
	userID   int64
	deviceID int64
	state    map[string]any
}

type triggerCall struct {
	userID  int64
	trigger automation.TriggerType
}

func (f *fakeEvaluator) Evaluate(_ context.Context, userID, deviceID int64, state map[string]any) error {
	if f.fail {
		return errors.New("storage down")
	}
	f.evaluated = append(f.evaluated, evaluateCall{userID, deviceID, state})
	return nil
}

func (f *fakeEvaluator) HandleTrigger(_ context.Context, userID int64, trigger automation.TriggerType) error {
	if f.fail {
		return errors.New("storage down")
	}
	f.triggered = append(f.triggered, triggerCall{userID, trigger})
	return nil
}

func newTestMultiplexer() (*Multiplexer, *fakeDispatcher, *fakeEvaluator) {
	d := &fakeDispatcher{}
	e := &fakeEvaluator{}
	return NewMultiplexer(d, e, logging.Default(), nil), d, e
}

func TestBrokerEventDeliversAndEvaluates(t *testing.T) {
	m, d, e := newTestMultiplexer()

	payload := []byte(`{"type":"device.state_changed","userId":7,"deviceId":3,"state":{"on":true}}`)
	if err := m.HandleBrokerEvent(context.Background(), "homestream.events", nil, payload); err != nil {
		t.Fatalf("HandleBrokerEvent() error: %v", err)
	}

	if len(d.dispatched) != 1 {
		t.Fatalf("dispatched %d notifications, want 1", len(d.dispatched))
	}
	n := d.dispatched[0]
	if n.Type != notify.TypeDeviceStateChanged || n.UserID == nil || *n.UserID != 7 {
		t.Fatalf("dispatched %+v, want device.state_changed for user 7", n)
	}

	if len(e.evaluated) != 1 {
		t.Fatalf("evaluated %d times, want 1", len(e.evaluated))
	}
	call := e.evaluated[0]
	if call.userID != 7 || call.deviceID != 3 || call.state["on"] != true {
		t.Fatalf("Evaluate called with %+v", call)
	}
}

func TestBrokerEventNonDeviceTypesSkipEvaluation(t *testing.T) {
	m, d, e := newTestMultiplexer()

	payload := []byte(`{"type":"motion.detected","userId":7,"deviceId":4}`)
	if err := m.HandleBrokerEvent(context.Background(), "homestream.events", nil, payload); err != nil {
		t.Fatalf("HandleBrokerEvent() error: %v", err)
	}

	if len(d.dispatched) != 1 {
		t.Fatalf("dispatched %d notifications, want 1", len(d.dispatched))
	}
	if len(e.evaluated) != 0 {
		t.Fatalf("evaluated %d times for a non-device event, want 0", len(e.evaluated))
	}
}

func TestBrokerEventDropsMalformed(t *testing.T) {
	m, d, _ := newTestMultiplexer()

	// Malformed payloads must be dropped, not returned for redelivery.
	if err := m.HandleBrokerEvent(context.Background(), "homestream.events", nil, []byte("not json")); err != nil {
		t.Fatalf("HandleBrokerEvent() error = %v, want nil for malformed payload", err)
	}
	if len(d.dispatched) != 0 {
		t.Fatalf("dispatched %d notifications for malformed payload, want 0", len(d.dispatched))
	}
}

func TestBrokerEventDropsUnknownType(t *testing.T) {
	m, d, _ := newTestMultiplexer()

	payload := []byte(`{"type":"thermostat.exploded","userId":7}`)
	if err := m.HandleBrokerEvent(context.Background(), "homestream.events", nil, payload); err != nil {
		t.Fatalf("HandleBrokerEvent() error = %v, want nil for unknown type", err)
	}
	if len(d.dispatched) != 0 {
		t.Fatalf("dispatched %d notifications for unknown type, want 0", len(d.dispatched))
	}
}

func TestBrokerEventDropsTargetedWithoutUser(t *testing.T) {
	m, d, _ := newTestMultiplexer()

	payload := []byte(`{"type":"motion.detected","deviceId":4}`)
	if err := m.HandleBrokerEvent(context.Background(), "homestream.events", nil, payload); err != nil {
		t.Fatalf("HandleBrokerEvent() error = %v, want nil", err)
	}
	if len(d.dispatched) != 0 {
		t.Fatalf("dispatched %d notifications without a recipient, want 0", len(d.dispatched))
	}
}

func TestBrokerEventPropagatesEvaluationFailure(t *testing.T) {
	m, _, e := newTestMultiplexer()
	e.fail = true

	payload := []byte(`{"type":"device.state_changed","userId":7,"deviceId":3,"state":{"on":true}}`)
	if err := m.HandleBrokerEvent(context.Background(), "homestream.events", nil, payload); err == nil {
		t.Fatal("HandleBrokerEvent() = nil on evaluation failure, want error for redelivery")
	}
}

func TestBrokerEventToleratesDispatchFailure(t *testing.T) {
	m, d, e := newTestMultiplexer()
	d.fail = true

	payload := []byte(`{"type":"device.state_changed","userId":7,"deviceId":3,"state":{"on":true}}`)
	if err := m.HandleBrokerEvent(context.Background(), "homestream.events", nil, payload); err != nil {
		t.Fatalf("HandleBrokerEvent() error = %v, want nil when only dispatch fails", err)
	}
	if len(e.evaluated) != 1 {
		t.Fatalf("evaluated %d times, want 1 despite dispatch failure", len(e.evaluated))
	}
}

func TestBrokerEventRedeliveryProducesDuplicate(t *testing.T) {
	m, d, e := newTestMultiplexer()

	payload := []byte(`{"type":"device.state_changed","userId":7,"deviceId":3,"state":{"on":true}}`)
	for i := 0; i < 2; i++ {
		if err := m.HandleBrokerEvent(context.Background(), "homestream.events", nil, payload); err != nil {
			t.Fatalf("HandleBrokerEvent() error: %v", err)
		}
	}

	// At-least-once: duplicates are delivered and evaluated again.
	if len(d.dispatched) != 2 || len(e.evaluated) != 2 {
		t.Fatalf("redelivery produced (%d, %d), want (2, 2)", len(d.dispatched), len(e.evaluated))
	}
}

func TestQueueMessageEventPath(t *testing.T) {
	m, d, _ := newTestMultiplexer()

	payload := []byte(`{"type":"device.added","data":{"name":"Hallway lamp"}}`)
	if err := m.HandleQueueMessage(context.Background(), payload); err != nil {
		t.Fatalf("HandleQueueMessage() error: %v", err)
	}

	if len(d.dispatched) != 1 {
		t.Fatalf("dispatched %d notifications, want 1", len(d.dispatched))
	}
	if !d.dispatched[0].Broadcast {
		t.Fatal("device.added should dispatch as broadcast")
	}
}

func TestQueueMessageTriggerRequest(t *testing.T) {
	m, d, e := newTestMultiplexer()

	payload := []byte(`{"type":"automation.trigger","userId":7,"trigger":"time"}`)
	if err := m.HandleQueueMessage(context.Background(), payload); err != nil {
		t.Fatalf("HandleQueueMessage() error: %v", err)
	}

	if len(e.triggered) != 1 || e.triggered[0].userID != 7 || e.triggered[0].trigger != automation.TriggerTime {
		t.Fatalf("triggered = %+v, want time trigger for user 7", e.triggered)
	}
	if len(d.dispatched) != 0 {
		t.Fatalf("dispatched %d notifications for a trigger request, want 0", len(d.dispatched))
	}
}

func TestQueueMessageInvalidTriggerDropped(t *testing.T) {
	m, _, e := newTestMultiplexer()

	for _, payload := range []string{
		`{"type":"automation.trigger","userId":0,"trigger":"time"}`,
		`{"type":"automation.trigger","userId":7,"trigger":"weather"}`,
	} {
		if err := m.HandleQueueMessage(context.Background(), []byte(payload)); err != nil {
			t.Fatalf("HandleQueueMessage(%s) error = %v, want nil", payload, err)
		}
	}
	if len(e.triggered) != 0 {
		t.Fatalf("triggered %d times for invalid requests, want 0", len(e.triggered))
	}
}

func TestQueueMessageTriggerFailurePropagates(t *testing.T) {
	m, _, e := newTestMultiplexer()
	e.fail = true

	payload := []byte(`{"type":"automation.trigger","userId":7,"trigger":"time"}`)
	if err := m.HandleQueueMessage(context.Background(), payload); err == nil {
		t.Fatal("HandleQueueMessage() = nil on trigger failure, want error for redelivery")
	}
}

func TestTelemetryNeverReturnsError(t *testing.T) {
	m, d, e := newTestMultiplexer()
	e.fail = true

	if err := m.HandleTelemetry("homestream/event/motion/4", []byte("not json")); err != nil {
		t.Fatalf("HandleTelemetry() error = %v, want nil", err)
	}
	payload := []byte(`{"type":"device.state_changed","userId":7,"deviceId":3,"state":{"on":true}}`)
	if err := m.HandleTelemetry("homestream/event/device/3", payload); err != nil {
		t.Fatalf("HandleTelemetry() error = %v, want nil even on processing failure", err)
	}
	if len(d.dispatched) != 1 {
		t.Fatalf("dispatched %d notifications, want 1", len(d.dispatched))
	}
}

func TestSubmitBypassesNormalization(t *testing.T) {
	m, d, e := newTestMultiplexer()

	n := notify.New(notify.TypeAutomationExecuted, 7, `Automation "evening lights" executed`, nil)
	if err := m.Submit(context.Background(), n); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	if len(d.dispatched) != 1 || d.dispatched[0].Type != notify.TypeAutomationExecuted {
		t.Fatalf("dispatched = %+v, want the submitted notification", d.dispatched)
	}
	if len(e.evaluated) != 0 {
		t.Fatalf("evaluated %d times for a submitted notification, want 0", len(e.evaluated))
	}
}
