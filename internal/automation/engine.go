package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/homestream/homestream/internal/notify"
)

// CommandQueue is the interface for publishing device commands to the
// outbound work queue.
type CommandQueue interface {
	// Publish appends a payload to the named stream.
	Publish(ctx context.Context, stream string, payload []byte) error
}

// Sink receives the notifications the engine emits about its own rule
// executions. Implemented by the event multiplexer, which routes them
// back through the normal delivery pipeline.
type Sink interface {
	Submit(ctx context.Context, n notify.Notification) error
}

// Logger is the interface the engine needs for structured logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Engine matches incoming events against stored rules and executes the
// ones that fire.
//
// Evaluation is scoped per user: a device event can only fire rules owned
// by the user the event belongs to. Executing a rule publishes one device
// command per action, in the order the rule lists them, then reports an
// execution notification through the sink.
//
// Thread Safety: Evaluate and HandleTrigger are safe for concurrent use.
type Engine struct {
	repo          Repository
	queue         CommandQueue
	commandStream string
	sink          Sink
	logger        Logger

	// guard suppresses overlapping executions of the same rule when
	// enabled. Off by default; redundant commands are usually harmless
	// and the guard trades deduplication for dropped executions.
	guard    bool
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewEngine creates a rule engine.
//
// Parameters:
//   - repo: rule storage
//   - queue: outbound command queue
//   - commandStream: stream device commands are published to
//   - sink: receiver for execution notifications
//   - guard: suppress concurrent executions of the same rule
func NewEngine(repo Repository, queue CommandQueue, commandStream string, sink Sink, logger Logger, guard bool) *Engine {
	return &Engine{
		repo:          repo,
		queue:         queue,
		commandStream: commandStream,
		sink:          sink,
		logger:        logger,
		guard:         guard,
		inFlight:      make(map[string]struct{}),
	}
}

// Evaluate runs every enabled device-trigger rule the user owns against
// a reported device state change, executing those whose conditions match.
//
// A storage failure aborts the evaluation; individual rule execution
// failures are logged and do not stop later rules.
func (e *Engine) Evaluate(ctx context.Context, userID, deviceID int64, state map[string]any) error {
	rules, err := e.repo.ListEnabledByTrigger(ctx, userID, TriggerDevice)
	if err != nil {
		return fmt.Errorf("loading rules for user %d: %w", userID, err)
	}

	for i := range rules {
		rule := rules[i]
		if !matchesDevice(rule, deviceID, state) {
			continue
		}
		if err := e.Execute(ctx, rule); err != nil {
			e.logger.Error("rule execution failed",
				"rule_id", rule.ID,
				"rule_name", rule.Name,
				"error", err,
			)
		}
	}
	return nil
}

// HandleTrigger executes every enabled rule the user owns for a trigger
// type, without state matching. Used for time and sensor triggers
// arriving as explicit trigger requests on the work queue.
func (e *Engine) HandleTrigger(ctx context.Context, userID int64, trigger TriggerType) error {
	if !trigger.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTrigger, trigger)
	}

	rules, err := e.repo.ListEnabledByTrigger(ctx, userID, trigger)
	if err != nil {
		return fmt.Errorf("loading rules for user %d: %w", userID, err)
	}

	for i := range rules {
		rule := rules[i]
		if err := e.Execute(ctx, rule); err != nil {
			e.logger.Error("rule execution failed",
				"rule_id", rule.ID,
				"rule_name", rule.Name,
				"error", err,
			)
		}
	}
	return nil
}

// Execute fires one rule: it publishes a device command per action in
// list order, records the execution time, and submits an execution
// notification. A command publish failure aborts the remaining actions.
func (e *Engine) Execute(ctx context.Context, rule Rule) error {
	if e.guard {
		if !e.claim(rule.ID) {
			e.logger.Warn("skipping overlapping execution", "rule_id", rule.ID)
			return nil
		}
		defer e.release(rule.ID)
	}

	now := time.Now().UTC()
	for i, action := range rule.Actions {
		cmd := DeviceCommand{
			DeviceID:     action.DeviceID,
			State:        action.State,
			UserID:       rule.UserID,
			AutomationID: rule.ID,
			Timestamp:    now.Format(time.RFC3339),
		}
		payload, err := json.Marshal(cmd)
		if err != nil {
			return fmt.Errorf("encoding command for action %d: %w", i, err)
		}
		if err := e.queue.Publish(ctx, e.commandStream, payload); err != nil {
			return fmt.Errorf("publishing command for action %d: %w", i, err)
		}
	}

	// Best effort; a failed timestamp must not fail the execution.
	if err := e.repo.UpdateLastExecuted(ctx, rule.ID, now); err != nil {
		e.logger.Warn("failed to record execution time", "rule_id", rule.ID, "error", err)
	}

	n := notify.New(notify.TypeAutomationExecuted, rule.UserID,
		fmt.Sprintf("Automation %q executed", rule.Name),
		map[string]any{"automationId": rule.ID, "name": rule.Name},
	)
	if err := e.sink.Submit(ctx, n); err != nil {
		e.logger.Warn("failed to submit execution notification", "rule_id", rule.ID, "error", err)
	}

	e.logger.Info("rule executed",
		"rule_id", rule.ID,
		"rule_name", rule.Name,
		"user_id", rule.UserID,
		"actions", len(rule.Actions),
	)
	return nil
}

func (e *Engine) claim(ruleID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inFlight[ruleID]; busy {
		return false
	}
	e.inFlight[ruleID] = struct{}{}
	return true
}

func (e *Engine) release(ruleID string) {
	e.mu.Lock()
	delete(e.inFlight, ruleID)
	e.mu.Unlock()
}

// matchesDevice reports whether a device state change satisfies a rule's
// trigger conditions. The conditions must identify the device and every
// other condition field must equal the reported state value. Empty
// conditions never match.
func matchesDevice(rule Rule, deviceID int64, state map[string]any) bool {
	conditions := rule.Trigger.Conditions
	if len(conditions) == 0 {
		return false
	}

	want, ok := conditions["deviceId"]
	if !ok || !valueEqual(want, deviceID) {
		return false
	}

	for field, want := range conditions {
		if field == "deviceId" {
			continue
		}
		got, present := state[field]
		if !present || !valueEqual(want, got) {
			return false
		}
	}
	return true
}

// valueEqual compares condition values against state values. Numeric
// values are compared by magnitude because JSON decoding yields float64
// while stored rules and ids may carry integer types.
func valueEqual(a, b any) bool {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum || bNum {
		return aNum && bNum && af == bf
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
