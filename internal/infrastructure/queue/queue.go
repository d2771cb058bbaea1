package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/homestream/homestream/internal/infrastructure/config"
)

// Queue timing constants.
const (
	// readRetryDelay is the pause after a failed stream read before
	// retrying. The consume loop never gives up.
	readRetryDelay = 3 * time.Second

	// claimMinIdle is how long a message must sit unacknowledged in another
	// consumer's pending list before this instance may claim it. Covers
	// instances that died mid-processing.
	claimMinIdle = time.Minute

	// claimBatch is the maximum number of stale messages claimed per pass.
	claimBatch = 16

	// payloadField is the stream entry field carrying the JSON payload.
	payloadField = "payload"
)

// Handler is the callback signature for consumed queue messages.
//
// Returning nil acknowledges the message. Returning an error
// negative-acknowledges it: the message is re-added to the stream for retry
// and the original entry is acknowledged so it doesn't linger in the
// pending list.
type Handler func(ctx context.Context, payload []byte) error

// Logger interface for queue logging.
// Compatible with logging.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
	Debug(msg string, args ...any)
}

// Queue is a Redis Streams work queue with consumer-group semantics:
// point-to-point delivery across instances, explicit acknowledge after
// successful processing, and requeue on failure.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Queue struct {
	client   *redis.Client
	group    string
	consumer string
	block    time.Duration
	logger   Logger
}

// New creates a work queue on the given Redis client.
//
// Parameters:
//   - client: Shared Redis connection
//   - cfg: Queue configuration from config.yaml
//   - consumer: Unique consumer name for this instance (pending-list owner)
//   - logger: Logger instance
func New(client *redis.Client, cfg config.QueueConfig, consumer string, logger Logger) *Queue {
	block := time.Duration(cfg.BlockTimeout) * time.Second
	if block <= 0 {
		block = 5 * time.Second
	}
	return &Queue{
		client:   client,
		group:    cfg.Group,
		consumer: consumer,
		block:    block,
		logger:   logger,
	}
}

// Publish appends a message to a stream.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - stream: Target stream name
//   - payload: JSON message body
//
// Returns:
//   - error: If the append fails
func (q *Queue) Publish(ctx context.Context, stream string, payload []byte) error {
	err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{payloadField: payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("%w: publishing to %s: %w", ErrPublishFailed, stream, err)
	}
	return nil
}

// Consume reads messages from a stream until the context is cancelled.
//
// Each message is passed to the handler exactly once per delivery; the
// handler's return value decides acknowledge versus requeue. Read errors
// are logged and retried after a delay - connectivity loss never
// terminates the loop. Messages left pending by dead instances are
// claimed and reprocessed once they exceed the idle threshold.
func (q *Queue) Consume(ctx context.Context, stream string, handler Handler) error {
	if err := q.ensureGroup(ctx, stream); err != nil {
		q.logger.Warn("creating consumer group", "stream", stream, "error", err)
	}

	q.logger.Info("queue consumer starting",
		"stream", stream,
		"group", q.group,
		"consumer", q.consumer,
	)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		q.claimStale(ctx, stream, handler)

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: q.consumer,
			Streams:  []string{stream, ">"},
			Count:    claimBatch,
			Block:    q.block,
		}).Result()

		switch {
		case err == nil:
			for _, s := range streams {
				for _, msg := range s.Messages {
					q.process(ctx, stream, msg, handler)
				}
			}
		case errors.Is(err, redis.Nil):
			// Block timeout with no messages; loop again.
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return ctx.Err()
		default:
			q.logger.Warn("queue read failed, retrying", "stream", stream, "error", err)
			// The group may have been lost with the Redis instance.
			if err := q.ensureGroup(ctx, stream); err != nil {
				q.logger.Debug("re-creating consumer group", "stream", stream, "error", err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(readRetryDelay):
			}
		}
	}
}

// process runs the handler for one message and settles it: acknowledge on
// success, requeue on failure.
func (q *Queue) process(ctx context.Context, stream string, msg redis.XMessage, handler Handler) {
	payload := extractPayload(msg)
	if payload == nil {
		q.logger.Warn("queue message missing payload field, dropping", "stream", stream, "id", msg.ID)
		q.ack(ctx, stream, msg.ID)
		return
	}

	if err := handler(ctx, payload); err != nil {
		q.logger.Warn("queue message handling failed, requeueing",
			"stream", stream,
			"id", msg.ID,
			"error", err,
		)
		q.requeue(ctx, stream, msg.ID, payload)
		return
	}

	q.ack(ctx, stream, msg.ID)
}

// ack acknowledges a processed message. Failures are logged only; the
// message will eventually be re-claimed and reprocessed (at-least-once).
func (q *Queue) ack(ctx context.Context, stream, id string) {
	if err := q.client.XAck(ctx, stream, q.group, id).Err(); err != nil && ctx.Err() == nil {
		q.logger.Warn("acknowledging queue message", "stream", stream, "id", id, "error", err)
	}
}

// requeue negative-acknowledges a message: a fresh copy is appended to the
// stream, then the failed delivery is acknowledged so the pending list
// doesn't grow without bound.
func (q *Queue) requeue(ctx context.Context, stream, id string, payload []byte) {
	err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{payloadField: payload},
	}).Err()
	if err != nil {
		// Leave the original pending; the claim pass will retry it.
		q.logger.Warn("requeueing message failed, leaving pending", "stream", stream, "id", id, "error", err)
		return
	}
	q.ack(ctx, stream, id)
}

// claimStale takes over messages another consumer read but never
// acknowledged (typically a crashed instance) and runs them through the
// handler.
func (q *Queue) claimStale(ctx context.Context, stream string, handler Handler) {
	msgs, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    q.group,
		Consumer: q.consumer,
		MinIdle:  claimMinIdle,
		Start:    "0-0",
		Count:    claimBatch,
	}).Result()
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, redis.Nil) {
			q.logger.Debug("claiming stale messages", "stream", stream, "error", err)
		}
		return
	}

	for _, msg := range msgs {
		q.logger.Info("reprocessing stale queue message", "stream", stream, "id", msg.ID)
		q.process(ctx, stream, msg, handler)
	}
}

// ensureGroup creates the consumer group, creating the stream if needed.
// An already-existing group is not an error.
func (q *Queue) ensureGroup(ctx context.Context, stream string) error {
	err := q.client.XGroupCreateMkStream(ctx, stream, q.group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// extractPayload pulls the payload field out of a stream entry.
func extractPayload(msg redis.XMessage) []byte {
	raw, ok := msg.Values[payloadField]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		return []byte(v)
	case []byte:
		return v
	default:
		return nil
	}
}
