package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// resubscribeDelay is the pause before reopening a failed subscription.
const resubscribeDelay = 3 * time.Second

// Handler is the callback signature for relayed messages.
// It is invoked for every message on the channel, including those this
// instance published itself; callers filter by origin.
type Handler func(payload []byte)

// Logger interface for relay logging.
// Compatible with logging.Logger.
type Logger interface {
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
}

// Relay is the cross-instance notification channel, a single logical Redis
// pub/sub channel every Homestream instance publishes to and subscribes on.
// It is non-durable by design: an instance that is down simply has no
// connections to deliver to.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Relay struct {
	client  *redis.Client
	channel string
	logger  Logger
}

// New creates a relay on the given Redis client and channel name.
func New(client *redis.Client, channel string, logger Logger) *Relay {
	return &Relay{
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

// Publish sends a payload to all subscribed instances, including this one.
func (r *Relay) Publish(ctx context.Context, payload []byte) error {
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Subscribe receives relayed payloads until the context is cancelled.
//
// The underlying go-redis subscription reconnects automatically; if the
// receive channel closes anyway, the subscription is reopened after a
// delay. Connectivity loss never terminates the loop, it only delays
// delivery (missed messages are not replayed - the relay is not durable).
func (r *Relay) Subscribe(ctx context.Context, handler Handler) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		sub := r.client.Subscribe(ctx, r.channel)
		r.logger.Info("relay subscribed", "channel", r.channel)

		r.receive(ctx, sub, handler)

		sub.Close() //nolint:errcheck // Best effort; resubscribing regardless

		if ctx.Err() != nil {
			return ctx.Err()
		}

		r.logger.Warn("relay subscription lost, resubscribing", "channel", r.channel)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(resubscribeDelay):
		}
	}
}

// receive drains one subscription until it closes or the context ends.
func (r *Relay) receive(ctx context.Context, sub *redis.PubSub, handler Handler) {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			handler([]byte(msg.Payload))
		}
	}
}
