package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/homestream/homestream/internal/infrastructure/config"
)

// Consumer timing constants.
const (
	// reconnectDelay is the pause between consumer session attempts after
	// a broker-side failure. The loop never gives up.
	reconnectDelay = 3 * time.Second

	// handlerRetryDelay is the pause before re-attempting a message whose
	// handler returned an error. The offset is not committed until the
	// handler succeeds, preserving at-least-once delivery.
	handlerRetryDelay = 2 * time.Second

	dialTimeout = 10 * time.Second
)

// MessageHandler is the callback signature for consumed log-broker messages.
//
// The handler is invoked sequentially per partition, preserving the broker's
// per-key ordering. Returning nil acknowledges the message (its offset
// becomes eligible for commit); returning an error causes the same message
// to be retried after a delay.
type MessageHandler func(ctx context.Context, topic string, key, value []byte) error

// Logger interface for consumer logging.
// Compatible with logging.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
}

// Consumer wraps a sarama consumer group with Homestream-specific
// functionality: infinite reconnect, sequential per-partition handling, and
// offset commit only after successful processing.
//
// Thread Safety:
//   - Run must be called once; Close may be called from any goroutine.
type Consumer struct {
	cfg     config.KafkaConfig
	client  sarama.Client
	group   sarama.ConsumerGroup
	handler MessageHandler
	logger  Logger
}

// NewConsumer creates a consumer group client for the configured topics.
//
// Offsets for a new group start at the newest message; an existing group
// resumes from its committed offsets, so a crashed instance does not
// reprocess the entire topic history on reconnect.
//
// Parameters:
//   - cfg: Kafka configuration from config.yaml
//   - handler: Callback invoked for each consumed message
//   - logger: Logger instance
//
// Returns:
//   - *Consumer: Ready to Run
//   - error: If the client or group cannot be created
func NewConsumer(cfg config.KafkaConfig, handler MessageHandler, logger Logger) (*Consumer, error) {
	if handler == nil {
		return nil, fmt.Errorf("%w: handler cannot be nil", ErrInvalidConfig)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("%w: no brokers configured", ErrInvalidConfig)
	}

	version, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid kafka version %q: %w", ErrInvalidConfig, cfg.Version, err)
	}

	saramaCfg := sarama.NewConfig()
	saramaCfg.Version = version
	saramaCfg.ClientID = cfg.ClientID
	saramaCfg.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Net.DialTimeout = dialTimeout

	client, err := sarama.NewClient(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	group, err := sarama.NewConsumerGroupFromClient(cfg.ConsumerGroup, client)
	if err != nil {
		client.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: creating consumer group: %w", ErrConnectionFailed, err)
	}

	return &Consumer{
		cfg:     cfg,
		client:  client,
		group:   group,
		handler: handler,
		logger:  logger,
	}, nil
}

// Run consumes the configured topics until the context is cancelled.
//
// Consume blocks for the lifetime of one group session; it returns on
// rebalance or broker failure, after which the loop rejoins the group and
// resumes from committed offsets. Errors are logged and retried forever -
// broker connectivity loss never terminates the loop.
func (c *Consumer) Run(ctx context.Context) error {
	// Surface async consumer errors as log entries.
	go func() {
		for err := range c.group.Errors() {
			c.logger.Warn("kafka consumer error", "error", err)
		}
	}()

	c.logger.Info("kafka consumer starting",
		"topics", c.cfg.Topics,
		"group", c.cfg.ConsumerGroup,
	)

	handler := &groupHandler{consumer: c}
	for {
		if err := c.group.Consume(ctx, c.cfg.Topics, handler); err != nil {
			c.logger.Warn("kafka consume session ended", "error", err)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

// Close shuts down the consumer group and the underlying client.
func (c *Consumer) Close() error {
	if err := c.group.Close(); err != nil {
		c.client.Close() //nolint:errcheck // Still attempt client close
		return fmt.Errorf("closing consumer group: %w", err)
	}
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("closing kafka client: %w", err)
	}
	return nil
}

// groupHandler implements sarama.ConsumerGroupHandler.
type groupHandler struct {
	consumer *Consumer
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup is run at the end of a session, after all ConsumeClaim goroutines exit.
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim processes messages from one partition sequentially.
//
// A message is marked (acknowledged) only after its handler returns nil.
// Handler failures retry the same message in place; skipping ahead would
// silently drop it once later offsets commit.
func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if msg == nil {
			return nil
		}

		for {
			err := h.consumer.handler(session.Context(), msg.Topic, msg.Key, msg.Value)
			if err == nil {
				break
			}

			h.consumer.logger.Warn("message handling failed, will retry",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)

			select {
			case <-session.Context().Done():
				return nil
			case <-time.After(handlerRetryDelay):
			}
		}

		session.MarkMessage(msg, "")
	}
	return nil
}
