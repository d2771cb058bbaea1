package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/homestream/homestream/internal/infrastructure/logging"
	"github.com/homestream/homestream/internal/session"
)

// RelayPublisher mirrors notifications to sibling processes.
type RelayPublisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// Conn is the delivery surface of one websocket connection.
type Conn interface {
	// TrySend queues a message without blocking, reporting whether the
	// connection accepted it.
	TrySend(message []byte) bool
	// UserID returns the bound user and whether the connection has
	// authenticated.
	UserID() (int64, bool)
}

// ConnSource resolves the local audience for a notification.
type ConnSource interface {
	ConnectionsFor(userID int64) []Conn
	AllConnections() []Conn
}

// registrySource adapts the session registry to ConnSource.
type registrySource struct {
	registry *session.Registry
}

// WrapRegistry exposes a session registry as a ConnSource.
func WrapRegistry(r *session.Registry) ConnSource {
	return registrySource{registry: r}
}

func (s registrySource) ConnectionsFor(userID int64) []Conn {
	clients := s.registry.ConnectionsFor(userID)
	conns := make([]Conn, len(clients))
	for i, c := range clients {
		conns[i] = c
	}
	return conns
}

func (s registrySource) AllConnections() []Conn {
	clients := s.registry.AllConnections()
	conns := make([]Conn, len(clients))
	for i, c := range clients {
		conns[i] = c
	}
	return conns
}

// DeliveryMetrics receives a data point per local delivery attempt.
// nil disables reporting.
type DeliveryMetrics interface {
	WriteDeliveryMetric(notificationType string, recipients int, broadcast bool)
}

// envelope wraps a notification on the relay channel. The origin id lets
// each process skip messages it published itself, so a notification is
// delivered to a local connection exactly once.
type envelope struct {
	InstanceID   string       `json:"instanceId"`
	Notification Notification `json:"notification"`
}

// Fanout delivers notifications to local connections and mirrors them to
// sibling processes through the relay.
//
// Delivery is best-effort by design: a user with no live connections
// simply misses the notification, there is no offline queue. Local sends
// never block; slow clients drop messages instead of stalling the
// pipeline.
type Fanout struct {
	conns      ConnSource
	relay      RelayPublisher
	instanceID string
	logger     *logging.Logger
	metrics    DeliveryMetrics
}

// NewFanout creates a fan-out stage. relay may be nil for single-process
// deployments; metrics may be nil.
func NewFanout(conns ConnSource, relay RelayPublisher, logger *logging.Logger, metrics DeliveryMetrics) *Fanout {
	return &Fanout{
		conns:      conns,
		relay:      relay,
		instanceID: uuid.New().String(),
		logger:     logger,
		metrics:    metrics,
	}
}

// InstanceID returns this process's relay origin id.
func (f *Fanout) InstanceID() string { return f.instanceID }

// Dispatch routes a notification to its audience, local and remote:
// broadcast types go to every authenticated connection, targeted types
// to the recipient's connections. The notification is always mirrored to
// the relay so sibling processes can reach their own connections.
func (f *Fanout) Dispatch(ctx context.Context, n Notification) error {
	if n.Broadcast || n.UserID == nil {
		f.Broadcast(n)
	} else {
		f.DeliverToUser(*n.UserID, n)
	}
	return f.mirror(ctx, n)
}

// DeliverToUser pushes a notification to every local connection the user
// holds. It returns true when at least one connection accepted the
// message; false means the user is not connected here (or every
// connection's buffer was full), which is normal and not an error.
func (f *Fanout) DeliverToUser(userID int64, n Notification) bool {
	conns := f.conns.ConnectionsFor(userID)
	if len(conns) == 0 {
		return false
	}

	payload, err := json.Marshal(n)
	if err != nil {
		f.logger.Error("failed to encode notification", "type", n.Type, "error", err)
		return false
	}

	delivered := 0
	for _, c := range conns {
		if c.TrySend(payload) {
			delivered++
		}
	}

	f.report(n.Type, delivered, false)
	f.logger.Debug("notification delivered",
		"type", n.Type,
		"user_id", userID,
		"recipients", delivered,
	)
	return delivered > 0
}

// Broadcast pushes a notification to every authenticated local
// connection. Unauthenticated connections never receive notifications.
func (f *Fanout) Broadcast(n Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		f.logger.Error("failed to encode notification", "type", n.Type, "error", err)
		return
	}

	delivered := 0
	for _, c := range f.conns.AllConnections() {
		if _, authed := c.UserID(); !authed {
			continue
		}
		if c.TrySend(payload) {
			delivered++
		}
	}

	f.report(n.Type, delivered, true)
	f.logger.Debug("notification broadcast", "type", n.Type, "recipients", delivered)
}

// HandleRelayed processes an envelope received from the relay channel.
// Envelopes this process published are skipped; everything else is
// delivered to local connections only, never mirrored again.
func (f *Fanout) HandleRelayed(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		f.logger.Warn("discarding malformed relay envelope", "error", err)
		return
	}
	if env.InstanceID == f.instanceID {
		return
	}

	n := env.Notification
	if n.Broadcast || n.UserID == nil {
		f.Broadcast(n)
		return
	}
	f.DeliverToUser(*n.UserID, n)
}

// mirror publishes the notification to the relay channel.
func (f *Fanout) mirror(ctx context.Context, n Notification) error {
	if f.relay == nil {
		return nil
	}

	payload, err := json.Marshal(envelope{InstanceID: f.instanceID, Notification: n})
	if err != nil {
		return fmt.Errorf("notify: encode relay envelope: %w", err)
	}
	if err := f.relay.Publish(ctx, payload); err != nil {
		f.logger.Error("relay publish failed", "type", n.Type, "error", err)
		return err
	}
	return nil
}

func (f *Fanout) report(notificationType string, recipients int, broadcast bool) {
	if f.metrics != nil {
		f.metrics.WriteDeliveryMetric(notificationType, recipients, broadcast)
	}
}
