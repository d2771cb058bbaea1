package session

import (
	"sync"

	"github.com/homestream/homestream/internal/infrastructure/logging"
)

// Registry owns every live connection accepted by this process.
//
// It maps authenticated user ids to their connection sets (a user may hold
// several: multiple tabs, multiple devices) and additionally tracks
// connections that have not completed the handshake yet. Connections are
// never shared across processes; remote delivery goes through the relay
// channel, never through another process's registry.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Mutations hold an exclusive
//     lock and never block on I/O.
type Registry struct {
	mu sync.RWMutex

	// users maps an authenticated user id to that user's connection set.
	users map[int64]map[*Client]struct{}

	// clients tracks every accepted connection, authenticated or not.
	clients map[*Client]struct{}

	// owner records which user a connection was registered under, so
	// Unregister does not scan every user set.
	owner map[*Client]int64

	logger *logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *logging.Logger) *Registry {
	return &Registry{
		users:   make(map[int64]map[*Client]struct{}),
		clients: make(map[*Client]struct{}),
		owner:   make(map[*Client]int64),
		logger:  logger,
	}
}

// Track adds a freshly accepted, not yet authenticated connection.
func (r *Registry) Track(c *Client) {
	r.mu.Lock()
	r.clients[c] = struct{}{}
	r.mu.Unlock()

	r.logger.Debug("connection accepted", "connection_id", c.ID(), "connections", r.CountConnections())
}

// Register binds an authenticated connection to a user.
//
// Registering the same connection twice is not an error: the duplicate
// call is logged and ignored, the original binding stays.
func (r *Registry) Register(c *Client, userID int64) {
	r.mu.Lock()

	if _, bound := r.owner[c]; bound {
		r.mu.Unlock()
		r.logger.Warn("connection already registered, ignoring",
			"connection_id", c.ID(),
			"user_id", userID,
		)
		return
	}

	set, ok := r.users[userID]
	if !ok {
		set = make(map[*Client]struct{})
		r.users[userID] = set
	}
	set[c] = struct{}{}
	r.owner[c] = userID
	r.mu.Unlock()

	r.logger.Info("connection authenticated",
		"connection_id", c.ID(),
		"user_id", userID,
	)
}

// Unregister removes a connection from whatever user set holds it and from
// the tracked set. Calling it for an unknown connection is a no-op, so the
// transport-close path and the liveness reaper can both call it safely.
//
// Only the call that actually removes the connection closes its send
// channel, preventing double-close panics during shutdown.
func (r *Registry) Unregister(c *Client) {
	r.mu.Lock()
	_, existed := r.clients[c]
	delete(r.clients, c)

	if userID, bound := r.owner[c]; bound {
		delete(r.owner, c)
		set := r.users[userID]
		delete(set, c)
		if len(set) == 0 {
			delete(r.users, userID)
		}
	}
	r.mu.Unlock()

	if existed {
		c.closeSend()
		r.logger.Debug("connection removed", "connection_id", c.ID(), "connections", r.CountConnections())
	}
}

// ConnectionsFor returns a snapshot of the live connections registered
// under a user, or an empty slice if none. The snapshot is safe to iterate
// while connects and disconnects proceed concurrently.
func (r *Registry) ConnectionsFor(userID int64) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.users[userID]
	conns := make([]*Client, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	return conns
}

// AllConnections returns a snapshot of every tracked connection,
// authenticated or not. Used by broadcast delivery and the liveness
// supervisor.
func (r *Registry) AllConnections() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		conns = append(conns, c)
	}
	return conns
}

// CountUsers returns the number of users with at least one live connection.
func (r *Registry) CountUsers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// CountConnections returns the number of tracked connections.
func (r *Registry) CountConnections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CloseAll terminates every tracked connection. Called on shutdown.
func (r *Registry) CloseAll() {
	for _, c := range r.AllConnections() {
		c.Terminate()
		r.Unregister(c)
	}
}
