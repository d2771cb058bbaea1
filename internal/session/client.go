package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/homestream/homestream/internal/infrastructure/logging"
)

// Handshake states. A connection starts in StateConnected, moves to
// StateAuthenticated after a valid authenticate frame, and ends in
// StateClosed. There are no other transitions.
type State int

const (
	StateConnected State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	// writeWait bounds a single outbound write.
	writeWait = 5 * time.Second

	// maxFrameSize bounds inbound control frames. Clients only send
	// small JSON handshake frames, anything larger is a broken peer.
	maxFrameSize = 4096

	// sendBuffer is the per-connection outbound queue. A client that
	// cannot drain this many messages is considered stuck and dropped.
	sendBuffer = 32
)

// frame is the JSON envelope for everything a client sends us.
type frame struct {
	Type   string `json:"type"`
	UserID int64  `json:"userId,omitempty"`
}

// reply is the JSON envelope for handshake responses.
type reply struct {
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Client is one websocket connection and its handshake state.
//
// Delivery never blocks on a client: TrySend drops the message when the
// outbound queue is full, and the liveness supervisor reaps connections
// that stop answering probes.
type Client struct {
	id       string
	conn     *websocket.Conn
	registry *Registry
	logger   *logging.Logger

	send          chan []byte
	closeSendOnce sync.Once
	closeConnOnce sync.Once

	mu     sync.Mutex
	state  State
	userID int64
	alive  bool
}

func newClient(conn *websocket.Conn, registry *Registry, logger *logging.Logger) *Client {
	return &Client{
		id:       uuid.New().String(),
		conn:     conn,
		registry: registry,
		logger:   logger,
		send:     make(chan []byte, sendBuffer),
		state:    StateConnected,
		alive:    true,
	}
}

// ID returns the connection's identifier, used only for logging.
func (c *Client) ID() string { return c.id }

// State returns the current handshake state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// UserID returns the bound user id and whether the connection is
// authenticated.
func (c *Client) UserID() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID, c.state == StateAuthenticated
}

// TrySend queues a message for delivery without blocking. It returns false
// when the client's queue is full or its send channel is closed; the
// caller treats either as "this connection did not get the message".
func (c *Client) TrySend(message []byte) (ok bool) {
	defer func() {
		// Send on a closed channel panics. Racing a disconnect is
		// expected, recover and report a failed send.
		if r := recover(); r != nil {
			ok = false
		}
	}()

	select {
	case c.send <- message:
		return true
	default:
		c.logger.Warn("client send buffer full, dropping message", "connection_id", c.id)
		return false
	}
}

// MarkAlive records that the connection answered a liveness probe.
func (c *Client) MarkAlive() {
	c.mu.Lock()
	c.alive = true
	c.mu.Unlock()
}

// ConsumeAlive returns whether the connection answered since the last
// probe, and clears the flag so the next probe starts a fresh window.
func (c *Client) ConsumeAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := c.alive
	c.alive = false
	return was
}

// Probe sends a websocket ping. Control frames may be written
// concurrently with the write pump, so this is safe to call from the
// supervisor goroutine.
func (c *Client) Probe() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Terminate force-closes the underlying connection. The read pump notices
// and unregisters the client.
func (c *Client) Terminate() {
	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
	c.closeConn()
}

func (c *Client) closeSend() {
	c.closeSendOnce.Do(func() { close(c.send) })
}

func (c *Client) closeConn() {
	c.closeConnOnce.Do(func() { c.conn.Close() })
}

// readPump drives the handshake state machine and keeps the liveness flag
// fresh. It runs until the peer disconnects or the connection is
// terminated, then unregisters the client.
func (c *Client) readPump() {
	defer func() {
		c.registry.Unregister(c)
		c.closeConn()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetPongHandler(func(string) error {
		c.MarkAlive()
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("client read error", "connection_id", c.id, "error", err)
			}
			return
		}

		// Any inbound traffic proves the peer is alive.
		c.MarkAlive()

		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			c.sendReply(reply{Type: "error", Message: "malformed frame"})
			continue
		}
		c.handleFrame(f)
	}
}

// handleFrame applies one inbound frame to the handshake state machine.
func (c *Client) handleFrame(f frame) {
	switch f.Type {
	case "authenticate":
		c.handleAuthenticate(f)
	case "ping":
		c.sendReply(reply{Type: "pong", Timestamp: nowRFC3339()})
	default:
		if _, authed := c.UserID(); !authed {
			c.sendReply(reply{Type: "error", Message: "authentication required"})
			return
		}
		c.sendReply(reply{Type: "error", Message: "unknown frame type"})
	}
}

func (c *Client) handleAuthenticate(f frame) {
	if f.UserID <= 0 {
		c.sendReply(reply{Type: "error", Message: "invalid user id"})
		return
	}

	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		c.sendReply(reply{Type: "error", Message: "already authenticated"})
		return
	}
	c.state = StateAuthenticated
	c.userID = f.UserID
	c.mu.Unlock()

	c.registry.Register(c, f.UserID)
	c.sendReply(reply{Type: "authenticated", Message: "session established", Timestamp: nowRFC3339()})
}

func (c *Client) sendReply(r reply) {
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	c.TrySend(data)
}

// writePump drains the send queue onto the wire. It exits when the send
// channel closes (unregister) or a write fails, then closes the
// connection so the read pump unwinds too.
func (c *Client) writePump() {
	defer c.closeConn()

	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			c.logger.Debug("client write error", "connection_id", c.id, "error", err)
			return
		}
	}

	// send channel closed, tell the peer we are done.
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
