package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/homestream/homestream/internal/infrastructure/logging"
)

// memRelay captures published envelopes in memory.
type memRelay struct {
	published [][]byte
}

func (m *memRelay) Publish(_ context.Context, payload []byte) error {
	m.published = append(m.published, payload)
	return nil
}

// fakeConn records delivered payloads.
type fakeConn struct {
	userID   int64
	authed   bool
	full     bool
	received [][]byte
}

func (c *fakeConn) TrySend(message []byte) bool {
	if c.full {
		return false
	}
	c.received = append(c.received, message)
	return true
}

func (c *fakeConn) UserID() (int64, bool) { return c.userID, c.authed }

// fakeConns is an in-memory ConnSource.
type fakeConns struct {
	conns []*fakeConn
}

func (s *fakeConns) add(userID int64) *fakeConn {
	c := &fakeConn{userID: userID, authed: userID > 0}
	s.conns = append(s.conns, c)
	return c
}

func (s *fakeConns) ConnectionsFor(userID int64) []Conn {
	var out []Conn
	for _, c := range s.conns {
		if c.authed && c.userID == userID {
			out = append(out, c)
		}
	}
	return out
}

func (s *fakeConns) AllConnections() []Conn {
	out := make([]Conn, len(s.conns))
	for i, c := range s.conns {
		out[i] = c
	}
	return out
}

func notifications(t *testing.T, c *fakeConn) []Notification {
	t.Helper()
	out := make([]Notification, 0, len(c.received))
	for _, raw := range c.received {
		var n Notification
		if err := json.Unmarshal(raw, &n); err != nil {
			t.Fatalf("unmarshal delivered notification: %v", err)
		}
		out = append(out, n)
	}
	return out
}

func newFakeFanout(conns ConnSource, relay RelayPublisher) *Fanout {
	return NewFanout(conns, relay, logging.Default(), nil)
}

func TestDeliverToUserTargetsOnlyThatUser(t *testing.T) {
	conns := &fakeConns{}
	alice := conns.add(7)
	bob := conns.add(8)
	f := newFakeFanout(conns, nil)

	n := New(TypeDeviceStateChanged, 7, "Lamp is now on", map[string]any{"on": true})
	if !f.DeliverToUser(7, n) {
		t.Fatal("DeliverToUser() = false with a live connection, want true")
	}

	if got := notifications(t, alice); len(got) != 1 || got[0].Type != TypeDeviceStateChanged {
		t.Fatalf("alice received %v, want one device.state_changed", got)
	}
	if len(bob.received) != 0 {
		t.Fatalf("bob received %d notifications, want 0", len(bob.received))
	}
}

func TestDeliverToUserReachesAllUserConnections(t *testing.T) {
	conns := &fakeConns{}
	tab1 := conns.add(7)
	tab2 := conns.add(7)
	f := newFakeFanout(conns, nil)

	f.DeliverToUser(7, New(TypeMotionDetected, 7, "Motion detected", nil))

	if len(tab1.received) != 1 {
		t.Fatalf("first connection received %d, want 1", len(tab1.received))
	}
	if len(tab2.received) != 1 {
		t.Fatalf("second connection received %d, want 1", len(tab2.received))
	}
}

func TestDeliverToUserWithoutConnections(t *testing.T) {
	f := newFakeFanout(&fakeConns{}, nil)

	if f.DeliverToUser(7, New(TypeMotionDetected, 7, "Motion detected", nil)) {
		t.Fatal("DeliverToUser() = true with no connections, want false")
	}
}

func TestDeliverToUserAllBuffersFull(t *testing.T) {
	conns := &fakeConns{}
	conns.add(7).full = true
	f := newFakeFanout(conns, nil)

	if f.DeliverToUser(7, New(TypeMotionDetected, 7, "Motion detected", nil)) {
		t.Fatal("DeliverToUser() = true when every connection dropped the message, want false")
	}
}

func TestBroadcastSkipsUnauthenticated(t *testing.T) {
	conns := &fakeConns{}
	alice := conns.add(7)
	bob := conns.add(8)
	anon := conns.add(0)
	f := newFakeFanout(conns, nil)

	f.Broadcast(NewBroadcast(TypeSecurityAlert, "Alarm triggered", nil))

	if len(alice.received) != 1 {
		t.Fatalf("alice received %d, want 1", len(alice.received))
	}
	if len(bob.received) != 1 {
		t.Fatalf("bob received %d, want 1", len(bob.received))
	}
	if len(anon.received) != 0 {
		t.Fatalf("unauthenticated connection received %d, want 0", len(anon.received))
	}
}

func TestDispatchMirrorsToRelay(t *testing.T) {
	conns := &fakeConns{}
	conns.add(7)
	relay := &memRelay{}
	f := newFakeFanout(conns, relay)

	if err := f.Dispatch(context.Background(), New(TypeDeviceStateChanged, 7, "Lamp is now on", nil)); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	if len(relay.published) != 1 {
		t.Fatalf("relay got %d envelopes, want 1", len(relay.published))
	}
	var env envelope
	if err := json.Unmarshal(relay.published[0], &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.InstanceID != f.InstanceID() {
		t.Fatalf("envelope origin = %q, want %q", env.InstanceID, f.InstanceID())
	}
}

func TestDispatchRoutesBroadcastTypes(t *testing.T) {
	conns := &fakeConns{}
	alice := conns.add(7)
	bob := conns.add(8)
	f := newFakeFanout(conns, nil)

	if err := f.Dispatch(context.Background(), NewBroadcast(TypeDeviceAdded, "New device paired", nil)); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	if len(alice.received) != 1 || len(bob.received) != 1 {
		t.Fatalf("broadcast reached (%d, %d) connections, want (1, 1)", len(alice.received), len(bob.received))
	}
}

func TestHandleRelayedSkipsOwnEnvelopes(t *testing.T) {
	conns := &fakeConns{}
	alice := conns.add(7)
	f := newFakeFanout(conns, nil)

	env, _ := json.Marshal(envelope{
		InstanceID:   f.InstanceID(),
		Notification: New(TypeDeviceStateChanged, 7, "Lamp is now on", nil),
	})
	f.HandleRelayed(env)

	if len(alice.received) != 0 {
		t.Fatalf("own envelope delivered %d notifications, want 0", len(alice.received))
	}
}

func TestHandleRelayedDeliversForeignEnvelopes(t *testing.T) {
	// Two fanouts stand in for two processes sharing a relay; a
	// notification dispatched on one must reach the other's clients
	// exactly once and must not be mirrored again.
	localConns := &fakeConns{}
	alice := localConns.add(7)
	relay := &memRelay{}
	local := newFakeFanout(localConns, relay)
	remote := newFakeFanout(&fakeConns{}, relay)

	if err := remote.Dispatch(context.Background(), New(TypeMotionDetected, 7, "Motion detected", nil)); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	for _, payload := range relay.published {
		local.HandleRelayed(payload)
	}

	if got := notifications(t, alice); len(got) != 1 || got[0].Type != TypeMotionDetected {
		t.Fatalf("alice received %v, want one motion.detected", got)
	}
	if len(relay.published) != 1 {
		t.Fatalf("relay got %d envelopes after relayed delivery, want 1", len(relay.published))
	}
}

func TestHandleRelayedDiscardsMalformed(t *testing.T) {
	f := newFakeFanout(&fakeConns{}, nil)
	f.HandleRelayed([]byte("not json"))
}

func TestIsBroadcastType(t *testing.T) {
	for _, typ := range []string{TypeDeviceAdded, TypeSecurityAlert} {
		if !IsBroadcastType(typ) {
			t.Errorf("IsBroadcastType(%q) = false, want true", typ)
		}
	}
	for _, typ := range []string{TypeDeviceStateChanged, TypeMotionDetected, TypeAutomationExecuted} {
		if IsBroadcastType(typ) {
			t.Errorf("IsBroadcastType(%q) = true, want false", typ)
		}
	}
}
