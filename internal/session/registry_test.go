package session

import (
	"testing"

	"github.com/homestream/homestream/internal/infrastructure/logging"
)

func newTestClient(r *Registry) *Client {
	return newClient(nil, r, logging.Default())
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry(logging.Default())

	c1 := newTestClient(r)
	c2 := newTestClient(r)
	r.Track(c1)
	r.Track(c2)

	if got := r.CountConnections(); got != 2 {
		t.Fatalf("CountConnections() = %d, want 2", got)
	}
	if got := r.CountUsers(); got != 0 {
		t.Fatalf("CountUsers() = %d before auth, want 0", got)
	}

	r.Register(c1, 7)
	r.Register(c2, 7)

	if got := r.CountUsers(); got != 1 {
		t.Fatalf("CountUsers() = %d, want 1", got)
	}
	if got := len(r.ConnectionsFor(7)); got != 2 {
		t.Fatalf("ConnectionsFor(7) returned %d connections, want 2", got)
	}
	if got := len(r.ConnectionsFor(99)); got != 0 {
		t.Fatalf("ConnectionsFor(99) returned %d connections, want 0", got)
	}
}

func TestRegistryRegisterIsIdempotent(t *testing.T) {
	r := NewRegistry(logging.Default())
	c := newTestClient(r)
	r.Track(c)

	r.Register(c, 7)
	r.Register(c, 7)
	r.Register(c, 8) // second binding ignored too

	if got := len(r.ConnectionsFor(7)); got != 1 {
		t.Fatalf("ConnectionsFor(7) returned %d connections, want 1", got)
	}
	if got := len(r.ConnectionsFor(8)); got != 0 {
		t.Fatalf("ConnectionsFor(8) returned %d connections, want 0", got)
	}
	if got := r.CountConnections(); got != 1 {
		t.Fatalf("CountConnections() = %d, want 1", got)
	}
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry(logging.Default())
	c := newTestClient(r)
	r.Track(c)
	r.Register(c, 7)

	r.Unregister(c)

	if got := r.CountConnections(); got != 0 {
		t.Fatalf("CountConnections() = %d after unregister, want 0", got)
	}
	if got := r.CountUsers(); got != 0 {
		t.Fatalf("CountUsers() = %d after unregister, want 0", got)
	}

	// Unknown or repeated unregister must be a no-op, not a panic.
	r.Unregister(c)
	r.Unregister(newTestClient(r))
}

func TestRegistryUnregisterLeavesOtherConnections(t *testing.T) {
	r := NewRegistry(logging.Default())
	c1 := newTestClient(r)
	c2 := newTestClient(r)
	r.Track(c1)
	r.Track(c2)
	r.Register(c1, 7)
	r.Register(c2, 7)

	r.Unregister(c1)

	conns := r.ConnectionsFor(7)
	if len(conns) != 1 || conns[0] != c2 {
		t.Fatalf("expected only c2 to remain for user 7, got %d connections", len(conns))
	}
}

func TestTrySendAfterUnregisterReportsFailure(t *testing.T) {
	r := NewRegistry(logging.Default())
	c := newTestClient(r)
	r.Track(c)
	r.Unregister(c) // closes the send channel

	if c.TrySend([]byte(`{"type":"x"}`)) {
		t.Fatal("TrySend() = true on closed connection, want false")
	}
}

func TestTrySendDropsWhenBufferFull(t *testing.T) {
	r := NewRegistry(logging.Default())
	c := newTestClient(r)

	msg := []byte("m")
	for i := 0; i < sendBuffer; i++ {
		if !c.TrySend(msg) {
			t.Fatalf("TrySend() = false at %d with buffer space remaining", i)
		}
	}
	if c.TrySend(msg) {
		t.Fatal("TrySend() = true with full buffer, want false")
	}
}
