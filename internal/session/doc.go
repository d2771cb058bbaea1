// Package session tracks live websocket connections and their users.
//
// A connection passes through a small handshake state machine: it is
// accepted unauthenticated, binds to a user via an authenticate frame,
// and is tracked in the Registry until it disconnects or the Supervisor
// reaps it for failing liveness probes. Delivery to connections is
// strictly non-blocking; slow consumers drop messages rather than stall
// the fan-out path.
//
// The registry is process-local. Cross-process delivery is the relay's
// job, not this package's.
package session
