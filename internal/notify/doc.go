// Package notify fans notifications out to websocket clients.
//
// A notification dispatched here reaches local connections directly and
// sibling processes through the relay channel, where each process
// delivers to its own connections. Relay envelopes carry the origin
// process id so a notification never loops back to where it started.
package notify
