// Package automation stores user-defined rules and executes them when
// events match their triggers.
//
// A rule binds a trigger (a device state change, a schedule tick, or a
// sensor reading) to an ordered list of device commands. The engine
// evaluates device events against the owning user's enabled rules only;
// one user's devices never fire another user's automations. Matched
// rules publish their commands to the work queue and announce the
// execution as a notification.
//
// Rules persist in SQLite through Repository. The engine reads them on
// every evaluation rather than caching, so edits take effect on the next
// event.
package automation
