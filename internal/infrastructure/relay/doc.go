// Package relay implements the cross-instance notification channel on
// Redis pub/sub.
//
// A user's connections may be spread across several Homestream instances.
// Local delivery reaches only the connections the current instance holds,
// so every delivered notification is also published here; sibling
// instances repeat the local-delivery lookup for their own registries.
// The channel is fire-and-forget: no persistence, no replay.
package relay
