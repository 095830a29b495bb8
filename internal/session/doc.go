// Package session tracks one live object per client connection: its
// identity, authorization level, and bounded outbound event queue.
//
// The manager is the sole owner of sessions. Closing one drains its queue,
// removes its event subscriptions, and reserves its identifier for a grace
// period; no session's closure can block or fault another.
package session
