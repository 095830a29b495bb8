// Package rpc owns the operation registry and the dispatch boundary.
//
// Operations are registered under an owner tag with an explicit minimum
// authorization level; plugins use their own name as the tag so an unload can
// remove exactly what the plugin added. Dispatch resolves a request against
// the registry, checks the caller's level before the handler can observe the
// call, runs the handler with a per-call context carrying the caller's
// identity, and converts every failure mode into an in-band fault response.
// The registry may be mutated while dispatches are in flight; a lookup sees
// an operation fully present or fully absent, never partially.
package rpc
