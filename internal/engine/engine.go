// Package engine defines the boundary to the external transfer engine that
// actually runs download jobs. The daemon core only issues commands across
// this interface and republishes the status changes it reports; the engine's
// own protocol work is out of scope here.
package engine

import "context"

// Command ops understood by the engine.
const (
	OpAdd    = "add"
	OpRemove = "remove"
	OpPause  = "pause"
	OpResume = "resume"
	OpStatus = "status"
	OpList   = "list"
)

// Command is one instruction for the engine.
type Command struct {
	Op      string
	JobID   string
	Payload map[string]any
}

// StatusChange is reported by the engine whenever a job's state moves.
type StatusChange struct {
	JobID  string
	State  string
	Detail map[string]any
}

// Engine executes job commands and reports job state changes. Execute may
// block on engine-internal I/O and must honor ctx cancellation. Callbacks
// registered with OnStatusChange may be invoked from engine-owned goroutines.
type Engine interface {
	Execute(ctx context.Context, cmd Command) (any, error)
	OnStatusChange(fn func(StatusChange))
}
