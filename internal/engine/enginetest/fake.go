// Package enginetest provides a recording fake of the engine boundary for
// tests.
package enginetest

import (
	"context"
	"fmt"
	"sync"

	"spate/internal/engine"
)

// Fake records every command it receives and returns scripted results. The
// zero value is usable.
type Fake struct {
	mu        sync.Mutex
	commands  []engine.Command
	results   map[string]any
	failures  map[string]error
	callbacks []func(engine.StatusChange)
	jobSeq    int
}

// Execute records cmd and returns whatever was scripted for its op. Without
// a script, OpAdd returns a generated job id and other ops return nil.
func (f *Fake) Execute(_ context.Context, cmd engine.Command) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)

	if err, ok := f.failures[cmd.Op]; ok {
		return nil, err
	}
	if result, ok := f.results[cmd.Op]; ok {
		return result, nil
	}
	if cmd.Op == engine.OpAdd {
		f.jobSeq++
		return map[string]any{"job_id": fmt.Sprintf("job-%d", f.jobSeq)}, nil
	}
	return nil, nil
}

// OnStatusChange registers a status callback.
func (f *Fake) OnStatusChange(fn func(engine.StatusChange)) {
	f.mu.Lock()
	f.callbacks = append(f.callbacks, fn)
	f.mu.Unlock()
}

// EmitStatus drives every registered callback, standing in for the engine
// reporting a job state change.
func (f *Fake) EmitStatus(change engine.StatusChange) {
	f.mu.Lock()
	callbacks := make([]func(engine.StatusChange), len(f.callbacks))
	copy(callbacks, f.callbacks)
	f.mu.Unlock()
	for _, fn := range callbacks {
		fn(change)
	}
}

// ScriptResult fixes the value returned for op.
func (f *Fake) ScriptResult(op string, result any) {
	f.mu.Lock()
	if f.results == nil {
		f.results = make(map[string]any)
	}
	f.results[op] = result
	f.mu.Unlock()
}

// ScriptFailure makes op return err.
func (f *Fake) ScriptFailure(op string, err error) {
	f.mu.Lock()
	if f.failures == nil {
		f.failures = make(map[string]error)
	}
	f.failures[op] = err
	f.mu.Unlock()
}

// Commands returns a copy of everything executed so far.
func (f *Fake) Commands() []engine.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]engine.Command, len(f.commands))
	copy(out, f.commands)
	return out
}

// CommandsFor returns only the commands with the given op.
func (f *Fake) CommandsFor(op string) []engine.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []engine.Command
	for _, cmd := range f.commands {
		if cmd.Op == op {
			out = append(out, cmd)
		}
	}
	return out
}
