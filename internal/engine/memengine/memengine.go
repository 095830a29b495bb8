// Package memengine is an in-memory engine used when no external transfer
// engine is wired in. Jobs exist only for the daemon's lifetime.
package memengine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"spate/internal/engine"
)

type job struct {
	ID      string
	Name    string
	State   string
	AddedAt time.Time
}

// Engine tracks jobs in memory and reports every state move through the
// status callbacks.
type Engine struct {
	mu        sync.Mutex
	jobs      map[string]*job
	seq       int
	callbacks []func(engine.StatusChange)
}

// New returns an empty engine.
func New() *Engine {
	return &Engine{jobs: make(map[string]*job)}
}

// OnStatusChange registers a status callback.
func (e *Engine) OnStatusChange(fn func(engine.StatusChange)) {
	e.mu.Lock()
	e.callbacks = append(e.callbacks, fn)
	e.mu.Unlock()
}

// Execute applies cmd to the job table.
func (e *Engine) Execute(ctx context.Context, cmd engine.Command) (any, error) {
	switch cmd.Op {
	case engine.OpAdd:
		return e.add(cmd)
	case engine.OpRemove:
		return e.setState(cmd.JobID, "", true)
	case engine.OpPause:
		return e.setState(cmd.JobID, "paused", false)
	case engine.OpResume:
		return e.setState(cmd.JobID, "running", false)
	case engine.OpStatus:
		return e.status(cmd.JobID)
	case engine.OpList:
		return e.list(), nil
	default:
		return nil, fmt.Errorf("unknown engine op %q", cmd.Op)
	}
}

func (e *Engine) add(cmd engine.Command) (any, error) {
	name, _ := cmd.Payload["name"].(string)
	if name == "" {
		name, _ = cmd.Payload["uri"].(string)
	}
	if name == "" {
		return nil, fmt.Errorf("job needs a name or uri")
	}

	e.mu.Lock()
	e.seq++
	j := &job{
		ID:      fmt.Sprintf("job-%d", e.seq),
		Name:    name,
		State:   "queued",
		AddedAt: time.Now(),
	}
	e.jobs[j.ID] = j
	e.mu.Unlock()

	e.emit(engine.StatusChange{JobID: j.ID, State: j.State})
	return map[string]any{"job_id": j.ID, "state": j.State}, nil
}

func (e *Engine) setState(jobID, state string, remove bool) (any, error) {
	e.mu.Lock()
	j, ok := e.jobs[jobID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("unknown job %q", jobID)
	}
	if remove {
		delete(e.jobs, jobID)
	} else {
		j.State = state
	}
	e.mu.Unlock()

	if !remove {
		e.emit(engine.StatusChange{JobID: jobID, State: state})
	}
	return map[string]any{"job_id": jobID}, nil
}

func (e *Engine) status(jobID string) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, ok := e.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("unknown job %q", jobID)
	}
	return jobView(j), nil
}

func (e *Engine) list() any {
	e.mu.Lock()
	views := make([]map[string]any, 0, len(e.jobs))
	for _, j := range e.jobs {
		views = append(views, jobView(j))
	}
	e.mu.Unlock()

	sort.Slice(views, func(i, k int) bool {
		return views[i]["job_id"].(string) < views[k]["job_id"].(string)
	})
	return views
}

func jobView(j *job) map[string]any {
	return map[string]any{
		"job_id":   j.ID,
		"name":     j.Name,
		"state":    j.State,
		"added_at": j.AddedAt.UTC().Format(time.RFC3339),
	}
}

func (e *Engine) emit(change engine.StatusChange) {
	e.mu.Lock()
	callbacks := make([]func(engine.StatusChange), len(e.callbacks))
	copy(callbacks, e.callbacks)
	e.mu.Unlock()
	for _, fn := range callbacks {
		fn(change)
	}
}
