package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"spate/internal/auth"
	"spate/internal/callctx"
	"spate/internal/logging"
	"spate/internal/wire"
)

// Handler implements one callable operation. The context carries the invoking
// session's identity (see callctx) and is valid only for this call.
type Handler func(ctx context.Context, call *Call) (any, error)

// Operation describes one registry entry.
type Operation struct {
	Name     string
	MinLevel auth.Level
	Owner    string
}

// Caller identifies the session a dispatch runs on behalf of.
type Caller struct {
	SessionID string
	Username  string
	Level     auth.Level
}

type registration struct {
	op      Operation
	handler Handler
}

// Dispatcher maps operation names to handlers and invokes them on behalf of
// sessions.
type Dispatcher struct {
	logger *slog.Logger

	// handlerTimeout caps one invocation; zero disables the cap. On expiry
	// the caller receives a Timeout fault and the handler's eventual result
	// is discarded.
	handlerTimeout time.Duration

	mu      sync.RWMutex
	methods map[string]registration
}

// NewDispatcher constructs an empty registry.
func NewDispatcher(logger *slog.Logger, handlerTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		logger:         logging.NewComponentLogger(logger, "dispatcher"),
		handlerTimeout: handlerTimeout,
		methods:        make(map[string]registration),
	}
}

// Register adds an operation under the given owner tag. Registering a name
// that already exists fails, regardless of owner.
func (d *Dispatcher) Register(name string, handler Handler, minLevel auth.Level, owner string) error {
	if name == "" {
		return fmt.Errorf("register operation: empty name")
	}
	if handler == nil {
		return fmt.Errorf("register operation %q: nil handler", name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.methods[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateMethod, name)
	}
	d.methods[name] = registration{
		op:      Operation{Name: name, MinLevel: minLevel, Owner: owner},
		handler: handler,
	}
	d.logger.Debug("operation registered",
		logging.String(logging.FieldMethod, name),
		logging.String(logging.FieldPlugin, owner),
		logging.String("min_level", minLevel.String()))
	return nil
}

// Unregister removes a single operation. Unknown names are a no-op.
func (d *Dispatcher) Unregister(name string) {
	d.mu.Lock()
	delete(d.methods, name)
	d.mu.Unlock()
}

// UnregisterAll removes every operation registered under the owner tag and
// returns how many were removed.
func (d *Dispatcher) UnregisterAll(owner string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	removed := 0
	for name, reg := range d.methods {
		if reg.op.Owner == owner {
			delete(d.methods, name)
			removed++
		}
	}
	if removed > 0 {
		d.logger.Debug("operations unregistered",
			logging.String(logging.FieldPlugin, owner),
			logging.Int("count", removed))
	}
	return removed
}

// Lookup returns the operation metadata for name.
func (d *Dispatcher) Lookup(name string) (Operation, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	reg, ok := d.methods[name]
	return reg.op, ok
}

// Operations returns all registered operations sorted by name.
func (d *Dispatcher) Operations() []Operation {
	d.mu.RLock()
	ops := make([]Operation, 0, len(d.methods))
	for _, reg := range d.methods {
		ops = append(ops, reg.op)
	}
	d.mu.RUnlock()
	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })
	return ops
}

// Dispatch resolves and invokes the operation named by req on behalf of
// caller. It always produces exactly one response carrying req's id; every
// failure mode becomes a fault.
func (d *Dispatcher) Dispatch(ctx context.Context, caller Caller, req *wire.Request) *wire.Response {
	d.mu.RLock()
	reg, ok := d.methods[req.Method]
	d.mu.RUnlock()

	if !ok {
		return &wire.Response{ID: req.ID, Fault: FaultFromError(fmt.Errorf("%w: %s", ErrMethodNotFound, req.Method))}
	}
	if !caller.Level.Allows(reg.op.MinLevel) {
		d.logger.Debug("call denied",
			logging.String(logging.FieldMethod, req.Method),
			logging.String(logging.FieldSessionID, caller.SessionID),
			logging.String("level", caller.Level.String()),
			logging.String("min_level", reg.op.MinLevel.String()))
		return &wire.Response{ID: req.ID, Fault: FaultFromError(fmt.Errorf("%w: %s requires %s", ErrUnauthorized, req.Method, reg.op.MinLevel))}
	}

	callCtx := callctx.WithSession(ctx, caller.SessionID, caller.Username, caller.Level)
	callCtx = callctx.WithRequest(callCtx, req.ID, req.Method)

	result, err := d.invoke(callCtx, reg.handler, newCall(req))
	if err != nil {
		logging.WithContext(callCtx, d.logger).Debug("call failed", logging.Error(err))
		return &wire.Response{ID: req.ID, Fault: FaultFromError(err)}
	}
	return &wire.Response{ID: req.ID, Result: result}
}

// invoke runs the handler with panic containment. With a timeout configured
// the handler runs on its own goroutine so a stalled call cannot wedge the
// session's dispatch loop forever; the abandoned goroutine finishes in the
// background and its result is dropped.
func (d *Dispatcher) invoke(ctx context.Context, handler Handler, call *Call) (any, error) {
	if d.handlerTimeout <= 0 {
		return d.safeInvoke(ctx, handler, call)
	}

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := d.safeInvoke(ctx, handler, call)
		done <- outcome{result: result, err: err}
	}()

	timer := time.NewTimer(d.handlerTimeout)
	defer timer.Stop()
	select {
	case out := <-done:
		return out.result, out.err
	case <-timer.C:
		method, _ := callctx.MethodFromContext(ctx)
		return nil, fmt.Errorf("%w: %s exceeded %s", ErrTimeout, method, d.handlerTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Dispatcher) safeInvoke(ctx context.Context, handler Handler, call *Call) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.WithContext(ctx, d.logger).Error("handler panic",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldEventType, "handler_panic"),
				logging.String(logging.FieldErrorHint, "report this to the operation's plugin author"))
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, call)
}
