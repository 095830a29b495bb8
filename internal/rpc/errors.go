package rpc

import (
	"context"
	"errors"
	"fmt"

	"spate/internal/auth"
	"spate/internal/wire"
)

// Fault kinds carried in responses. Only FaultProtocol is connection-fatal;
// every other kind keeps the session alive.
const (
	FaultProtocol       = "ProtocolError"
	FaultAuth           = "AuthError"
	FaultMethodNotFound = "MethodNotFound"
	FaultHandler        = "HandlerError"
	FaultPluginLoad     = "PluginLoadError"
	FaultTimeout        = "Timeout"
)

var (
	// ErrMethodNotFound reports a request for an unregistered operation.
	ErrMethodNotFound = errors.New("method not found")
	// ErrUnauthorized reports a caller below an operation's minimum level.
	ErrUnauthorized = errors.New("insufficient authorization level")
	// ErrDuplicateMethod reports a Register against a name already taken.
	ErrDuplicateMethod = errors.New("method already registered")
	// ErrTimeout reports a handler exceeding the configured invocation cap.
	ErrTimeout = errors.New("handler timed out")
	// ErrPluginLoad reports a plugin load or enable failure.
	ErrPluginLoad = errors.New("plugin load failed")
)

// FaultFromError classifies err into a wire fault.
func FaultFromError(err error) *wire.Fault {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrMethodNotFound):
		return &wire.Fault{Kind: FaultMethodNotFound, Message: err.Error()}
	case errors.Is(err, ErrUnauthorized), errors.Is(err, auth.ErrBadCredentials):
		return &wire.Fault{Kind: FaultAuth, Message: err.Error()}
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return &wire.Fault{Kind: FaultTimeout, Message: err.Error()}
	case errors.Is(err, ErrPluginLoad):
		return &wire.Fault{Kind: FaultPluginLoad, Message: err.Error()}
	default:
		return &wire.Fault{Kind: FaultHandler, Message: err.Error()}
	}
}

// FaultError converts a received fault back into an error for client-side
// callers.
func FaultError(f *wire.Fault) error {
	if f == nil {
		return nil
	}
	return fmt.Errorf("%s: %s", f.Kind, f.Message)
}
