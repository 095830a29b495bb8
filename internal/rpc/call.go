package rpc

import (
	"fmt"

	"spate/internal/wire"
)

// Call carries one invocation's arguments to a handler. Values arrive through
// JSON, so numbers are float64 and nested structures are maps and slices.
type Call struct {
	Args   []any
	Kwargs map[string]any
}

func newCall(req *wire.Request) *Call {
	return &Call{Args: req.Args, Kwargs: req.Kwargs}
}

// Arg returns the positional argument at index i.
func (c *Call) Arg(i int) (any, bool) {
	if i < 0 || i >= len(c.Args) {
		return nil, false
	}
	return c.Args[i], true
}

// StringArg returns the positional argument at index i as a string.
func (c *Call) StringArg(i int) (string, error) {
	value, ok := c.Arg(i)
	if !ok {
		return "", fmt.Errorf("missing argument %d", i)
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("argument %d: expected string, got %T", i, value)
	}
	return s, nil
}

// Kwarg returns the named argument.
func (c *Call) Kwarg(name string) (any, bool) {
	value, ok := c.Kwargs[name]
	return value, ok
}

// StringKwarg returns the named argument as a string, or fallback when
// absent.
func (c *Call) StringKwarg(name, fallback string) (string, error) {
	value, ok := c.Kwargs[name]
	if !ok {
		return fallback, nil
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("argument %q: expected string, got %T", name, value)
	}
	return s, nil
}

// BoolKwarg returns the named argument as a bool, or fallback when absent.
func (c *Call) BoolKwarg(name string, fallback bool) (bool, error) {
	value, ok := c.Kwargs[name]
	if !ok {
		return fallback, nil
	}
	b, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("argument %q: expected bool, got %T", name, value)
	}
	return b, nil
}

// StringArgs returns every positional argument as strings.
func (c *Call) StringArgs() ([]string, error) {
	out := make([]string, 0, len(c.Args))
	for i := range c.Args {
		s, err := c.StringArg(i)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
