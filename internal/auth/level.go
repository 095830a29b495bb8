package auth

import (
	"fmt"
	"strings"
)

// Level is a totally ordered authorization tier. Every registered operation
// declares the minimum level a session must hold to invoke it; an operation
// with no declared level defaults to LevelNone being insufficient, so it is
// unreachable until given one.
type Level int

const (
	// LevelNone is the level of a session that has not authenticated.
	LevelNone Level = 0
	// LevelReadOnly may query state but not change it.
	LevelReadOnly Level = 1
	// LevelNormal may manage its own jobs.
	LevelNormal Level = 5
	// LevelAdmin may manage the daemon itself, other sessions, and plugins.
	LevelAdmin Level = 10
)

// String returns the canonical lowercase name used in the accounts file.
func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelReadOnly:
		return "readonly"
	case LevelNormal:
		return "normal"
	case LevelAdmin:
		return "admin"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Allows reports whether a session at this level may invoke an operation
// requiring min.
func (l Level) Allows(min Level) bool {
	return l >= min
}

// ParseLevel maps an accounts-file token to a Level.
func ParseLevel(value string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "none":
		return LevelNone, nil
	case "readonly", "read-only":
		return LevelReadOnly, nil
	case "normal", "standard":
		return LevelNormal, nil
	case "admin", "administrative":
		return LevelAdmin, nil
	default:
		return LevelNone, fmt.Errorf("unknown authorization level %q", value)
	}
}
