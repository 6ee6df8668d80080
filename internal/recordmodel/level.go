// Package recordmodel holds the Record and Level types (spec C1) shared
// by every pipeline-stage package. It lives under internal/ so the root
// riverlog package (the public facade) can alias it without the stage
// packages (format, gate, redact, rules, sink...) needing to import the
// root package back — that would be an import cycle.
package recordmodel

import (
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// Level identifies the severity of a Record. Standard levels are
// registered at package init; custom levels may be added process-wide
// with RegisterLevel.
type Level struct {
	Name     string
	Priority uint8
	Color    string // ANSI escape code, without the leading ESC[ or trailing m
}

// Standard levels and their priorities, per spec: higher is more severe.
var (
	LevelTrace    = Level{Name: "TRACE", Priority: 5, Color: "90"}
	LevelDebug    = Level{Name: "DEBUG", Priority: 10, Color: "36"}
	LevelInfo     = Level{Name: "INFO", Priority: 20, Color: "37"}
	LevelSuccess  = Level{Name: "SUCCESS", Priority: 25, Color: "32"}
	LevelWarning  = Level{Name: "WARNING", Priority: 30, Color: "33"}
	LevelError    = Level{Name: "ERROR", Priority: 40, Color: "31"}
	LevelFail     = Level{Name: "FAIL", Priority: 45, Color: "31;1"}
	LevelCritical = Level{Name: "CRITICAL", Priority: 50, Color: "31;1;7"}
)

// ErrUnknownLevel is returned when emitting at a custom level name that
// was never registered.
var ErrUnknownLevel = errors.New("riverlog: unknown level")

// levelRegistry is the process-global custom-level store (spec §4.1,
// §9 "Global process-wide custom-level registry"). Keep it behind a
// mutex; tests that need isolation should register under unique names.
type levelRegistry struct {
	mu     sync.RWMutex
	levels map[string]Level
}

var customLevels = &levelRegistry{levels: make(map[string]Level)}

// LevelHandle is the stable handle returned by RegisterLevel.
type LevelHandle struct {
	name string
}

// RegisterLevel registers a custom level process-wide and returns a
// stable handle. Re-registering the same name overwrites its
// priority/color (registration is idempotent by name, not additive).
func RegisterLevel(name string, priority uint8, color string) LevelHandle {
	customLevels.mu.Lock()
	defer customLevels.mu.Unlock()
	customLevels.levels[name] = Level{Name: name, Priority: priority, Color: color}
	return LevelHandle{name: name}
}

// LookupLevel resolves a level by name, checking standard levels first
// then the custom registry. Comparison is case-insensitive for the
// standard set to match typical config-file casing.
func LookupLevel(name string) (Level, error) {
	upper := strings.ToUpper(name)
	for _, l := range standardLevels() {
		if l.Name == upper {
			return l, nil
		}
	}
	customLevels.mu.RLock()
	defer customLevels.mu.RUnlock()
	if l, ok := customLevels.levels[name]; ok {
		return l, nil
	}
	if l, ok := customLevels.levels[upper]; ok {
		return l, nil
	}
	return Level{}, errors.Wrapf(ErrUnknownLevel, "level %q", name)
}

func standardLevels() []Level {
	return []Level{LevelTrace, LevelDebug, LevelInfo, LevelSuccess, LevelWarning, LevelError, LevelFail, LevelCritical}
}

// Less reports whether l is strictly less severe than other, comparing
// priority only (spec §4.1: "Level comparison uses priority only").
func (l Level) Less(other Level) bool {
	return l.Priority < other.Priority
}
