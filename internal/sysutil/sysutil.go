// Package sysutil holds process-level helpers: logger construction and
// lenient parsing of operator supplied strings.
package sysutil

import (
	"strings"

	"github.com/rs/zerolog"
)

// ParseLevel maps a LOG_LEVEL value to a zerolog level. Empty means info and
// "warning" is accepted for warn. Unknown values report false.
func ParseLevel(s string) (zerolog.Level, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return zerolog.InfoLevel, true
	case "warning":
		return zerolog.WarnLevel, true
	case "trace", "disabled":
		// Both are valid zerolog levels but not offered to operators.
		return zerolog.InfoLevel, false
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel, false
	}
	return lvl, true
}

// SetLogLevel sets the global level, falling back to info.
func SetLogLevel(s string) zerolog.Level {
	lvl, _ := ParseLevel(s)
	zerolog.SetGlobalLevel(lvl)
	return lvl
}

// IsTruthy reports whether v reads as true: 1, true, yes, y or on, in any case.
func IsTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
