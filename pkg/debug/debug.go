// Package debug provides global development switches.
package debug

import (
	"fmt"

	"github.com/teslashibe/go-finbot/internal/log"
)

// Enabled controls whether debug logging is active.
var Enabled bool

// Strict turns soft invariant violations into panics.
// Use --strict in development and simulation runs; never on the robot.
var Strict bool

// Log prints a message only if debug mode is enabled.
func Log(format string, args ...interface{}) {
	if Enabled {
		log.Debug(fmt.Sprintf(format, args...))
	}
}

// Violation reports a broken invariant. It panics when Strict is set and
// logs a warning otherwise, so production keeps running on corrected values.
func Violation(msg string, args ...any) {
	if Strict {
		panic(fmt.Sprintf("invariant violated: %s %v", msg, args))
	}
	log.Warn(msg, args...)
}
