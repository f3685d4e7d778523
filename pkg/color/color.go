// Package color adds ANSI colors to rcopy's terminal output.
// It respects the NO_COLOR environment variable (https://no-color.org/).
package color

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/jvs-project/rcopy/pkg/model"
)

var state struct {
	once       sync.Once
	enabled    atomic.Bool
	overridden atomic.Bool
}

// Init decides once, from the environment and noColor, whether colors are on.
// Enable and Disable take precedence over Init.
func Init(noColor bool) {
	state.once.Do(func() {
		if state.overridden.Load() {
			return
		}
		_, noColorEnv := os.LookupEnv("NO_COLOR")
		state.enabled.Store(!noColor && !noColorEnv && os.Getenv("TERM") != "dumb")
	})
}

// Enabled reports whether color output is on.
func Enabled() bool {
	Init(false)
	return state.enabled.Load()
}

// Disable turns color output off.
func Disable() {
	state.overridden.Store(true)
	state.enabled.Store(false)
}

// Enable turns color output on.
func Enable() {
	state.overridden.Store(true)
	state.enabled.Store(true)
}

const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	cyan   = "\033[36m"
)

func wrap(code, s string) string {
	if !Enabled() {
		return s
	}
	return code + s + reset
}

// Success formats s in green.
func Success(s string) string { return wrap(green, s) }

// Error formats s in red.
func Error(s string) string { return wrap(red, s) }

// Warning formats s in yellow.
func Warning(s string) string { return wrap(yellow, s) }

// Info formats s in cyan.
func Info(s string) string { return wrap(cyan, s) }

// Header formats s in bold.
func Header(s string) string { return wrap(bold, s) }

// Dim formats secondary text.
func Dim(s string) string { return wrap(dim, s) }

// Kind colors an outcome kind: green for success, yellow for retriable
// errors and red for fatal ones.
func Kind(k model.Kind) string {
	switch k {
	case model.KindSuccess:
		return Success(string(k))
	case model.KindRetriableError:
		return Warning(string(k))
	default:
		return Error(string(k))
	}
}
