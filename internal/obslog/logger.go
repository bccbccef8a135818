// Package obslog provides the small logging wrapper used across the core.
// It mirrors the teacher repo's plain log.Logger usage rather than pulling
// in a structured logging library — see DESIGN.md for why.
package obslog

import (
	"fmt"
	"log"
	"os"
)

// Logger writes leveled, component-prefixed lines to stdout/stderr.
type Logger struct {
	component string
	info      *log.Logger
	errl      *log.Logger
}

// New creates a Logger for the named component (e.g. "eventstore", "saga").
func New(component string) *Logger {
	return &Logger{
		component: component,
		info:      log.New(os.Stdout, fmt.Sprintf("INFO  [%s] ", component), log.LstdFlags),
		errl:      log.New(os.Stderr, fmt.Sprintf("ERROR [%s] ", component), log.LstdFlags),
	}
}

// Info logs an informational message with printf-style formatting.
func (l *Logger) Info(format string, args ...any) {
	l.info.Printf(format, args...)
}

// Error logs an error-level message with printf-style formatting.
func (l *Logger) Error(format string, args ...any) {
	l.errl.Printf(format, args...)
}

// With returns a new Logger scoped to a sub-component, e.g.
// base.With("postgres") logs as "[eventstore.postgres]".
func (l *Logger) With(sub string) *Logger {
	return New(l.component + "." + sub)
}
