// Package logging defines the leveled structured logger consumed by the
// ingestion core. Hosts may supply their own implementation; the default
// writes key=value lines through the standard library logger.
package logging

import (
	"fmt"
	"log"
	"strings"
)

// Logger is a leveled structured logger. Fields are alternating key/value
// pairs; a trailing key without a value is ignored.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
}

// StdLogger writes to the standard library logger with a level prefix.
type StdLogger struct{}

// NewStdLogger returns a Logger backed by the stdlib log package.
func NewStdLogger() *StdLogger { return &StdLogger{} }

func (l *StdLogger) Debug(msg string, fields ...any) { l.print("DEBUG", msg, fields) }
func (l *StdLogger) Info(msg string, fields ...any)  { l.print("INFO", msg, fields) }
func (l *StdLogger) Warn(msg string, fields ...any)  { l.print("WARN", msg, fields) }
func (l *StdLogger) Error(msg string, fields ...any) { l.print("ERROR", msg, fields) }

func (l *StdLogger) print(level, msg string, fields []any) {
	if len(fields) == 0 {
		log.Printf("%s %s", level, msg)
		return
	}
	var b strings.Builder
	for i := 0; i+1 < len(fields); i += 2 {
		fmt.Fprintf(&b, " %v=%v", fields[i], fields[i+1])
	}
	log.Printf("%s %s%s", level, msg, b.String())
}

// Nop discards all log output. Useful default for tests.
type Nop struct{}

func (Nop) Debug(string, ...any) {}
func (Nop) Info(string, ...any)  {}
func (Nop) Warn(string, ...any)  {}
func (Nop) Error(string, ...any) {}
