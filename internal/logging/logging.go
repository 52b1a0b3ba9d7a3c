// Package logging is a small leveled wrapper over the standard
// library's log package, used by cli for operational messages that are not part of the host protocol
// contract (spec.md §6) — protocol status strings are data, never
// routed through here.
//
// cidrx itself never reaches for a third-party logging library
// (cli/api.go uses only "log" and "fmt"); this package keeps that
// ambient choice rather than introducing one, see DESIGN.md.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Level orders log severities.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger is a leveled wrapper around a single *log.Logger.
type Logger struct {
	level Level
	out   *log.Logger
}

// New builds a Logger writing to w, filtering messages below level.
func New(w io.Writer, level Level) *Logger {
	return &Logger{level: level, out: log.New(w, "", log.LstdFlags)}
}

// Default returns a Logger at LevelInfo writing to stderr, the
// ambient choice for the cli entry points.
func Default() *Logger {
	return New(os.Stderr, LevelInfo)
}

func (l *Logger) logf(level Level, prefix, format string, args ...any) {
	if level < l.level {
		return
	}
	l.out.Output(3, prefix+": "+fmt.Sprintf(format, args...))
}

func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, "DEBUG", format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.logf(LevelInfo, "INFO", format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.logf(LevelWarn, "WARN", format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, "ERROR", format, args...) }
