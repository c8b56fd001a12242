// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package xlog is the engine's ambient logging layer: a minimal leveled
// Logger interface, a filter that drops records below a configured level,
// and a Helper offering printf-style convenience methods, mirroring the
// call shape block format consumers expect (NewStdLogger, NewFilter,
// FilterLevel, NewHelper).
package xlog

import (
	"fmt"
	"io"
	"log"
	"time"
)

// Level orders log severities from most to least verbose.
type Level int

const (
	// LevelDebug is the most verbose level.
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger is the minimal sink every filter/helper writes through.
type Logger interface {
	Log(level Level, msg string) error
}

// stdLogger writes timestamped, leveled lines to an underlying io.Writer
// via the standard library's log package.
type stdLogger struct {
	std *log.Logger
}

// NewStdLogger wraps w as a Logger, formatting each record with a
// timestamp via the standard library's log package.
func NewStdLogger(w io.Writer) Logger {
	return &stdLogger{std: log.New(w, "", 0)}
}

func (l *stdLogger) Log(level Level, msg string) error {
	l.std.Printf("%s [%s] %s", time.Now().Format(time.RFC3339), level, msg)
	return nil
}

// FilterLevel configures the minimum level a Filter passes through.
type FilterLevel Level

// filterLogger drops any record below its configured minimum level before
// forwarding to the underlying Logger.
type filterLogger struct {
	next Logger
	min  Level
}

// NewFilter wraps next, dropping records below the level(s) supplied. Only
// the last FilterLevel option is honored, matching the variadic
// configuration shape this mirrors.
func NewFilter(next Logger, opts ...FilterLevel) Logger {
	f := &filterLogger{next: next, min: LevelDebug}
	for _, o := range opts {
		f.min = Level(o)
	}
	return f
}

func (f *filterLogger) Log(level Level, msg string) error {
	if level < f.min {
		return nil
	}
	return f.next.Log(level, msg)
}

// Helper offers printf-style convenience methods over a Logger.
type Helper struct {
	logger Logger
}

// NewHelper wraps logger for Debugf/Infof/Warnf/Errorf-style calls.
func NewHelper(logger Logger) *Helper {
	return &Helper{logger: logger}
}

// Debugf logs a formatted message at LevelDebug.
func (h *Helper) Debugf(format string, args ...interface{}) {
	h.logger.Log(LevelDebug, fmt.Sprintf(format, args...))
}

// Infof logs a formatted message at LevelInfo.
func (h *Helper) Infof(format string, args ...interface{}) {
	h.logger.Log(LevelInfo, fmt.Sprintf(format, args...))
}

// Warnf logs a formatted message at LevelWarn.
func (h *Helper) Warnf(format string, args ...interface{}) {
	h.logger.Log(LevelWarn, fmt.Sprintf(format, args...))
}

// Errorf logs a formatted message at LevelError.
func (h *Helper) Errorf(format string, args ...interface{}) {
	h.logger.Log(LevelError, fmt.Sprintf(format, args...))
}
