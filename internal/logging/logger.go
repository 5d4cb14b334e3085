// Package logging wraps zap behind the teacher's call shape
// (logger.Info(msg, fields)) so every call site in the pipeline reads the
// same regardless of which structured-logging library backs it.
package logging

import (
	"go.uber.org/zap"
)

// Logger is a thin adapter over a *zap.SugaredLogger.
type Logger struct {
	sugar   *zap.SugaredLogger
	Service string
}

// New builds a Logger for the named service using zap's JSON encoder.
func New(service string) *Logger {
	return newWithCore(service, false)
}

// NewDevelopment builds a Logger using zap's human-readable console encoder.
func NewDevelopment(service string) *Logger {
	return newWithCore(service, true)
}

func newWithCore(service string, development bool) *Logger {
	var base *zap.Logger
	var err error
	if development {
		base, err = zap.NewDevelopment()
	} else {
		base, err = zap.NewProduction()
	}
	if err != nil {
		// Neither built-in preset can actually fail, but fall back to a
		// no-op logger rather than panic if this ever changes.
		base = zap.NewNop()
	}
	return &Logger{
		sugar:   base.Sugar().With("service", service),
		Service: service,
	}
}

// Info logs an informational message with structured fields.
func (l *Logger) Info(msg string, fields map[string]any) {
	l.sugar.Infow(msg, flatten(fields)...)
}

// Error logs an error-level message with structured fields.
func (l *Logger) Error(msg string, fields map[string]any) {
	l.sugar.Errorw(msg, flatten(fields)...)
}

// Warn logs a warning-level message with structured fields.
func (l *Logger) Warn(msg string, fields map[string]any) {
	l.sugar.Warnw(msg, flatten(fields)...)
}

// Sync flushes any buffered log entries. Call before process exit.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

func flatten(fields map[string]any) []any {
	out := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}
