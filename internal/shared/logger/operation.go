package logger

import (
	"context"
	"log/slog"
	"time"
)

// Operation tracks one unit of background work (a sweep, a load, a snapshot)
// from start to outcome. Every line it emits carries the same "operation"
// attribute plus whatever context was active at start, so entries from one
// run correlate in aggregated logs.
type Operation struct {
	log     *Logger
	name    string
	started time.Time
}

// StartOp opens an operation scope. Context attributes are captured once,
// here; later log lines reuse them even if the caller's context changes.
func (l *Logger) StartOp(ctx context.Context, name string, args ...any) *Operation {
	scoped := l.WithContext(ctx).With(slog.String("operation", name))
	scoped.Debug("operation started", args...)

	return &Operation{
		log:     scoped,
		name:    name,
		started: time.Now(),
	}
}

// Complete closes the scope with the measured duration at info level.
func (op *Operation) Complete(msg string, args ...any) {
	if msg == "" {
		msg = op.name + " completed"
	}
	op.log.Info(msg, withDuration(op.started, args)...)
}

// Fail closes the scope at error level.
func (op *Operation) Fail(err error, msg string, args ...any) {
	if msg == "" {
		msg = op.name + " failed"
	}
	attrs := append([]any{slog.String("error", err.Error())}, args...)
	op.log.Error(msg, withDuration(op.started, attrs)...)
}

// Progress emits an intermediate debug line without closing the scope.
func (op *Operation) Progress(msg string, args ...any) {
	op.log.Debug(msg, withDuration(op.started, args)...)
}

func withDuration(started time.Time, args []any) []any {
	return append([]any{slog.Duration("duration_ms", time.Since(started))}, args...)
}
