package calculation

import "context"

// Logger is the logging surface the engine needs. The CLI backs it with
// zerolog; tests and library callers can leave the no-op default.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any) {}
func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Warnf(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}

// ContextLogger is a Logger that can bind request-scoped fields, such as the
// active trace, to the lines it writes.
type ContextLogger interface {
	Logger
	WithContext(ctx context.Context) Logger
}

// loggerFor returns the engine's logger scoped to ctx when it supports that.
func (ce *CoverageEngine) loggerFor(ctx context.Context) Logger {
	switch l := ce.Logger.(type) {
	case nil:
		return NopLogger{}
	case ContextLogger:
		return l.WithContext(ctx)
	default:
		return l
	}
}
