// Package logging configures zerolog for the coverage commands and adapts it
// to the printf-style Logger the calculation packages accept.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/clinicops/coverage/internal/calculation"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// New builds a logger for service. Development output is human readable;
// every other environment gets JSON with timestamps and callers.
func New(out io.Writer, serviceName, env, level string) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if env == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Str("service", serviceName).
			Logger()
	} else {
		logger = zerolog.New(out).
			With().
			Timestamp().
			Caller().
			Str("service", serviceName).
			Logger()
	}
	return logger.Level(lvl)
}

// WithTrace adds the active span's trace and span ids, if any.
func WithTrace(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return logger
	}
	return logger.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
}

// Adapter exposes a zerolog.Logger through Debugf/Infof/Warnf/Errorf.
type Adapter struct {
	logger zerolog.Logger
}

// NewAdapter wraps logger.
func NewAdapter(logger zerolog.Logger) *Adapter {
	return &Adapter{logger: logger}
}

// WithContext returns an adapter whose lines carry ctx's trace and span ids.
func (a *Adapter) WithContext(ctx context.Context) calculation.Logger {
	return NewAdapter(WithTrace(ctx, a.logger))
}

func (a *Adapter) Debugf(format string, args ...any) {
	a.logger.Debug().Msg(fmt.Sprintf(format, args...))
}

func (a *Adapter) Infof(format string, args ...any) {
	a.logger.Info().Msg(fmt.Sprintf(format, args...))
}

func (a *Adapter) Warnf(format string, args ...any) {
	a.logger.Warn().Msg(fmt.Sprintf(format, args...))
}

func (a *Adapter) Errorf(format string, args ...any) {
	a.logger.Error().Msg(fmt.Sprintf(format, args...))
}
