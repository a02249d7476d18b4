/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package logging

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const loggerNameSeparator = "."

// Logger provides logging API
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	DebugfContext(ctx context.Context, format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	InfofContext(ctx context.Context, format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	WarnfContext(ctx context.Context, format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	ErrorfContext(ctx context.Context, format string, args ...interface{})
	Named(name string) Logger
	With(keysAndValues ...interface{}) Logger
	IsEnabledFor(level zapcore.Level) bool
}

// MustGetLogger returns a logger whose name is the dot-joined list of the passed parts.
// Loggers can be created before Init is called: they pick up the active configuration lazily.
func MustGetLogger(parts ...string) Logger {
	return &zapLogger{s: zap.New(&proxyCore{}, zap.AddCaller(), zap.AddCallerSkip(1)).Named(loggerName(parts...)).Sugar()}
}

func loggerName(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if len(p) != 0 {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, loggerNameSeparator)
}

type zapLogger struct {
	s *zap.SugaredLogger
}

func (l *zapLogger) Debug(args ...interface{})                 { l.s.Debug(args...) }
func (l *zapLogger) Debugf(format string, args ...interface{}) { l.s.Debugf(format, args...) }
func (l *zapLogger) Info(args ...interface{})                  { l.s.Info(args...) }
func (l *zapLogger) Infof(format string, args ...interface{})  { l.s.Infof(format, args...) }
func (l *zapLogger) Warn(args ...interface{})                  { l.s.Warn(args...) }
func (l *zapLogger) Warnf(format string, args ...interface{})  { l.s.Warnf(format, args...) }
func (l *zapLogger) Error(args ...interface{})                 { l.s.Error(args...) }
func (l *zapLogger) Errorf(format string, args ...interface{}) { l.s.Errorf(format, args...) }

func (l *zapLogger) DebugfContext(ctx context.Context, format string, args ...interface{}) {
	l.withSpan(ctx).Debugf(format, args...)
}

func (l *zapLogger) InfofContext(ctx context.Context, format string, args ...interface{}) {
	l.withSpan(ctx).Infof(format, args...)
}

func (l *zapLogger) WarnfContext(ctx context.Context, format string, args ...interface{}) {
	l.withSpan(ctx).Warnf(format, args...)
}

func (l *zapLogger) ErrorfContext(ctx context.Context, format string, args ...interface{}) {
	l.withSpan(ctx).Errorf(format, args...)
}

func (l *zapLogger) Named(name string) Logger {
	return &zapLogger{s: l.s.Named(name)}
}

func (l *zapLogger) With(keysAndValues ...interface{}) Logger {
	return &zapLogger{s: l.s.With(keysAndValues...)}
}

func (l *zapLogger) IsEnabledFor(level zapcore.Level) bool {
	return l.s.Desugar().Core().Enabled(level)
}

// withSpan decorates the entry with the trace id of the span carried by ctx, if any
func (l *zapLogger) withSpan(ctx context.Context) *zap.SugaredLogger {
	if ctx == nil {
		return l.s
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l.s
	}
	return l.s.With("trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
}
