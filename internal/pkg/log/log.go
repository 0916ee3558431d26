// Package log provides the project logger as a thin wrapper over zap.
package log

import (
	"go.uber.org/zap/zapcore"
)

const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
)

type Logger interface {
	Debug(args ...any)
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)
	Debugf(template string, args ...any)
	Infof(template string, args ...any)
	Warnf(template string, args ...any)
	Errorf(template string, args ...any)

	// AddPrefix returns a child logger, all messages are prefixed, e.g. "[claim]".
	AddPrefix(prefix string) Logger

	Sync() error
}

// DebugLogger captures all messages, it is used in tests.
type DebugLogger interface {
	Logger
	Truncate()
	AllMessages() string
	DebugMessages() string
	InfoMessages() string
	WarnMessages() string
	ErrorMessages() string
	WarnAndErrorMessages() string
}
