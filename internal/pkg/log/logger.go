package log

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapLogger is the default implementation of the Logger interface.
// It wraps zap.SugaredLogger, a prefix is carried by the logger name.
type zapLogger struct {
	*zap.SugaredLogger
	core   zapcore.Core
	prefix string
}

func loggerFromZapCore(core zapcore.Core) *zapLogger {
	return &zapLogger{SugaredLogger: zap.New(core).Sugar(), core: core}
}

func (l *zapLogger) AddPrefix(prefix string) Logger {
	clone := &zapLogger{core: l.core, prefix: l.prefix + prefix}
	clone.SugaredLogger = zap.New(l.core).Sugar().Named(clone.prefix)
	return clone
}

// NewServiceLogger creates a logger for a service process,
// messages are written to the writer using the console encoder.
func NewServiceLogger(writer io.Writer, verbose bool) Logger {
	minLevel := InfoLevel
	if verbose {
		minLevel = DebugLevel
	}

	encoder := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "prefix",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	})

	core := zapcore.NewCore(encoder, zapcore.AddSync(writer), zap.NewAtomicLevelAt(minLevel))
	return loggerFromZapCore(core)
}

// NewNopLogger drops all messages.
func NewNopLogger() Logger {
	return loggerFromZapCore(zapcore.NewNopCore())
}
