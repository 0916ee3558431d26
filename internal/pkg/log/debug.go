package log

import (
	"bufio"
	"bytes"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// debugLogger implements DebugLogger, messages are kept in memory for assertions.
type debugLogger struct {
	*zapLogger
	buffer *safeBuffer
}

// safeBuffer guards the underlying buffer, loggers may be used from multiple goroutines.
type safeBuffer struct {
	lock   sync.Mutex
	buffer bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buffer.Write(p)
}

func (b *safeBuffer) String() string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buffer.String()
}

func (b *safeBuffer) Reset() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.buffer.Reset()
}

func NewDebugLogger() DebugLogger {
	buffer := &safeBuffer{}
	encoder := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		LevelKey:       "level",
		NameKey:        "prefix",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeName:     zapcore.FullNameEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	})
	core := zapcore.NewCore(encoder, zapcore.AddSync(buffer), zap.NewAtomicLevelAt(DebugLevel))
	return &debugLogger{zapLogger: loggerFromZapCore(core), buffer: buffer}
}

func (l *debugLogger) AddPrefix(prefix string) Logger {
	return &debugLogger{zapLogger: l.zapLogger.AddPrefix(prefix).(*zapLogger), buffer: l.buffer}
}

func (l *debugLogger) Truncate() {
	l.buffer.Reset()
}

func (l *debugLogger) AllMessages() string {
	return l.buffer.String()
}

func (l *debugLogger) DebugMessages() string {
	return l.levelMessages("DEBUG")
}

func (l *debugLogger) InfoMessages() string {
	return l.levelMessages("INFO")
}

func (l *debugLogger) WarnMessages() string {
	return l.levelMessages("WARN")
}

func (l *debugLogger) ErrorMessages() string {
	return l.levelMessages("ERROR")
}

func (l *debugLogger) WarnAndErrorMessages() string {
	return l.levelMessages("WARN", "ERROR")
}

func (l *debugLogger) levelMessages(levels ...string) string {
	var out strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(l.AllMessages()))
	for scanner.Scan() {
		line := scanner.Text()
		for _, level := range levels {
			if strings.HasPrefix(line, level+"\t") {
				out.WriteString(line)
				out.WriteString("\n")
				break
			}
		}
	}
	return out.String()
}
