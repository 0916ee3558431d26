package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDebugLogger(t *testing.T) {
	t.Parallel()

	logger := NewDebugLogger()
	logger.Debug("debug message")
	logger.Infof("info %s", "message")
	logger.Warn("warn message")
	logger.Error("error message")

	assert.Contains(t, logger.DebugMessages(), "debug message")
	assert.Contains(t, logger.InfoMessages(), "info message")
	assert.NotContains(t, logger.InfoMessages(), "warn message")
	assert.Contains(t, logger.WarnAndErrorMessages(), "warn message")
	assert.Contains(t, logger.WarnAndErrorMessages(), "error message")

	logger.Truncate()
	assert.Empty(t, logger.AllMessages())
}

func TestDebugLoggerPrefix(t *testing.T) {
	t.Parallel()

	logger := NewDebugLogger()
	child := logger.AddPrefix("[claim]")
	child.Info("claimed")

	// The child logger writes to the parent buffer
	assert.Contains(t, logger.AllMessages(), "[claim]")
	assert.Contains(t, logger.AllMessages(), "claimed")
}
