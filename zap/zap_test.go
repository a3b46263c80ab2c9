//go:build unit

package zap

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	logpkg "github.com/quayside/courier/log"
)

func newObservedLogger(t *testing.T, level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	t.Helper()

	core, logs := observer.New(level)

	return NewFrom(zap.New(core)), logs
}

func TestLogger_LogLevels(t *testing.T) {
	logger, logs := newObservedLogger(t, zapcore.DebugLevel)

	logger.Log(context.Background(), logpkg.LevelDebug, "debug message")
	logger.Log(context.Background(), logpkg.LevelInfo, "info message")
	logger.Log(context.Background(), logpkg.LevelWarn, "warn message")
	logger.Log(context.Background(), logpkg.LevelError, "error message")

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
}

func TestLogger_Fields(t *testing.T) {
	logger, logs := newObservedLogger(t, zapcore.InfoLevel)

	logger.Log(context.Background(), logpkg.LevelInfo, "with fields",
		logpkg.String("topic", "orders.placed"),
		logpkg.Int("attempts", 3),
	)

	entries := logs.All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, "orders.placed", fields["topic"])
	assert.EqualValues(t, 3, fields["attempts"])
}

func TestLogger_ErrField(t *testing.T) {
	logger, logs := newObservedLogger(t, zapcore.ErrorLevel)

	logger.Log(context.Background(), logpkg.LevelError, "failed", logpkg.Err(errors.New("boom")))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "boom", entries[0].ContextMap()["error"])
}

func TestLogger_With(t *testing.T) {
	logger, logs := newObservedLogger(t, zapcore.InfoLevel)

	child := logger.With(logpkg.String("component", "sweeper"))
	child.Log(context.Background(), logpkg.LevelInfo, "tick")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "sweeper", entries[0].ContextMap()["component"])
}

func TestLogger_Enabled(t *testing.T) {
	logger, _ := newObservedLogger(t, zapcore.WarnLevel)

	assert.True(t, logger.Enabled(logpkg.LevelError))
	assert.True(t, logger.Enabled(logpkg.LevelWarn))
	assert.False(t, logger.Enabled(logpkg.LevelInfo))
	assert.False(t, logger.Enabled(logpkg.LevelDebug))
}

func TestNewFrom_NilLoggerIsSafe(t *testing.T) {
	logger := NewFrom(nil)

	logger.Log(context.Background(), logpkg.LevelInfo, "dropped")
	require.NoError(t, logger.Sync(context.Background()))
}

func TestLogger_SyncRespectsCancelledContext(t *testing.T) {
	logger, _ := newObservedLogger(t, zapcore.InfoLevel)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, logger.Sync(ctx), context.Canceled)
}

func TestNew_RespectsLevel(t *testing.T) {
	logger, err := New(logpkg.LevelWarn)

	require.NoError(t, err)
	assert.False(t, logger.Enabled(logpkg.LevelInfo))
	assert.True(t, logger.Enabled(logpkg.LevelError))
}
