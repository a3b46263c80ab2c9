//go:build unit

package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_SucceedsAfterTransientFaults(t *testing.T) {
	retry := NewRetry("retry", RetryConfig{MaxAttempts: 3, BaseBackoff: time.Millisecond})

	attempts := 0

	err := retry.Execute(context.Background(), func(_ context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	retry := NewRetry("retry", RetryConfig{MaxAttempts: 3, BaseBackoff: time.Millisecond})

	attempts := 0
	fault := errors.New("still down")

	err := retry.Execute(context.Background(), func(_ context.Context) error {
		attempts++

		return fault
	})

	require.ErrorIs(t, err, fault)
	assert.Equal(t, 3, attempts)
}

func TestRetry_NeverRetriesCancellation(t *testing.T) {
	retry := NewRetry("retry", RetryConfig{MaxAttempts: 5, BaseBackoff: time.Millisecond})

	attempts := 0

	err := retry.Execute(context.Background(), func(_ context.Context) error {
		attempts++

		return context.Canceled
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestRetry_NeverRetriesDeadlineExceeded(t *testing.T) {
	retry := NewRetry("retry", RetryConfig{MaxAttempts: 5, BaseBackoff: time.Millisecond})

	attempts := 0

	err := retry.Execute(context.Background(), func(_ context.Context) error {
		attempts++

		return context.DeadlineExceeded
	})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, attempts)
}

func TestRetry_StopsWhenContextCancelled(t *testing.T) {
	retry := NewRetry("retry", RetryConfig{MaxAttempts: 5, BaseBackoff: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0

	err := retry.Execute(ctx, func(_ context.Context) error {
		attempts++
		cancel()

		return errors.New("transient")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts, "a cancelled caller must not trigger more attempts")
}

func TestRetry_RetryIfClassifier(t *testing.T) {
	permanent := errors.New("permanent fault")

	retry := NewRetry("retry", RetryConfig{
		MaxAttempts: 5,
		BaseBackoff: time.Millisecond,
		RetryIf: func(err error) bool {
			return !errors.Is(err, permanent)
		},
	})

	attempts := 0

	err := retry.Execute(context.Background(), func(_ context.Context) error {
		attempts++

		return permanent
	})

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestRetry_NilOperation(t *testing.T) {
	retry := NewRetry("retry", RetryConfig{})

	require.ErrorIs(t, retry.Execute(context.Background(), nil), ErrOperationRequired)
}

func TestRetryConfig_Defaults(t *testing.T) {
	retry := NewRetry("defaults", RetryConfig{})

	assert.Equal(t, defaultRetryMaxAttempts, retry.cfg.MaxAttempts)
	assert.Equal(t, defaultRetryBaseBackoff, retry.cfg.BaseBackoff)
}
