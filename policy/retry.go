package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quayside/courier/backoff"
)

const (
	defaultRetryMaxAttempts = 3
	defaultRetryBaseBackoff = 100 * time.Millisecond
)

// RetryConfig controls a retry policy.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int
	// BaseBackoff is the base delay; attempt n waits a jittered value in
	// [0, BaseBackoff * 2^n).
	BaseBackoff time.Duration
	// RetryIf, when set, reports whether an error is a transient fault
	// worth retrying. When nil every fault is retried, bounded by
	// MaxAttempts. Cancellation and deadline faults are never retried
	// regardless of this classifier.
	RetryIf func(err error) bool
}

func (cfg *RetryConfig) normalize() {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultRetryMaxAttempts
	}

	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultRetryBaseBackoff
	}
}

// Retry re-executes a wrapped operation on transient faults.
type Retry struct {
	name string
	cfg  RetryConfig
}

var _ Policy = (*Retry)(nil)

// NewRetry creates a named retry policy.
func NewRetry(name string, cfg RetryConfig) *Retry {
	cfg.normalize()

	return &Retry{name: name, cfg: cfg}
}

// Name returns the registered policy name.
func (retry *Retry) Name() string {
	return retry.name
}

// Execute runs op up to MaxAttempts times. A timeout or cancellation is a
// caller signal, not a transient fault of the wrapped call, so it
// propagates immediately without further attempts.
func (retry *Retry) Execute(ctx context.Context, op Operation) error {
	if op == nil {
		return ErrOperationRequired
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var lastErr error

	for attempt := 0; attempt < retry.cfg.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if !retry.shouldRetry(ctx, lastErr) || attempt == retry.cfg.MaxAttempts-1 {
			break
		}

		delay := backoff.ExponentialWithJitter(retry.cfg.BaseBackoff, attempt)
		if waitErr := backoff.WaitContext(ctx, delay); waitErr != nil {
			return fmt.Errorf("retry wait interrupted: %w", waitErr)
		}
	}

	return lastErr
}

func (retry *Retry) shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if retry.cfg.RetryIf != nil && !retry.cfg.RetryIf(err) {
		return false
	}

	return true
}
