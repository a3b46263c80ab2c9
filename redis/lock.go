package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"

	"github.com/quayside/courier"
	"github.com/quayside/courier/internal/nilcheck"
	"github.com/quayside/courier/log"
)

const maxLockTries = 1000

var (
	// ErrNilClient is returned when the lock manager is built without a client.
	ErrNilClient = errors.New("redis client is nil")
	// ErrNilLockManager is returned when a method is called on a nil LockManager.
	ErrNilLockManager = errors.New("lock manager is nil")
	// ErrNilLockHandle is returned when a nil or uninitialized lock handle is used.
	ErrNilLockHandle = errors.New("lock handle is nil or not initialized")
	// ErrLockNotHeld is returned when unlock is called on a lock that was not held or already expired.
	ErrLockNotHeld = errors.New("lock was not held or already expired")
	// ErrNilLockFn is returned when a nil function is passed to WithLock.
	ErrNilLockFn = errors.New("lock function is nil")
	// ErrEmptyLockKey is returned when an empty lock key is provided.
	ErrEmptyLockKey = errors.New("lock key cannot be empty")
	// ErrLockExpiryInvalid is returned when lock expiry is not positive.
	ErrLockExpiryInvalid = errors.New("lock expiry must be greater than 0")
	// ErrLockTriesInvalid is returned when lock tries is less than 1.
	ErrLockTriesInvalid = errors.New("lock tries must be at least 1")
	// ErrLockTriesExceeded is returned when lock tries exceeds the maximum.
	ErrLockTriesExceeded = errors.New("lock tries exceeds maximum")
	// ErrLockRetryDelayNegative is returned when retry delay is negative.
	ErrLockRetryDelayNegative = errors.New("lock retry delay cannot be negative")
	// ErrLockDriftFactorInvalid is returned when drift factor is outside [0, 1).
	ErrLockDriftFactorInvalid = errors.New("lock drift factor must be between 0 (inclusive) and 1 (exclusive)")
)

// LockManager provides distributed locking using Redis and the RedLock
// algorithm. It implements courier.Locker, so any component that needs
// cluster-wide mutual exclusion (the outbox sweeper in particular) can
// take it by interface.
//
// Thread-safe: multiple goroutines can share one LockManager.
type LockManager struct {
	redsync *redsync.Redsync
	logger  log.Logger
}

var _ courier.Locker = (*LockManager)(nil)

// LockOptions configures lock behavior for advanced use cases.
// Use DefaultLockOptions() for sensible defaults.
type LockOptions struct {
	// Expiry is how long the lock is held before auto-expiring, which
	// bounds the damage of a crashed holder.
	Expiry time.Duration

	// Tries is the number of acquisition attempts before giving up.
	Tries int

	// RetryDelay is the delay between retry attempts.
	RetryDelay time.Duration

	// DriftFactor accounts for clock drift between Redis nodes.
	DriftFactor float64
}

// DefaultLockOptions returns lock defaults tuned for sweep-style work:
// operations completing within seconds and an expiry long enough to
// cover a full batch dispatch.
func DefaultLockOptions() LockOptions {
	return LockOptions{
		Expiry:      10 * time.Second,
		Tries:       3,
		RetryDelay:  500 * time.Millisecond,
		DriftFactor: 0.01,
	}
}

// lockHandle wraps a redsync.Mutex behind courier.LockHandle.
type lockHandle struct {
	mutex  *redsync.Mutex
	logger log.Logger
}

// Unlock releases the distributed lock.
func (handle *lockHandle) Unlock(ctx context.Context) error {
	if handle == nil || handle.mutex == nil {
		return ErrNilLockHandle
	}

	ok, err := handle.mutex.UnlockContext(ctx)
	if err != nil {
		handle.logger.Log(ctx, log.LevelError, "failed to release lock", log.Err(err))

		return fmt.Errorf("distributed lock: unlock: %w", err)
	}

	if !ok {
		handle.logger.Log(ctx, log.LevelWarn, "lock was not held or already expired")

		return ErrLockNotHeld
	}

	return nil
}

// NewLockManager creates a distributed lock manager on top of an
// established Redis client.
func NewLockManager(client goredislib.UniversalClient, logger log.Logger) (*LockManager, error) {
	if nilcheck.Interface(client) {
		return nil, ErrNilClient
	}

	if nilcheck.Interface(logger) {
		logger = log.NewNop()
	}

	return &LockManager{
		redsync: redsync.New(goredis.NewPool(client)),
		logger:  logger,
	}, nil
}

// TryLock attempts to acquire a lock with a single attempt.
// It returns the handle and true when the lock was acquired, and
// (nil, false, nil) when another holder owns it: contention is an
// expected outcome, not an error. Errors are reserved for real
// failures such as network problems or context cancellation.
func (manager *LockManager) TryLock(ctx context.Context, lockKey string) (courier.LockHandle, bool, error) {
	if manager == nil || manager.redsync == nil {
		return nil, false, ErrNilLockManager
	}

	if strings.TrimSpace(lockKey) == "" {
		return nil, false, ErrEmptyLockKey
	}

	safeLockKey := safeLockKeyForLogs(lockKey)

	mutex := manager.redsync.NewMutex(
		lockKey,
		redsync.WithExpiry(DefaultLockOptions().Expiry),
		redsync.WithTries(1),
	)

	if err := mutex.LockContext(ctx); err != nil {
		// redsync signals contention with ErrFailed-wrapped errors whose
		// messages vary across versions; match both forms.
		errMsg := err.Error()
		isContention := errors.Is(err, redsync.ErrFailed) ||
			strings.Contains(errMsg, "lock already taken") ||
			strings.Contains(errMsg, "failed to acquire lock")

		if isContention {
			manager.logger.Log(ctx, log.LevelDebug, "lock already held by another process",
				log.String("lock_key", safeLockKey),
			)

			return nil, false, nil
		}

		return nil, false, fmt.Errorf("failed to attempt lock acquisition for %s: %w", safeLockKey, err)
	}

	manager.logger.Log(ctx, log.LevelDebug, "lock acquired", log.String("lock_key", safeLockKey))

	return &lockHandle{mutex: mutex, logger: manager.logger}, true, nil
}

// WithLock executes fn while holding a distributed lock, retrying
// acquisition per DefaultLockOptions. The lock is released when fn
// returns, even on panic.
func (manager *LockManager) WithLock(ctx context.Context, lockKey string, fn func(context.Context) error) error {
	return manager.WithLockOptions(ctx, lockKey, DefaultLockOptions(), fn)
}

// WithLockOptions executes fn while holding a distributed lock with
// custom options.
func (manager *LockManager) WithLockOptions(ctx context.Context, lockKey string, opts LockOptions, fn func(context.Context) error) error {
	if manager == nil || manager.redsync == nil {
		return ErrNilLockManager
	}

	if fn == nil {
		return ErrNilLockFn
	}

	if strings.TrimSpace(lockKey) == "" {
		return ErrEmptyLockKey
	}

	if err := validateLockOptions(opts); err != nil {
		return err
	}

	safeLockKey := safeLockKeyForLogs(lockKey)

	mutex := manager.redsync.NewMutex(
		lockKey,
		redsync.WithExpiry(opts.Expiry),
		redsync.WithTries(opts.Tries),
		redsync.WithRetryDelay(opts.RetryDelay),
		redsync.WithDriftFactor(opts.DriftFactor),
	)

	if err := mutex.LockContext(ctx); err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", safeLockKey, err)
	}

	defer func() {
		if ok, err := mutex.UnlockContext(ctx); !ok || err != nil {
			manager.logger.Log(ctx, log.LevelError, "failed to release lock",
				log.String("lock_key", safeLockKey),
				log.Bool("unlock_ok", ok),
				log.Err(err),
			)
		}
	}()

	if err := fn(ctx); err != nil {
		return fmt.Errorf("distributed lock: function execution: %w", err)
	}

	return nil
}

func validateLockOptions(opts LockOptions) error {
	if opts.Expiry <= 0 {
		return ErrLockExpiryInvalid
	}

	if opts.Tries < 1 {
		return ErrLockTriesInvalid
	}

	if opts.Tries > maxLockTries {
		return ErrLockTriesExceeded
	}

	if opts.RetryDelay < 0 {
		return ErrLockRetryDelayNegative
	}

	if opts.DriftFactor < 0 || opts.DriftFactor >= 1 {
		return ErrLockDriftFactorInvalid
	}

	return nil
}

// safeLockKeyForLogs quotes and truncates a lock key so arbitrary
// caller-supplied keys cannot mangle log output.
func safeLockKeyForLogs(lockKey string) string {
	const maxLockKeyLogLength = 128

	safeLockKey := strconv.QuoteToASCII(lockKey)
	if len(safeLockKey) <= maxLockKeyLogLength {
		return safeLockKey
	}

	return safeLockKey[:maxLockKeyLogLength] + "...(truncated)"
}
