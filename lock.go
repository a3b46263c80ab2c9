package courier

import "context"

// LockHandle represents an acquired distributed lock lease. It is obtained
// from Locker.TryLock and must be released via Unlock.
type LockHandle interface {
	// Unlock releases the lease. Safe to call after expiry; the provider
	// reports the lease as no longer held.
	Unlock(ctx context.Context) error
}

// Locker is the cluster-wide mutual exclusion contract consumed by the
// outbox sweeper. TryLock makes a single acquisition attempt: the boolean
// reports whether the lease was obtained, and false with a nil error is
// the normal "held elsewhere" outcome, not a failure.
//
// The provider is expected to expire abandoned leases so a crashed holder
// cannot permanently starve other instances; the core only acquires and
// releases and never assumes holder liveness.
type Locker interface {
	TryLock(ctx context.Context, key string) (LockHandle, bool, error)
}
