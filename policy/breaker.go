package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig controls a circuit breaker policy.
type BreakerConfig struct {
	// ConsecutiveFailures is the fault threshold that opens the circuit.
	ConsecutiveFailures uint32
	// Interval is the closed-state window over which counts accumulate.
	Interval time.Duration
	// Cooldown is how long the circuit stays open before half-opening to
	// probe.
	Cooldown time.Duration
	// HalfOpenMaxRequests caps probe requests in the half-open state.
	HalfOpenMaxRequests uint32
}

// DefaultBreakerConfig provides balanced settings for transport sends.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		ConsecutiveFailures: 5,
		Interval:            2 * time.Minute,
		Cooldown:            30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

func (cfg *BreakerConfig) normalize() {
	defaults := DefaultBreakerConfig()

	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = defaults.ConsecutiveFailures
	}

	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}

	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaults.Cooldown
	}

	if cfg.HalfOpenMaxRequests == 0 {
		cfg.HalfOpenMaxRequests = defaults.HalfOpenMaxRequests
	}
}

// Breaker fast-fails calls while its circuit is open, without invoking the
// wrapped operation, and half-opens after the cooldown to probe recovery.
type Breaker struct {
	name    string
	breaker *gobreaker.CircuitBreaker
}

var _ Policy = (*Breaker)(nil)

// NewBreaker creates a named circuit breaker policy.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	cfg.normalize()

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenMaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
	}

	return &Breaker{
		name:    name,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Name returns the registered policy name.
func (breaker *Breaker) Name() string {
	return breaker.name
}

// Execute runs op through the circuit. An open circuit surfaces
// ErrCircuitOpen immediately.
func (breaker *Breaker) Execute(ctx context.Context, op Operation) error {
	if op == nil {
		return ErrOperationRequired
	}

	if ctx == nil {
		ctx = context.Background()
	}

	_, err := breaker.breaker.Execute(func() (any, error) {
		return nil, op(ctx)
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s: %w", ErrCircuitOpen, breaker.name, err)
	}

	return err
}

// State reports the circuit state for introspection and health surfaces.
func (breaker *Breaker) State() gobreaker.State {
	return breaker.breaker.State()
}
