package outbox

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/otel/metric"
)

const (
	defaultSweepInterval     = 5 * time.Second
	defaultMinimumMessageAge = 5 * time.Second
	defaultBatchSize         = 100
	defaultLockKey           = "courier:outbox:sweeper"
)

// SweeperConfig controls sweep scheduling and batch behavior.
type SweeperConfig struct {
	// SweepInterval is the periodic interval between sweep attempts.
	SweepInterval time.Duration `env:"COURIER_SWEEPER_INTERVAL"`
	// MinimumMessageAge is how old a pending entry must be before the
	// sweeper re-dispatches it, leaving room for the original in-flight
	// send to complete.
	MinimumMessageAge time.Duration `env:"COURIER_SWEEPER_MIN_AGE"`
	// BatchSize is the max number of entries re-dispatched per sweep.
	BatchSize int `env:"COURIER_SWEEPER_BATCH_SIZE"`
	// Bulk sends the whole batch in one producer call when the producer
	// supports it.
	Bulk bool `env:"COURIER_SWEEPER_BULK"`
	// LockKey names the distributed lock resource serializing sweeps
	// across instances.
	LockKey string `env:"COURIER_SWEEPER_LOCK_KEY"`
	// MeterProvider overrides the default global meter provider when set.
	MeterProvider metric.MeterProvider `env:"-"`
}

// DefaultSweeperConfig returns the baseline sweeper configuration.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		SweepInterval:     defaultSweepInterval,
		MinimumMessageAge: defaultMinimumMessageAge,
		BatchSize:         defaultBatchSize,
		Bulk:              false,
		LockKey:           defaultLockKey,
	}
}

// SweeperConfigFromEnv loads the sweeper configuration from the
// environment on top of the defaults.
func SweeperConfigFromEnv() (SweeperConfig, error) {
	cfg := DefaultSweeperConfig()

	if err := env.Parse(&cfg); err != nil {
		return SweeperConfig{}, fmt.Errorf("parse sweeper config: %w", err)
	}

	cfg.normalize()

	return cfg, nil
}

func (cfg *SweeperConfig) normalize() {
	defaults := DefaultSweeperConfig()

	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}

	if cfg.MinimumMessageAge < 0 {
		cfg.MinimumMessageAge = defaults.MinimumMessageAge
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}

	if cfg.LockKey == "" {
		cfg.LockKey = defaults.LockKey
	}
}

// SweeperOption mutates sweeper configuration at construction.
type SweeperOption func(*Sweeper)

// WithSweepInterval sets the interval between sweep attempts.
func WithSweepInterval(interval time.Duration) SweeperOption {
	return func(sweeper *Sweeper) {
		if interval > 0 {
			sweeper.cfg.SweepInterval = interval
		}
	}
}

// WithMinimumMessageAge sets the age threshold for re-dispatch.
func WithMinimumMessageAge(age time.Duration) SweeperOption {
	return func(sweeper *Sweeper) {
		if age >= 0 {
			sweeper.cfg.MinimumMessageAge = age
		}
	}
}

// WithBatchSize sets the max entries re-dispatched per sweep.
func WithBatchSize(size int) SweeperOption {
	return func(sweeper *Sweeper) {
		if size > 0 {
			sweeper.cfg.BatchSize = size
		}
	}
}

// WithBulkDispatch toggles batch sends through a BulkMessageProducer.
func WithBulkDispatch(enabled bool) SweeperOption {
	return func(sweeper *Sweeper) {
		sweeper.cfg.Bulk = enabled
	}
}

// WithLockKey overrides the distributed lock resource name.
func WithLockKey(key string) SweeperOption {
	return func(sweeper *Sweeper) {
		if key != "" {
			sweeper.cfg.LockKey = key
		}
	}
}

// WithConfig replaces the whole configuration before other options apply.
func WithConfig(cfg SweeperConfig) SweeperOption {
	return func(sweeper *Sweeper) {
		cfg.normalize()
		sweeper.cfg = cfg
	}
}

// WithMeterProvider injects a custom meter provider for sweeper metrics.
func WithMeterProvider(provider metric.MeterProvider) SweeperOption {
	return func(sweeper *Sweeper) {
		sweeper.cfg.MeterProvider = provider
	}
}
