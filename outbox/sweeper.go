package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/quayside/courier"
	"github.com/quayside/courier/internal/nilcheck"
	"github.com/quayside/courier/log"
	"github.com/quayside/courier/runtime"
)

// Sweeper batch-scans the outbox for stale pending entries and
// re-dispatches them through the producer. A cluster runs one sweeper per
// instance, but the distributed lock guarantees at most one instance
// performs the scan-and-dispatch on any given tick; the others observe
// the lock as unavailable and skip.
type Sweeper struct {
	store    Store
	producer courier.MessageProducer
	locker   courier.Locker
	logger   log.Logger
	tracer   trace.Tracer
	cfg      SweeperConfig

	// stop and the run/cancel state share runStateMu so a restart cannot
	// race a concurrent Stop.
	stop       chan struct{}
	runStateMu sync.Mutex
	running    bool
	cancelFunc context.CancelFunc
	sweepWg    sync.WaitGroup

	// sweepMu is the local re-entrancy guard: if a tick fires while the
	// previous sweep is still in flight, the new tick is skipped without
	// touching the distributed lock.
	sweepMu sync.Mutex

	metrics sweeperMetrics
}

// SweepResult captures one sweep cycle outcome.
type SweepResult struct {
	// Skipped is true when the distributed lock was held elsewhere or a
	// local sweep was still in flight; no dispatch was attempted.
	Skipped    bool
	Fetched    int
	Dispatched int
	Failed     int
}

// NewSweeper creates an outbox sweeper.
func NewSweeper(
	store Store,
	producer courier.MessageProducer,
	locker courier.Locker,
	logger log.Logger,
	tracer trace.Tracer,
	opts ...SweeperOption,
) (*Sweeper, error) {
	if nilcheck.Interface(store) {
		return nil, ErrStoreRequired
	}

	if nilcheck.Interface(producer) {
		return nil, ErrProducerRequired
	}

	if nilcheck.Interface(locker) {
		return nil, ErrLockerRequired
	}

	if nilcheck.Interface(logger) {
		logger = log.NewNop()
	}

	if nilcheck.Interface(tracer) {
		tracer = noop.NewTracerProvider().Tracer("courier.noop")
	}

	sweeper := &Sweeper{
		store:    store,
		producer: producer,
		locker:   locker,
		logger:   logger,
		tracer:   tracer,
		cfg:      DefaultSweeperConfig(),
		stop:     make(chan struct{}),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sweeper)
		}
	}

	sweeper.cfg.normalize()

	metrics, err := newSweeperMetrics(sweeper.cfg.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("init sweeper metrics: %w", err)
	}

	sweeper.metrics = metrics

	return sweeper, nil
}

// Run starts the sweep loop until Stop is called.
func (sweeper *Sweeper) Run() error {
	return sweeper.RunContext(context.Background())
}

// RunContext starts the sweep loop until Stop is called or ctx is
// cancelled. Only one loop may run per sweeper instance.
func (sweeper *Sweeper) RunContext(parentCtx context.Context) error {
	if sweeper == nil {
		return ErrSweeperRequired
	}

	if parentCtx == nil {
		parentCtx = context.Background()
	}

	ctx, cancel := context.WithCancel(parentCtx)

	stopCh, ok := sweeper.registerRun(cancel)
	if !ok {
		cancel()

		return ErrSweeperRunning
	}

	defer sweeper.clearRun()

	sweeper.logger.Log(ctx, log.LevelInfo, "outbox sweeper started",
		log.Duration("interval", sweeper.cfg.SweepInterval),
		log.String("lock_key", sweeper.cfg.LockKey),
	)
	defer sweeper.logger.Log(context.Background(), log.LevelInfo, "outbox sweeper stopped")

	defer runtime.RecoverAndLog(ctx, sweeper.logger, "outbox", "sweeper_run")

	ticker := time.NewTicker(sweeper.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			select {
			case <-stopCh:
				return nil
			case <-ctx.Done():
				return nil
			default:
			}

			func() {
				sweeper.sweepWg.Add(1)
				defer sweeper.sweepWg.Done()

				tickCtx, span := sweeper.tracer.Start(ctx, "outbox.sweeper.tick")
				defer span.End()
				defer runtime.RecoverAndLog(tickCtx, sweeper.logger, "outbox", "sweeper_tick")

				result := sweeper.SweepOnce(tickCtx)
				span.SetAttributes(
					attribute.Bool("outbox.sweep.skipped", result.Skipped),
					attribute.Int("outbox.sweep.fetched", result.Fetched),
					attribute.Int("outbox.sweep.dispatched", result.Dispatched),
					attribute.Int("outbox.sweep.failed", result.Failed),
				)
			}()
		}
	}
}

// Stop signals the sweep loop to stop. Safe to call repeatedly and
// concurrently with a restarting Run.
func (sweeper *Sweeper) Stop() {
	if sweeper == nil {
		return
	}

	sweeper.runStateMu.Lock()
	defer sweeper.runStateMu.Unlock()

	if sweeper.cancelFunc != nil {
		sweeper.cancelFunc()
	}

	if sweeper.stop == nil {
		sweeper.stop = make(chan struct{})
	}

	if !isClosedSignal(sweeper.stop) {
		close(sweeper.stop)
	}
}

// Shutdown stops the loop and waits for the in-flight sweep to complete.
func (sweeper *Sweeper) Shutdown(ctx context.Context) error {
	if sweeper == nil {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}

	sweeper.Stop()

	done := make(chan struct{})

	runtime.SafeGo(sweeper.logger, "outbox.sweeper_shutdown_wait", func() {
		sweeper.sweepWg.Wait()
		close(done)
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sweeper shutdown: %w", ctx.Err())
	}
}

// SweepOnce performs a single sweep cycle: acquire the lock, fetch stale
// pending entries, re-dispatch, release the lock. The lock release is
// guaranteed even when a dispatch panics.
func (sweeper *Sweeper) SweepOnce(ctx context.Context) SweepResult {
	if sweeper == nil {
		return SweepResult{Skipped: true}
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if !sweeper.sweepMu.TryLock() {
		sweeper.logger.Log(ctx, log.LevelDebug, "previous sweep still in flight; skipping tick")

		return SweepResult{Skipped: true}
	}
	defer sweeper.sweepMu.Unlock()

	ctx, span := sweeper.tracer.Start(ctx, "outbox.sweep")
	defer span.End()

	handle, acquired, err := sweeper.locker.TryLock(ctx, sweeper.cfg.LockKey)
	if err != nil {
		sweeper.logger.Log(ctx, log.LevelError, "failed to attempt sweeper lock acquisition", log.Err(err))

		return SweepResult{Skipped: true}
	}

	if !acquired {
		sweeper.logger.Log(ctx, log.LevelDebug, "sweeper lock held by another instance; skipping tick",
			log.String("lock_key", sweeper.cfg.LockKey),
		)
		sweeper.metrics.addSkipped(ctx)

		return SweepResult{Skipped: true}
	}

	defer func() {
		// Release happens even when a dispatch below panics; the panic is
		// re-raised for the tick-level recovery after the lease is freed.
		recovered := recover()

		if unlockErr := handle.Unlock(context.WithoutCancel(ctx)); unlockErr != nil {
			sweeper.logger.Log(ctx, log.LevelError, "failed to release sweeper lock", log.Err(unlockErr))
		}

		if recovered != nil {
			panic(recovered)
		}
	}()

	return sweeper.sweepLocked(ctx)
}

func (sweeper *Sweeper) sweepLocked(ctx context.Context) SweepResult {
	start := time.Now().UTC()

	entries, err := sweeper.store.GetPending(ctx, sweeper.cfg.MinimumMessageAge, sweeper.cfg.BatchSize)
	if err != nil {
		sweeper.logger.Log(ctx, log.LevelError, "failed to list stale pending entries", log.Err(err))

		return SweepResult{}
	}

	result := SweepResult{Fetched: len(entries)}
	sweeper.metrics.recordDepth(ctx, int64(len(entries)))

	if len(entries) == 0 {
		return result
	}

	if sweeper.cfg.Bulk {
		if bulk, ok := sweeper.producer.(courier.BulkMessageProducer); ok {
			sweeper.sweepBulk(ctx, bulk, entries, &result)
			sweeper.finishSweep(ctx, start, result)

			return result
		}

		sweeper.logger.Log(ctx, log.LevelWarn, "bulk mode configured but producer does not support batches; dispatching individually")
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}

		if entry == nil {
			continue
		}

		if err := sweeper.dispatchEntry(ctx, entry); err != nil {
			result.Failed++

			continue
		}

		result.Dispatched++
	}

	sweeper.finishSweep(ctx, start, result)

	return result
}

// sweepBulk delivers the whole batch in one producer call. A batch
// failure leaves every entry pending for the next tick.
func (sweeper *Sweeper) sweepBulk(ctx context.Context, bulk courier.BulkMessageProducer, entries []*Entry, result *SweepResult) {
	messages := make([]*courier.Message, 0, len(entries))

	for _, entry := range entries {
		if entry == nil {
			continue
		}

		messages = append(messages, entry.Message())
	}

	if err := bulk.SendBatch(ctx, messages); err != nil {
		sweeper.logger.Log(ctx, log.LevelWarn, "bulk re-dispatch failed; entries remain pending",
			log.Int("count", len(messages)),
			log.Err(err),
		)

		for _, entry := range entries {
			if entry == nil {
				continue
			}

			sweeper.recordAttemptFailure(ctx, entry, err)
			result.Failed++
		}

		return
	}

	for _, entry := range entries {
		if entry == nil {
			continue
		}

		sweeper.markDispatched(ctx, entry)
		result.Dispatched++
	}
}

func (sweeper *Sweeper) dispatchEntry(ctx context.Context, entry *Entry) error {
	if err := sweeper.producer.Send(ctx, entry.Message()); err != nil {
		sweeper.recordAttemptFailure(ctx, entry, err)

		return err
	}

	sweeper.markDispatched(ctx, entry)

	return nil
}

func (sweeper *Sweeper) markDispatched(ctx context.Context, entry *Entry) {
	err := sweeper.store.MarkDispatched(ctx, entry.ID, time.Now().UTC())
	if err == nil {
		return
	}

	// A send that raced the original in-flight dispatch can find the
	// entry already marked; that duplicate is the accepted at-least-once
	// outcome, not a fault.
	if isAlreadyDispatched(err) {
		sweeper.logger.Log(ctx, log.LevelDebug, "entry already dispatched by a concurrent sender",
			log.String("message_id", entry.ID.String()),
		)

		return
	}

	sweeper.logger.Log(ctx, log.LevelError,
		"message delivered but failed to persist DISPATCHED state; a future sweep may redeliver it",
		log.String("message_id", entry.ID.String()),
		log.Err(err),
	)
}

func (sweeper *Sweeper) recordAttemptFailure(ctx context.Context, entry *Entry, cause error) {
	sweeper.logger.Log(ctx, log.LevelWarn, "re-dispatch failed; entry remains pending",
		log.String("message_id", entry.ID.String()),
		log.Err(cause),
	)

	if err := sweeper.store.MarkAttempt(ctx, entry.ID, cause.Error()); err != nil {
		sweeper.logger.Log(ctx, log.LevelError, "failed to record dispatch attempt", log.Err(err))
	}
}

func (sweeper *Sweeper) finishSweep(ctx context.Context, start time.Time, result SweepResult) {
	sweeper.metrics.addDispatched(ctx, int64(result.Dispatched))
	sweeper.metrics.addFailed(ctx, int64(result.Failed))
	sweeper.metrics.recordLatency(ctx, time.Since(start).Seconds())
}

// registerRun claims the single run slot and hands the loop its stop
// channel, recreating a consumed one so the sweeper is restartable.
func (sweeper *Sweeper) registerRun(cancel context.CancelFunc) (chan struct{}, bool) {
	sweeper.runStateMu.Lock()
	defer sweeper.runStateMu.Unlock()

	if sweeper.running {
		return nil, false
	}

	if sweeper.stop == nil || isClosedSignal(sweeper.stop) {
		sweeper.stop = make(chan struct{})
	}

	sweeper.running = true
	sweeper.cancelFunc = cancel

	return sweeper.stop, true
}

func (sweeper *Sweeper) clearRun() {
	sweeper.runStateMu.Lock()
	defer sweeper.runStateMu.Unlock()

	sweeper.running = false
	sweeper.cancelFunc = nil
}

func isClosedSignal(signal <-chan struct{}) bool {
	if signal == nil {
		return false
	}

	select {
	case <-signal:
		return true
	default:
		return false
	}
}

func isAlreadyDispatched(err error) bool {
	return errors.Is(err, ErrEntryAlreadyDispatched)
}
