package outbox

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type sweeperMetrics struct {
	messagesDispatched metric.Int64Counter
	messagesFailed     metric.Int64Counter
	sweepsSkipped      metric.Int64Counter
	sweepLatency       metric.Float64Histogram
	pendingDepth       metric.Int64Gauge
}

func newSweeperMetrics(provider metric.MeterProvider) (sweeperMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	meter := provider.Meter("courier.outbox.sweeper")

	var (
		metrics sweeperMetrics
		err     error
	)

	metrics.messagesDispatched, err = meter.Int64Counter(
		"outbox.messages.dispatched",
		metric.WithDescription("Number of outbox messages confirmed dispatched by a sweep"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return sweeperMetrics{}, fmt.Errorf("create outbox.messages.dispatched counter: %w", err)
	}

	metrics.messagesFailed, err = meter.Int64Counter(
		"outbox.messages.failed",
		metric.WithDescription("Number of outbox messages whose re-dispatch failed"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return sweeperMetrics{}, fmt.Errorf("create outbox.messages.failed counter: %w", err)
	}

	metrics.sweepsSkipped, err = meter.Int64Counter(
		"outbox.sweeps.skipped",
		metric.WithDescription("Number of sweep ticks skipped because the lock was held elsewhere"),
		metric.WithUnit("{sweep}"),
	)
	if err != nil {
		return sweeperMetrics{}, fmt.Errorf("create outbox.sweeps.skipped counter: %w", err)
	}

	metrics.sweepLatency, err = meter.Float64Histogram(
		"outbox.sweep.latency",
		metric.WithDescription("Time taken per sweep cycle"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return sweeperMetrics{}, fmt.Errorf("create outbox.sweep.latency histogram: %w", err)
	}

	metrics.pendingDepth, err = meter.Int64Gauge(
		"outbox.pending.depth",
		metric.WithDescription("Number of stale pending entries selected in a sweep cycle"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return sweeperMetrics{}, fmt.Errorf("create outbox.pending.depth gauge: %w", err)
	}

	return metrics, nil
}

func (metrics sweeperMetrics) addDispatched(ctx context.Context, count int64) {
	if metrics.messagesDispatched == nil || count == 0 {
		return
	}

	metrics.messagesDispatched.Add(ctx, count)
}

func (metrics sweeperMetrics) addFailed(ctx context.Context, count int64) {
	if metrics.messagesFailed == nil || count == 0 {
		return
	}

	metrics.messagesFailed.Add(ctx, count)
}

func (metrics sweeperMetrics) addSkipped(ctx context.Context) {
	if metrics.sweepsSkipped == nil {
		return
	}

	metrics.sweepsSkipped.Add(ctx, 1)
}

func (metrics sweeperMetrics) recordDepth(ctx context.Context, depth int64) {
	if metrics.pendingDepth == nil {
		return
	}

	metrics.pendingDepth.Record(ctx, depth)
}

func (metrics sweeperMetrics) recordLatency(ctx context.Context, seconds float64) {
	if metrics.sweepLatency == nil {
		return
	}

	metrics.sweepLatency.Record(ctx, seconds)
}
