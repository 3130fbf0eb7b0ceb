package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric instrument names.
const (
	MetricLookups            = "instance.cache.lookups"
	MetricActivations        = "instance.activations"
	MetricActivationDuration = "instance.activation.duration_ms"
	MetricPassivations       = "instance.passivations"
	MetricPassivationSkipped = "instance.passivations.skipped"
	MetricEvictions          = "instance.evictions"
	MetricPoolAcquires       = "instance.pool.acquires"
	MetricPoolWait           = "instance.pool.wait_ms"
	MetricPoolDiscards       = "instance.pool.discards"
	MetricSize               = "instance.size"
)

// Metrics records cache and pool events.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly and never block on ctx.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordLookup records a cache lookup as a hit or miss.
	RecordLookup(ctx context.Context, meta ComponentMeta, hit bool)

	// RecordActivation records an activation attempt and its duration.
	RecordActivation(ctx context.Context, meta ComponentMeta, d time.Duration, err error)

	// RecordPassivation records a passivation attempt.
	RecordPassivation(ctx context.Context, meta ComponentMeta, d time.Duration, err error)

	// RecordPassivationSkipped records a passivation vetoed for reason.
	RecordPassivationSkipped(ctx context.Context, meta ComponentMeta, reason string)

	// RecordEviction records an instance leaving a cache because of policy.
	RecordEviction(ctx context.Context, meta ComponentMeta, reason string)

	// RecordPoolAcquire records a pool acquire and the time spent waiting.
	RecordPoolAcquire(ctx context.Context, meta ComponentMeta, wait time.Duration, err error)

	// RecordPoolDiscard records an instance torn down by its pool.
	RecordPoolDiscard(ctx context.Context, meta ComponentMeta)

	// ObserveSize reports fn() as the current size of kind on every collection.
	// The returned function unregisters the observation.
	ObserveSize(meta ComponentMeta, kind string, fn func() int64) (func() error, error)
}

type metricsImpl struct {
	meter        metric.Meter
	lookups      metric.Int64Counter
	activations  metric.Int64Counter
	activationMs metric.Float64Histogram
	passivations metric.Int64Counter
	skipped      metric.Int64Counter
	evictions    metric.Int64Counter
	acquires     metric.Int64Counter
	waitMs       metric.Float64Histogram
	discards     metric.Int64Counter
	size         metric.Int64ObservableGauge
}

// NewMetrics creates a Metrics recorder backed by meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	m := &metricsImpl{meter: meter}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.lookups, MetricLookups, "Cache lookups by outcome", "{lookup}"},
		{&m.activations, MetricActivations, "Instance activations by outcome", "{activation}"},
		{&m.passivations, MetricPassivations, "Instance passivations by outcome", "{passivation}"},
		{&m.skipped, MetricPassivationSkipped, "Passivations vetoed by eligibility", "{passivation}"},
		{&m.evictions, MetricEvictions, "Instances evicted by policy", "{instance}"},
		{&m.acquires, MetricPoolAcquires, "Pool acquires by outcome", "{acquire}"},
		{&m.discards, MetricPoolDiscards, "Pooled instances discarded", "{instance}"},
	}
	for _, c := range counters {
		ctr, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, err
		}
		*c.dst = ctr
	}

	var err error
	m.activationMs, err = meter.Float64Histogram(
		MetricActivationDuration,
		metric.WithDescription("Activation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	m.waitMs, err = meter.Float64Histogram(
		MetricPoolWait,
		metric.WithDescription("Time spent waiting for a pool permit in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	m.size, err = meter.Int64ObservableGauge(
		MetricSize,
		metric.WithDescription("Current number of instances by kind"),
		metric.WithUnit("{instance}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func metaAttrs(meta ComponentMeta, extra ...attribute.KeyValue) metric.MeasurementOption {
	attrs := make([]attribute.KeyValue, 0, 2+len(extra))
	attrs = append(attrs, attribute.String(AttrComponent, meta.Component))
	if meta.Cache != "" {
		attrs = append(attrs, attribute.String(AttrCache, meta.Cache))
	}
	attrs = append(attrs, extra...)
	return metric.WithAttributes(attrs...)
}

func outcome(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String(AttrOutcome, "error")
	}
	return attribute.String(AttrOutcome, "ok")
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func (m *metricsImpl) RecordLookup(ctx context.Context, meta ComponentMeta, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookups.Add(ctx, 1, metaAttrs(meta, attribute.String(AttrOutcome, result)))
}

func (m *metricsImpl) RecordActivation(ctx context.Context, meta ComponentMeta, d time.Duration, err error) {
	opt := metaAttrs(meta, outcome(err))
	m.activations.Add(ctx, 1, opt)
	m.activationMs.Record(ctx, millis(d), opt)
}

func (m *metricsImpl) RecordPassivation(ctx context.Context, meta ComponentMeta, _ time.Duration, err error) {
	m.passivations.Add(ctx, 1, metaAttrs(meta, outcome(err)))
}

func (m *metricsImpl) RecordPassivationSkipped(ctx context.Context, meta ComponentMeta, reason string) {
	m.skipped.Add(ctx, 1, metaAttrs(meta, attribute.String("reason", reason)))
}

func (m *metricsImpl) RecordEviction(ctx context.Context, meta ComponentMeta, reason string) {
	m.evictions.Add(ctx, 1, metaAttrs(meta, attribute.String("reason", reason)))
}

func (m *metricsImpl) RecordPoolAcquire(ctx context.Context, meta ComponentMeta, wait time.Duration, err error) {
	opt := metaAttrs(meta, outcome(err))
	m.acquires.Add(ctx, 1, opt)
	m.waitMs.Record(ctx, millis(wait), opt)
}

func (m *metricsImpl) RecordPoolDiscard(ctx context.Context, meta ComponentMeta) {
	m.discards.Add(ctx, 1, metaAttrs(meta))
}

func (m *metricsImpl) ObserveSize(meta ComponentMeta, kind string, fn func() int64) (func() error, error) {
	opt := metaAttrs(meta, attribute.String("kind", kind))
	reg, err := m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(m.size, fn(), opt)
		return nil
	}, m.size)
	if err != nil {
		return nil, err
	}

	var once sync.Once
	return func() error {
		var uerr error
		once.Do(func() { uerr = reg.Unregister() })
		return uerr
	}, nil
}

type noopMetrics struct{}

func (noopMetrics) RecordLookup(context.Context, ComponentMeta, bool) {}

func (noopMetrics) RecordActivation(context.Context, ComponentMeta, time.Duration, error) {}

func (noopMetrics) RecordPassivation(context.Context, ComponentMeta, time.Duration, error) {}

func (noopMetrics) RecordPassivationSkipped(context.Context, ComponentMeta, string) {}

func (noopMetrics) RecordEviction(context.Context, ComponentMeta, string) {}

func (noopMetrics) RecordPoolAcquire(context.Context, ComponentMeta, time.Duration, error) {}

func (noopMetrics) RecordPoolDiscard(context.Context, ComponentMeta) {}

func (noopMetrics) ObserveSize(ComponentMeta, string, func() int64) (func() error, error) {
	return func() error { return nil }, nil
}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics {
	return noopMetrics{}
}

// MetricsOrNop returns m, or a no-op recorder when m is nil.
func MetricsOrNop(m Metrics) Metrics {
	if m == nil {
		return NopMetrics()
	}
	return m
}

var (
	_ Metrics = (*metricsImpl)(nil)
	_ Metrics = noopMetrics{}
)
