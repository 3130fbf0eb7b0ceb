package observe

import (
	"context"
	"time"

	"github.com/jonwraymond/instancecache/instance"
)

// Middleware wraps activation and passivation callbacks with tracing,
// metrics and logging.
//
// Contract:
//   - Concurrency: wrapped callbacks are safe for concurrent use when the
//     underlying callback is.
//   - Context: the span context is propagated into the wrapped callback.
//   - Errors: errors from the wrapped callback are recorded and returned unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a Middleware. Nil components are replaced with no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	return &Middleware{
		tracer:  TracerOrNop(tracer),
		metrics: MetricsOrNop(metrics),
		logger:  LoggerOrNop(logger),
	}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// Activator wraps a for the component described by meta.
func (m *Middleware) Activator(meta ComponentMeta, a instance.Activator) instance.Activator {
	log := m.logger.WithComponent(meta)
	return instance.ActivatorFunc(func(ctx context.Context, inst *instance.Instance) error {
		ctx, span := m.tracer.StartSpan(ctx, "activate", meta, inst.Key())
		start := time.Now()

		err := a.Activate(ctx, inst)

		d := time.Since(start)
		m.tracer.EndSpan(span, err)
		m.metrics.RecordActivation(ctx, meta, d, err)

		fields := []Field{F("key", inst.Key()), F("duration_ms", millis(d))}
		if err != nil {
			log.Warn(ctx, "activation failed", append(fields, F("error", err))...)
		} else {
			log.Debug(ctx, "activated", fields...)
		}
		return err
	})
}

// Passivator wraps p for the component described by meta.
func (m *Middleware) Passivator(meta ComponentMeta, p instance.Passivator) instance.Passivator {
	log := m.logger.WithComponent(meta)
	return instance.PassivatorFunc(func(ctx context.Context, inst *instance.Instance) error {
		ctx, span := m.tracer.StartSpan(ctx, "passivate", meta, inst.Key())
		start := time.Now()

		err := p.Passivate(ctx, inst)

		d := time.Since(start)
		m.tracer.EndSpan(span, err)
		m.metrics.RecordPassivation(ctx, meta, d, err)

		fields := []Field{F("key", inst.Key()), F("duration_ms", millis(d))}
		if err != nil {
			log.Error(ctx, "passivation failed", append(fields, F("error", err))...)
		} else {
			log.Debug(ctx, "passivated", fields...)
		}
		return err
	})
}

// Tracer returns the middleware's tracer.
func (m *Middleware) Tracer() Tracer { return m.tracer }

// Metrics returns the middleware's metrics recorder.
func (m *Middleware) Metrics() Metrics { return m.metrics }

// Logger returns the middleware's logger.
func (m *Middleware) Logger() Logger { return m.logger }
