package pricing

import (
	"context"
	"time"

	"portfolio-systemv1/internal/metrics"
)

// Instrumented wraps an Oracle with request latency/failure metrics and
// keeps the health status' oracle flag current.
type Instrumented struct {
	inner  Oracle
	m      *metrics.Metrics
	health *metrics.HealthStatus
}

// NewInstrumented decorates an oracle. m and health may be nil.
func NewInstrumented(inner Oracle, m *metrics.Metrics, health *metrics.HealthStatus) *Instrumented {
	return &Instrumented{inner: inner, m: m, health: health}
}

func (i *Instrumented) Current(ctx context.Context, symbols []string) (map[string]Quote, error) {
	start := time.Now()
	out, err := i.inner.Current(ctx, symbols)
	i.observe("current", start, err)
	return out, err
}

func (i *Instrumented) Historical(ctx context.Context, symbol string, from, to time.Time) ([]Close, error) {
	start := time.Now()
	out, err := i.inner.Historical(ctx, symbol, from, to)
	i.observe("historical", start, err)
	return out, err
}

func (i *Instrumented) observe(op string, start time.Time, err error) {
	if i.m != nil {
		i.m.OracleRequestDur.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if err != nil {
			i.m.OracleFailures.WithLabelValues(op).Inc()
		}
	}
	if i.health != nil {
		// ErrNoQuote is a data gap, not an outage.
		i.health.SetOracleOK(err == nil || err == ErrNoQuote)
	}
}
