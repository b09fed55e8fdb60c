package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "secure-reader/session"

// Metrics holds the session counters. A nil *Metrics records nothing.
type Metrics struct {
	refreshAttempts metric.Int64Counter
	refreshFailures metric.Int64Counter
	conflicts       metric.Int64Counter
	takeovers       metric.Int64Counter
	invalidations   metric.Int64Counter
	urlRefreshes    metric.Int64Counter
}

// NewMetrics creates the session instruments on provider.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(meterName)
	var (
		m   Metrics
		err error
	)
	if m.refreshAttempts, err = meter.Int64Counter("reader.refresh.attempts",
		metric.WithDescription("Refresh attempts by target")); err != nil {
		return nil, err
	}
	if m.refreshFailures, err = meter.Int64Counter("reader.refresh.exhausted",
		metric.WithDescription("Refreshes that exhausted their retries, by target")); err != nil {
		return nil, err
	}
	if m.conflicts, err = meter.Int64Counter("reader.device.conflicts",
		metric.WithDescription("Sign-ins that found the account bound to another device")); err != nil {
		return nil, err
	}
	if m.takeovers, err = meter.Int64Counter("reader.device.takeovers",
		metric.WithDescription("Confirmed sign-ins that took the session from another device")); err != nil {
		return nil, err
	}
	if m.invalidations, err = meter.Int64Counter("reader.session.invalidations",
		metric.WithDescription("Local sessions invalidated because another device holds the binding")); err != nil {
		return nil, err
	}
	if m.urlRefreshes, err = meter.Int64Counter("reader.document.url_refreshes",
		metric.WithDescription("Successful signed URL refreshes")); err != nil {
		return nil, err
	}
	return &m, nil
}

func targetAttr(target string) metric.AddOption {
	return metric.WithAttributes(attribute.String("target", target))
}

func (m *Metrics) RefreshAttempt(ctx context.Context, target string) {
	if m == nil {
		return
	}
	m.refreshAttempts.Add(ctx, 1, targetAttr(target))
}

func (m *Metrics) RefreshExhausted(ctx context.Context, target string) {
	if m == nil {
		return
	}
	m.refreshFailures.Add(ctx, 1, targetAttr(target))
}

func (m *Metrics) Conflict(ctx context.Context) {
	if m == nil {
		return
	}
	m.conflicts.Add(ctx, 1)
}

func (m *Metrics) Takeover(ctx context.Context) {
	if m == nil {
		return
	}
	m.takeovers.Add(ctx, 1)
}

func (m *Metrics) Invalidation(ctx context.Context) {
	if m == nil {
		return
	}
	m.invalidations.Add(ctx, 1)
}

func (m *Metrics) URLRefreshed(ctx context.Context) {
	if m == nil {
		return
	}
	m.urlRefreshes.Add(ctx, 1)
}
