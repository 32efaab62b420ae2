package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CallMetrics records loopback call telemetry for the resilient HTTP client
type CallMetrics struct {
	calls    *Counter
	retries  *Counter
	duration *Histogram
}

// NewCallMetrics registers the call instruments on meter
func NewCallMetrics(meter metric.Meter) (*CallMetrics, error) {
	calls, err := NewCounter(meter, "loopback_calls_total", "Completed loopback calls by outcome", "{call}")
	if err != nil {
		return nil, err
	}
	retries, err := NewCounter(meter, "loopback_call_retries_total", "Retried loopback call attempts by classification", "{retry}")
	if err != nil {
		return nil, err
	}
	duration, err := NewHistogram(meter, "loopback_call_duration_seconds", "Loopback call latency including retries", "s", CallDurationBuckets...)
	if err != nil {
		return nil, err
	}
	return &CallMetrics{calls: calls, retries: retries, duration: duration}, nil
}

// RecordRetry counts one retried attempt
func (m *CallMetrics) RecordRetry(ctx context.Context, method, kind string) {
	m.retries.Inc(ctx, AttrMethod.String(method), AttrClassification.String(kind))
}

// RecordCall counts one finished call and its total latency
func (m *CallMetrics) RecordCall(ctx context.Context, method, outcome string, _ int, elapsed time.Duration) {
	m.calls.Inc(ctx, AttrMethod.String(method), AttrOutcome.String(outcome))
	m.duration.RecordDuration(ctx, elapsed, AttrMethod.String(method), AttrOutcome.String(outcome))
}

// DispatchMetrics records dispatcher routing decisions
type DispatchMetrics struct {
	dispatches *Counter
	failures   *Counter
	detected   *Gauge
}

// NewDispatchMetrics registers the dispatch instruments on meter
func NewDispatchMetrics(meter metric.Meter) (*DispatchMetrics, error) {
	dispatches, err := NewCounter(meter, "dispatch_operations_total", "Dispatched operations by route", "{operation}")
	if err != nil {
		return nil, err
	}
	failures, err := NewCounter(meter, "dispatch_failures_total", "Dispatched operations that failed", "{operation}")
	if err != nil {
		return nil, err
	}
	detected, err := NewGauge(meter, "integrations_detected", "Sibling integrations detected by the last scan", "{integration}")
	if err != nil {
		return nil, err
	}
	return &DispatchMetrics{dispatches: dispatches, failures: failures, detected: detected}, nil
}

// RecordDispatch counts one dispatch on the given route ("local" or "remote")
func (m *DispatchMetrics) RecordDispatch(ctx context.Context, operation, platform, route string, err error) {
	attrs := []attribute.KeyValue{AttrOperation.String(operation), AttrPlatform.String(platform), AttrRoute.String(route)}
	m.dispatches.Inc(ctx, attrs...)
	if err != nil {
		m.failures.Inc(ctx, attrs...)
	}
}

// RecordDetected sets the number of detected integrations
func (m *DispatchMetrics) RecordDetected(ctx context.Context, count int) {
	m.detected.Record(ctx, int64(count))
}
