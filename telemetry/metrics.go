// Package telemetry exports the per-iteration search scalars as OpenTelemetry
// metrics.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/thalesfsp/mfbo"
)

// MetricsProvider implements mfbo.MetricsSink on an OpenTelemetry meter.
type MetricsProvider struct {
	meter metric.Meter
	runID string

	// Gauges
	minTime    metric.Float64Gauge
	relQuality metric.Float64Gauge
	threshold  metric.Float64Gauge

	// Counters
	lowFidelity  metric.Int64Counter
	foundExploit metric.Int64Counter
	failures     metric.Int64Counter

	// Histograms
	iterations metric.Int64Histogram

	// last cumulative values per agent; counters receive the difference
	mu   sync.Mutex
	last map[string]mfbo.IterationMetrics

	initErr error
}

// MetricsConfig configures the metrics provider.
type MetricsConfig struct {
	// MeterName is the name of the meter (default: "github.com/thalesfsp/mfbo").
	MeterName string

	// MeterVersion is the version of the meter.
	MeterVersion string

	// RunID is attached to every data point.
	RunID string
}

// DefaultMetricsConfig returns a default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		MeterName:    "github.com/thalesfsp/mfbo",
		MeterVersion: "1.0.0",
	}
}

// NewMetricsProvider creates a provider on the global meter provider.
func NewMetricsProvider(config MetricsConfig) *MetricsProvider {
	if config.MeterName == "" {
		config.MeterName = DefaultMetricsConfig().MeterName
	}

	meter := otel.GetMeterProvider().Meter(
		config.MeterName,
		metric.WithInstrumentationVersion(config.MeterVersion),
	)

	mp := &MetricsProvider{
		meter: meter,
		runID: config.RunID,
		last:  make(map[string]mfbo.IterationMetrics),
	}

	mp.initErr = mp.initInstruments()

	return mp
}

func (mp *MetricsProvider) initInstruments() error {
	var err error

	mp.minTime, err = mp.meter.Float64Gauge(
		"mfbo.min_time",
		metric.WithDescription("Best feasible trajectory time relative to the nominal allocation"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	mp.relQuality, err = mp.meter.Float64Gauge(
		"mfbo.rel_quality",
		metric.WithDescription("Quality metric of the entry holding the best time"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	mp.threshold, err = mp.meter.Float64Gauge(
		"mfbo.threshold",
		metric.WithDescription("Nominal acceptance threshold of the joint generator"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	mp.lowFidelity, err = mp.meter.Int64Counter(
		"mfbo.low_fidelity",
		metric.WithDescription("Number of low fidelity evaluations"),
		metric.WithUnit("{evaluation}"),
	)
	if err != nil {
		return err
	}

	mp.foundExploit, err = mp.meter.Int64Counter(
		"mfbo.found_exploit",
		metric.WithDescription("Number of picks made by the exploit rule"),
		metric.WithUnit("{pick}"),
	)
	if err != nil {
		return err
	}

	mp.failures, err = mp.meter.Int64Counter(
		"mfbo.failures",
		metric.WithDescription("Number of infeasible high fidelity evaluations"),
		metric.WithUnit("{evaluation}"),
	)
	if err != nil {
		return err
	}

	mp.iterations, err = mp.meter.Int64Histogram(
		"mfbo.iteration",
		metric.WithDescription("Committed iteration index"),
		metric.WithUnit("{iteration}"),
	)

	return err
}

// Error returns any error from instrument creation.
func (mp *MetricsProvider) Error() error {
	return mp.initErr
}

// RecordIteration records the scalars of one agent after an iteration.
func (mp *MetricsProvider) RecordIteration(ctx context.Context, m mfbo.IterationMetrics) {
	if mp.initErr != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("agent", m.Agent),
		attribute.String("run.id", mp.runID),
	)

	mp.mu.Lock()
	prev := mp.last[m.Agent]
	mp.last[m.Agent] = m
	mp.mu.Unlock()

	mp.minTime.Record(ctx, m.MinTime, attrs)
	mp.relQuality.Record(ctx, m.RelQuality, attrs)
	mp.iterations.Record(ctx, int64(m.Iteration), attrs)

	if d := m.NumLowFidelity - prev.NumLowFidelity; d > 0 {
		mp.lowFidelity.Add(ctx, int64(d), attrs)
	}

	if d := m.NumFoundExploit - prev.NumFoundExploit; d > 0 {
		mp.foundExploit.Add(ctx, int64(d), attrs)
	}

	if d := m.NumFailures - prev.NumFailures; d > 0 {
		mp.failures.Add(ctx, int64(d), attrs)
	}
}

// RecordThreshold records an acceptance threshold.
func (mp *MetricsProvider) RecordThreshold(ctx context.Context, name string, value float64) {
	if mp.initErr != nil {
		return
	}

	mp.threshold.Record(ctx, value, metric.WithAttributes(
		attribute.String("threshold", name),
		attribute.String("run.id", mp.runID),
	))
}

var _ mfbo.MetricsSink = (*MetricsProvider)(nil)
