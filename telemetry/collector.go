package telemetry

import (
	"context"
	"fmt"
	"io"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Collector is an in-process meter provider whose readings are printed when a
// run ends. It is installed as the global meter provider.
type Collector struct {
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
}

// NewCollector creates a collector and installs it globally; create it
// before NewMetricsProvider.
func NewCollector() *Collector {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	return &Collector{reader: reader, provider: provider}
}

// Report writes one line per data point, sorted by metric name.
func (c *Collector) Report(ctx context.Context, w io.Writer) error {
	var rm metricdata.ResourceMetrics
	if err := c.reader.Collect(ctx, &rm); err != nil {
		return fmt.Errorf("collect metrics: %w", err)
	}

	var metrics []metricdata.Metrics
	for _, sm := range rm.ScopeMetrics {
		metrics = append(metrics, sm.Metrics...)
	}

	sort.Slice(metrics, func(i, j int) bool { return metrics[i].Name < metrics[j].Name })

	for _, m := range metrics {
		switch data := m.Data.(type) {
		case metricdata.Gauge[float64]:
			for _, dp := range data.DataPoints {
				fmt.Fprintf(w, "%s{%s} %g\n", m.Name, encode(dp.Attributes), dp.Value)
			}
		case metricdata.Sum[int64]:
			for _, dp := range data.DataPoints {
				fmt.Fprintf(w, "%s{%s} %d\n", m.Name, encode(dp.Attributes), dp.Value)
			}
		case metricdata.Histogram[int64]:
			for _, dp := range data.DataPoints {
				fmt.Fprintf(w, "%s{%s} count=%d sum=%d\n", m.Name, encode(dp.Attributes), dp.Count, dp.Sum)
			}
		}
	}

	return nil
}

// Shutdown flushes and stops the provider.
func (c *Collector) Shutdown(ctx context.Context) error {
	return c.provider.Shutdown(ctx)
}

func encode(set attribute.Set) string {
	return set.Encoded(attribute.DefaultEncoder())
}
