package telemetry

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Provider is an SDK meter provider backed by a pull reader. Nothing is
// exported on a timer; Collect gathers the current values on demand.
type Provider struct {
	mp     *sdkmetric.MeterProvider
	reader *sdkmetric.ManualReader
}

func NewProvider() *Provider {
	reader := sdkmetric.NewManualReader()
	return &Provider{
		mp:     sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		reader: reader,
	}
}

// SetGlobal makes the provider the process-wide default, so New records
// into it.
func (p *Provider) SetGlobal() { otel.SetMeterProvider(p.mp) }

// Instruments creates the simulation instruments on this provider.
func (p *Provider) Instruments() (*Instruments, error) {
	return NewWithMeter(p.mp.Meter(instrumentationName))
}

func (p *Provider) Collect(ctx context.Context) (metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	if err := p.reader.Collect(ctx, &rm); err != nil {
		return rm, fmt.Errorf("collect metrics: %w", err)
	}
	return rm, nil
}

func (p *Provider) Shutdown(ctx context.Context) error { return p.mp.Shutdown(ctx) }

// WritePrometheus renders every collected instrument in Prometheus text
// format. Dots in names become underscores and monotonic sums get _total.
func (p *Provider) WritePrometheus(ctx context.Context, w io.Writer) error {
	rm, err := p.Collect(ctx)
	if err != nil {
		return err
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			writeMetric(w, m)
		}
	}
	return nil
}

func promName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}

func labels(set attribute.Set, extra ...string) string {
	kvs := set.ToSlice()
	parts := make([]string, 0, len(kvs)+len(extra)/2)
	for _, kv := range kvs {
		parts = append(parts, fmt.Sprintf("%s=%q", promName(string(kv.Key)), kv.Value.Emit()))
	}
	for i := 0; i+1 < len(extra); i += 2 {
		parts = append(parts, fmt.Sprintf("%s=%q", extra[i], extra[i+1]))
	}
	if len(parts) == 0 {
		return ""
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func header(w io.Writer, name, help, typ string) {
	if help != "" {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	}
	fmt.Fprintf(w, "# TYPE %s %s\n", name, typ)
}

func writeMetric(w io.Writer, m metricdata.Metrics) {
	name := promName(m.Name)
	switch d := m.Data.(type) {
	case metricdata.Sum[int64]:
		typ := "gauge"
		if d.IsMonotonic {
			name += "_total"
			typ = "counter"
		}
		header(w, name, m.Description, typ)
		for _, dp := range sortedPoints(d.DataPoints) {
			fmt.Fprintf(w, "%s%s %d\n", name, labels(dp.Attributes), dp.Value)
		}
	case metricdata.Gauge[int64]:
		header(w, name, m.Description, "gauge")
		for _, dp := range sortedPoints(d.DataPoints) {
			fmt.Fprintf(w, "%s%s %d\n", name, labels(dp.Attributes), dp.Value)
		}
	case metricdata.Histogram[float64]:
		header(w, name, m.Description, "histogram")
		for _, dp := range d.DataPoints {
			var cum uint64
			for i, bound := range dp.Bounds {
				cum += dp.BucketCounts[i]
				le := strconv.FormatFloat(bound, 'g', -1, 64)
				fmt.Fprintf(w, "%s_bucket%s %d\n", name, labels(dp.Attributes, "le", le), cum)
			}
			fmt.Fprintf(w, "%s_bucket%s %d\n", name, labels(dp.Attributes, "le", "+Inf"), dp.Count)
			fmt.Fprintf(w, "%s_sum%s %g\n", name, labels(dp.Attributes), dp.Sum)
			fmt.Fprintf(w, "%s_count%s %d\n", name, labels(dp.Attributes), dp.Count)
		}
	}
}

func sortedPoints(in []metricdata.DataPoint[int64]) []metricdata.DataPoint[int64] {
	out := append([]metricdata.DataPoint[int64](nil), in...)
	sort.Slice(out, func(i, j int) bool {
		return labels(out[i].Attributes) < labels(out[j].Attributes)
	})
	return out
}
