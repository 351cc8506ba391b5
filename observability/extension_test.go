package observability_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/CavellTopDev/pitchey-app-sub015/ext"
	"github.com/CavellTopDev/pitchey-app-sub015/id"
	"github.com/CavellTopDev/pitchey-app-sub015/observability"
	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

func newExtension() (*observability.MetricsExtension, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return observability.NewMetricsExtensionWithMeter(mp.Meter("test")), reader
}

// sums returns the counter totals keyed by metric name and workflow.
func sums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				key := m.Name
				if wf, ok := dp.Attributes.Value("workflow"); ok {
					key += "/" + wf.AsString()
				}
				out[key] += dp.Value
			}
		}
	}
	return out
}

func newRun(name string) *workflow.Run {
	return &workflow.Run{ID: id.NewRunID(), Name: name}
}

func TestMetricsExtension_Name(t *testing.T) {
	e, _ := newExtension()
	if e.Name() != "observability-metrics" {
		t.Errorf("Name() = %q", e.Name())
	}
}

func TestMetricsExtension_CountsPerWorkflow(t *testing.T) {
	e, reader := newExtension()
	ctx := context.Background()

	nda, inv := newRun("nda"), newRun("investment")
	_ = e.OnRunStarted(ctx, nda)
	_ = e.OnRunStarted(ctx, inv)
	_ = e.OnRunSuspended(ctx, nda, "wait:signature")
	_ = e.OnRunSuspended(ctx, nda, "sleep:expiry")
	_ = e.OnRunCompleted(ctx, nda, time.Second)
	_ = e.OnRunFailed(ctx, inv, errors.New("transfer rejected"))
	_ = e.OnRunCancelled(ctx, newRun("production"))
	_ = e.OnSweepCompleted(ctx, 7, time.Millisecond)

	got := sums(t, reader)
	want := map[string]int64{
		observability.MetricRunsStarted + "/nda":          1,
		observability.MetricRunsStarted + "/investment":   1,
		observability.MetricRunsSuspended + "/nda":        2,
		observability.MetricRunsCompleted + "/nda":        1,
		observability.MetricRunsFailed + "/investment":    1,
		observability.MetricRunsCancelled + "/production": 1,
		observability.MetricSweepRuns:                     7,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %d, want %d", k, got[k], v)
		}
	}
}

func TestMetricsExtension_ThroughRegistry(t *testing.T) {
	e, reader := newExtension()
	reg := ext.NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	reg.Register(e)

	run := newRun("nda")
	reg.EmitWorkflowStarted(context.Background(), run)
	reg.EmitWorkflowCompleted(context.Background(), run, 2*time.Second)

	got := sums(t, reader)
	if got[observability.MetricRunsStarted+"/nda"] != 1 {
		t.Errorf("started = %d, want 1", got[observability.MetricRunsStarted+"/nda"])
	}
	if got[observability.MetricRunsCompleted+"/nda"] != 1 {
		t.Errorf("completed = %d, want 1", got[observability.MetricRunsCompleted+"/nda"])
	}
}
