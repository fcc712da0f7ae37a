package metrics

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestProvisioningMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewProvisioningMetrics(reg)

	metrics.IncRedemption(OutcomeSuccess)
	metrics.IncRedemption(OutcomeSuccess)
	metrics.IncRedemption(OutcomeExpired)
	metrics.IncActivation(OutcomeSuccess)
	metrics.IncStatusCheck("active")
	metrics.AddSweptRows(7)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := labeledCounterValue(mfs, "code_redemptions_total", "outcome", OutcomeSuccess); err != nil {
		t.Fatalf("fetch redemptions: %v", err)
	} else if got != 2 {
		t.Fatalf("expected redemptions=2, got %f", got)
	}

	if got, err := labeledCounterValue(mfs, "code_redemptions_total", "outcome", OutcomeExpired); err != nil {
		t.Fatalf("fetch expired redemptions: %v", err)
	} else if got != 1 {
		t.Fatalf("expected expired=1, got %f", got)
	}

	if got, err := labeledCounterValue(mfs, "device_activations_total", "outcome", OutcomeSuccess); err != nil {
		t.Fatalf("fetch activations: %v", err)
	} else if got != 1 {
		t.Fatalf("expected activations=1, got %f", got)
	}

	if got, err := plainCounterValue(mfs, "expiry_sweep_rows_total"); err != nil {
		t.Fatalf("fetch swept rows: %v", err)
	} else if got != 7 {
		t.Fatalf("expected swept=7, got %f", got)
	}
}

func TestProvisioningMetricsNilReceiverIsSafe(t *testing.T) {
	var metrics *ProvisioningMetrics
	metrics.IncRedemption(OutcomeError)
	metrics.IncActivation(OutcomeError)
	metrics.IncStatusCheck("expired")
	metrics.AddSweptRows(1)
}

func labeledCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := metricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		for _, pair := range metric.GetLabel() {
			if pair.GetName() == label && pair.GetValue() == value {
				return metric.GetCounter().GetValue(), nil
			}
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func plainCounterValue(mfs []*dto.MetricFamily, name string) (float64, error) {
	mf := metricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	if len(mf.GetMetric()) == 0 {
		return 0, fmt.Errorf("metric %q has no samples", name)
	}
	return mf.GetMetric()[0].GetCounter().GetValue(), nil
}

func metricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}
