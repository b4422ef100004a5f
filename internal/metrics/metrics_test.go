package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewWithRegistryRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("correlator-test", reg)

	// Gather only reports a vector once it has at least one child, so give
	// each vector one label set before counting families.
	m.IngestRequestsTotal.WithLabelValues("2xx")
	m.IngestDuration.WithLabelValues("2xx")
	m.DispatchTotal.WithLabelValues("correlator.new", "new")
	m.DispatchDuration.WithLabelValues("correlator.new")
	m.ErrorsTotal.WithLabelValues("dispatcher")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) != 6 {
		t.Fatalf("registered metric families = %d, want 6", len(families))
	}

	m.IngestRequestsTotal.WithLabelValues("200").Inc()
	m.QueueDepth.Set(3)

	families, err = reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var sawDepth bool
	for _, f := range families {
		if f.GetName() == "correlator_queue_depth" {
			sawDepth = true
			if got := f.Metric[0].GetGauge().GetValue(); got != 3 {
				t.Errorf("queue depth = %v, want 3", got)
			}
		}
	}
	if !sawDepth {
		t.Error("expected correlator_queue_depth to be registered")
	}
}

func TestHandlerServesDefaultRegistry(t *testing.T) {
	if Handler() == nil {
		t.Fatal("expected a non-nil handler")
	}
}
