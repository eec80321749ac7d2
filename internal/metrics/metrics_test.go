package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// newTestCollector creates a Collector on its own registry with a test
// prefix so tests don't conflict with each other.
func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	c := newCollector("test")
	return c, c.Registry
}

func getGaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	g.Write(m)
	return m.GetGauge().GetValue()
}

func getCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	c.Write(m)
	return m.GetCounter().GetValue()
}

func TestHTTPRequest(t *testing.T) {
	c, reg := newTestCollector(t)

	c.HTTPRequest("/containers/bulk-delete", 200, 20*time.Millisecond)
	c.HTTPRequest("/containers/bulk-delete", 200, 40*time.Millisecond)
	c.HTTPRequest("/containers/bulk-delete", 400, time.Millisecond)

	if v := getCounterValue(c.httpRequests.WithLabelValues("/containers/bulk-delete", "200")); v != 2 {
		t.Errorf("expected 2 requests with code 200, got %v", v)
	}
	if v := getCounterValue(c.httpRequests.WithLabelValues("/containers/bulk-delete", "400")); v != 1 {
		t.Errorf("expected 1 request with code 400, got %v", v)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}

	var found bool
	for _, f := range families {
		if f.GetName() == "test_http_request_duration_seconds" {
			found = true
			m := f.GetMetric()
			if len(m) == 0 {
				t.Fatal("no metric samples")
			}
			if m[0].GetHistogram().GetSampleCount() != 3 {
				t.Errorf("expected 3 samples, got %d", m[0].GetHistogram().GetSampleCount())
			}
		}
	}
	if !found {
		t.Error("request duration metric not found")
	}
}

func TestBulkDelete(t *testing.T) {
	c, _ := newTestCollector(t)

	c.BulkDelete(3, 2, []string{"not found"})
	c.BulkDelete(2, 0, []string{"not found", "not found"})

	if v := getCounterValue(c.containersDeleted); v != 2 {
		t.Errorf("expected 2 deleted containers, got %v", v)
	}
	if v := getCounterValue(c.deleteFailures.WithLabelValues("not found")); v != 3 {
		t.Errorf("expected 3 failures, got %v", v)
	}
	if v := getCounterValue(c.bulkDeleteRequests.WithLabelValues(OutcomeDeleted)); v != 1 {
		t.Errorf("expected 1 deleted outcome, got %v", v)
	}
	if v := getCounterValue(c.bulkDeleteRequests.WithLabelValues(OutcomeNone)); v != 1 {
		t.Errorf("expected 1 none_deleted outcome, got %v", v)
	}
}

func TestBulkStatusUpdate(t *testing.T) {
	c, _ := newTestCollector(t)

	c.BulkStatusUpdate(OutcomeUpdated, 3)
	c.BulkStatusUpdate(OutcomeRejected, 0)

	if v := getCounterValue(c.bulkStatusRequests.WithLabelValues(OutcomeUpdated)); v != 1 {
		t.Errorf("expected 1 updated request, got %v", v)
	}
	if v := getCounterValue(c.bulkStatusRequests.WithLabelValues(OutcomeRejected)); v != 1 {
		t.Errorf("expected 1 rejected request, got %v", v)
	}
	if v := getCounterValue(c.statusesAdded); v != 3 {
		t.Errorf("expected 3 statuses added, got %v", v)
	}
}

func TestBulkDeleteRejected(t *testing.T) {
	c, _ := newTestCollector(t)

	c.BulkDeleteRejected(OutcomeRejected)
	c.BulkDeleteRejected(OutcomeRejected)
	c.BulkDeleteRejected(OutcomeError)

	if v := getCounterValue(c.bulkDeleteRequests.WithLabelValues(OutcomeRejected)); v != 2 {
		t.Errorf("expected 2 rejected, got %v", v)
	}
	if v := getCounterValue(c.bulkDeleteRequests.WithLabelValues(OutcomeError)); v != 1 {
		t.Errorf("expected 1 error, got %v", v)
	}
}

func TestContainerGauges(t *testing.T) {
	c, _ := newTestCollector(t)

	c.SetContainerCount(12)
	if v := getGaugeValue(c.containers); v != 12 {
		t.Errorf("expected 12 containers, got %v", v)
	}

	c.ContainerDeleted()
	if v := getCounterValue(c.containersDeleted); v != 1 {
		t.Errorf("expected 1 deleted, got %v", v)
	}
}

func TestSetComponentHealth(t *testing.T) {
	c, _ := newTestCollector(t)

	c.SetComponentHealth("store", true)
	if v := getGaugeValue(c.componentHealth.WithLabelValues("store")); v != 1 {
		t.Errorf("expected health=1 (healthy), got %v", v)
	}

	c.SetComponentHealth("store", false)
	if v := getGaugeValue(c.componentHealth.WithLabelValues("store")); v != 0 {
		t.Errorf("expected health=0 (unhealthy), got %v", v)
	}
}

func TestHealthCheckCompleted(t *testing.T) {
	c, _ := newTestCollector(t)

	c.HealthCheckCompleted("store", time.Millisecond, true)
	c.HealthCheckCompleted("store", time.Millisecond, false)

	if v := getCounterValue(c.healthCheckErrors.WithLabelValues("store")); v != 1 {
		t.Errorf("expected 1 health check error, got %v", v)
	}
}

func TestNewRegistersRuntimeCollectors(t *testing.T) {
	c := New()

	families, err := c.Registry.Gather()
	if err != nil {
		t.Fatal(err)
	}

	var sawGo bool
	for _, f := range families {
		if f.GetName() == "go_goroutines" {
			sawGo = true
		}
	}
	if !sawGo {
		t.Error("expected go runtime metrics on the registry")
	}
}
