package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Bulk request outcomes used as the "outcome" label.
const (
	OutcomeDeleted     = "deleted"
	OutcomeNone        = "none_deleted"
	OutcomeUpdated     = "updated"
	OutcomeNoneUpdated = "none_updated"
	OutcomeRejected    = "rejected"
	OutcomeError       = "error"
)

// Collector holds all Prometheus metrics for the tracking server.
type Collector struct {
	// Registry is the registry every metric is registered with; the API
	// server exposes it on /metrics.
	Registry *prometheus.Registry

	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
	bulkDeleteRequests  *prometheus.CounterVec
	bulkDeleteSize      prometheus.Histogram
	containersDeleted   prometheus.Counter
	deleteFailures      *prometheus.CounterVec
	bulkStatusRequests  *prometheus.CounterVec
	statusesAdded       prometheus.Counter
	containers          prometheus.Gauge
	componentHealth     *prometheus.GaugeVec
	healthCheckDuration *prometheus.HistogramVec
	healthCheckErrors   *prometheus.CounterVec
}

// New creates all metrics and registers them on a fresh registry together
// with the Go runtime and process collectors.
func New() *Collector {
	c := newCollector("tracking")
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func newCollector(prefix string) *Collector {
	c := &Collector{
		Registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_http_requests_total",
				Help: "HTTP requests served, by route template and status code",
			},
			[]string{"route", "code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_http_request_duration_seconds",
				Help:    "HTTP request latency by route template",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"route"},
		),
		bulkDeleteRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_bulk_delete_requests_total",
				Help: "Bulk delete requests by outcome",
			},
			[]string{"outcome"},
		),
		bulkDeleteSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    prefix + "_bulk_delete_size",
				Help:    "Number of container ids submitted per bulk delete",
				Buckets: prometheus.ExponentialBuckets(1, 2, 11),
			},
		),
		containersDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: prefix + "_containers_deleted_total",
				Help: "Total number of containers deleted",
			},
		),
		deleteFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_container_delete_failures_total",
				Help: "Container ids that could not be deleted, by reason",
			},
			[]string{"reason"},
		),
		bulkStatusRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_bulk_status_requests_total",
				Help: "Bulk status update requests by outcome",
			},
			[]string{"outcome"},
		),
		statusesAdded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: prefix + "_bulk_statuses_added_total",
				Help: "Status entries appended by bulk status updates",
			},
		),
		containers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: prefix + "_containers",
				Help: "Number of containers in the store at the last listing",
			},
		),
		componentHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: prefix + "_component_health",
				Help: "Health status of a component (1=healthy, 0=unhealthy)",
			},
			[]string{"component"},
		),
		healthCheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_health_check_duration_seconds",
				Help:    "Duration of component health checks",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
			[]string{"component"},
		),
		healthCheckErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_health_check_errors_total",
				Help: "Failed health checks per component",
			},
			[]string{"component"},
		),
	}

	c.Registry.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.bulkDeleteRequests,
		c.bulkDeleteSize,
		c.containersDeleted,
		c.deleteFailures,
		c.bulkStatusRequests,
		c.statusesAdded,
		c.containers,
		c.componentHealth,
		c.healthCheckDuration,
		c.healthCheckErrors,
	)
	return c
}

// HTTPRequest records one served request.
func (c *Collector) HTTPRequest(route string, code int, d time.Duration) {
	c.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	c.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// BulkDelete records a processed bulk delete request.
func (c *Collector) BulkDelete(submitted, deleted int, failureReasons []string) {
	c.bulkDeleteSize.Observe(float64(submitted))
	c.containersDeleted.Add(float64(deleted))
	for _, reason := range failureReasons {
		c.deleteFailures.WithLabelValues(reason).Inc()
	}
	outcome := OutcomeNone
	if deleted > 0 {
		outcome = OutcomeDeleted
	}
	c.bulkDeleteRequests.WithLabelValues(outcome).Inc()
}

// BulkDeleteRejected records a bulk delete that never reached the store,
// either because validation failed or because the store errored.
func (c *Collector) BulkDeleteRejected(outcome string) {
	c.bulkDeleteRequests.WithLabelValues(outcome).Inc()
}

// BulkStatusUpdate records a bulk status update and how many entries it
// appended.
func (c *Collector) BulkStatusUpdate(outcome string, updated int) {
	c.bulkStatusRequests.WithLabelValues(outcome).Inc()
	c.statusesAdded.Add(float64(updated))
}

// ContainerDeleted records a single-container delete.
func (c *Collector) ContainerDeleted() {
	c.containersDeleted.Inc()
}

// SetContainerCount updates the container gauge.
func (c *Collector) SetContainerCount(n int) {
	c.containers.Set(float64(n))
}

// SetComponentHealth sets the health gauge for a component.
func (c *Collector) SetComponentHealth(component string, healthy bool) {
	val := 0.0
	if healthy {
		val = 1.0
	}
	c.componentHealth.WithLabelValues(component).Set(val)
}

// HealthCheckCompleted observes the duration of a health check and counts
// failures.
func (c *Collector) HealthCheckCompleted(component string, d time.Duration, healthy bool) {
	c.healthCheckDuration.WithLabelValues(component).Observe(d.Seconds())
	if !healthy {
		c.healthCheckErrors.WithLabelValues(component).Inc()
	}
}
