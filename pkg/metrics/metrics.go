package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ContainersTotal tracks the registry's current size by lifecycle
	// state (spec §4.1's state machine), refreshed by Collector.
	ContainersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scagentd_containers_total",
			Help: "Registered containers by lifecycle state",
		},
		[]string{"state"},
	)

	ContainerCreateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scagentd_container_create_duration_seconds",
			Help:    "Time taken to bring a container to READY",
			Buckets: prometheus.DefBuckets,
		},
	)

	ContainerDestroyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scagentd_container_destroy_duration_seconds",
			Help:    "Time taken to tear a container down",
			Buckets: prometheus.DefBuckets,
		},
	)

	// GatewayActivationsTotal counts Activate calls by gateway id and
	// outcome, covering both SetCapabilities and the lazy
	// everConfigured default-capability path.
	GatewayActivationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scagentd_gateway_activations_total",
			Help: "Gateway Activate calls by gateway id and outcome",
		},
		[]string{"gateway", "outcome"},
	)

	GatewayActivationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scagentd_gateway_activation_duration_seconds",
			Help:    "Gateway Activate call duration by gateway id",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"gateway"},
	)

	// JobsStartedTotal and JobExitCodesTotal cover pkg/job's command
	// and function jobs alike.
	JobsStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scagentd_jobs_started_total",
			Help: "Total number of jobs started via Execute",
		},
	)

	JobExitCodesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scagentd_job_exit_codes_total",
			Help: "Job terminations by exit code",
		},
		[]string{"exit_code"},
	)

	// RPCRequestsTotal and RPCRequestDuration are populated by
	// pkg/rpc's logging interceptor.
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scagentd_rpc_requests_total",
			Help: "RPC requests by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	RPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scagentd_rpc_request_duration_seconds",
			Help:    "RPC request duration in seconds by method",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// CapabilityResolutionsTotal counts pkg/capability.Store.Resolve
	// calls by capability name and outcome.
	CapabilityResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scagentd_capability_resolutions_total",
			Help: "Capability resolutions by name and outcome",
		},
		[]string{"capability", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		ContainersTotal,
		ContainerCreateDuration,
		ContainerDestroyDuration,
		GatewayActivationsTotal,
		GatewayActivationDuration,
		JobsStartedTotal,
		JobExitCodesTotal,
		RPCRequestsTotal,
		RPCRequestDuration,
		CapabilityResolutionsTotal,
	)
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations against a histogram.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer, starting now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
