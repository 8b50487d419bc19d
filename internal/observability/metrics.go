package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// HTTP metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workspaced_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"route", "method", "code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "workspaced_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	ActiveRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "workspaced_active_requests",
		Help: "Current in-flight requests",
	})

	// lifecycle metrics
	StartupDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "workspaced_startup_duration_seconds",
		Help:    "End-to-end startup duration",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"outcome"})

	StateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workspaced_state_transitions_total",
		Help: "Workspace state transition count",
	}, []string{"from", "to"})

	LockWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "workspaced_lock_wait_seconds",
		Help:    "Workspace row lock wait time",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	// host scheduler metrics
	HostAssignTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workspaced_host_assign_total",
		Help: "Host assignment attempt count",
	}, []string{"outcome"})

	HostAssignAttempts = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "workspaced_host_assign_attempts",
		Help:    "Attempts needed before a host was assigned",
		Buckets: []float64{1, 2, 3, 5, 10, 20, 40, 60},
	})

	// storage backend metrics
	MaterializeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "workspaced_materialize_duration_seconds",
		Help:    "Initial content materialization duration",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"backend"})

	GradedFetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "workspaced_graded_fetch_duration_seconds",
		Help:    "Graded file collection duration",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"backend"})

	GradedFilesSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workspaced_graded_files_skipped_total",
		Help: "Graded files absent at collection time",
	}, []string{"backend"})

	GradedFallbackTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "workspaced_graded_fallback_total",
		Help: "Control-channel export failures that fell back to the backend",
	})

	// control channel metrics
	ControlRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workspaced_control_requests_total",
		Help: "Control channel request count",
	}, []string{"action", "code"})

	ControlRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "workspaced_control_request_duration_seconds",
		Help:    "Control channel request latency",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"action"})
)

func RegisterAll(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, ActiveRequests,
		StartupDuration, StateTransitions, LockWaitSeconds,
		HostAssignTotal, HostAssignAttempts,
		MaterializeDuration, GradedFetchDuration, GradedFilesSkippedTotal, GradedFallbackTotal,
		ControlRequestsTotal, ControlRequestDuration,
	)
}
