package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// JobsTotal counts completed submissions by their terminal status.
	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parserd_jobs_total",
			Help: "Total number of submissions processed, labeled by terminal status",
		},
		[]string{"status"},
	)

	// JobDuration records the wall-clock time of one worker's per-job
	// transaction, from the worker starting the job to its terminal status
	// update.
	JobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "parserd_job_duration_seconds",
			Help:    "Duration of one submission's parse-and-insert transaction",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	// ActiveWorkers is a gauge of the number of worker goroutines currently
	// alive (not yet observed the shutdown flag).
	ActiveWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "parserd_active_workers",
			Help: "Number of parse worker goroutines currently running",
		},
	)

	// QueueDepth is a gauge of the job queue's current length.
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "parserd_job_queue_depth",
			Help: "Number of job descriptors currently buffered in the job queue",
		},
	)

	// DispatcherStallsTotal counts how many times the Dispatcher's send to
	// the job queue blocked long enough to trigger the backpressure warning.
	DispatcherStallsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "parserd_dispatcher_stalls_total",
			Help: "Total number of times the dispatcher stalled on a saturated job queue",
		},
	)

	// GatewayReconnectsTotal counts Database Gateway connection resets
	// attempted after a failed Ping or a lost notification-wait connection.
	GatewayReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parserd_gateway_reconnects_total",
			Help: "Total number of database gateway reconnect attempts, labeled by outcome",
		},
		[]string{"outcome"},
	)

	// NotificationsTotal counts submission_ready notifications received by
	// any gateway's WaitForNotification.
	NotificationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "parserd_notifications_total",
			Help: "Total number of submission_ready notifications received",
		},
	)
)

// InitMetrics registers all Prometheus metrics with the default registry.
func InitMetrics() {
	prometheus.MustRegister(JobsTotal)
	prometheus.MustRegister(JobDuration)
	prometheus.MustRegister(ActiveWorkers)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(DispatcherStallsTotal)
	prometheus.MustRegister(GatewayReconnectsTotal)
	prometheus.MustRegister(NotificationsTotal)
}

// RecordJobTerminal increments the jobs counter for a submission's terminal
// status and observes its processing duration.
func RecordJobTerminal(status string, durationSeconds float64) {
	JobsTotal.WithLabelValues(status).Inc()
	JobDuration.Observe(durationSeconds)
}

// RecordDispatcherStall increments the dispatcher stall counter.
func RecordDispatcherStall() {
	DispatcherStallsTotal.Inc()
}

// RecordGatewayReconnect increments the gateway reconnect counter for the
// given outcome, "ok" or "failed".
func RecordGatewayReconnect(outcome string) {
	GatewayReconnectsTotal.WithLabelValues(outcome).Inc()
}

// RecordNotification increments the notifications-received counter.
func RecordNotification() {
	NotificationsTotal.Inc()
}
