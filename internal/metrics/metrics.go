package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	UpdateEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fota",
			Name:      "update_events_total",
			Help:      "Count of lifecycle events processed by the history recorder.",
		},
		[]string{"type"},
	)

	VersionChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fota",
			Name:      "version_checks_total",
			Help:      "Polling cycles by outcome.",
		},
		[]string{"result"},
	)

	FetchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fota",
			Name:      "fetch_errors_total",
			Help:      "Transport errors and non-200 responses from update endpoints.",
		},
		[]string{"endpoint"},
	)

	FetchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fota",
			Name:      "fetch_latency_seconds",
			Help:      "Time to response headers from update endpoints.",
		},
		[]string{"endpoint"},
	)

	BytesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fota",
			Name:      "firmware_bytes_written_total",
			Help:      "Firmware bytes accepted by the flash sink.",
		},
	)

	RetryCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fota",
			Name:      "retry_count",
			Help:      "Consecutive failed polling cycles since the last success or soft reset.",
		},
	)
)

// Register registers the fota metrics into the default registry.
func Register() {
	prometheus.MustRegister(UpdateEvents, VersionChecks, FetchErrors, FetchLatency, BytesWritten, RetryCount)
}
