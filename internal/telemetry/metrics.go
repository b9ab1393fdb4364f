package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the daemon.
type Metrics struct {
	// PSI gauges
	PSICurrent *prometheus.GaugeVec
	PSIAvg10   *prometheus.GaugeVec

	// Per-controller cycle metrics
	ControllerCycles   *prometheus.CounterVec
	ControllerDuration *prometheus.HistogramVec

	// Knob writes
	KnobWrites     *prometheus.CounterVec
	KnobSuppressed *prometheus.CounterVec

	// Adaptive poller
	PollIntervalMS *prometheus.GaugeVec

	// Service supervisor
	ServiceState    *prometheus.GaugeVec
	ServiceFaults   *prometheus.CounterVec
	EpollWaitBudget *prometheus.HistogramVec

	// Event/error bus (pkg/event.InMemoryBus instrumentation)
	ErrorsPublished  *prometheus.CounterVec
	BusEventsSent    *prometheus.CounterVec
	BusEventsDropped *prometheus.CounterVec
	BusPublishDur    *prometheus.HistogramVec
	BusFilterDur     *prometheus.HistogramVec
	BusSendDur       *prometheus.HistogramVec
	BusSendBlocked   *prometheus.CounterVec
	BusSubscribers   *prometheus.GaugeVec
	BusBufferUsage   *prometheus.GaugeVec
	BusBufferSize    *prometheus.GaugeVec
}

var defaultMetrics *Metrics

// InitMetrics initializes the Prometheus metrics.
// This should be called once at startup before any metrics are recorded.
func InitMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	// Buckets: 1µs, 2µs, 5µs, 10µs, 20µs, 50µs, 100µs, 200µs, 500µs, 1ms, 2ms, 5ms, 10ms, 20ms, 50ms, 100ms
	latencyBuckets := []float64{
		0.000001, // 1µs
		0.000002, // 2µs
		0.000005, // 5µs
		0.00001,  // 10µs
		0.00002,  // 20µs
		0.00005,  // 50µs
		0.0001,   // 100µs
		0.0002,   // 200µs
		0.0005,   // 500µs
		0.001,    // 1ms
		0.002,    // 2ms
		0.005,    // 5ms
		0.01,     // 10ms
		0.02,     // 20ms
		0.05,     // 50ms
		0.1,      // 100ms
	}

	m := &Metrics{
		PSICurrent: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tunedaemon_psi_current",
				Help: "Current instantaneous pressure, 0-100",
			},
			[]string{"resource", "kind"}, // resource: cpu|memory|io, kind: some|full
		),

		PSIAvg10: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tunedaemon_psi_avg10",
				Help: "Kernel-reported 10s pressure average, 0-100",
			},
			[]string{"resource", "kind"},
		),

		ControllerCycles: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunedaemon_controller_cycles_total",
				Help: "Total number of controller regulation cycles run",
			},
			[]string{"controller"},
		),

		ControllerDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tunedaemon_controller_cycle_duration_seconds",
				Help:    "Time taken to compute one controller regulation cycle",
				Buckets: latencyBuckets,
			},
			[]string{"controller"},
		),

		KnobWrites: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunedaemon_knob_writes_total",
				Help: "Total number of kernel knob writes that passed the tolerance check",
			},
			[]string{"knob"},
		),

		KnobSuppressed: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunedaemon_knob_suppressed_total",
				Help: "Total number of knob writes suppressed by the cached-writer tolerance strategy",
			},
			[]string{"knob"},
		),

		PollIntervalMS: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tunedaemon_poll_interval_ms",
				Help: "Current adaptive poller wake interval in milliseconds",
			},
			[]string{"resource"},
		),

		ServiceState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tunedaemon_service_state",
				Help: "Supervised service state: 0=uninitialized 1=active 2=cooldown 3=permanently_disabled",
			},
			[]string{"service"},
		),

		ServiceFaults: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunedaemon_service_faults_total",
				Help: "Total number of non-fatal service faults from on_event/on_timeout",
			},
			[]string{"service"},
		),

		EpollWaitBudget: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tunedaemon_epoll_wait_budget_seconds",
				Help:    "Computed epoll_wait budget per supervisor iteration",
				Buckets: latencyBuckets,
			},
			[]string{},
		),

		ErrorsPublished: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunedaemon_errors_published_total",
				Help: "Total number of ErrorEvents published to the error bus",
			},
			[]string{"component", "severity"},
		),

		BusEventsSent: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunedaemon_errorbus_events_sent_total",
				Help: "Total number of events published to the error/control bus",
			},
			[]string{"bus", "event_type"},
		),

		BusEventsDropped: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunedaemon_errorbus_events_dropped_total",
				Help: "Total number of events dropped due to a slow subscriber",
			},
			[]string{"bus", "event_type", "subscription_id"},
		),

		BusPublishDur: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tunedaemon_errorbus_publish_duration_seconds",
				Help:    "Time taken to publish an event, including filtering and fan-out",
				Buckets: latencyBuckets,
			},
			[]string{"bus", "event_type"},
		),

		BusFilterDur: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tunedaemon_errorbus_filter_duration_seconds",
				Help:    "Time taken to filter an event against subscription criteria",
				Buckets: latencyBuckets,
			},
			[]string{"bus", "subscription_id"},
		),

		BusSendDur: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tunedaemon_errorbus_send_duration_seconds",
				Help:    "Time taken to send an event to a subscription channel, including blocking time",
				Buckets: latencyBuckets,
			},
			[]string{"bus", "subscription_id", "result"},
		),

		BusSendBlocked: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunedaemon_errorbus_send_blocked_total",
				Help: "Number of times an event send blocked waiting for channel space",
			},
			[]string{"bus", "subscription_id"},
		),

		BusSubscribers: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tunedaemon_errorbus_subscribers",
				Help: "Current number of active subscribers",
			},
			[]string{"bus"},
		),

		BusBufferUsage: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tunedaemon_errorbus_buffer_usage",
				Help: "Current number of events queued in a subscription buffer",
			},
			[]string{"bus", "subscription_id"},
		),

		BusBufferSize: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tunedaemon_errorbus_buffer_size",
				Help: "Configured capacity of a subscription buffer",
			},
			[]string{"bus", "subscription_id"},
		),
	}

	defaultMetrics = m
	return m
}

// Default returns the default metrics instance.
// If InitMetrics hasn't been called, it will initialize with the default registry.
func Default() *Metrics {
	if defaultMetrics == nil {
		return InitMetrics(nil)
	}
	return defaultMetrics
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer starting now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Observe records the elapsed time in seconds to the given histogram.
func (t *Timer) Observe(histogram prometheus.Observer) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveWithLabels records the elapsed time to a histogram with labels.
func (t *Timer) ObserveWithLabels(histogram *prometheus.HistogramVec, labels prometheus.Labels) {
	histogram.With(labels).Observe(time.Since(t.start).Seconds())
}

// Elapsed returns the time elapsed since the timer started.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}
