package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	MessagesTotal      *prometheus.CounterVec
	ProcessDuration    *prometheus.HistogramVec
	StageFailures      *prometheus.CounterVec
	ClassifierCalls    *prometheus.CounterVec
	ClassifierDuration prometheus.Histogram
	BatchSize          prometheus.Histogram
	BatchFailures      prometheus.Counter
	StoreErrors        *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sift_messages_total",
			Help: "Total messages processed by final state and priority.",
		}, []string{"state", "priority"}),
		ProcessDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sift_process_duration_seconds",
			Help:    "End-to-end duration of a single message in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25.6s
		}, []string{"state"}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sift_stage_failures_total",
			Help: "Message failures by pipeline stage and error kind.",
		}, []string{"stage", "kind"}),
		ClassifierCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sift_classifier_calls_total",
			Help: "Total classifier calls by outcome.",
		}, []string{"outcome"}),
		ClassifierDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sift_classifier_call_duration_seconds",
			Help:    "Duration of individual classifier calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25.6s
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sift_batch_size",
			Help:    "Messages per processed batch.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8), // 1 .. 128
		}),
		BatchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sift_batch_failures_total",
			Help: "Batches with at least one failed member.",
		}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sift_outcome_store_errors_total",
			Help: "Outcome store errors by operation.",
		}, []string{"op"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sift_notifications_total",
			Help: "HIGH priority notifications by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.MessagesTotal,
		m.ProcessDuration,
		m.StageFailures,
		m.ClassifierCalls,
		m.ClassifierDuration,
		m.BatchSize,
		m.BatchFailures,
		m.StoreErrors,
		m.NotificationsTotal,
	)

	return m
}

// Hooks returns a PipelineHooks that increments the corresponding metrics.
func (m *Metrics) Hooks() PipelineHooks {
	return PipelineHooks{
		OnClassifierCall: func(duration float64, err error) {
			outcome := "success"
			if err != nil {
				outcome = "error"
			}
			m.ClassifierCalls.WithLabelValues(outcome).Inc()
			m.ClassifierDuration.Observe(duration)
		},
		OnFailure: func(stage Stage, kind Kind) {
			m.StageFailures.WithLabelValues(string(stage), string(kind)).Inc()
		},
		OnComplete: func(e *CompleteEvent) {
			priority := string(e.Priority)
			if priority == "" {
				priority = "none"
			}
			m.MessagesTotal.WithLabelValues(string(e.State), priority).Inc()
			m.ProcessDuration.WithLabelValues(string(e.State)).Observe(e.Duration)
		},
		OnBatch: func(size, failed int) {
			m.BatchSize.Observe(float64(size))
			if failed > 0 {
				m.BatchFailures.Inc()
			}
		},
	}
}
