package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/studyforge/internal/core/domain"
)

// WorkerMetrics covers pipeline runs. It also implements the pipeline observer port.
type WorkerMetrics struct {
	service  string
	registry *prometheus.Registry

	runsTotal         *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	runsInFlight      prometheus.Gauge
	queueLag          *prometheus.HistogramVec
	stepDuration      *prometheus.HistogramVec
	stepErrorsTotal   *prometheus.CounterVec
	compensationTotal *prometheus.CounterVec
	retriesTotal      *prometheus.CounterVec
	sweepTotal        *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "runs_total",
			Help:      "Pipeline run executions by kind and outcome.",
		},
		[]string{"service", "kind", "outcome"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "run_duration_seconds",
			Help:      "Pipeline run execution duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "kind", "outcome"},
	)
	runsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "runs_in_flight",
			Help:      "Number of pipeline runs executing.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between run creation and execution start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	stepDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "step_duration_seconds",
			Help:      "Pipeline step duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "kind", "step"},
	)
	stepErrorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "step_errors_total",
			Help:      "Pipeline step failures.",
		},
		[]string{"service", "kind", "step"},
	)
	compensationTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "compensations_total",
			Help:      "Compensation actions by action and status.",
		},
		[]string{"service", "action", "status"},
	)
	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Retries scheduled by the resilience executor.",
		},
		[]string{"service", "operation"},
	)
	sweepTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watchdog",
			Name:      "runs_total",
			Help:      "Runs touched by the watchdog by action.",
		},
		[]string{"service", "action"},
	)

	registry.MustRegister(
		runsTotal,
		runDuration,
		runsInFlight,
		queueLag,
		stepDuration,
		stepErrorsTotal,
		compensationTotal,
		retriesTotal,
		sweepTotal,
	)

	return &WorkerMetrics{
		service:           service,
		registry:          registry,
		runsTotal:         runsTotal,
		runDuration:       runDuration,
		runsInFlight:      runsInFlight,
		queueLag:          queueLag,
		stepDuration:      stepDuration,
		stepErrorsTotal:   stepErrorsTotal,
		compensationTotal: compensationTotal,
		retriesTotal:      retriesTotal,
		sweepTotal:        sweepTotal,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartRun() {
	m.runsInFlight.Inc()
}

func (m *WorkerMetrics) FinishRun(kind domain.ArtifactKind, outcome string, duration time.Duration) {
	m.runsInFlight.Dec()
	k := string(kind)
	if k == "" {
		k = "unknown"
	}
	m.runsTotal.WithLabelValues(m.service, k, outcome).Inc()
	m.runDuration.WithLabelValues(m.service, k, outcome).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) ObserveStep(kind domain.ArtifactKind, step domain.PipelineStep, duration time.Duration, err error) {
	m.stepDuration.WithLabelValues(m.service, string(kind), string(step)).Observe(duration.Seconds())
	if err != nil {
		m.stepErrorsTotal.WithLabelValues(m.service, string(kind), string(step)).Inc()
	}
}

func (m *WorkerMetrics) ObserveCompensation(action string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.compensationTotal.WithLabelValues(m.service, action, status).Inc()
}

func (m *WorkerMetrics) ObserveRetry(operation string) {
	m.retriesTotal.WithLabelValues(m.service, operation).Inc()
}

func (m *WorkerMetrics) ObserveSweep(action string, n int) {
	if n <= 0 {
		return
	}
	m.sweepTotal.WithLabelValues(m.service, action).Add(float64(n))
}
