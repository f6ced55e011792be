package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for ForecastKit.
type Metrics struct {
	config MetricsConfig

	// Execution metrics
	executionsStarted   *prometheus.CounterVec
	executionsCompleted *prometheus.CounterVec
	executionDuration   *prometheus.HistogramVec

	// Stage metrics
	stagesExecuted *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec

	// Service API metrics
	apiCalls        *prometheus.CounterVec
	apiCallDuration *prometheus.HistogramVec
	apiRetries      *prometheus.CounterVec

	// Resource metrics
	resourcesManaged *prometheus.GaugeVec
	predictorsReused *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// Upload and notification metrics
	uploadsDetected   *prometheus.CounterVec
	notificationsSent *prometheus.CounterVec

	// System metrics
	activeExecutions prometheus.Gauge
	queuedExecutions prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	// Create a new registry
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		// Execution metrics
		executionsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_started_total",
				Help:      "Total number of pipeline executions started",
			},
			[]string{"dataset_group"},
		),
		executionsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_completed_total",
				Help:      "Total number of pipeline executions completed",
			},
			[]string{"status"},
		),
		executionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_seconds",
				Help:      "End-to-end pipeline execution duration in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		// Stage metrics
		stagesExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stages_executed_total",
				Help:      "Total number of lifecycle stages executed",
			},
			[]string{"stage", "status"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of lifecycle stage execution in seconds",
				Buckets:   buckets,
			},
			[]string{"stage"},
		),

		// Service API metrics
		apiCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_calls_total",
				Help:      "Total number of forecast service API calls",
			},
			[]string{"operation", "outcome"},
		),
		apiCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_call_duration_seconds",
				Help:      "Duration of forecast service API calls in seconds, including retries",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),
		apiRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_retries_total",
				Help:      "Total number of forecast service API retries",
			},
			[]string{"operation", "class"},
		),

		// Resource metrics
		resourcesManaged: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "resources_managed",
				Help:      "Current number of managed forecast resources",
			},
			[]string{"kind", "status"},
		),
		predictorsReused: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "predictors_reused_total",
				Help:      "Total number of executions that reused an existing predictor",
			},
			[]string{"dataset_group"},
		),

		// Error metrics
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		// Upload and notification metrics
		uploadsDetected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploads_detected_total",
				Help:      "Total number of dataset uploads detected",
			},
			[]string{"dataset_type"},
		),
		notificationsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_sent_total",
				Help:      "Total number of terminal-state notifications sent",
			},
			[]string{"channel", "status"},
		),

		// System metrics
		activeExecutions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_executions",
				Help:      "Current number of active pipeline executions",
			},
		),
		queuedExecutions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queued_executions",
				Help:      "Current number of queued pipeline executions",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.executionsStarted,
		m.executionsCompleted,
		m.executionDuration,
		m.stagesExecuted,
		m.stageDuration,
		m.apiCalls,
		m.apiCallDuration,
		m.apiRetries,
		m.resourcesManaged,
		m.predictorsReused,
		m.errorsByClass,
		m.errorsByCode,
		m.uploadsDetected,
		m.notificationsSent,
		m.activeExecutions,
		m.queuedExecutions,
	)

	return m, nil
}

// Execution Metrics

// RecordExecutionStarted increments the counter for started executions.
func (m *Metrics) RecordExecutionStarted(datasetGroup string) {
	if m.executionsStarted == nil {
		return
	}
	m.executionsStarted.WithLabelValues(datasetGroup).Inc()
	m.activeExecutions.Inc()
}

// RecordExecutionCompleted records a completed execution with its status and
// duration.
func (m *Metrics) RecordExecutionCompleted(status string, duration time.Duration) {
	if m.executionsCompleted == nil {
		return
	}
	m.executionsCompleted.WithLabelValues(status).Inc()
	m.executionDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeExecutions.Dec()
}

// Stage Metrics

// RecordStage records the execution of a lifecycle stage.
func (m *Metrics) RecordStage(stage, status string, duration time.Duration) {
	if m.stagesExecuted == nil {
		return
	}
	m.stagesExecuted.WithLabelValues(stage, status).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// Service API Metrics

// RecordAPICall records one forecast service API call with its final
// outcome and total duration including retries.
func (m *Metrics) RecordAPICall(operation, outcome string, duration time.Duration) {
	if m.apiCalls == nil {
		return
	}
	m.apiCalls.WithLabelValues(operation, outcome).Inc()
	m.apiCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAPIRetry records a single retry of a forecast service API call.
func (m *Metrics) RecordAPIRetry(operation, class string) {
	if m.apiRetries == nil {
		return
	}
	m.apiRetries.WithLabelValues(operation, class).Inc()
}

// Resource Metrics

// SetResourceCount sets the current count of managed resources.
func (m *Metrics) SetResourceCount(kind, status string, count float64) {
	if m.resourcesManaged == nil {
		return
	}
	m.resourcesManaged.WithLabelValues(kind, status).Set(count)
}

// RecordPredictorReused records an execution that skipped predictor training
// in favor of an existing one.
func (m *Metrics) RecordPredictorReused(datasetGroup string) {
	if m.predictorsReused == nil {
		return
	}
	m.predictorsReused.WithLabelValues(datasetGroup).Inc()
}

// Error Metrics

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// Upload and Notification Metrics

// RecordUploadDetected records a detected dataset upload.
func (m *Metrics) RecordUploadDetected(datasetType string) {
	if m.uploadsDetected == nil {
		return
	}
	m.uploadsDetected.WithLabelValues(datasetType).Inc()
}

// RecordNotification records a terminal-state notification attempt.
func (m *Metrics) RecordNotification(channel, status string) {
	if m.notificationsSent == nil {
		return
	}
	m.notificationsSent.WithLabelValues(channel, status).Inc()
}

// System Metrics

// SetQueuedExecutions sets the current number of queued executions.
func (m *Metrics) SetQueuedExecutions(count float64) {
	if m.queuedExecutions == nil {
		return
	}
	m.queuedExecutions.Set(count)
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
