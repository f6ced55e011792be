// Package telemetry provides observability instrumentation for ForecastKit.
//
// The telemetry package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and event publishing into a unified system
// for monitoring and debugging forecast pipeline executions.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with multiple exporters
//  3. Metrics Collection - Prometheus metrics for operational insights
//  4. Event Publishing - Async event system for audit and notifications
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "forecastkit"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	// Start metrics server
//	if err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
// Add telemetry to context:
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context propagation:
//
//	logger := tel.Logger.NewComponentLogger("engine")
//	logger = logger.WithExecutionID("exec-123").WithDatasetGroup("taxi")
//	logger.Info("Starting dataset import")
//	logger.WithError(err).Error("Import failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Tracing provides visibility into pipeline flow and service latency:
//
//	ctx, span := tel.Tracer.Start(ctx, "stage.import")
//	defer span.End()
//
//	span.SetAttributes(
//	    attribute.String("dataset_group.name", "taxi"),
//	    attribute.String("stage", "import"),
//	)
//
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// Supported exporters: OTLP (production), Stdout (development)
//
// # Metrics
//
// Prometheus metrics track pipeline behavior and service usage:
//
//	tel.Metrics.RecordExecutionStarted("taxi")
//	tel.Metrics.RecordExecutionCompleted("done", duration)
//	tel.Metrics.RecordStage("predictor", "succeeded", duration)
//	tel.Metrics.RecordAPICall("CreatePredictor", "success", duration)
//	tel.Metrics.RecordAPIRetry("CreatePredictor", "throttled")
//	tel.Metrics.RecordError("transient", "TIMEOUT")
//
// Metrics are exposed via HTTP at /metrics (default: :9090/metrics)
//
// # Event Publishing
//
// The event system provides async publishing with buffering and filtering:
//
//	tel.Events.PublishExecutionStarted(executionID, datasetGroup)
//	tel.Events.PublishStageCompleted(executionID, "import", resource, duration)
//	tel.Events.PublishUploadDetected(datasetGroup, datasetType, location)
//
//	tel.Events.Subscribe(func(event telemetry.Event) {
//	    fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
//	}, telemetry.FilterByLevel("warning"))
//
// Event filters: FilterByLevel, FilterByType, FilterByExecutionID, FilterByDatasetGroup
//
// # Context Helpers
//
// High-level helpers simplify common instrumentation patterns:
//
//	// Execution context
//	ctx = telemetry.WithExecutionContext(ctx, executionID, datasetGroup)
//	defer telemetry.EndExecutionContext(ctx, executionID, datasetGroup, status, err)
//
//	// Stage context
//	ctx = telemetry.WithStageContext(ctx, executionID, stage, resource)
//	defer telemetry.EndStageContext(ctx, executionID, stage, resource, status, err)
//
//	// Service call
//	err := telemetry.RecordAPIOperation(ctx, "CreateForecast", name, func() error {
//	    return client.CreateForecast(ctx, input)
//	})
//
// # Configuration
//
// The package provides pre-configured setups for different environments:
//
//	// Development (verbose logging, stdout traces, full sampling)
//	cfg := telemetry.DevelopmentConfig()
//
//	// Production (JSON logs, OTLP traces, 10% sampling)
//	cfg := telemetry.ProductionConfig()
//
// # Common Metrics
//
// Key metrics exposed:
//
//   - forecastkit_executions_started_total{dataset_group}
//   - forecastkit_executions_completed_total{status}
//   - forecastkit_execution_duration_seconds{status}
//   - forecastkit_stages_executed_total{stage,status}
//   - forecastkit_stage_duration_seconds{stage}
//   - forecastkit_api_calls_total{operation,outcome}
//   - forecastkit_api_call_duration_seconds{operation}
//   - forecastkit_api_retries_total{operation,class}
//   - forecastkit_errors_by_class_total{class}
//   - forecastkit_predictors_reused_total{dataset_group}
//   - forecastkit_active_executions
//
// # Graceful Shutdown
//
// Always shut down telemetry gracefully to flush pending data:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//
//	if err := tel.Shutdown(ctx); err != nil {
//	    log.Printf("Telemetry shutdown error: %v", err)
//	}
//
// This ensures all buffered events are published and all pending traces are
// exported.
package telemetry
