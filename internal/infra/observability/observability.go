package observability

import (
	"context"

	"github.com/chiyuki0325/Memoh/internal/shared/logging"
)

// Observability bundles the metrics collector and tracer provider.
type Observability struct {
	Logger  logging.Logger
	Metrics *MetricsCollector
	Tracer  *TracerProvider
	config  Config
}

// New initializes metrics and tracing. Components that fail to start are
// replaced by no-op versions so the agent keeps serving.
func New(config Config, logger logging.Logger) *Observability {
	logger = logging.OrNop(logger)

	metrics, err := NewMetricsCollector(config.Metrics)
	if err != nil {
		logger.Error("Failed to initialize metrics: %v", err)
		metrics = &MetricsCollector{}
	}

	tracer, err := NewTracerProvider(config.Tracing)
	if err != nil {
		logger.Error("Failed to initialize tracing: %v", err)
		tracer = &TracerProvider{}
	}

	logger.Info("Observability initialized (metrics=%t, tracing=%t exporter=%s)",
		metrics.Enabled(), config.Tracing.Enabled, config.Tracing.Exporter)

	return &Observability{
		Logger:  logger,
		Metrics: metrics,
		Tracer:  tracer,
		config:  config,
	}
}

// Shutdown flushes and stops all components.
func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil {
		return nil
	}
	o.Logger.Info("Shutting down observability")
	if err := o.Metrics.Shutdown(ctx); err != nil {
		o.Logger.Error("Failed to shutdown metrics: %v", err)
	}
	if err := o.Tracer.Shutdown(ctx); err != nil {
		o.Logger.Error("Failed to shutdown tracing: %v", err)
	}
	return nil
}

// Config returns the configuration the instance was built from.
func (o *Observability) Config() Config {
	return o.config
}
