package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/chiyuki0325/Memoh/internal/shared/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsCollector records agent metrics. The zero value is a valid
// collector that records nothing.
type MetricsCollector struct {
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider

	// Turn metrics
	turns         metric.Int64Counter
	turnDuration  metric.Float64Histogram
	actions       metric.Int64Counter
	attachments   metric.Int64Counter
	upstreamFails metric.Int64Counter
	streamsActive metric.Int64UpDownCounter

	// LLM metrics
	llmRequests     metric.Int64Counter
	llmTokensInput  metric.Int64Counter
	llmTokensOutput metric.Int64Counter
	llmLatency      metric.Float64Histogram

	// Tool metrics
	toolExecutions metric.Int64Counter
	toolDuration   metric.Float64Histogram

	// HTTP server metrics
	httpRequests metric.Int64Counter
	httpLatency  metric.Float64Histogram

	server *http.Server

	testHooks MetricsTestHooks
}

// MetricsTestHooks lets tests observe recordings without scraping.
type MetricsTestHooks struct {
	Turn            func(entry, status string, duration time.Duration)
	Action          func(actionType string)
	UpstreamFailure func(kind string)
	LLMRequest      func(model, status string, inputTokens, outputTokens int)
}

// SetTestHooks registers callbacks invoked whenever the matching metric is
// recorded.
func (m *MetricsCollector) SetTestHooks(hooks MetricsTestHooks) {
	if m == nil {
		return
	}
	m.testHooks = hooks
}

// NewMetricsCollector creates a collector backed by an OpenTelemetry meter
// exported to a dedicated Prometheus registry.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(serviceName)

	m := &MetricsCollector{registry: registry, provider: provider}
	b := instrumentBuilder{meter: meter}

	m.turns = b.counter("memoh.turns.total", "Agent turns by entry point and outcome", "{turn}")
	m.turnDuration = b.histogram("memoh.turn.duration", "Agent turn duration in seconds", "s")
	m.actions = b.counter("memoh.actions.total", "Actions delivered to consumers by type", "{action}")
	m.attachments = b.counter("memoh.attachments.extracted", "Attachments recognized in model output", "{attachment}")
	m.upstreamFails = b.counter("memoh.upstream.failures.total", "Turns that ended with an upstream error", "{failure}")
	m.streamsActive = b.upDownCounter("memoh.streams.active", "Action streams currently open", "{stream}")

	m.llmRequests = b.counter("memoh.llm.requests.total", "Total number of LLM requests", "{request}")
	m.llmTokensInput = b.counter("memoh.llm.tokens.input", "Total input tokens sent to LLM", "{token}")
	m.llmTokensOutput = b.counter("memoh.llm.tokens.output", "Total output tokens from LLM", "{token}")
	m.llmLatency = b.histogram("memoh.llm.latency", "LLM request latency in seconds", "s")

	m.toolExecutions = b.counter("memoh.tool.executions.total", "Total number of tool executions", "{execution}")
	m.toolDuration = b.histogram("memoh.tool.duration", "Tool execution duration in seconds", "s")

	m.httpRequests = b.counter("memoh.http.requests.total", "Total HTTP requests handled by the server", "{request}")
	m.httpLatency = b.histogram("memoh.http.latency", "HTTP request latency in seconds", "s")

	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

type instrumentBuilder struct {
	meter metric.Meter
	err   error
}

func (b *instrumentBuilder) counter(name, desc, unit string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.fail(name, err)
	return c
}

func (b *instrumentBuilder) upDownCounter(name, desc, unit string) metric.Int64UpDownCounter {
	c, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.fail(name, err)
	return c
}

func (b *instrumentBuilder) histogram(name, desc, unit string) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.fail(name, err)
	return h
}

func (b *instrumentBuilder) fail(name string, err error) {
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("failed to create %s: %w", name, err)
	}
}

// Enabled reports whether recordings are exported.
func (m *MetricsCollector) Enabled() bool {
	return m != nil && m.provider != nil
}

// Handler serves the Prometheus exposition of the collector.
func (m *MetricsCollector) Handler() http.Handler {
	if !m.Enabled() {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics disabled", http.StatusNotFound)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer serves /metrics on addr in the background.
func (m *MetricsCollector) StartServer(addr string, logger logging.Logger) {
	if !m.Enabled() || addr == "" {
		return
	}
	logger = logging.OrNop(logger)
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	m.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Metrics server listening on %s", addr)
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error: %v", err)
		}
	}()
}

// Shutdown stops the metrics server and flushes the meter provider.
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	var errs []error
	if m.server != nil {
		errs = append(errs, m.server.Shutdown(ctx))
	}
	if m.provider != nil {
		errs = append(errs, m.provider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// RecordTurn records a finished turn. entry is ask, stream, subagent,
// schedule or heartbeat; status is success, error or canceled.
func (m *MetricsCollector) RecordTurn(ctx context.Context, entry, status string, duration time.Duration) {
	if m == nil {
		return
	}
	if m.turns != nil {
		attrs := metric.WithAttributes(
			attribute.String("entry", entry),
			attribute.String("status", status),
		)
		m.turns.Add(ctx, 1, attrs)
		m.turnDuration.Record(ctx, duration.Seconds(), attrs)
	}
	if m.testHooks.Turn != nil {
		m.testHooks.Turn(entry, status, duration)
	}
}

// RecordAction counts one action handed to a consumer.
func (m *MetricsCollector) RecordAction(ctx context.Context, actionType string) {
	if m == nil {
		return
	}
	if m.actions != nil {
		m.actions.Add(ctx, 1, metric.WithAttributes(attribute.String("type", actionType)))
	}
	if m.testHooks.Action != nil {
		m.testHooks.Action(actionType)
	}
}

// RecordAttachments counts attachments recognized in model output.
func (m *MetricsCollector) RecordAttachments(ctx context.Context, kind string, n int) {
	if m == nil || m.attachments == nil || n <= 0 {
		return
	}
	m.attachments.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordUpstreamFailure counts a turn ended by an upstream error. kind is
// the error classification.
func (m *MetricsCollector) RecordUpstreamFailure(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	if m.upstreamFails != nil {
		m.upstreamFails.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
	if m.testHooks.UpstreamFailure != nil {
		m.testHooks.UpstreamFailure(kind)
	}
}

// IncrementActiveStreams tracks an opened action stream.
func (m *MetricsCollector) IncrementActiveStreams(ctx context.Context) {
	if m == nil || m.streamsActive == nil {
		return
	}
	m.streamsActive.Add(ctx, 1)
}

// DecrementActiveStreams tracks a closed action stream.
func (m *MetricsCollector) DecrementActiveStreams(ctx context.Context) {
	if m == nil || m.streamsActive == nil {
		return
	}
	m.streamsActive.Add(ctx, -1)
}

// RecordLLMRequest records one model call.
func (m *MetricsCollector) RecordLLMRequest(ctx context.Context, model, status string, latency time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	if m.llmRequests != nil {
		attrs := metric.WithAttributes(
			attribute.String("model", model),
			attribute.String("status", status),
		)
		m.llmRequests.Add(ctx, 1, attrs)
		m.llmLatency.Record(ctx, latency.Seconds(), attrs)
		modelAttr := metric.WithAttributes(attribute.String("model", model))
		m.llmTokensInput.Add(ctx, int64(inputTokens), modelAttr)
		m.llmTokensOutput.Add(ctx, int64(outputTokens), modelAttr)
	}
	if m.testHooks.LLMRequest != nil {
		m.testHooks.LLMRequest(model, status, inputTokens, outputTokens)
	}
}

// RecordToolExecution records one tool call.
func (m *MetricsCollector) RecordToolExecution(ctx context.Context, toolName, status string, duration time.Duration) {
	if m == nil || m.toolExecutions == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("tool_name", toolName),
		attribute.String("status", status),
	)
	m.toolExecutions.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordHTTPRequest records one handled HTTP request.
func (m *MetricsCollector) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil || m.httpRequests == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	)
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpLatency.Record(ctx, duration.Seconds(), attrs)
}
