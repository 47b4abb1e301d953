package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"resumatch/internal/config"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ObservabilityConfig holds configuration for observability
type ObservabilityConfig struct {
	ServiceName    string
	ServiceVersion string
	Enabled        bool
	ConsoleOutput  bool
	SampleRate     float64
	Prometheus     PrometheusConfig
}

// Metrics holds all custom instruments for the matching service.
type Metrics struct {
	// Extraction capability metrics
	ExtractionDuration metric.Float64Histogram
	ExtractionCount    metric.Int64Counter
	ExtractionErrors   metric.Int64Counter
	ExtractionTokens   metric.Int64Histogram

	// Pipeline metrics
	ResumesProcessed metric.Int64Counter
	MatchesScored    metric.Int64Counter
	PipelineErrors   metric.Int64Counter

	// Cache metrics
	CacheHits      metric.Int64Counter
	CacheMisses    metric.Int64Counter
	CacheCoalesced metric.Int64Counter
	CacheEvictions metric.Int64Counter

	// Rate limiting metrics
	RateLimitHits metric.Int64Counter
}

// ObservabilityManager manages OpenTelemetry setup
type ObservabilityManager struct {
	config           ObservabilityConfig
	fullConfig       *config.Config
	tracerProvider   *trace.TracerProvider
	meterProvider    *sdkmetric.MeterProvider
	metrics          *Metrics
	shutdownFuncs    []func(context.Context) error
	prometheusServer *http.ServeMux
}

// NewObservabilityManager creates a new observability manager
func NewObservabilityManager(obsConfig ObservabilityConfig, fullConfig *config.Config) (*ObservabilityManager, error) {
	if !obsConfig.Enabled {
		return &ObservabilityManager{config: obsConfig, fullConfig: fullConfig}, nil
	}

	om := &ObservabilityManager{
		config:        obsConfig,
		fullConfig:    fullConfig,
		shutdownFuncs: make([]func(context.Context) error, 0),
	}

	if err := om.initTracing(); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	if err := om.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return om, nil
}

// initTracing sets up OpenTelemetry tracing
func (om *ObservabilityManager) initTracing() error {
	var exporter trace.SpanExporter
	var err error

	if om.config.ConsoleOutput {
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	} else if om.fullConfig != nil && om.fullConfig.Observability.OTLP.Enabled {
		exporter, err = om.createOTLPExporter()
	} else {
		exporter = &noOpSpanExporter{}
	}

	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := om.createResource()
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.TraceIDRatioBased(om.config.SampleRate)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	om.tracerProvider = tp
	om.shutdownFuncs = append(om.shutdownFuncs, tp.Shutdown)

	return nil
}

// initMetrics sets up OpenTelemetry metrics
func (om *ObservabilityManager) initMetrics() error {
	readers, err := om.setupMetricReaders()
	if err != nil {
		return err
	}

	res, err := om.createResource()
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	meterProviderOptions := []sdkmetric.Option{
		sdkmetric.WithResource(res),
	}
	for _, reader := range readers {
		meterProviderOptions = append(meterProviderOptions, sdkmetric.WithReader(reader))
	}

	mp := sdkmetric.NewMeterProvider(meterProviderOptions...)

	otel.SetMeterProvider(mp)
	om.meterProvider = mp
	om.shutdownFuncs = append(om.shutdownFuncs, mp.Shutdown)

	return om.initCustomMetrics()
}

// setupMetricReaders sets up all metric readers based on configuration
func (om *ObservabilityManager) setupMetricReaders() ([]sdkmetric.Reader, error) {
	var readers []sdkmetric.Reader

	if err := om.setupConsoleReader(&readers); err != nil {
		return nil, err
	}

	if err := om.setupOTLPReader(&readers); err != nil {
		return nil, err
	}

	if err := om.setupPrometheusReader(&readers); err != nil {
		return nil, err
	}

	// If no readers configured, use manual reader as fallback
	if len(readers) == 0 {
		readers = append(readers, sdkmetric.NewManualReader())
	}

	return readers, nil
}

// setupConsoleReader sets up console metric reader if enabled
func (om *ObservabilityManager) setupConsoleReader(readers *[]sdkmetric.Reader) error {
	if !om.config.ConsoleOutput {
		return nil
	}

	exporter, err := stdoutmetric.New()
	if err != nil {
		return fmt.Errorf("failed to create console metric exporter: %w", err)
	}

	interval := om.getMetricsCollectionInterval()
	*readers = append(*readers, sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)))
	return nil
}

// setupOTLPReader sets up OTLP metric reader if enabled
func (om *ObservabilityManager) setupOTLPReader(readers *[]sdkmetric.Reader) error {
	if om.fullConfig == nil || !om.fullConfig.Observability.OTLP.Enabled {
		return nil
	}

	otlpReader, err := om.createOTLPMetricsReader()
	if err != nil {
		return fmt.Errorf("failed to create OTLP metrics reader: %w", err)
	}
	if otlpReader != nil {
		*readers = append(*readers, otlpReader)
	}
	return nil
}

// setupPrometheusReader sets up Prometheus metric reader if enabled
func (om *ObservabilityManager) setupPrometheusReader(readers *[]sdkmetric.Reader) error {
	if !om.config.Prometheus.Enabled {
		return nil
	}

	prometheusReader, prometheusMux, err := SetupPrometheusExporter(om.config.Prometheus)
	if err != nil {
		return fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}
	if prometheusReader != nil {
		*readers = append(*readers, prometheusReader)
		om.prometheusServer = prometheusMux

		if err := StartPrometheusServer(prometheusMux, om.config.Prometheus.Port); err != nil {
			return fmt.Errorf("failed to start Prometheus server: %w", err)
		}
	}
	return nil
}

// createResource creates the OpenTelemetry resource
func (om *ObservabilityManager) createResource() (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(om.config.ServiceName),
			semconv.ServiceVersion(om.config.ServiceVersion),
			attribute.String("service.instance.id", om.getServiceInstanceID()),
		),
	)
}

// initCustomMetrics creates all custom instruments
func (om *ObservabilityManager) initCustomMetrics() error {
	meter := om.meterProvider.Meter(om.config.ServiceName)
	om.metrics = &Metrics{}

	if err := om.createExtractionMetrics(meter); err != nil {
		return err
	}

	if err := om.createPipelineMetrics(meter); err != nil {
		return err
	}

	if err := om.createCacheMetrics(meter); err != nil {
		return err
	}

	return om.createRateLimitMetrics(meter)
}

// createExtractionMetrics creates extraction capability metrics
func (om *ObservabilityManager) createExtractionMetrics(meter metric.Meter) error {
	var err error

	om.metrics.ExtractionDuration, err = meter.Float64Histogram(
		"resumatch_extraction_duration_seconds",
		metric.WithDescription("Time spent on extraction capability calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create extraction duration metric: %w", err)
	}

	om.metrics.ExtractionCount, err = meter.Int64Counter(
		"resumatch_extraction_requests_total",
		metric.WithDescription("Total number of extraction capability calls"),
	)
	if err != nil {
		return fmt.Errorf("failed to create extraction count metric: %w", err)
	}

	om.metrics.ExtractionErrors, err = meter.Int64Counter(
		"resumatch_extraction_errors_total",
		metric.WithDescription("Total number of extraction failures by error code"),
	)
	if err != nil {
		return fmt.Errorf("failed to create extraction error metric: %w", err)
	}

	om.metrics.ExtractionTokens, err = meter.Int64Histogram(
		"resumatch_extraction_token_usage",
		metric.WithDescription("Token usage of extraction calls (input, output, total)"),
		metric.WithUnit("tokens"),
	)
	if err != nil {
		return fmt.Errorf("failed to create extraction token usage metric: %w", err)
	}

	return nil
}

// createPipelineMetrics creates pipeline throughput metrics
func (om *ObservabilityManager) createPipelineMetrics(meter metric.Meter) error {
	var err error

	om.metrics.ResumesProcessed, err = meter.Int64Counter(
		"resumatch_resumes_processed_total",
		metric.WithDescription("Total number of resumes decoded, normalized and extracted"),
	)
	if err != nil {
		return fmt.Errorf("failed to create resumes processed metric: %w", err)
	}

	om.metrics.MatchesScored, err = meter.Int64Counter(
		"resumatch_matches_scored_total",
		metric.WithDescription("Total number of match results produced"),
	)
	if err != nil {
		return fmt.Errorf("failed to create matches scored metric: %w", err)
	}

	om.metrics.PipelineErrors, err = meter.Int64Counter(
		"resumatch_pipeline_errors_total",
		metric.WithDescription("Total number of pipeline failures by error code"),
	)
	if err != nil {
		return fmt.Errorf("failed to create pipeline error metric: %w", err)
	}

	return nil
}

// createCacheMetrics creates result cache metrics
func (om *ObservabilityManager) createCacheMetrics(meter metric.Meter) error {
	var err error

	om.metrics.CacheHits, err = meter.Int64Counter(
		"resumatch_cache_hits_total",
		metric.WithDescription("Total number of match cache hits"),
	)
	if err != nil {
		return fmt.Errorf("failed to create cache hit metric: %w", err)
	}

	om.metrics.CacheMisses, err = meter.Int64Counter(
		"resumatch_cache_misses_total",
		metric.WithDescription("Total number of match cache misses"),
	)
	if err != nil {
		return fmt.Errorf("failed to create cache miss metric: %w", err)
	}

	om.metrics.CacheCoalesced, err = meter.Int64Counter(
		"resumatch_cache_coalesced_total",
		metric.WithDescription("Total number of requests served by a shared in-flight computation"),
	)
	if err != nil {
		return fmt.Errorf("failed to create cache coalesced metric: %w", err)
	}

	om.metrics.CacheEvictions, err = meter.Int64Counter(
		"resumatch_cache_evictions_total",
		metric.WithDescription("Total number of cache entries evicted"),
	)
	if err != nil {
		return fmt.Errorf("failed to create cache eviction metric: %w", err)
	}

	return nil
}

// createRateLimitMetrics creates rate limiting metrics
func (om *ObservabilityManager) createRateLimitMetrics(meter metric.Meter) error {
	var err error

	om.metrics.RateLimitHits, err = meter.Int64Counter(
		"resumatch_rate_limit_hits_total",
		metric.WithDescription("Total number of rate limit hits"),
	)
	if err != nil {
		return fmt.Errorf("failed to create rate limit hits metric: %w", err)
	}

	return nil
}

// GetMetrics returns the metrics instance
func (om *ObservabilityManager) GetMetrics() *Metrics {
	if om.metrics == nil {
		return &Metrics{}
	}
	return om.metrics
}

// HTTPMiddleware returns HTTP middleware with OpenTelemetry instrumentation
func (om *ObservabilityManager) HTTPMiddleware() func(http.Handler) http.Handler {
	if !om.config.Enabled {
		return func(h http.Handler) http.Handler { return h }
	}

	return otelhttp.NewMiddleware(
		om.config.ServiceName,
		otelhttp.WithTracerProvider(om.tracerProvider),
		otelhttp.WithMeterProvider(om.meterProvider),
	)
}

// Tracer returns a tracer for the service
func (om *ObservabilityManager) Tracer(name string) oteltrace.Tracer {
	if !om.config.Enabled {
		return noop.NewTracerProvider().Tracer(name)
	}
	return otel.Tracer(name)
}

// Shutdown gracefully shuts down all observability components
func (om *ObservabilityManager) Shutdown(ctx context.Context) error {
	for _, shutdown := range om.shutdownFuncs {
		if err := shutdown(ctx); err != nil {
			return err
		}
	}
	return nil
}

// RecordExtraction instruments one extraction capability invocation with
// duration, counters and token usage. Token attributes are attached to the
// surrounding span when one is active.
func (m *Metrics) RecordExtraction(ctx context.Context, duration time.Duration, usage *TokenUsage, err error) {
	attrs := []attribute.KeyValue{
		attribute.Bool("success", err == nil),
	}

	if m.ExtractionDuration != nil {
		m.ExtractionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
	if m.ExtractionCount != nil {
		m.ExtractionCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	}

	if usage != nil {
		m.recordTokenUsage(ctx, usage, oteltrace.SpanFromContext(ctx))
	}

	if err != nil && m.ExtractionErrors != nil {
		m.ExtractionErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// TokenUsage represents token usage information from capability responses
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

func (m *Metrics) recordTokenUsage(ctx context.Context, usage *TokenUsage, span oteltrace.Span) {
	if m.ExtractionTokens == nil {
		return
	}

	tokenTypes := []struct {
		tokenType string
		value     int64
	}{
		{"input", usage.InputTokens},
		{"output", usage.OutputTokens},
		{"total", usage.TotalTokens},
	}
	for _, tt := range tokenTypes {
		m.ExtractionTokens.Record(ctx, tt.value,
			metric.WithAttributes(attribute.String("token_type", tt.tokenType)))
	}

	span.SetAttributes(
		attribute.Int64("ai.tokens.input", usage.InputTokens),
		attribute.Int64("ai.tokens.output", usage.OutputTokens),
		attribute.Int64("ai.tokens.total", usage.TotalTokens),
	)
}

// RecordPipelineOutcome counts one pipeline operation. The error code is
// attached as an attribute so failures can be broken down by taxonomy.
func (m *Metrics) RecordPipelineOutcome(ctx context.Context, operation, errorCode string) {
	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.Bool("success", errorCode == ""),
	}

	switch operation {
	case "process_resume":
		if m.ResumesProcessed != nil {
			m.ResumesProcessed.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
	case "match":
		if m.MatchesScored != nil {
			m.MatchesScored.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
	}

	if errorCode != "" && m.PipelineErrors != nil {
		m.PipelineErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("code", errorCode),
		))
	}
}

// RecordCacheLookup counts one cache lookup outcome.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit, coalesced bool) {
	switch {
	case hit && m.CacheHits != nil:
		m.CacheHits.Add(ctx, 1)
	case coalesced && m.CacheCoalesced != nil:
		m.CacheCoalesced.Add(ctx, 1)
	case m.CacheMisses != nil:
		m.CacheMisses.Add(ctx, 1)
	}
}

// RecordCacheEvictions counts entries removed by a sweep.
func (m *Metrics) RecordCacheEvictions(ctx context.Context, count int) {
	if count > 0 && m.CacheEvictions != nil {
		m.CacheEvictions.Add(ctx, int64(count))
	}
}

// RecordRateLimitHit counts one rejected request.
func (m *Metrics) RecordRateLimitHit(ctx context.Context, attrs ...attribute.KeyValue) {
	if m.RateLimitHits != nil {
		m.RateLimitHits.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// No-op exporter for when neither console output nor OTLP is configured
type noOpSpanExporter struct{}

func (n *noOpSpanExporter) ExportSpans(ctx context.Context, spans []trace.ReadOnlySpan) error {
	return nil
}

func (n *noOpSpanExporter) Shutdown(ctx context.Context) error {
	return nil
}

// createOTLPExporter creates an OTLP HTTP trace exporter
func (om *ObservabilityManager) createOTLPExporter() (trace.SpanExporter, error) {
	if om.fullConfig == nil {
		return nil, fmt.Errorf("config not available for OTLP configuration")
	}

	otlpConfig := om.fullConfig.Observability.OTLP

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpointURL(otlpConfig.Endpoint),
	}
	if otlpConfig.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(otlpConfig.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(otlpConfig.Headers))
	}

	exporter, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	return exporter, nil
}

// createOTLPMetricsReader creates an OTLP HTTP metrics reader
func (om *ObservabilityManager) createOTLPMetricsReader() (sdkmetric.Reader, error) {
	if om.fullConfig == nil {
		return nil, fmt.Errorf("config not available for OTLP configuration")
	}

	otlpConfig := om.fullConfig.Observability.OTLP

	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpointURL(otlpConfig.Endpoint),
	}
	if otlpConfig.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if len(otlpConfig.Headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(otlpConfig.Headers))
	}

	exporter, err := otlpmetrichttp.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
	}

	interval := om.getMetricsCollectionInterval()
	return sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)), nil
}

// getServiceInstanceID returns the service instance ID from config or a default
func (om *ObservabilityManager) getServiceInstanceID() string {
	if om.fullConfig != nil && om.fullConfig.Observability.ServiceInstance != "" {
		return om.fullConfig.Observability.ServiceInstance
	}
	return "resumatch-1"
}

// getMetricsCollectionInterval returns the configured metrics collection interval
func (om *ObservabilityManager) getMetricsCollectionInterval() time.Duration {
	if om.fullConfig != nil && om.fullConfig.Observability.Metrics.Interval > 0 {
		return om.fullConfig.Observability.Metrics.Interval
	}
	return 15 * time.Second
}
