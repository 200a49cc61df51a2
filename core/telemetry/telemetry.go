package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Config holds the telemetry configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// OTLPEndpoint is the OTLP exporter endpoint for traces.
	// Leave empty to disable trace export.
	OTLPEndpoint string

	// SamplingRate is the trace sampling rate (0.0-1.0).
	SamplingRate float64

	Enabled bool
}

// DefaultConfig returns a default telemetry configuration.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "hubid",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		SamplingRate:   1.0,
		Enabled:        true,
	}
}

// Provider manages OpenTelemetry tracer and meter providers. A disabled
// Provider is valid and records nothing.
type Provider struct {
	config         Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter

	codesGenerated   metric.Int64Counter
	recoveryCounter  metric.Int64Counter
	provisionCounter metric.Int64Counter
	rateLimitCounter metric.Int64Counter
	lookupDuration   metric.Float64Histogram
}

// NewProvider creates a new telemetry provider.
func NewProvider(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{config: cfg}, nil
	}

	p := &Provider{config: cfg}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	if err := p.setupTracing(res); err != nil {
		return nil, err
	}
	if err := p.setupMetrics(res); err != nil {
		return nil, err
	}
	if err := p.initMetrics(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Provider) setupTracing(res *resource.Resource) error {
	var sampler sdktrace.Sampler
	if p.config.SamplingRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else if p.config.SamplingRate <= 0 {
		sampler = sdktrace.NeverSample()
	} else {
		sampler = sdktrace.TraceIDRatioBased(p.config.SamplingRate)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(res),
	}

	if p.config.OTLPEndpoint != "" {
		exporter, err := otlptracegrpc.New(
			context.Background(),
			otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return err
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	p.tracerProvider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(p.tracerProvider)
	p.tracer = p.tracerProvider.Tracer(p.config.ServiceName)

	return nil
}

func (p *Provider) setupMetrics(res *resource.Resource) error {
	exporter, err := prometheus.New()
	if err != nil {
		return err
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(p.meterProvider)
	p.meter = p.meterProvider.Meter(p.config.ServiceName)

	return nil
}

func (p *Provider) initMetrics() error {
	var err error

	p.codesGenerated, err = p.meter.Int64Counter(
		"hubid.codes.generated",
		metric.WithDescription("Canonical codes minted"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	p.recoveryCounter, err = p.meter.Int64Counter(
		"hubid.recovery.total",
		metric.WithDescription("Password recovery requests by flow and outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	p.provisionCounter, err = p.meter.Int64Counter(
		"hubid.provisioning.total",
		metric.WithDescription("Account provisioning attempts"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	p.rateLimitCounter, err = p.meter.Int64Counter(
		"hubid.rate_limit.total",
		metric.WithDescription("Requests rejected by rate limiting"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	p.lookupDuration, err = p.meter.Float64Histogram(
		"hubid.identity.lookup.duration",
		metric.WithDescription("Identity resolution duration in seconds"),
		metric.WithUnit("s"),
	)
	return err
}

// Shutdown gracefully shuts down the telemetry providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			return err
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Tracer returns the tracer instance.
func (p *Provider) Tracer() trace.Tracer {
	if p.tracer == nil {
		return otel.Tracer(p.config.ServiceName)
	}
	return p.tracer
}

// Enabled reports whether metrics are being exported.
func (p *Provider) Enabled() bool { return p.meterProvider != nil }

// MetricsHandler serves the prometheus scrape endpoint.
func (p *Provider) MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// ---- Metric Recording Methods ----

func (p *Provider) RecordCodeGenerated(ctx context.Context, kind string) {
	if p.codesGenerated == nil {
		return
	}
	p.codesGenerated.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordRecovery counts a recovery request. flow is one of "self",
// "forgot" or "admin".
func (p *Provider) RecordRecovery(ctx context.Context, flow, outcome string) {
	if p.recoveryCounter == nil {
		return
	}
	p.recoveryCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("flow", flow),
			attribute.String("outcome", outcome),
		),
	)
}

func (p *Provider) RecordProvisioning(ctx context.Context, kind string, success bool) {
	if p.provisionCounter == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	p.provisionCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordRateLimit records a rate limit rejection. The key is not recorded
// to keep cardinality bounded.
func (p *Provider) RecordRateLimit(ctx context.Context, action string) {
	if p.rateLimitCounter == nil {
		return
	}
	p.rateLimitCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

func (p *Provider) RecordLookup(ctx context.Context, by string, found bool, duration time.Duration) {
	if p.lookupDuration == nil {
		return
	}
	p.lookupDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("by", by),
			attribute.Bool("found", found),
		),
	)
}
