// Package observability wires OpenTelemetry tracing and metrics for the
// admission pipeline.
//
// Metrics follow the RED pattern:
//   - benson.admissions.total   admissions by outcome and reject reason
//   - benson.admit.duration     end-to-end admit latency
//   - benson.gate.duration      per-gate latency by gate id and status
//   - benson.transitions.total  execution lifecycle transitions
//   - benson.audit.events.total audit events by type
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/Mindburn-Labs/benson"

var (
	AttrPacID      = attribute.Key("benson.pac.id")
	AttrOutcome    = attribute.Key("benson.admission.outcome")
	AttrReason     = attribute.Key("benson.admission.reason")
	AttrGateID     = attribute.Key("benson.gate.id")
	AttrGateStatus = attribute.Key("benson.gate.status")
	AttrTransition = attribute.Key("benson.execution.transition")
	AttrAccepted   = attribute.Key("benson.execution.accepted")
	AttrEventType  = attribute.Key("benson.audit.event_type")
)

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // gRPC, e.g. "localhost:4317"
	SampleRate     float64
	BatchTimeout   time.Duration
	Enabled        bool
	Insecure       bool
}

func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "benson-execution",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        false,
		Insecure:       false,
	}
}

// Provider owns the trace and metric providers. A nil or disabled Provider
// is safe to use: every recording method becomes a no-op.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	admissions   metric.Int64Counter
	admitHist    metric.Float64Histogram
	gateHist     metric.Float64Histogram
	transitions  metric.Int64Counter
	auditEvents  metric.Int64Counter
	activeAdmits metric.Int64UpDownCounter
}

// New creates a provider exporting over OTLP/gRPC when enabled.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}
	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}
	if !config.Enabled {
		p.logger.DebugContext(ctx, "observability disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	if err := p.initTraceProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to init trace provider: %w", err)
	}
	if err := p.initMetricProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to init metric provider: %w", err)
	}

	p.tracer = p.tracerProvider.Tracer(instrumentationName, trace.WithInstrumentationVersion(config.ServiceVersion))
	p.meter = p.meterProvider.Meter(instrumentationName, metric.WithInstrumentationVersion(config.ServiceVersion))
	if err := p.initInstruments(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	p.logger.InfoContext(ctx, "observability initialized",
		"service", config.ServiceName,
		"endpoint", config.OTLPEndpoint,
		"sample_rate", config.SampleRate,
		"insecure", config.Insecure,
	)
	return p, nil
}

// NewWithProviders builds a provider on caller-supplied SDK providers.
// Tests use it with a manual metric reader and a span recorder.
func NewWithProviders(tp *sdktrace.TracerProvider, mp *sdkmetric.MeterProvider) (*Provider, error) {
	p := &Provider{
		config:         &Config{Enabled: true},
		tracerProvider: tp,
		meterProvider:  mp,
		tracer:         tp.Tracer(instrumentationName),
		meter:          mp.Meter(instrumentationName),
		logger:         slog.Default().With("component", "observability"),
	}
	if err := p.initInstruments(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Provider) initTraceProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case p.config.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case p.config.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(p.config.SampleRate)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(p.config.BatchTimeout)),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

func (p *Provider) initMetricProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create metric exporter: %w", err)
	}
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetMeterProvider(p.meterProvider)
	return nil
}

func (p *Provider) initInstruments() error {
	var err error
	if p.admissions, err = p.meter.Int64Counter("benson.admissions.total",
		metric.WithDescription("PAC admission decisions"),
		metric.WithUnit("{decision}"),
	); err != nil {
		return err
	}
	if p.admitHist, err = p.meter.Float64Histogram("benson.admit.duration",
		metric.WithDescription("End-to-end admit latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1.0),
	); err != nil {
		return err
	}
	if p.gateHist, err = p.meter.Float64Histogram("benson.gate.duration",
		metric.WithDescription("Preflight gate latency"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 50),
	); err != nil {
		return err
	}
	if p.transitions, err = p.meter.Int64Counter("benson.transitions.total",
		metric.WithDescription("Execution lifecycle transition attempts"),
		metric.WithUnit("{transition}"),
	); err != nil {
		return err
	}
	if p.auditEvents, err = p.meter.Int64Counter("benson.audit.events.total",
		metric.WithDescription("Audit events appended to the chain"),
		metric.WithUnit("{event}"),
	); err != nil {
		return err
	}
	p.activeAdmits, err = p.meter.Int64UpDownCounter("benson.admissions.active",
		metric.WithDescription("Admissions currently in flight"),
		metric.WithUnit("{admission}"),
	)
	return err
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "failed to shutdown trace provider", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "failed to shutdown metric provider", "error", err)
		}
	}
	return nil
}

func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.tracer == nil {
		return otel.Tracer(instrumentationName)
	}
	return p.tracer
}

// TrackAdmit opens an admit span. The returned func closes it and records
// the outcome; err is set only when the admission could not be decided.
func (p *Provider) TrackAdmit(ctx context.Context, pacID string) (context.Context, func(outcome, reason string, err error)) {
	start := time.Now()
	ctx, span := p.Tracer().Start(ctx, "benson.admit",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(AttrPacID.String(pacID)),
	)
	if p != nil && p.activeAdmits != nil {
		p.activeAdmits.Add(ctx, 1)
	}

	return ctx, func(outcome, reason string, err error) {
		attrs := []attribute.KeyValue{AttrOutcome.String(outcome)}
		if reason != "" {
			attrs = append(attrs, AttrReason.String(reason))
		}
		span.SetAttributes(attrs...)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		if p == nil || p.admissions == nil {
			return
		}
		p.activeAdmits.Add(ctx, -1)
		p.admissions.Add(ctx, 1, metric.WithAttributes(attrs...))
		p.admitHist.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(AttrOutcome.String(outcome)))
	}
}

// RecordGate records one preflight gate execution.
func (p *Provider) RecordGate(ctx context.Context, gateID, status string, durationMs float64) {
	if p == nil || p.gateHist == nil {
		return
	}
	p.gateHist.Record(ctx, durationMs, metric.WithAttributes(AttrGateID.String(gateID), AttrGateStatus.String(status)))
}

// RecordTransition records an execution lifecycle transition attempt.
func (p *Provider) RecordTransition(ctx context.Context, transition string, accepted bool) {
	if p == nil || p.transitions == nil {
		return
	}
	p.transitions.Add(ctx, 1, metric.WithAttributes(AttrTransition.String(transition), AttrAccepted.Bool(accepted)))
}

// RecordAuditEvent counts an appended audit event.
func (p *Provider) RecordAuditEvent(ctx context.Context, eventType string) {
	if p == nil || p.auditEvents == nil {
		return
	}
	p.auditEvents.Add(ctx, 1, metric.WithAttributes(AttrEventType.String(eventType)))
}
