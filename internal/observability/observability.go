// Package observability provides OpenTelemetry-based metrics and tracing
// for the gatekeeper service. It sets up TracerProvider and MeterProvider with
// configurable exporters (stdout, OTLP for tracing; Prometheus for metrics),
// and instruments the key-value store and admission decisions.
package observability

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/adoneabiilesh/mustiapp-sub002/internal/models"
	"github.com/adoneabiilesh/mustiapp-sub002/internal/storage"
	"github.com/adoneabiilesh/mustiapp-sub002/internal/version"
)

// Resource attribute keys describing how this instance admits requests.
const (
	AttrStorageType       = attribute.Key("gatekeeper.storage.type")
	AttrPolicyCount       = attribute.Key("gatekeeper.ratelimit.policies")
	AttrExemptNetworks    = attribute.Key("gatekeeper.ratelimit.exempt_networks")
	AttrTrustProxyHeaders = attribute.Key("gatekeeper.trust_proxy_headers")
)

const defaultServiceName = "gatekeeper"

// Provider holds the OpenTelemetry providers for graceful shutdown.
type Provider struct {
	resource       *resource.Resource
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	promExporter   *prometheus.Exporter
}

// PrometheusExporter returns the Prometheus exporter for serving metrics.
func (p *Provider) PrometheusExporter() *prometheus.Exporter {
	return p.promExporter
}

// Resource returns the attributes attached to every span and metric.
func (p *Provider) Resource() *resource.Resource {
	return p.resource
}

// Instrument wraps store with storage telemetry and creates the admission
// decision counter. With metrics disabled the store comes back unchanged and
// the counter is nil.
func (p *Provider) Instrument(store storage.Storage) (storage.Storage, *AdmissionMetrics, error) {
	if p.meterProvider == nil {
		return store, nil, nil
	}

	instrumented, err := NewInstrumentedStorage(store)
	if err != nil {
		return nil, nil, fmt.Errorf("instrument storage: %w", err)
	}
	admission, err := NewAdmissionMetrics()
	if err != nil {
		return nil, nil, fmt.Errorf("admission metrics: %w", err)
	}
	return instrumented, admission, nil
}

// Shutdown gracefully shuts down all OpenTelemetry providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error

	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}

	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("observability shutdown: %w", err)
	}
	return nil
}

// Setup initializes OpenTelemetry tracing and metrics providers from the
// service configuration. The resource names the build and describes the
// admission setup: storage backend, number of action policies, exempt
// networks and whether proxy headers are trusted.
// It returns a Provider that must be shut down on application exit.
func Setup(cfg *models.Config, ver version.Info) (*Provider, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(serviceAttributes(cfg, ver)...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	p := &Provider{resource: res}

	if cfg.Observability.Tracing.Enabled {
		tp, err := setupTracing(res, cfg.Observability.Tracing)
		if err != nil {
			return nil, fmt.Errorf("failed to setup tracing: %w", err)
		}
		p.tracerProvider = tp
		otel.SetTracerProvider(tp)
	}

	if cfg.Metrics.Enabled {
		promExporter, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		p.promExporter = promExporter

		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(promExporter),
		)
		p.meterProvider = mp
		otel.SetMeterProvider(mp)
	}

	return p, nil
}

func serviceAttributes(cfg *models.Config, ver version.Info) []attribute.KeyValue {
	name := cfg.Observability.ServiceName
	if name == "" {
		name = defaultServiceName
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(name),
		semconv.ServiceVersion(ver.Version),
		attribute.String("service.instance.id", ver.InstanceID),
		attribute.String("deployment.environment", environment()),
		AttrStorageType.String(cfg.Storage.Type),
		AttrPolicyCount.Int(len(cfg.Security.RateLimits)),
		AttrExemptNetworks.Int(len(cfg.Security.ExemptCIDRs)),
		AttrTrustProxyHeaders.Bool(cfg.Security.TrustProxyHeaders),
	}
	if host, err := os.Hostname(); err == nil {
		attrs = append(attrs, attribute.String("host.name", host))
	}
	if ver.GitCommit != "" && ver.GitCommit != version.Unknown {
		attrs = append(attrs, attribute.String("vcs.revision", ver.GitCommit))
	}
	return attrs
}

func setupTracing(res *resource.Resource, cfg models.TracingConfig) (*sdktrace.TracerProvider, error) {
	var exporter sdktrace.SpanExporter
	var err error

	switch cfg.Exporter {
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp":
		exporter, err = otlptracegrpc.New(context.Background(),
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.Exporter)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s exporter: %w", cfg.Exporter, err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	// Admission spans hang off the caller's trace when one is propagated.
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	), nil
}

// environment reads GATEKEEPER_ENVIRONMENT, defaulting to "development".
func environment() string {
	if env := os.Getenv("GATEKEEPER_ENVIRONMENT"); env != "" {
		return env
	}
	return "development"
}
