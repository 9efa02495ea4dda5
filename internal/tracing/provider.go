// Package tracing provides OpenTelemetry initialization, run/user/step spans
// and W3C trace context propagation for workflow requests.
package tracing

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/torosent/vuload/internal/config"
)

const (
	defaultServiceName  = "vuload"
	instrumentationName = "github.com/torosent/vuload"
)

// Run identifies the load test whose spans a provider exports. It is recorded
// on the resource so a collector can group runs by workflow and mode.
type Run struct {
	Workflow string
	Mode     string
	Users    int
}

// Provider owns the SDK tracer provider for the lifetime of a load test.
type Provider struct {
	tp        *sdktrace.TracerProvider
	res       *resource.Resource
	tracer    trace.Tracer
	propagate bool
}

// Init creates a tracer provider for run from cfg. Without a collector
// endpoint the returned provider hands out no-op tracers.
func Init(ctx context.Context, cfg config.TracingConfig, run Run) (*Provider, error) {
	if !cfg.Enabled() {
		return &Provider{}, nil
	}
	endpoint := cmp.Or(cfg.Endpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if endpoint == "" {
		return &Provider{propagate: cfg.ShouldPropagate()}, nil
	}
	if cfg.SampleRate < 0 || cfg.SampleRate > 1.0 {
		return nil, fmt.Errorf("tracing sample_rate must be between 0.0 and 1.0, got %g", cfg.SampleRate)
	}

	res, err := runResource(ctx, cfg, run)
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}
	exporter, err := newExporter(ctx, cfg, endpoint)
	if err != nil {
		return nil, fmt.Errorf("tracing exporter: %w", err)
	}

	// TraceIDRatioBased samples nothing at 0 and everything at 1.
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{
		tp:        tp,
		res:       res,
		tracer:    tp.Tracer(instrumentationName),
		propagate: cfg.ShouldPropagate(),
	}, nil
}

// runResource merges OTEL_RESOURCE_ATTRIBUTES with the service name and the
// run's workflow, mode and user count. The run attributes win on conflict.
func runResource(ctx context.Context, cfg config.TracingConfig, run Run) (*resource.Resource, error) {
	service := cmp.Or(cfg.ServiceName, os.Getenv("OTEL_SERVICE_NAME"), defaultServiceName)
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithAttributes(
			semconv.ServiceName(service),
			AttrWorkflow.String(run.Workflow),
			AttrMode.String(run.Mode),
			AttrUsers.Int(run.Users),
		),
	)
	if errors.Is(err, resource.ErrPartialResource) {
		// A malformed OTEL_RESOURCE_ATTRIBUTES still leaves the run attributes.
		return res, nil
	}
	return res, err
}

// Tracer returns the configured tracer, or a no-op tracer when disabled.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.tracer == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	return p.tracer
}

// Resource describes the exporting process and run, or nil when no spans are
// exported.
func (p *Provider) Resource() *resource.Resource {
	if p == nil {
		return nil
	}
	return p.res
}

// ShouldPropagate reports whether trace headers are injected into requests.
func (p *Provider) ShouldPropagate() bool {
	return p != nil && p.propagate
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

func newExporter(ctx context.Context, cfg config.TracingConfig, endpoint string) (sdktrace.SpanExporter, error) {
	protocol := strings.ToLower(cmp.Or(cfg.Protocol, "grpc"))
	switch protocol {
	case "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.Insecure {
			opts = append(opts,
				otlptracegrpc.WithInsecure(),
				otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			)
		}
		return otlptracegrpc.New(ctx, opts...)
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	}
	return nil, fmt.Errorf("unsupported OTLP protocol %q: use \"grpc\" or \"http\"", protocol)
}
