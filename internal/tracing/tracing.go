// Package tracing exports HTTP request spans over OTLP/gRPC.
package tracing

import (
	"context"
	"net/http"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
)

var logger = loggo.GetLogger("todoapi.tracing")

type Provider struct {
	tp *sdktrace.TracerProvider
}

// Setup installs a batching tracer provider exporting to endpoint as the
// global provider.
func Setup(ctx context.Context, endpoint string, insecure bool, serviceName string) (*Provider, error) {
	if endpoint == "" {
		return nil, errors.NotValidf("empty trace endpoint")
	}
	options := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(endpoint),
	}
	if insecure {
		options = append(options, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(options...))
	if err != nil {
		return nil, errors.Annotatef(err, "trace exporter for %s", endpoint)
	}

	p := newProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(newResource(serviceName)),
	)
	otel.SetTracerProvider(p.tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	logger.Infof("exporting traces to %s as %q", endpoint, serviceName)
	return p, nil
}

func newProvider(opts ...sdktrace.TracerProviderOption) *Provider {
	return &Provider{tp: sdktrace.NewTracerProvider(opts...)}
}

func newResource(serviceName string) *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	)
}

// Handler wraps h so that every request produces a server span.
func (p *Provider) Handler(h http.Handler, operation string) http.Handler {
	return otelhttp.NewHandler(h, operation, otelhttp.WithTracerProvider(p.tp))
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	return errors.Trace(p.tp.Shutdown(ctx))
}
