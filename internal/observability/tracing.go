package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// InitTracing registers an SDK-only OpenTelemetry TracerProvider: spans are
// created and propagated in-process (useful for request-scoped timing inside
// a single run), but nothing is exported over the network. Wiring a span
// exporter is left to the deployer; it is not an ambient concern of a
// self-hosted crash receiver.
func InitTracing(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, err
	}

	tp := trace.NewTracerProvider(trace.WithResource(res))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
