// tracing настраивает экспорт трейсов OpenTelemetry по OTLP/HTTP.
package tracing

import (
	"context"
	"fmt"

	"github.com/pribylovaa/auth-system/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ShutdownFunc сбрасывает накопленные span'ы и останавливает провайдера.
type ShutdownFunc func(context.Context) error

// Setup регистрирует глобальный TracerProvider.
// Пустой endpoint отключает трассировку: провайдер не регистрируется,
// shutdown ничего не делает.
func Setup(ctx context.Context, cfg config.TracingConfig) (ShutdownFunc, error) {
	const op = "tracing.Setup"

	noop := func(context.Context) error { return nil }

	if cfg.Endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	if err != nil {
		return noop, fmt.Errorf("%s: exporter: %w", op, err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return noop, fmt.Errorf("%s: resource: %w", op, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}
