// Package observability bootstraps the OpenTelemetry SDK the same way the
// teacher wires its tracing/logging stack: one process-wide TracerProvider
// feeding pkg/rfc's spans, and a log/slog handler bridged through
// otelslog so every log line carries the active trace and span IDs.
package observability

import (
	"context"
	"fmt"
	"log/slog"

	otelslog "go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Shutdown flushes and releases whatever the SDK set up; callers defer it
// from their fx.Hook's OnStop.
type Shutdown func(context.Context) error

// Bootstrap installs a global TracerProvider for serviceName/version and
// returns an slog.Logger bridged to it plus a Shutdown to run on exit.
// It installs no exporter of its own: the caller registers
// sdktrace.WithBatcher(exporter) via opts for whatever backend it targets,
// matching the teacher's own bootstrap convention of keeping exporter
// choice external to the core setup function.
func Bootstrap(ctx context.Context, serviceName, version string, opts ...sdktrace.TracerProviderOption) (*slog.Logger, Shutdown, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("observability: build resource: %w", err)
	}

	allOpts := append([]sdktrace.TracerProviderOption{sdktrace.WithResource(res)}, opts...)
	tp := sdktrace.NewTracerProvider(allOpts...)
	otel.SetTracerProvider(tp)

	handler := otelslog.NewHandler(serviceName)
	logger := slog.New(handler)

	return logger, tp.Shutdown, nil
}
