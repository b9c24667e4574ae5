package rfc

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var meter = otelMeter()

func otelMeter() metric.Meter {
	return otel.GetMeterProvider().Meter("github.com/webitel/rfc-communicator/pkg/rfc")
}

var dispatchErrors, _ = meter.Int64Counter(
	"rfc_dispatch_errors_total",
	metric.WithDescription("Number of inbound calls that failed to dispatch against the active provider"),
)

// registerPendingGauge publishes an observable gauge reporting c's
// outstanding call count to any OTel metrics exporter the caller has wired
// in. internal/monitor does not read this gauge; it calls PendingCalls
// directly.
func registerPendingGauge(c *Communicator) error {
	_, err := meter.Int64ObservableGauge(
		"rfc_pending_calls",
		metric.WithDescription("Outstanding calls awaiting a Return"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			o.Observe(int64(c.PendingCalls()))
			return nil
		}),
	)
	return err
}
