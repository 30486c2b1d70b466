// Package telemetry installs the OTLP metric pipeline when a collector is
// configured. Without one, instruments record into the global no-op
// provider.
package telemetry

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// InitMetrics returns a shutdown func that flushes pending metrics.
func InitMetrics(ctx context.Context, endpoint, service string, log *logrus.Logger) func(context.Context) error {
	if endpoint == "" {
		log.Info("📉 OTEL_EXPORTER_OTLP_ENDPOINT not set - metrics disabled")
		return func(context.Context) error { return nil }
	}

	exporter, err := otlpmetricgrpc.New(
		ctx,
		otlpmetricgrpc.WithInsecure(),
		otlpmetricgrpc.WithEndpoint(endpoint),
	)
	if err != nil {
		log.Warnf("warn: Failed to create metric exporter: %v", err)
		return func(context.Context) error { return nil }
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))
	res, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", service)),
	)
	if err != nil {
		log.Warnf("warn: Failed to create resource: %v", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)
	log.WithField("endpoint", endpoint).Info("📈 Metrics exporter started")
	return mp.Shutdown
}
