package cmd

import (
	"context"
	"time"

	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/application/common/slogger"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/version"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// setupTelemetry installs the global meter provider the pipeline instruments
// register against. The returned shutdown flushes pending readings.
func setupTelemetry() (func(), error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", "newsbias"),
			attribute.String("service.version", version.GetVersion().Version),
		),
	)
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewManualReader()),
	)
	otel.SetMeterProvider(provider)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			slogger.WarnNoCtx("Meter provider shutdown failed", slogger.Fields{"error": err.Error()})
		}
	}, nil
}
