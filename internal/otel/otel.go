package otel

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	m "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// SetupOTelSDK sets up the OpenTelemetry SDK.
func SetupOTelSDK(ctx context.Context, collectorGRPCEndpoint string, attributes map[string]string) (shutdown func() error, err error) {
	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(collectorGRPCEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	attr := []attribute.KeyValue{}
	for k, v := range attributes {
		attr = append(attr, attribute.String(k, v))
	}

	// only the metric provider is needed
	meterProvider := metric.NewMeterProvider(
		metric.WithResource(resource.NewWithAttributes(
			resource.Default().SchemaURL(),
			attr...,
		)),
		metric.WithReader(metric.NewPeriodicReader(metricExporter, metric.WithInterval(5*time.Second))),
	)
	otel.SetMeterProvider(meterProvider)

	// runtime metrics: memory usage, goroutines, etc.
	runtime.Start(runtime.WithMinimumReadMemStatsInterval(1 * time.Second))

	return func() error {
		return meterProvider.Shutdown(context.Background())
	}, nil
}

// GetMeter returns the meter for one tool.
func GetMeter(tool string) m.Meter {
	return otel.GetMeterProvider().Meter(fmt.Sprintf("corpus_preprocess_%s", tool),
		m.WithInstrumentationVersion(InstrumentationVersion),
		m.WithInstrumentationAttributes(
			attribute.String("tool", tool),
		),
	)
}
