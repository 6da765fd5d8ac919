package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry holds all telemetry instruments and providers. A nil *Telemetry
// is valid and turns every method into a no-op, so callers never need to
// guard instrumentation behind feature checks.
type Telemetry struct {
	meterProvider metric.MeterProvider
	tracer        trace.Tracer
	meter         metric.Meter
	exporter      *prometheus.Exporter

	// Asset pipeline metrics
	assetsTotal     metric.Int64Counter
	assetsActive    metric.Int64UpDownCounter
	assetDuration   metric.Float64Histogram
	assetBytesTotal metric.Int64Counter
	catalogOpsTotal metric.Int64Counter
	catalogErrors   metric.Int64Counter
	dbOpsTotal      metric.Int64Counter
	dbOpDuration    metric.Float64Histogram

	// System health
	systemErrors metric.Int64Counter
	systemUptime metric.Float64Gauge
}

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
}

// New creates a new telemetry instance. When disabled it returns nil, which
// every method accepts.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(meterProvider)

	if err := runtime.Start(runtime.WithMeterProvider(meterProvider)); err != nil {
		return nil, fmt.Errorf("failed to start runtime instrumentation: %w", err)
	}

	t := &Telemetry{
		meterProvider: meterProvider,
		tracer:        otel.Tracer(cfg.ServiceName),
		meter:         otel.Meter(cfg.ServiceName),
		exporter:      exporter,
	}

	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	go t.collectUptime(ctx)

	return t, nil
}

// Tracer returns the OpenTelemetry tracer.
func (t *Telemetry) Tracer() trace.Tracer {
	if t == nil {
		return nil
	}

	return t.tracer
}

// RecordAsset records the outcome of one asset fetch.
func (t *Telemetry) RecordAsset(status string, duration time.Duration, bytes int64) {
	if t == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("status", status))

	if t.assetsTotal != nil {
		t.assetsTotal.Add(context.Background(), 1, attrs)
	}

	if t.assetDuration != nil {
		t.assetDuration.Record(context.Background(), duration.Seconds(), attrs)
	}

	if bytes > 0 && t.assetBytesTotal != nil {
		t.assetBytesTotal.Add(context.Background(), bytes)
	}
}

// IncrementActiveAssets increments the in-flight asset counter.
func (t *Telemetry) IncrementActiveAssets() {
	if t != nil && t.assetsActive != nil {
		t.assetsActive.Add(context.Background(), 1)
	}
}

// DecrementActiveAssets decrements the in-flight asset counter.
func (t *Telemetry) DecrementActiveAssets() {
	if t != nil && t.assetsActive != nil {
		t.assetsActive.Add(context.Background(), -1)
	}
}

// RecordCatalogOperation records a catalog client operation.
func (t *Telemetry) RecordCatalogOperation(catalog, operation, status string) {
	if t == nil {
		return
	}

	if t.catalogOpsTotal != nil {
		t.catalogOpsTotal.Add(context.Background(), 1,
			metric.WithAttributes(
				attribute.String("catalog", catalog),
				attribute.String("operation", operation),
				attribute.String("status", status),
			),
		)
	}

	if status == "error" && t.catalogErrors != nil {
		t.catalogErrors.Add(context.Background(), 1,
			metric.WithAttributes(
				attribute.String("catalog", catalog),
				attribute.String("operation", operation),
			),
		)
	}
}

// RecordDBOperation records journal database operation metrics.
func (t *Telemetry) RecordDBOperation(operation, status string, duration time.Duration) {
	if t == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)

	if t.dbOpsTotal != nil {
		t.dbOpsTotal.Add(context.Background(), 1, attrs)
	}

	if t.dbOpDuration != nil {
		t.dbOpDuration.Record(context.Background(), duration.Seconds(), attrs)
	}
}

// RecordSystemError records system error metrics.
func (t *Telemetry) RecordSystemError(component, errorType string) {
	if t != nil && t.systemErrors != nil {
		t.systemErrors.Add(context.Background(), 1,
			metric.WithAttributes(
				attribute.String("component", component),
				attribute.String("error_type", errorType),
			),
		)
	}
}

// Handler returns the HTTP handler for the metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	if t == nil || t.exporter == nil {
		return http.NotFoundHandler()
	}

	return promhttp.Handler()
}

// Shutdown gracefully shuts down the telemetry system.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	if mp, ok := t.meterProvider.(*sdkmetric.MeterProvider); ok {
		return mp.Shutdown(ctx)
	}

	return nil
}

func (t *Telemetry) initializeMetrics() error {
	var err error

	t.assetsTotal, err = t.meter.Int64Counter(
		"assets_total",
		metric.WithDescription("Total number of asset fetches by terminal status"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create assets_total counter: %w", err)
	}

	t.assetsActive, err = t.meter.Int64UpDownCounter(
		"assets_active",
		metric.WithDescription("Number of asset downloads in flight"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create assets_active counter: %w", err)
	}

	t.assetDuration, err = t.meter.Float64Histogram(
		"asset_download_duration_seconds",
		metric.WithDescription("Asset fetch duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create asset_download_duration histogram: %w", err)
	}

	t.assetBytesTotal, err = t.meter.Int64Counter(
		"asset_bytes_total",
		metric.WithDescription("Total bytes written for downloaded assets"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return fmt.Errorf("failed to create asset_bytes_total counter: %w", err)
	}

	t.catalogOpsTotal, err = t.meter.Int64Counter(
		"catalog_operations_total",
		metric.WithDescription("Total number of catalog client operations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create catalog_operations_total counter: %w", err)
	}

	t.catalogErrors, err = t.meter.Int64Counter(
		"catalog_errors_total",
		metric.WithDescription("Total number of catalog client errors"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create catalog_errors counter: %w", err)
	}

	t.dbOpsTotal, err = t.meter.Int64Counter(
		"db_operations_total",
		metric.WithDescription("Total number of journal database operations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create db_operations_total counter: %w", err)
	}

	t.dbOpDuration, err = t.meter.Float64Histogram(
		"db_operation_duration_seconds",
		metric.WithDescription("Journal database operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create db_operation_duration histogram: %w", err)
	}

	t.systemErrors, err = t.meter.Int64Counter(
		"system_errors_total",
		metric.WithDescription("Total number of system errors"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create system_errors counter: %w", err)
	}

	t.systemUptime, err = t.meter.Float64Gauge(
		"system_uptime_seconds",
		metric.WithDescription("Process uptime in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create system_uptime gauge: %w", err)
	}

	return nil
}

// collectUptime records process uptime periodically. Memory and goroutine
// metrics come from the OTel runtime instrumentation started in New.
func (t *Telemetry) collectUptime(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if t.systemUptime != nil {
				t.systemUptime.Record(context.Background(), time.Since(startTime).Seconds())
			}
		}
	}
}
