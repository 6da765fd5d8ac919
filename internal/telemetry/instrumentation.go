package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Span attributes here are kept to bounded-cardinality values only: operation
// names, component names and status strings. Asset IDs, URLs and file paths
// go to the logs, never to metric attributes.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation instruments a generic operation with a span and status
// attributes.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"

		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", status),
		attribute.Float64("duration_seconds", duration.Seconds()),
	)

	return err
}

// InstrumentCatalogOperation instruments catalog client operations.
func (t *Telemetry) InstrumentCatalogOperation(ctx context.Context, catalog, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	err := t.InstrumentOperation(ctx, "catalog_"+operation, "catalog_client", func(ctx context.Context) error {
		ctx, span := t.tracer.Start(ctx, "catalog_"+operation)
		defer span.End()

		span.SetAttributes(
			attribute.String("catalog.type", catalog),
			attribute.String("catalog.operation", operation),
		)

		return fn(ctx)
	})

	status := "success"
	if err != nil {
		status = "error"
	}

	t.RecordCatalogOperation(catalog, operation, status)

	return err
}

// InstrumentAssetFetch instruments a single asset download, tracking the
// in-flight counter for the duration of the call. Terminal status metrics
// are recorded separately by the fetcher since a failed download attempt and
// a failed asset are not the same thing.
func (t *Telemetry) InstrumentAssetFetch(ctx context.Context, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	t.IncrementActiveAssets()
	defer t.DecrementActiveAssets()

	return t.InstrumentOperation(ctx, "asset_fetch", "fetcher", fn)
}

// InstrumentDBOperation instruments journal database operations.
func (t *Telemetry) InstrumentDBOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "db_"+operation, "journal", fn)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
	}

	t.RecordDBOperation(operation, status, duration)

	return err
}
